// Package consensuserr defines the error kinds produced by the consensus
// engine as a RuleError carrying a stable ErrorCode, in the style
// of blockdag's ruleError/ErrorCode pair.
package consensuserr

import "fmt"

// ErrorCode identifies a specific kind of rule violation.
type ErrorCode int

const (
	// ErrInvalidStructure indicates a malformed transaction or block.
	ErrInvalidStructure ErrorCode = iota
	// ErrInvalidSignature indicates ECDSA verification failed.
	ErrInvalidSignature
	// ErrInvalidPoW indicates the block hash did not fall below the
	// target, or the difficulty was malformed.
	ErrInvalidPoW
	// ErrMerkleMismatch indicates the recomputed merkle root differs
	// from the header's claimed root.
	ErrMerkleMismatch
	// ErrCoinbaseOverflow indicates the coinbase output total exceeds
	// reward+fees. Logged at Error.
	ErrCoinbaseOverflow
	// ErrDoubleSpend indicates the input outpoint is already spent, or
	// already locked by another mempool transaction with no RBF path.
	ErrDoubleSpend
	// ErrUTXONotFound indicates a referenced outpoint is missing from
	// the UTXO set.
	ErrUTXONotFound
	// ErrInsufficientFunds indicates sum(inputs) < sum(outputs) + fee.
	ErrInsufficientFunds
	// ErrNonceViolation indicates the sender's nonce is below the
	// expected value, or a duplicate.
	ErrNonceViolation
	// ErrOrphanPending indicates a block or transaction was buffered
	// pending its parent/inputs.
	ErrOrphanPending
	// ErrReorgRejected indicates a reorganization exceeded the
	// checkpoint depth, or a replay during reorg failed.
	ErrReorgRejected
	// ErrStorageError indicates a durable-storage failure.
	ErrStorageError
)

var errorCodeStrings = map[ErrorCode]string{
	ErrInvalidStructure:  "InvalidStructure",
	ErrInvalidSignature:  "InvalidSignature",
	ErrInvalidPoW:        "InvalidPoW",
	ErrMerkleMismatch:    "MerkleMismatch",
	ErrCoinbaseOverflow:  "CoinbaseOverflow",
	ErrDoubleSpend:       "DoubleSpend",
	ErrUTXONotFound:      "UTXONotFound",
	ErrInsufficientFunds: "InsufficientFunds",
	ErrNonceViolation:    "NonceViolation",
	ErrOrphanPending:     "OrphanPending",
	ErrReorgRejected:     "ReorgRejected",
	ErrStorageError:      "StorageError",
}

// String returns the human-readable name of the error code.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(e))
}

// RuleError identifies an error that was caused by a violation of a
// consensus rule. It carries both the machine-checkable ErrorCode and a
// human-readable description.
type RuleError struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface.
func (e RuleError) Error() string {
	return e.Description
}

// New constructs a RuleError of the given kind.
func New(code ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: code, Description: desc}
}

// Newf constructs a RuleError of the given kind with a formatted
// description.
func Newf(code ErrorCode, format string, args ...interface{}) RuleError {
	return RuleError{ErrorCode: code, Description: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a RuleError of the given code, unwrapping as
// needed.
func Is(err error, code ErrorCode) bool {
	re, ok := err.(RuleError)
	if !ok {
		type causer interface{ Cause() error }
		if c, ok := err.(causer); ok {
			return Is(c.Cause(), code)
		}
		return false
	}
	return re.ErrorCode == code
}
