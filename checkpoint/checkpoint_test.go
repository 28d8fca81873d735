package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xai-blockchain/xai-sub017/amount"
	"github.com/xai-blockchain/xai-sub017/crypto"
)

func testKey() [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		TipHash:     crypto.Sum256([]byte("tip")),
		TipIndex:    42,
		TotalSupply: 1_000_000,
		UTXOs: []UTXORecord{
			{Address: "XAI1111111111111111111111111111111111111", TxID: crypto.Sum256([]byte("tx1")), Vout: 0, Amount: amount.Amount(500)},
			{Address: "XAI2222222222222222222222222222222222222", TxID: crypto.Sum256([]byte("tx2")), Vout: 1, Amount: amount.Amount(1500)},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, testKey())
	snap := sampleSnapshot()

	if err := m.Save(42, snap); err != nil {
		t.Fatal(err)
	}
	got, err := m.Load(42)
	if err != nil {
		t.Fatal(err)
	}
	if got.TipIndex != snap.TipIndex || got.TotalSupply != snap.TotalSupply {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	if len(got.UTXOs) != 2 || got.UTXOs[0].Amount != 500 || got.UTXOs[1].Amount != 1500 {
		t.Fatalf("unexpected utxo records: %+v", got.UTXOs)
	}
}

func TestLoadFailsOnWrongKey(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, testKey())
	if err := m.Save(1, sampleSnapshot()); err != nil {
		t.Fatal(err)
	}

	wrongKey := testKey()
	wrongKey[0] ^= 0xFF
	wrong := NewManager(dir, wrongKey)
	if _, err := wrong.Load(1); err == nil {
		t.Fatal("expected decryption failure with the wrong key")
	}
}

func TestSaveIsEncryptedAtRest(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, testKey())
	if err := m.Save(7, sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "7.chk"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw[:len(recordMagic)]) != string(recordMagic[:]) {
		t.Fatal("expected encrypted-record magic header")
	}
	// Ciphertext must not contain the plaintext tip hash bytes verbatim.
	snap := sampleSnapshot()
	needle := snap.TipHash.Bytes()
	if containsBytes(raw, needle) {
		t.Fatal("expected plaintext tip hash to not appear in encrypted payload")
	}
}

func TestLoadAcceptsForeignPlaintextAsAnomaly(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, testKey())
	snap := sampleSnapshot()
	plain := encode(snap)
	if err := os.WriteFile(filepath.Join(dir, "99.chk"), plain, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := m.Load(99)
	if err != nil {
		t.Fatalf("expected plaintext fallback to succeed, got %v", err)
	}
	if got.TipIndex != snap.TipIndex {
		t.Fatalf("expected decoded plaintext snapshot, got %+v", got)
	}
}

func containsBytes(haystack, needle []byte) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
