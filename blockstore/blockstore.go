// Package blockstore implements the on-disk block persistence layout:
// each block under its own append-only file, and the chain tip
// pointer in a single small file rewritten atomically on every advance.
// Modeled on the same write-to-tmp-then-rename durability rule package
// checkpoint uses for its snapshot files.
package blockstore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/xai-blockchain/xai-sub017/block"
	"github.com/xai-blockchain/xai-sub017/consensuserr"
	"github.com/xai-blockchain/xai-sub017/crypto"
)

// Store persists blocks under dir/blocks/<index>.bin and the tip hash under
// dir/tip.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir, creating the blocks subdirectory if
// it does not already exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "blocks"), 0o755); err != nil {
		return nil, errors.Wrap(err, "blockstore: mkdir")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) blockPath(index uint64) string {
	return filepath.Join(s.dir, "blocks", strconv.FormatUint(index, 10)+".bin")
}

func (s *Store) tipPath() string {
	return filepath.Join(s.dir, "tip")
}

// PutBlock writes b to its append-only file. A block index is written
// exactly once; callers must not attempt to overwrite a stored block.
func (s *Store) PutBlock(b *block.Block) error {
	path := s.blockPath(b.Header.Index)
	if _, err := os.Stat(path); err == nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "blockstore: block %d already stored", b.Header.Index)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b.Encode(), 0o644); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "blockstore: write block %d: %v", b.Header.Index, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "blockstore: rename block %d into place: %v", b.Header.Index, err)
	}
	return nil
}

// GetBlock reads and decodes the block stored at index.
func (s *Store) GetBlock(index uint64) (*block.Block, error) {
	data, err := os.ReadFile(s.blockPath(index))
	if err != nil {
		return nil, consensuserr.Newf(consensuserr.ErrStorageError, "blockstore: read block %d: %v", index, err)
	}
	return block.Decode(data)
}

// HasBlock reports whether a block is stored at index.
func (s *Store) HasBlock(index uint64) bool {
	_, err := os.Stat(s.blockPath(index))
	return err == nil
}

// SetTip atomically records hash as the persisted chain tip.
func (s *Store) SetTip(hash crypto.Hash) error {
	tmp := s.tipPath() + ".tmp"
	if err := os.WriteFile(tmp, hash.Bytes(), 0o644); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "blockstore: write tip: %v", err)
	}
	if err := os.Rename(tmp, s.tipPath()); err != nil {
		return consensuserr.Newf(consensuserr.ErrStorageError, "blockstore: rename tip into place: %v", err)
	}
	return nil
}

// Tip reads the persisted chain tip hash. It returns ok=false if no tip has
// ever been recorded (a fresh store).
func (s *Store) Tip() (hash crypto.Hash, ok bool, err error) {
	data, readErr := os.ReadFile(s.tipPath())
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return crypto.Hash{}, false, nil
		}
		return crypto.Hash{}, false, consensuserr.Newf(consensuserr.ErrStorageError, "blockstore: read tip: %v", readErr)
	}
	copy(hash[:], data)
	return hash, true, nil
}

// HighestStoredIndex scans the blocks directory and returns the greatest
// index present, or ok=false if the store is empty.
func (s *Store) HighestStoredIndex() (index uint64, ok bool, err error) {
	entries, readErr := os.ReadDir(filepath.Join(s.dir, "blocks"))
	if readErr != nil {
		return 0, false, errors.Wrap(readErr, "blockstore: read blocks dir")
	}
	found := false
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".bin")
		if name == e.Name() {
			continue // not a .bin file
		}
		n, parseErr := strconv.ParseUint(name, 10, 64)
		if parseErr != nil {
			continue
		}
		if !found || n > index {
			index = n
			found = true
		}
	}
	return index, found, nil
}
