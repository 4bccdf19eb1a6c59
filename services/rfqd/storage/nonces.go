package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

const permitNoncePrefix = "permit-nonce:"

// LevelDBNonceStore records consumed permit nonces. It implements
// permit.NonceStore.
type LevelDBNonceStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

// OpenNonceStore opens (or creates) a LevelDB database at the provided path.
func OpenNonceStore(path string) (*LevelDBNonceStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb nonce store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb nonce path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb nonce store: %w", err)
	}
	return &LevelDBNonceStore{db: db}, nil
}

// OpenMemoryNonceStore returns a store backed by in-memory LevelDB storage.
func OpenMemoryNonceStore() (*LevelDBNonceStore, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory nonce store: %w", err)
	}
	return &LevelDBNonceStore{db: db}, nil
}

// Close releases the underlying LevelDB resources.
func (s *LevelDBNonceStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Consume marks nonce as used for owner and reports whether it was fresh.
func (s *LevelDBNonceStore) Consume(owner [20]byte, nonce uint64) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("leveldb nonce store not configured")
	}
	key := nonceKey(owner, nonce)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("load nonce: %w", err)
	default:
		return false, nil
	}
	if err := s.db.Put(key, []byte{1}, nil); err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	return true, nil
}

func nonceKey(owner [20]byte, nonce uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", permitNoncePrefix, hex.EncodeToString(owner[:]), nonce))
}
