package accounts

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "account:"

// BadgerStore is a small encrypted-at-rest account store (Badger).
// Note: encryption is provided by Badger options (value log + key registry),
// not by this wrapper.
type BadgerStore struct {
	db *badger.DB
	mu sync.Mutex // serializes Ensure's read-modify-write
}

type BadgerOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; if nil, DB is opened without encryption (not recommended)
}

func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("accounts: badger path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires index cache for encrypted workloads
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20) // 100MB
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) Get(entityID string) (*Account, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("accounts: store not opened")
	}
	var acc *Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + entityID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var a Account
			if err := json.Unmarshal(val, &a); err != nil {
				return err
			}
			acc = &a
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	if acc == nil {
		return nil, false, nil
	}
	return acc, true, nil
}

func (s *BadgerStore) Ensure(entityID string, mint Mint) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok, err := s.Get(entityID)
	if err != nil {
		return nil, err
	}
	if ok {
		return acc, nil
	}

	acc, err = mint(entityID)
	if err != nil {
		return nil, err
	}
	if err := s.put(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *BadgerStore) SetAddress(entityID, addressHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok, err := s.Get(entityID)
	if err != nil || !ok {
		return err
	}
	acc.AddressHex = addressHex
	return s.put(acc)
}

func (s *BadgerStore) SetDeployed(entityID, addressHex, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok, err := s.Get(entityID)
	if err != nil || !ok {
		return err
	}
	acc.AddressHex = addressHex
	acc.DeployedTx = txHash
	return s.put(acc)
}

func (s *BadgerStore) put(acc *Account) error {
	val, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+acc.EntityID), val)
	})
}

// ParseEncryptionKey expects 32 bytes (base64 or hex). Returns nil if input
// is empty.
func ParseEncryptionKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
