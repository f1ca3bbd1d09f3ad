package accounts

import "sync"

// MemoryStore keeps accounts for the lifetime of the process. Without a
// deterministic derivation secret this is the documented production gap:
// random keys do not survive a restart.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Account)}
}

func (s *MemoryStore) Get(entityID string) (*Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.items[entityID]
	if !ok {
		return nil, false, nil
	}
	cp := *acc
	return &cp, true, nil
}

func (s *MemoryStore) Ensure(entityID string, mint Mint) (*Account, error) {
	// The lock covers the whole check-then-insert, so two near-simultaneous
	// first requests see one mint.
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.items[entityID]; ok {
		cp := *acc
		return &cp, nil
	}

	acc, err := mint(entityID)
	if err != nil {
		return nil, err
	}
	s.items[entityID] = acc
	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) SetAddress(entityID, addressHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.items[entityID]; ok {
		acc.AddressHex = addressHex
	}
	return nil
}

func (s *MemoryStore) SetDeployed(entityID, addressHex, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.items[entityID]; ok {
		acc.AddressHex = addressHex
		acc.DeployedTx = txHash
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
