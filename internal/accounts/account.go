package accounts

import "time"

// Account is an invisible account: key material is held here and never shown
// to the end user. The private key leaves the store only as an ephemeral
// parameter of a delegated raw-action invocation, never in a response
// payload.
type Account struct {
	EntityID      string    `json:"entity_id"`
	PrivateKeyHex string    `json:"private_key_hex"`
	CreatedAt     time.Time `json:"created_at"`
	// AddressHex is empty until a smart-account address (or a provisional
	// public-key identifier) is computed. It may later be promoted to a
	// canonical on-chain address observed in a delegated action's response.
	AddressHex string `json:"address_hex,omitempty"`
	// DeployedTx is the hash of the accepted deploy-account transaction.
	// Empty means the address is precomputed only; deployment is retried on
	// the next create request.
	DeployedTx string `json:"deployed_tx,omitempty"`
}

// Mint creates the account record for an entity seen for the first time.
type Mint func(entityID string) (*Account, error)

// Store holds exactly one Account per entity for its lifetime. Ensure is
// idempotent: repeated calls return the same key material and never
// regenerate it. Accounts are never deleted.
type Store interface {
	// Get returns the account for the entity, if any.
	Get(entityID string) (*Account, bool, error)
	// Ensure returns the existing account or mints one. Implementations must
	// serialize the check-then-insert so concurrent first requests for the
	// same entity cannot mint two different keys.
	Ensure(entityID string, mint Mint) (*Account, error)
	// SetAddress promotes the stored address. No-op for unknown entities.
	SetAddress(entityID, addressHex string) error
	// SetDeployed records a confirmed deployment: the realized address and
	// its transaction hash. No-op for unknown entities.
	SetDeployed(entityID, addressHex, txHash string) error
	Close() error
}
