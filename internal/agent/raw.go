package agent

import (
	"context"
	"sync"
)

// Raw downstream action names this system delegates to.
const (
	RawTransferAction    = "transfer-tokens"
	RawDeployTokenAction = "deploy-token"
)

// StarknetOptions is the one-shot capability injected into a delegated raw
// invocation. It is built per call and never retained by the callee contract.
type StarknetOptions struct {
	PrivateKeyHex string
	AccountAlias  string
}

// RawOptions carries invocation options for a raw action.
type RawOptions struct {
	Starknet *StarknetOptions
}

// RawCallback receives the raw action's textual response.
type RawCallback func(text string)

// RawAction is a pre-existing blockchain operation owned by a collaborator.
type RawAction func(ctx context.Context, msg Message, opts RawOptions, cb RawCallback) error

// RawRegistry exposes named raw actions. It is an optional collaborator: a
// missing action is a silent no-op for the router.
type RawRegistry interface {
	Lookup(name string) (RawAction, bool)
}

// StaticRegistry is a map-backed RawRegistry.
type StaticRegistry struct {
	mu      sync.RWMutex
	actions map[string]RawAction
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{actions: make(map[string]RawAction)}
}

func (r *StaticRegistry) Register(name string, action RawAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = action
}

func (r *StaticRegistry) Lookup(name string) (RawAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[name]
	return action, ok
}
