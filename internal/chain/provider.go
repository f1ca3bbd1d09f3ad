package chain

import (
	"context"

	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/pkg/errors"
)

// ErrNotConfigured is returned when an operation needs chain access but the
// required configuration (RPC endpoint, token contract) is absent. It is a
// reported condition, never a crash.
var ErrNotConfigured = errors.New("chain: not configured")

func newProvider(ctx context.Context, endpoint string) (*rpc.Provider, error) {
	if endpoint == "" {
		return nil, errors.Wrap(ErrNotConfigured, "missing rpc endpoint")
	}
	provider, err := rpc.NewProvider(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "connect rpc provider")
	}
	return provider, nil
}
