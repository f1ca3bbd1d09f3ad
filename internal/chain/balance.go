package chain

import (
	"context"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/robz323/alcancia-digital/pkg/config"
)

// tokenDecimals is the fixed-point scale of the configured ERC-20.
const tokenDecimals = 18

// BalanceReader queries the configured token contract for account balances.
type BalanceReader struct {
	cfg config.StarknetConfig
}

func NewBalanceReader(cfg config.StarknetConfig) *BalanceReader {
	return &BalanceReader{cfg: cfg}
}

// Balance calls balanceOf(address) on the token contract and returns the raw
// wei amount. Balances are u256 (low, high felts) and can exceed 64 bits.
func (r *BalanceReader) Balance(ctx context.Context, addressHex string) (*big.Int, error) {
	if r.cfg.RPCEndpoint == "" {
		return nil, errors.Wrap(ErrNotConfigured, "missing rpc endpoint")
	}
	if r.cfg.TokenContractAddress == "" {
		return nil, errors.Wrap(ErrNotConfigured, "missing token contract address")
	}

	provider, err := newProvider(ctx, r.cfg.RPCEndpoint)
	if err != nil {
		return nil, err
	}

	token, err := utils.HexToFelt(r.cfg.TokenContractAddress)
	if err != nil {
		return nil, errors.Wrap(err, "parse token contract address")
	}
	address, err := utils.HexToFelt(addressHex)
	if err != nil {
		return nil, errors.Wrap(err, "parse account address")
	}

	result, err := provider.Call(ctx, rpc.FunctionCall{
		ContractAddress:    token,
		EntryPointSelector: utils.GetSelectorFromNameFelt("balanceOf"),
		Calldata:           []*felt.Felt{address},
	}, rpc.BlockID{Tag: "latest"})
	if err != nil {
		return nil, errors.Wrap(err, "call balanceOf")
	}
	if len(result) == 0 {
		return nil, errors.New("malformed balanceOf response: empty result")
	}

	wei := result[0].BigInt(new(big.Int))
	if len(result) > 1 {
		high := result[1].BigInt(new(big.Int))
		wei.Add(wei, high.Lsh(high, 128))
	}
	return wei, nil
}

// FormatWei renders a wei amount as a fixed-point decimal with trailing
// zeros stripped: 0 -> "0", 10^18 -> "1", 1500000000000000000 -> "1.5".
func FormatWei(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -tokenDecimals).String()
}
