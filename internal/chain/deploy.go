package chain

import (
	"context"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/account"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/pkg/errors"

	"github.com/robz323/alcancia-digital/internal/starkwallet"
	"github.com/robz323/alcancia-digital/pkg/config"
	"github.com/robz323/alcancia-digital/pkg/logger"
)

// DeployResult reports a realized on-chain account.
type DeployResult struct {
	Address string
	TxHash  string
}

// Deployer performs best-effort deploy-account transactions. Every failure
// path (no endpoint, unfunded precomputed address, confirmation timeout) is
// returned as an error value the caller can report and move past; the
// account record stays valid with its precomputed address.
type Deployer struct {
	cfg config.StarknetConfig
}

func NewDeployer(cfg config.StarknetConfig) *Deployer {
	return &Deployer{cfg: cfg}
}

// TryDeploy submits a deploy-account transaction funded by the precomputed
// address and waits for it to be accepted.
func (d *Deployer) TryDeploy(ctx context.Context, privKeyHex string) (*DeployResult, error) {
	if d.cfg.RPCEndpoint == "" {
		return nil, errors.Wrap(ErrNotConfigured, "missing rpc endpoint")
	}

	priv, err := starkwallet.KeyFromHex(privKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	details, err := starkwallet.ComputeAccountDetails(priv, d.cfg.AccountVariant, d.cfg.ClassHashOverride)
	if err != nil {
		return nil, errors.Wrap(err, "compute account details")
	}

	provider, err := newProvider(ctx, d.cfg.RPCEndpoint)
	if err != nil {
		return nil, err
	}

	ks := account.NewMemKeystore()
	ks.Put(details.PublicKey.String(), priv)

	accnt, err := account.NewAccount(provider, details.PrecalculatedAddress, details.PublicKey.String(), ks, account.CairoV2)
	if err != nil {
		return nil, errors.Wrap(err, "build account")
	}

	deployTxn, precomputed, err := accnt.BuildAndEstimateDeployAccountTxn(
		ctx,
		details.AddressSalt,
		details.ClassHash,
		details.ConstructorCalldata,
		nil,
	)
	if err != nil {
		// The usual cause: the precomputed address holds no funds to pay the
		// deployment fee.
		return nil, errors.Wrap(err, "estimate deploy transaction")
	}

	resp, err := accnt.SendTransaction(ctx, deployTxn)
	if err != nil {
		return nil, errors.Wrap(err, "submit deploy transaction")
	}

	logger.WithFields(map[string]interface{}{
		"tx_hash": resp.Hash.String(),
		"address": precomputed.String(),
	}).Info("deploy-account submitted, waiting for confirmation")

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.DeployTimeoutSeconds)*time.Second)
	defer cancel()
	if err := d.waitForAccepted(waitCtx, provider, resp.Hash); err != nil {
		return nil, err
	}

	return &DeployResult{
		Address: precomputed.String(),
		TxHash:  resp.Hash.String(),
	}, nil
}

// waitForAccepted polls the network until the transaction is accepted, the
// context expires, or the poll loop is cancelled.
func (d *Deployer) waitForAccepted(ctx context.Context, provider *rpc.Provider, txHash *felt.Felt) error {
	poll := time.Duration(d.cfg.DeployPollSeconds) * time.Second
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		receipt, err := provider.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.FinalityStatus == rpc.TxnFinalityStatusAcceptedOnL2 ||
				receipt.FinalityStatus == rpc.TxnFinalityStatusAcceptedOnL1 {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "deploy confirmation timed out")
		case <-ticker.C:
		}
	}
}
