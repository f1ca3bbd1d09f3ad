package agent

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/robz323/alcancia-digital/internal/accounts"
	"github.com/robz323/alcancia-digital/internal/chain"
	"github.com/robz323/alcancia-digital/pkg/config"
	"github.com/robz323/alcancia-digital/pkg/dedup"
)

type fakeDeployer struct {
	result *chain.DeployResult
	err    error
	calls  int
}

func (d *fakeDeployer) TryDeploy(ctx context.Context, privKeyHex string) (*chain.DeployResult, error) {
	d.calls++
	return d.result, d.err
}

type fakeBalancer struct {
	wei *big.Int
	err error
}

func (b *fakeBalancer) Balance(ctx context.Context, addressHex string) (*big.Int, error) {
	return b.wei, b.err
}

type collector struct {
	texts []string
}

func (c *collector) emit(text string) { c.texts = append(c.texts, text) }

type fixture struct {
	service  *Service
	store    *accounts.MemoryStore
	deployer *fakeDeployer
	balancer *fakeBalancer
	raw      *StaticRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    accounts.NewMemoryStore(),
		deployer: &fakeDeployer{err: errors.New("no funds at precomputed address")},
		balancer: &fakeBalancer{wei: big.NewInt(0)},
		raw:      NewStaticRegistry(),
	}
	cfg := config.StarknetConfig{
		DerivationSecret: "test-secret",
		AccountVariant:   config.VariantOZ,
	}
	f.service = NewService(
		f.store, cfg, f.deployer, f.balancer, f.raw,
		dedup.NewGuard(dedup.DefaultActionWindow),
		dedup.NewGuard(dedup.DefaultWarnWindow),
	)
	return f
}

func msgFor(entity, text, messageID string) Message {
	return Message{
		EntityID:  entity,
		RoomID:    "room-" + entity,
		Text:      text,
		Source:    "chat",
		MessageID: messageID,
	}
}

func TestCreateAccountThenExisting(t *testing.T) {
	f := newFixture(t)
	f.deployer.result = &chain.DeployResult{Address: "0x" + strings.Repeat("cd", 31), TxHash: "0x1"}
	f.deployer.err = nil
	ctx := context.Background()
	out := &collector{}

	res, found := f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), out.emit)
	require.True(t, found)
	require.True(t, res.Success)
	require.Contains(t, res.Text, "¡Listo!")
	require.NotEmpty(t, res.Data["address"])
	require.Equal(t, 1, f.deployer.calls)

	res, found = f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m2"), out.emit)
	require.True(t, found)
	require.True(t, res.Success)
	require.Contains(t, res.Text, "Ya tienes una alcancía")
	require.Equal(t, 1, f.deployer.calls, "a deployed account must not redeploy")
	require.Len(t, out.texts, 2)
}

func TestDeployRetriedUntilItSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// First create: deployment fails, account keeps its precomputed address.
	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})
	require.Equal(t, 1, f.deployer.calls)
	acc, _, _ := f.store.Get("user-1")
	require.Empty(t, acc.DeployedTx)
	precomputed := acc.AddressHex

	// Second create: still undeployed, so deployment is attempted again.
	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m2"), func(string) {})
	require.Equal(t, 2, f.deployer.calls, "an undeployed account retries on the next create")

	// The address is now funded and deployment goes through.
	f.deployer.result = &chain.DeployResult{Address: precomputed, TxHash: "0xfeed"}
	f.deployer.err = nil
	res, _ := f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m3"), func(string) {})
	require.Equal(t, 3, f.deployer.calls)
	require.Contains(t, res.Text, "Ya tienes una alcancía")

	acc, _, _ = f.store.Get("user-1")
	require.Equal(t, "0xfeed", acc.DeployedTx)

	// Once deployed, further creates stop retrying.
	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m4"), func(string) {})
	require.Equal(t, 3, f.deployer.calls)
}

func TestCreateAccountIsDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	first, _ := f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), out.emit)

	// A second fixture with the same secret mints the same address.
	g := newFixture(t)
	second, _ := g.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), out.emit)

	require.Equal(t, first.Data["address"], second.Data["address"])
}

func TestInvokeGuardShortCircuitsRepeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	msg := msgFor("user-1", "crear alcancía", "same-id")
	first, _ := f.service.Invoke(ctx, OpCreateAccount, msg, out.emit)
	require.True(t, first.Success)

	second, found := f.service.Invoke(ctx, OpCreateAccount, msg, out.emit)
	require.True(t, found)
	require.Equal(t, true, second.Data["duplicate_ignored"])
	require.Len(t, out.texts, 1, "the duplicate must not emit")
}

func TestInvokeUnknownOperation(t *testing.T) {
	f := newFixture(t)
	_, found := f.service.Invoke(context.Background(), "NOPE", msgFor("user-1", "x", "m1"), func(string) {})
	require.False(t, found)
}

func TestDeploySuccessPromotesAddress(t *testing.T) {
	f := newFixture(t)
	f.deployer.result = &chain.DeployResult{Address: "0x" + strings.Repeat("ab", 31), TxHash: "0x1"}
	f.deployer.err = nil
	ctx := context.Background()

	res, _ := f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})
	require.Equal(t, f.deployer.result.Address, res.Data["address"])

	acc, ok, err := f.store.Get("user-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, f.deployer.result.Address, acc.AddressHex)
}

func TestDeployFailureKeepsPrecomputedAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, _ := f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})
	require.True(t, res.Success, "the account survives a failed deployment")

	acc, ok, _ := f.store.Get("user-1")
	require.True(t, ok)
	require.True(t, strings.HasPrefix(acc.AddressHex, "0x"))
	require.Equal(t, acc.AddressHex, res.Data["address"])
}

func TestGetAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})

	res, found := f.service.Invoke(ctx, OpGetAddress, msgFor("user-1", "dirección", "m2"), out.emit)
	require.True(t, found)
	require.True(t, res.Success)
	require.Contains(t, res.Text, "La dirección de tu alcancía")
	require.NotEmpty(t, res.Data["address"])
}

func TestNoAccountWarnIsThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	res, _ := f.service.Invoke(ctx, OpGetBalance, msgFor("user-1", "saldo", "m1"), out.emit)
	require.False(t, res.Success)
	require.Equal(t, textNoAccount, res.Text)
	require.Len(t, out.texts, 1)

	// Within the throttle window the warning is suppressed entirely.
	res, _ = f.service.Invoke(ctx, OpGetBalance, msgFor("user-1", "saldo otra vez", "m2"), out.emit)
	require.False(t, res.Success)
	require.Equal(t, true, res.Data["throttled"])
	require.Len(t, out.texts, 1, "the repeat must stay silent")
}

func TestWarnWindowsAreIndependentPerFeature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	f.service.Invoke(ctx, OpGetBalance, msgFor("user-1", "saldo", "m1"), out.emit)
	f.service.Invoke(ctx, OpGetAddress, msgFor("user-1", "dirección", "m2"), out.emit)
	require.Len(t, out.texts, 2, "balance and address warnings throttle separately")
}

func TestGetBalanceFormatted(t *testing.T) {
	f := newFixture(t)
	f.balancer.wei, _ = new(big.Int).SetString("1500000000000000000", 10)
	ctx := context.Background()
	out := &collector{}

	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})

	res, _ := f.service.Invoke(ctx, OpGetBalance, msgFor("user-1", "saldo", "m2"), out.emit)
	require.True(t, res.Success)
	require.Equal(t, "1.5", res.Data["balance"])
	require.Contains(t, res.Text, "1.5")
}

func TestGetBalanceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.balancer.err = errors.New("rpc: connection refused")
	ctx := context.Background()
	out := &collector{}

	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})

	res, _ := f.service.Invoke(ctx, OpGetBalance, msgFor("user-1", "saldo", "m2"), out.emit)
	require.False(t, res.Success)
	require.Equal(t, "N/A", res.Data["balance"])
	require.Equal(t, textBalanceNA, res.Text)
}

func TestGetBalanceConfigError(t *testing.T) {
	f := newFixture(t)
	f.balancer.err = pkgerrors.Wrap(chain.ErrNotConfigured, "missing token contract")
	ctx := context.Background()

	f.service.Invoke(context.Background(), OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})

	res, _ := f.service.Invoke(ctx, OpGetBalance, msgFor("user-1", "saldo", "m2"), func(string) {})
	require.False(t, res.Success)
	require.Equal(t, textConfigError, res.Text)
}

func TestTransferInjectsKeyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})
	acc, _, _ := f.store.Get("user-1")

	var seenKey, seenAlias, seenAction string
	f.raw.Register(RawTransferAction, func(ctx context.Context, msg Message, opts RawOptions, cb RawCallback) error {
		require.NotNil(t, opts.Starknet)
		seenKey = opts.Starknet.PrivateKeyHex
		seenAlias = opts.Starknet.AccountAlias
		seenAction = msg.Action
		cb("Transferencia enviada.")
		return nil
	})

	res, found := f.service.Invoke(ctx, OpTransfer, msgFor("user-1", "transferir 5 a juan", "m2"), out.emit)
	require.True(t, found)
	require.True(t, res.Success)
	require.Equal(t, acc.PrivateKeyHex, seenKey)
	require.Equal(t, "user-1", seenAlias)
	require.Equal(t, RawTransferAction, seenAction)
	require.Equal(t, OpTransfer, res.Data["action"])
	require.Equal(t, "Transferencia enviada.", res.Text)
	require.NotContains(t, res.Text, acc.PrivateKeyHex, "the key must never surface")
	require.Equal(t, []string{"Transferencia enviada."}, out.texts)
}

func TestDelegationPromotesRevealedAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})

	deployed := "0x" + strings.Repeat("4f", 32)
	f.raw.Register(RawDeployTokenAction, func(ctx context.Context, msg Message, opts RawOptions, cb RawCallback) error {
		cb("Token creado en " + deployed)
		return nil
	})

	res, _ := f.service.Invoke(ctx, OpDeployToken, msgFor("user-1", "crear token", "m2"), func(string) {})
	require.True(t, res.Success)

	acc, _, _ := f.store.Get("user-1")
	require.Equal(t, deployed, acc.AddressHex, "an address in the raw response promotes the stored one")
}

func TestDelegationMissingRawAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})

	res, _ := f.service.Invoke(ctx, OpTransfer, msgFor("user-1", "transferir", "m2"), out.emit)
	require.False(t, res.Success)
	require.Equal(t, textRawMissing, res.Text)
}

func TestDelegationRawError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})
	f.raw.Register(RawTransferAction, func(ctx context.Context, msg Message, opts RawOptions, cb RawCallback) error {
		return errors.New("downstream unavailable")
	})

	res, _ := f.service.Invoke(ctx, OpTransfer, msgFor("user-1", "transferir", "m2"), func(string) {})
	require.False(t, res.Success)
	require.Equal(t, textRawMissing, res.Text)
}

func TestDelegationSilentRawAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.service.Invoke(ctx, OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})
	f.raw.Register(RawTransferAction, func(ctx context.Context, msg Message, opts RawOptions, cb RawCallback) error {
		return nil // completes without responding
	})

	res, _ := f.service.Invoke(ctx, OpTransfer, msgFor("user-1", "transferir", "m2"), func(string) {})
	require.True(t, res.Success)
	require.Empty(t, res.Text)
	require.Equal(t, OpTransfer, res.Data["action"])
}

func TestDelegationNoAccount(t *testing.T) {
	f := newFixture(t)

	res, _ := f.service.Invoke(context.Background(), OpTransfer, msgFor("user-1", "transferir", "m1"), func(string) {})
	require.False(t, res.Success)
	require.Equal(t, textNoAccount, res.Text)
}

func TestGuardKeySeparatesCaseSensitiveMessageIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	// "ABC" and "abc" are two different transport message ids; neither may be
	// treated as a duplicate of the other.
	first, _ := f.service.Invoke(ctx, OpGetAddress, msgFor("user-1", "dirección", "ABC"), out.emit)
	require.Nil(t, first.Data["duplicate_ignored"])

	second, _ := f.service.Invoke(ctx, OpGetAddress, msgFor("user-1", "dirección", "abc"), out.emit)
	require.Nil(t, second.Data["duplicate_ignored"], "distinct ids must both execute")
}

func TestGuardKeyFallsBackToContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := &collector{}

	// No message id: identical entity+op+text dedupes.
	msg := msgFor("user-1", "crear alcancía", "")
	first, _ := f.service.Invoke(ctx, OpCreateAccount, msg, out.emit)
	require.True(t, first.Success)
	require.Nil(t, first.Data["duplicate_ignored"])

	second, _ := f.service.Invoke(ctx, OpCreateAccount, msg, out.emit)
	require.Equal(t, true, second.Data["duplicate_ignored"])
}

func TestOperationsOrder(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, []string{OpCreateAccount, OpDeployToken, OpTransfer, OpGetAddress, OpGetBalance}, f.service.Operations())
}

func TestAccountCreatedAtIsSet(t *testing.T) {
	f := newFixture(t)
	before := time.Now().Add(-time.Second)

	f.service.Invoke(context.Background(), OpCreateAccount, msgFor("user-1", "crear alcancía", "m1"), func(string) {})
	acc, ok, _ := f.store.Get("user-1")
	require.True(t, ok)
	require.True(t, acc.CreatedAt.After(before))
}
