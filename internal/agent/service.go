package agent

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/robz323/alcancia-digital/internal/accounts"
	"github.com/robz323/alcancia-digital/internal/chain"
	"github.com/robz323/alcancia-digital/internal/starkwallet"
	"github.com/robz323/alcancia-digital/pkg/config"
	"github.com/robz323/alcancia-digital/pkg/dedup"
	"github.com/robz323/alcancia-digital/pkg/logger"

	"github.com/pkg/errors"
)

// Operation names exposed to the router and to collaborators.
const (
	OpCreateAccount = "CREATE_INVISIBLE_ACCOUNT"
	OpGetAddress    = "GET_INVISIBLE_ADDRESS"
	OpGetBalance    = "GET_INVISIBLE_BALANCE"
	OpTransfer      = "TRANSFER_FROM_INVISIBLE"
	OpDeployToken   = "DEPLOY_TOKEN_FROM_INVISIBLE"
)

// User-facing responses (the bot speaks Spanish).
const (
	textConfigError = "La red no está configurada correctamente. Intenta más tarde."
	textNoAccount   = "Aún no tienes una alcancía. Escribe \"crear alcancía\" para crear una."
	textRawMissing  = "Esta operación no está disponible por ahora."
	textBalanceNA   = "No pude consultar tu saldo ahora mismo (N/A)."
)

// AccountDeployer realizes a precomputed address on-chain, best effort.
type AccountDeployer interface {
	TryDeploy(ctx context.Context, privKeyHex string) (*chain.DeployResult, error)
}

// TokenBalancer reads an on-chain token balance.
type TokenBalancer interface {
	Balance(ctx context.Context, addressHex string) (*big.Int, error)
}

// Service owns the invisible-account lifecycle: derivation, address
// precomputation, best-effort deployment, balance reads and the delegation
// protocol. All state (store, guards) is injected at construction; nothing
// is package-global.
type Service struct {
	store       accounts.Store
	cfg         config.StarknetConfig
	deployer    AccountDeployer
	balances    TokenBalancer
	raw         RawRegistry
	actionGuard *dedup.Guard
	warnGuard   *dedup.Guard
	handlers    map[string]Handler
}

func NewService(
	store accounts.Store,
	cfg config.StarknetConfig,
	deployer AccountDeployer,
	balances TokenBalancer,
	raw RawRegistry,
	actionGuard *dedup.Guard,
	warnGuard *dedup.Guard,
) *Service {
	s := &Service{
		store:       store,
		cfg:         cfg,
		deployer:    deployer,
		balances:    balances,
		raw:         raw,
		actionGuard: actionGuard,
		warnGuard:   warnGuard,
	}
	s.handlers = map[string]Handler{
		OpCreateAccount: s.createAccount,
		OpGetAddress:    s.getAddress,
		OpGetBalance:    s.getBalance,
		OpTransfer:      s.transfer,
		OpDeployToken:   s.deployToken,
	}
	return s
}

// Invoke runs the named operation exactly once per logical message: the
// single-execution guard short-circuits repeats regardless of which code
// path (router or collaborator) reached it. Unknown names report found=false.
func (s *Service) Invoke(ctx context.Context, name string, msg Message, emit Emit) (Result, bool) {
	handler, ok := s.handlers[name]
	if !ok {
		return Result{}, false
	}
	if !s.actionGuard.ShouldProceed(s.guardKey(name, msg)) {
		logger.Debugf("[agent] duplicate invocation ignored: op=%s entity=%s", name, msg.EntityID)
		return duplicateIgnored(), true
	}
	return handler(ctx, msg, emit), true
}

// Operations returns the exposed operation names in routing priority order.
func (s *Service) Operations() []string {
	return []string{OpCreateAccount, OpDeployToken, OpTransfer, OpGetAddress, OpGetBalance}
}

// guardKey keys on the transport message identity when available, otherwise
// on the logical request content. Only the free text is case-folded;
// identifiers keep their casing.
func (s *Service) guardKey(name string, msg Message) string {
	if msg.MessageID != "" {
		return dedup.Key(msg.MessageID, name)
	}
	return dedup.Key(msg.EntityID, name, strings.ToLower(msg.Text))
}

// mintAccount derives key material and precomputes the account address for
// an entity seen for the first time. When no class hash applies the address
// falls back to the provisional raw public key.
func (s *Service) mintAccount(entityID string) (*accounts.Account, error) {
	priv, err := starkwallet.DerivePrivateKey(entityID, s.cfg.DerivationSecret, s.cfg.AccountVariant)
	if err != nil {
		return nil, errors.Wrap(err, "derive private key")
	}

	acc := &accounts.Account{
		EntityID:      entityID,
		PrivateKeyHex: starkwallet.KeyToHex(priv),
		CreatedAt:     time.Now(),
	}

	details, err := starkwallet.ComputeAccountDetails(priv, s.cfg.AccountVariant, s.cfg.ClassHashOverride)
	if err != nil {
		logger.Warnf("[agent] no precomputed address (%v), using provisional public key for %s", err, entityID)
		acc.AddressHex = starkwallet.PublicKey(priv).String()
		return acc, nil
	}
	acc.AddressHex = details.PrecalculatedAddress.String()
	return acc, nil
}

func (s *Service) createAccount(ctx context.Context, msg Message, emit Emit) Result {
	minted := false
	acc, err := s.store.Ensure(msg.EntityID, func(entityID string) (*accounts.Account, error) {
		minted = true
		return s.mintAccount(entityID)
	})
	if err != nil {
		logger.Errorf("[agent] create account failed for %s: %v", msg.EntityID, err)
		emit(textConfigError)
		return Result{Success: false, Text: textConfigError}
	}

	// Best-effort deployment: an unfunded address fails fast at estimation
	// and the record stays valid with the precomputed address. An existing
	// account that never made it on-chain is retried here too.
	if acc.DeployedTx == "" {
		acc = s.attemptDeploy(ctx, acc)
	}

	if !minted {
		text := fmt.Sprintf("Ya tienes una alcancía. 🐷\nDirección: %s", acc.AddressHex)
		emit(text)
		return Result{Success: true, Text: text, Data: map[string]any{"address": acc.AddressHex}}
	}

	text := fmt.Sprintf(
		"¡Listo! Tu alcancía digital fue creada. 🐷\nDirección: %s\nEnvía fondos a esta dirección para empezar a ahorrar.",
		acc.AddressHex,
	)
	emit(text)
	return Result{Success: true, Text: text, Data: map[string]any{"address": acc.AddressHex}}
}

// attemptDeploy runs one best-effort deployment and records the outcome. The
// returned account reflects the realized address on success; on failure the
// input record is returned unchanged.
func (s *Service) attemptDeploy(ctx context.Context, acc *accounts.Account) *accounts.Account {
	res, err := s.deployer.TryDeploy(ctx, acc.PrivateKeyHex)
	if err != nil {
		logger.Warnf("[agent] deploy attempt failed for %s (account still usable): %v", acc.EntityID, err)
		return acc
	}
	if res == nil || res.Address == "" {
		return acc
	}
	if serr := s.store.SetDeployed(acc.EntityID, res.Address, res.TxHash); serr != nil {
		logger.Warnf("[agent] could not record deployment for %s: %v", acc.EntityID, serr)
		return acc
	}
	acc.AddressHex = res.Address
	acc.DeployedTx = res.TxHash
	return acc
}

func (s *Service) getAddress(ctx context.Context, msg Message, emit Emit) Result {
	acc, ok, err := s.store.Get(msg.EntityID)
	if err != nil {
		logger.Errorf("[agent] address lookup failed for %s: %v", msg.EntityID, err)
		emit(textConfigError)
		return Result{Success: false, Text: textConfigError}
	}
	if !ok {
		return s.warnNoAccount("address", msg, emit)
	}

	text := fmt.Sprintf("La dirección de tu alcancía es:\n%s", acc.AddressHex)
	emit(text)
	return Result{Success: true, Text: text, Data: map[string]any{"address": acc.AddressHex}}
}

func (s *Service) getBalance(ctx context.Context, msg Message, emit Emit) Result {
	acc, ok, err := s.store.Get(msg.EntityID)
	if err != nil {
		logger.Errorf("[agent] balance lookup failed for %s: %v", msg.EntityID, err)
		emit(textConfigError)
		return Result{Success: false, Text: textConfigError}
	}
	if !ok {
		return s.warnNoAccount("balance", msg, emit)
	}

	wei, err := s.balances.Balance(ctx, acc.AddressHex)
	if err != nil {
		if errors.Is(err, chain.ErrNotConfigured) {
			logger.Warnf("[agent] balance unavailable (config): %v", err)
			emit(textConfigError)
			return Result{Success: false, Text: textConfigError}
		}
		logger.Warnf("[agent] balance unavailable for %s: %v", msg.EntityID, err)
		emit(textBalanceNA)
		return Result{Success: false, Text: textBalanceNA, Data: map[string]any{"balance": "N/A"}}
	}

	formatted := chain.FormatWei(wei)
	text := fmt.Sprintf("El saldo de tu alcancía es: %s", formatted)
	emit(text)
	return Result{Success: true, Text: text, Data: map[string]any{"balance": formatted}}
}

func (s *Service) transfer(ctx context.Context, msg Message, emit Emit) Result {
	return s.delegate(ctx, msg, RawTransferAction, OpTransfer, "transfer", emit)
}

func (s *Service) deployToken(ctx context.Context, msg Message, emit Emit) Result {
	return s.delegate(ctx, msg, RawDeployTokenAction, OpDeployToken, "deploy-token", emit)
}

// warnNoAccount tells the user to create an account first, at most once per
// throttle window per feature.
func (s *Service) warnNoAccount(feature string, msg Message, emit Emit) Result {
	if !s.warnGuard.ShouldProceed(dedup.Key(msg.EntityID, feature)) {
		return Result{Success: false, Data: map[string]any{"throttled": true}}
	}
	emit(textNoAccount)
	return Result{Success: false, Text: textNoAccount}
}
