package gasless

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"offrails/internal/config"
	"offrails/internal/wallet"
)

// State is the lifecycle of one abstraction session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ProviderAPI is the fee-abstraction provider surface. Embedded custodial
// wallets and externally-connected wallets use different initialization
// and transfer routines.
type ProviderAPI interface {
	InitEmbedded(ctx context.Context, owner common.Address, chainID int64) error
	InitExternal(ctx context.Context, owner common.Address, chainID int64) error
	TransferEmbedded(ctx context.Context, token, to common.Address, amount *big.Int) (string, error)
	TransferExternal(ctx context.Context, token, to common.Address, amount *big.Int) (string, error)
	// FlatFee is the token-denominated fee charged on the abstracted path,
	// in smallest units.
	FlatFee() *big.Int
}

// Coordinator owns the single abstraction session for one wallet+chain
// pairing. It is torn down and rebuilt when the wallet or chain changes.
type Coordinator struct {
	mu     sync.Mutex
	state  State
	wallet wallet.Wallet
	chain  config.Chain
	token  string
	api    ProviderAPI
}

func NewCoordinator(w wallet.Wallet, chain config.Chain, tokenSymbol string, api ProviderAPI) *Coordinator {
	return &Coordinator{
		state:  StateUninitialized,
		wallet: w,
		chain:  chain,
		token:  tokenSymbol,
		api:    api,
	}
}

// Ensure drives uninitialized -> initializing -> {active|failed}. It is a
// no-op while a session is initializing, once one is active, and after a
// failure (failed is terminal until Reset). Fee-subsidized wallets and
// chains outside the allow-list never initialize.
func (c *Coordinator) Ensure(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return
	}
	if c.wallet.Kind() == wallet.FeeSubsidized || !c.chain.GaslessEligible {
		c.mu.Unlock()
		return
	}
	if (c.wallet.Address() == common.Address{}) {
		c.mu.Unlock()
		return
	}
	c.state = StateInitializing
	c.mu.Unlock()

	err := c.initialize(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = StateFailed
		log.WithError(err).WithFields(log.Fields{
			"wallet": c.wallet.Address().Hex(),
			"chain":  c.chain.ID,
		}).Warn("gas abstraction unavailable, standard path will be used")
	} else {
		c.state = StateActive
	}
	c.mu.Unlock()
}

func (c *Coordinator) initialize(ctx context.Context) error {
	if err := c.wallet.SwitchChain(ctx, c.chain.ID); err != nil {
		return fmt.Errorf("switch chain: %w", err)
	}
	switch c.wallet.Kind() {
	case wallet.Embedded:
		if err := c.api.InitEmbedded(ctx, c.wallet.Address(), c.chain.ID); err != nil {
			return fmt.Errorf("init embedded session: %w", err)
		}
	case wallet.External:
		if err := c.api.InitExternal(ctx, c.wallet.Address(), c.chain.ID); err != nil {
			return fmt.Errorf("init external session: %w", err)
		}
	case wallet.FeeSubsidized:
		return fmt.Errorf("fee-subsidized wallets never use abstraction")
	default:
		return fmt.Errorf("unhandled wallet kind %s", c.wallet.Kind())
	}
	return nil
}

// Reset tears the session down, e.g. when the user switches chain. It is
// the only way out of the failed state.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateInitializing {
		return
	}
	c.state = StateUninitialized
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether fee-abstracted execution is currently usable.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateActive && c.wallet.Kind() != wallet.FeeSubsidized
}

// FeeCurrency is what the user pays fees in: the token itself when
// abstraction is active, otherwise the chain's native currency.
func (c *Coordinator) FeeCurrency() string {
	if c.Active() {
		return c.token
	}
	return c.chain.NativeCurrency
}

// FlatFee is the abstracted-path fee buffer in token smallest units, zero
// when abstraction is not active.
func (c *Coordinator) FlatFee() *big.Int {
	if !c.Active() {
		return big.NewInt(0)
	}
	return c.api.FlatFee()
}

// API exposes the provider routines to the executor.
func (c *Coordinator) API() ProviderAPI { return c.api }
