package offramp

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"offrails/internal/account"
	"offrails/internal/chain"
	"offrails/internal/config"
	"offrails/internal/executor"
	"offrails/internal/gasless"
	"offrails/internal/order"
	"offrails/internal/provider"
	"offrails/internal/quote"
)

// Step is the wizard position. Steps are strictly sequential; no step
// begins before its predecessor's required data exists.
type Step int

const (
	StepAmount Step = iota
	StepDestination
	StepInstitution
	StepAccount
	StepReview
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepAmount:
		return "amount"
	case StepDestination:
		return "destination"
	case StepInstitution:
		return "institution"
	case StepAccount:
		return "account"
	case StepReview:
		return "review"
	case StepSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Phase is the submission sub-state once StepSubmitted is entered.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProcessing
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProcessing:
		return "processing"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

var (
	ErrCannotProceed       = errors.New("step requirements not met")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSubmissionInFlight  = errors.New("a submission is already processing")
	ErrNotAtReview         = errors.New("submission is only allowed from review")
	ErrOrderExpired        = errors.New("order expired before execution")
)

// Deps are the collaborating services, constructed once and injected.
type Deps struct {
	Quotes   *quote.Service
	Verifier *account.Verifier
	Orders   *order.Manager
	Executor *executor.Executor
	Coord    *gasless.Coordinator
	Reader   chain.Reader
	Provider provider.Client
}

// Success is the user-facing outcome of a completed submission.
type Success struct {
	Reference      string    `json:"reference"`
	OrderID        string    `json:"orderId"`
	Amount         string    `json:"amount"`
	Network        string    `json:"network"`
	SenderFee      string    `json:"senderFee"`
	TransactionFee string    `json:"transactionFee"`
	ValidUntil     time.Time `json:"validUntil"`
	TxHash         string    `json:"txHash"`
	ExecutedVia    string    `json:"executedVia"`
}

// Session owns one off-ramp attempt end to end. Submissions for the same
// wallet are serialized by the gate, even across sessions.
type Session struct {
	mu    sync.Mutex
	step  Step
	phase Phase

	deps     Deps
	gate     *SubmissionGate
	chainCfg config.Chain
	token    config.Token
	tokenAdr common.Address
	holder   common.Address
	network  string
	retAddr  string
	quoteTTL time.Duration

	amount       string
	balance      *big.Int
	currency     string
	institutions []provider.Institution
	recipient    account.Recipient
	q            quote.Quote

	success *Success
	poll    *order.Poll
	lastErr string

	now func() time.Time
}

type SessionConfig struct {
	Chains        *config.ChainsConfig
	ChainID       int64
	TokenSymbol   string
	Holder        common.Address
	ReturnAddress string
	QuoteTTL      time.Duration

	// Gate is shared across all sessions built for the same process so
	// that concurrent submissions for one wallet exclude each other. Nil
	// builds a private gate, which only guards within this session.
	Gate *SubmissionGate
}

// NewSession resolves the token/chain pairing up front: an unsupported
// pairing is a configuration error and must abort before any RPC.
func NewSession(cfg SessionConfig, deps Deps) (*Session, error) {
	chainCfg, err := cfg.Chains.Chain(cfg.ChainID)
	if err != nil {
		return nil, err
	}
	token, err := cfg.Chains.Token(cfg.TokenSymbol)
	if err != nil {
		return nil, err
	}
	addr, err := cfg.Chains.TokenAddress(cfg.TokenSymbol, cfg.ChainID)
	if err != nil {
		return nil, err
	}
	ttl := cfg.QuoteTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	gate := cfg.Gate
	if gate == nil {
		gate = NewSubmissionGate()
	}
	return &Session{
		step:     StepAmount,
		phase:    PhaseIdle,
		deps:     deps,
		gate:     gate,
		chainCfg: chainCfg,
		token:    token,
		tokenAdr: common.HexToAddress(addr),
		holder:   cfg.Holder,
		network:  strings.ToLower(chainCfg.Name),
		retAddr:  cfg.ReturnAddress,
		quoteTTL: ttl,
		now:      time.Now,
	}, nil
}

func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastError returns the one-line banner for the current step, empty when
// none.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Balance fetches and caches the holder's token balance.
func (s *Session) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := s.deps.Reader.Balance(ctx, s.tokenAdr, s.holder)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	s.mu.Lock()
	s.balance = bal
	s.mu.Unlock()
	return new(big.Int).Set(bal), nil
}

// SetAmount records the human-denominated amount and invalidates any
// previous quote; there is no stale-quote reuse.
func (s *Session) SetAmount(ctx context.Context, amount string) error {
	scaled, err := quote.ToSmallestUnit(amount, s.token.Decimals)
	if err != nil || scaled.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be a positive decimal", ErrCannotProceed)
	}

	if s.cachedBalance() == nil {
		if _, err := s.Balance(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if scaled.BigInt().Cmp(s.balance) > 0 {
		return fmt.Errorf("%w: amount exceeds balance", ErrInsufficientBalance)
	}
	s.amount = amount
	s.q = quote.Quote{}
	return nil
}

// SetCurrency picks the settlement currency, invalidating the quote and
// the institution selection.
func (s *Session) SetCurrency(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code != s.currency {
		s.q = quote.Quote{}
		s.recipient.SetInstitution("")
		s.institutions = nil
	}
	s.currency = code
}

func (s *Session) SetInstitution(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipient.SetInstitution(code)
}

func (s *Session) SetAccount(identifier, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipient.SetIdentifier(identifier)
	s.recipient.AccountName = name
	s.recipient.Currency = s.currency
}

func (s *Session) Recipient() account.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipient
}

// Institutions returns the list loaded for the selected currency.
func (s *Session) Institutions() []provider.Institution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.institutions
}

// Verify checks the destination with the provider and flips the verified
// flag on success. It never flips it on failure.
func (s *Session) Verify(ctx context.Context) error {
	s.mu.Lock()
	inst, id := s.recipient.InstitutionCode, s.recipient.AccountIdentifier
	s.mu.Unlock()

	if err := s.deps.Verifier.Verify(ctx, inst, id); err != nil {
		s.setError(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Only mark verified if the inputs did not change mid-call.
	if s.recipient.InstitutionCode == inst && s.recipient.AccountIdentifier == id {
		s.recipient.Verified = true
		s.lastErr = ""
	}
	return nil
}

// RefreshQuote fetches a fresh quote for the current amount/currency pair.
func (s *Session) RefreshQuote(ctx context.Context) (quote.Quote, error) {
	s.mu.Lock()
	amount, currency := s.amount, s.currency
	s.mu.Unlock()

	q, err := s.deps.Quotes.Quote(ctx, s.token.Symbol, amount, currency, s.network)
	if err != nil {
		s.setError(err)
		return quote.Quote{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.q = q
	s.lastErr = ""
	return q, nil
}

func (s *Session) Quote() quote.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q
}

// CanProceed reports whether the current step's requirements are met.
func (s *Session) CanProceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canProceedLocked()
}

func (s *Session) canProceedLocked() bool {
	switch s.step {
	case StepAmount:
		return s.amount != ""
	case StepDestination:
		return s.currency != ""
	case StepInstitution:
		return s.recipient.InstitutionCode != ""
	case StepAccount:
		return s.recipient.AccountIdentifier != "" &&
			s.recipient.AccountName != "" &&
			s.recipient.Verified
	case StepReview:
		return !s.q.Expired(s.quoteTTL, s.now())
	default:
		return false
	}
}

// Next advances one step when the gate allows it. Moving past the
// destination step loads the institution list for the chosen currency.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	if s.step >= StepReview {
		s.mu.Unlock()
		return fmt.Errorf("%w: review is left via Submit", ErrCannotProceed)
	}
	if !s.canProceedLocked() {
		step := s.step
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCannotProceed, step)
	}
	step := s.step
	currency := s.currency
	s.mu.Unlock()

	if step == StepDestination {
		list, err := s.deps.Provider.Institutions(ctx, currency)
		if err != nil {
			s.setError(fmt.Errorf("load institutions: %w", err))
			return fmt.Errorf("load institutions: %w", err)
		}
		s.mu.Lock()
		s.institutions = list
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.step++
	s.lastErr = ""
	return nil
}

// Back returns to the previous step. It is refused while a submission is
// processing; execution must not be interrupted mid-flight.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseProcessing {
		return ErrSubmissionInFlight
	}
	if s.step == StepAmount {
		return nil
	}
	if s.step == StepSubmitted {
		s.step = StepReview
		s.phase = PhaseIdle
		return nil
	}
	s.step--
	return nil
}

// Success returns the submission outcome once PhaseSuccess is reached.
func (s *Session) Success() *Success {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.success
}

// Poll exposes the background status loop of the submitted order.
func (s *Session) Poll() *order.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll
}

// Close abandons the session. Before processing this just discards local
// state; afterwards it only detaches the background poller, leaving the
// submitted order untouched.
func (s *Session) Close() {
	s.mu.Lock()
	poll := s.poll
	s.mu.Unlock()
	if poll != nil {
		poll.Stop()
	}
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}

func (s *Session) cachedBalance() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}
