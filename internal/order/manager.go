package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"offrails/internal/account"
	"offrails/internal/provider"
	"offrails/internal/quote"
)

var (
	// ErrNotVerified means the recipient has not passed verification.
	ErrNotVerified = errors.New("recipient is not verified")
	// ErrQuoteExpired means the quote is stale; the caller must re-quote.
	ErrQuoteExpired = errors.New("quote expired")
)

// CreateParams is everything an order needs, assembled by the orchestrator.
type CreateParams struct {
	Quote         quote.Quote
	Recipient     account.Recipient
	Network       string
	ReturnAddress string
}

// Manager creates settlement orders and tracks their status.
type Manager struct {
	client   provider.Client
	store    Store
	quoteTTL time.Duration

	pollInterval    time.Duration
	pollMaxAttempts int

	now func() time.Time
}

type ManagerConfig struct {
	QuoteTTL        time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
}

func NewManager(client provider.Client, store Store, cfg ManagerConfig) *Manager {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 20
	}
	return &Manager{
		client:          client,
		store:           store,
		quoteTTL:        cfg.QuoteTTL,
		pollInterval:    cfg.PollInterval,
		pollMaxAttempts: cfg.PollMaxAttempts,
		now:             time.Now,
	}
}

// NewReference builds a provider-unique reference for one attempt. A fresh
// reference per submission keeps order creation retryable without
// provider-side duplication.
func NewReference() string {
	return fmt.Sprintf("offramp-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}

// Create reserves the quoted rate with the provider and persists the
// resulting order. The provider's fee figures are authoritative from here
// on; quote-time estimates must no longer be shown.
func (m *Manager) Create(ctx context.Context, params CreateParams) (Order, error) {
	if !params.Recipient.Verified {
		return Order{}, ErrNotVerified
	}
	if params.Quote.Expired(m.quoteTTL, m.now()) {
		return Order{}, ErrQuoteExpired
	}
	if amt, err := decimal.NewFromString(params.Quote.Amount); err != nil || amt.Sign() <= 0 {
		return Order{}, fmt.Errorf("invalid order amount %q", params.Quote.Amount)
	}

	reference := NewReference()
	resp, err := m.client.CreateOrder(ctx, provider.CreateOrderRequest{
		Amount:  params.Quote.Amount,
		Rate:    params.Quote.Rate,
		Network: params.Network,
		Token:   params.Quote.Token,
		Recipient: provider.Recipient{
			Institution:       params.Recipient.InstitutionCode,
			AccountIdentifier: params.Recipient.AccountIdentifier,
			AccountName:       params.Recipient.AccountName,
			Currency:          params.Recipient.Currency,
		},
		ReturnAddress: params.ReturnAddress,
		Reference:     reference,
	})
	if err != nil {
		return Order{}, fmt.Errorf("create settlement order: %w", err)
	}

	o := Order{
		ID:             resp.ID,
		Reference:      reference,
		Amount:         params.Quote.Amount,
		Token:          params.Quote.Token,
		Network:        params.Network,
		ReceiveAddress: resp.ReceiveAddress,
		SenderFee:      resp.SenderFee,
		TransactionFee: resp.TransactionFee,
		ValidUntil:     resp.ValidUntil,
		Status:         StatusPending,
		CreatedAt:      m.now(),
	}
	if err := m.store.Save(ctx, o); err != nil {
		return Order{}, fmt.Errorf("persist order: %w", err)
	}
	return o, nil
}

// Get returns the last-known state of an order.
func (m *Manager) Get(ctx context.Context, id string) (Order, error) {
	return m.store.Get(ctx, id)
}

// RecordExecution attaches the on-chain outcome to the order and marks it
// processing while the provider settles.
func (m *Manager) RecordExecution(ctx context.Context, id, txHash, via string) error {
	if err := m.store.SetExecution(ctx, id, txHash, via); err != nil {
		return err
	}
	return m.store.UpdateStatus(ctx, id, StatusProcessing)
}

// ApplyProviderStatus mirrors a provider-reported status into the store,
// e.g. from the status webhook. Unknown statuses are rejected.
func (m *Manager) ApplyProviderStatus(ctx context.Context, id, raw string) error {
	status, ok := ParseStatus(raw)
	if !ok {
		return fmt.Errorf("unknown provider status %q", raw)
	}
	return m.store.UpdateStatus(ctx, id, status)
}
