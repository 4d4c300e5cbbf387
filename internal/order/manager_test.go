package order

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offrails/internal/account"
	"offrails/internal/provider"
	"offrails/internal/quote"
)

func verifiedRecipient() account.Recipient {
	return account.Recipient{
		InstitutionCode:   "MPESA",
		AccountIdentifier: "254700000000",
		AccountName:       "Jane Doe",
		Currency:          "KES",
		Verified:          true,
	}
}

func freshQuote() quote.Quote {
	return quote.Quote{
		Token:     "USDC",
		Amount:    "100",
		Currency:  "KES",
		Rate:      "129.34",
		FetchedAt: time.Now(),
	}
}

func newTestManager(client provider.Client, store Store) *Manager {
	return NewManager(client, store, ManagerConfig{
		QuoteTTL:        30 * time.Second,
		PollInterval:    10 * time.Millisecond,
		PollMaxAttempts: 3,
	})
}

func TestCreateRequiresVerifiedRecipient(t *testing.T) {
	m := newTestManager(&provider.FakeClient{}, NewMemoryStore())

	rec := verifiedRecipient()
	rec.Verified = false
	_, err := m.Create(context.Background(), CreateParams{Quote: freshQuote(), Recipient: rec, Network: "base"})
	require.ErrorIs(t, err, ErrNotVerified)
}

func TestCreateRequiresFreshQuote(t *testing.T) {
	m := newTestManager(&provider.FakeClient{}, NewMemoryStore())

	q := freshQuote()
	q.FetchedAt = time.Now().Add(-time.Minute)
	_, err := m.Create(context.Background(), CreateParams{Quote: q, Recipient: verifiedRecipient(), Network: "base"})
	require.ErrorIs(t, err, ErrQuoteExpired)
}

func TestCreatePersistsProviderFees(t *testing.T) {
	fake := &provider.FakeClient{}
	store := NewMemoryStore()
	m := newTestManager(fake, store)

	o, err := m.Create(context.Background(), CreateParams{
		Quote:         freshQuote(),
		Recipient:     verifiedRecipient(),
		Network:       "base",
		ReturnAddress: "0x1111111111111111111111111111111111111111",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, o.Status)
	require.Equal(t, "0.50", o.SenderFee)
	require.Equal(t, "0.10", o.TransactionFee)
	require.NotEmpty(t, o.ReceiveAddress)

	stored, err := store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, o.Reference, stored.Reference)
}

func TestReferencesAreUniquePerAttempt(t *testing.T) {
	fake := &provider.FakeClient{}
	m := newTestManager(fake, NewMemoryStore())

	params := CreateParams{Quote: freshQuote(), Recipient: verifiedRecipient(), Network: "base"}
	_, err := m.Create(context.Background(), params)
	require.NoError(t, err)
	_, err = m.Create(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, fake.CreateOrderCalls, 2)
	first := fake.CreateOrderCalls[0].Reference
	second := fake.CreateOrderCalls[1].Reference
	require.NotEqual(t, first, second)
	require.True(t, strings.HasPrefix(first, "offramp-"))
}

func TestTerminalStatusNeverRegresses(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Order{ID: "ord-1", Status: StatusCompleted}))

	require.NoError(t, store.UpdateStatus(ctx, "ord-1", StatusProcessing))
	got, err := store.Get(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestPollerStopsOnTerminalStatus(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), Order{ID: "ord-1", Status: StatusPending}))

	calls := 0
	fake := &provider.FakeClient{
		OrderStatusFn: func(context.Context, string) (provider.OrderStatusResponse, error) {
			calls++
			if calls >= 2 {
				return provider.OrderStatusResponse{Status: "completed"}, nil
			}
			return provider.OrderStatusResponse{Status: "processing"}, nil
		},
	}
	m := newTestManager(fake, store)

	p, err := m.StartPolling("ord-1")
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on terminal status")
	}
	require.Equal(t, 2, p.Attempts())

	got, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestPollerExhaustsAttemptBudget(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), Order{ID: "ord-1", Status: StatusPending}))

	fake := &provider.FakeClient{
		OrderStatusFn: func(context.Context, string) (provider.OrderStatusResponse, error) {
			return provider.OrderStatusResponse{Status: "processing"}, nil
		},
	}
	m := newTestManager(fake, store)

	p, err := m.StartPolling("ord-1")
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after attempt budget")
	}
	require.Equal(t, 3, p.Attempts())

	// Last-known status stays queryable on demand.
	got, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, got.Status)
}

func TestPollerToleratesTransientFailures(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), Order{ID: "ord-1", Status: StatusPending}))

	calls := 0
	fake := &provider.FakeClient{
		OrderStatusFn: func(context.Context, string) (provider.OrderStatusResponse, error) {
			calls++
			if calls == 1 {
				return provider.OrderStatusResponse{}, errors.New("timeout")
			}
			return provider.OrderStatusResponse{Status: "completed"}, nil
		},
	}
	m := newTestManager(fake, store)

	p, err := m.StartPolling("ord-1")
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not recover from transient failure")
	}
	require.Equal(t, 2, p.Attempts())
}

func TestPollerStopIsDeterministic(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), Order{ID: "ord-1", Status: StatusPending}))

	m := NewManager(&provider.FakeClient{}, store, ManagerConfig{
		QuoteTTL:        time.Minute,
		PollInterval:    time.Hour, // never ticks again after the first run
		PollMaxAttempts: 20,
	})

	p, err := m.StartPolling("ord-1")
	require.NoError(t, err)

	p.Stop()
	p.Stop() // idempotent

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not close the loop")
	}
}

func TestApplyProviderStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Order{ID: "ord-1", Status: StatusPending}))
	m := newTestManager(&provider.FakeClient{}, store)

	require.Error(t, m.ApplyProviderStatus(ctx, "ord-1", "settling")) // unknown status
	require.NoError(t, m.ApplyProviderStatus(ctx, "ord-1", "failed"))

	got, err := store.Get(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
}
