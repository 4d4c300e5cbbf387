package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"offrails/internal/provider"
)

func TestQuoteHappyPath(t *testing.T) {
	fake := &provider.FakeClient{
		RateFn: func(_ context.Context, req provider.RateRequest) (provider.RateResponse, error) {
			require.Equal(t, "100", req.Amount)
			return provider.RateResponse{Rate: "1250.00"}, nil
		},
	}
	svc := NewService(fake)

	q, err := svc.Quote(context.Background(), "USDC", "100", "KES", "base")
	require.NoError(t, err)
	require.Equal(t, "1250.00", q.Rate)
	require.False(t, q.FetchedAt.IsZero())
}

func TestQuoteRejectsNonPositiveAmounts(t *testing.T) {
	svc := NewService(&provider.FakeClient{})

	for _, amount := range []string{"0", "-5", "abc", ""} {
		_, err := svc.Quote(context.Background(), "USDC", amount, "KES", "base")
		require.ErrorIs(t, err, ErrInvalidAmount, "amount %q", amount)
	}
}

func TestQuoteProviderFailureIsUnavailableNotZero(t *testing.T) {
	fake := &provider.FakeClient{
		RateFn: func(context.Context, provider.RateRequest) (provider.RateResponse, error) {
			return provider.RateResponse{}, errors.New("boom")
		},
	}
	svc := NewService(fake)

	q, err := svc.Quote(context.Background(), "USDC", "100", "KES", "base")
	require.ErrorIs(t, err, ErrRateUnavailable)
	require.Empty(t, q.Rate)
}

func TestQuoteExpiry(t *testing.T) {
	now := time.Now()
	q := Quote{Rate: "1.0", FetchedAt: now}
	require.False(t, q.Expired(30*time.Second, now.Add(10*time.Second)))
	require.True(t, q.Expired(30*time.Second, now.Add(31*time.Second)))
	require.True(t, Quote{}.Expired(30*time.Second, now))
}

func TestCurrenciesFallback(t *testing.T) {
	fake := &provider.FakeClient{
		CurrenciesFn: func(context.Context) ([]provider.Currency, error) {
			return nil, errors.New("listing down")
		},
	}
	svc := NewService(fake)

	list := svc.Currencies(context.Background())
	require.NotEmpty(t, list)
	require.Equal(t, "KES", list[0].Code)
}

func TestReceiveEstimateScenario(t *testing.T) {
	// amount=100, rate=1250.00, sender fee 0.5% => (100 - 0.5) * 1250 = 124375.00
	got, err := ReceiveEstimate("100", "1250.00")
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.RequireFromString("124375")), "got %s", got)
}

func TestSenderFee(t *testing.T) {
	fee, err := SenderFee("100")
	require.NoError(t, err)
	require.True(t, fee.Equal(decimal.RequireFromString("0.5")), "got %s", fee)
}

func TestToSmallestUnit(t *testing.T) {
	v, err := ToSmallestUnit("100.5", 6)
	require.NoError(t, err)
	require.Equal(t, "100500000", v.String())

	_, err = ToSmallestUnit("0.0000001", 6)
	require.Error(t, err)
}
