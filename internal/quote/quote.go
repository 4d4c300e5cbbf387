package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"offrails/internal/provider"
)

// ErrRateUnavailable means the provider could not quote the pair. The
// amount/currency pair is then unquoted; it is never treated as rate 0.
var ErrRateUnavailable = errors.New("rate unavailable")

// ErrInvalidAmount means the input amount is not a positive decimal.
var ErrInvalidAmount = errors.New("amount must be a positive decimal")

// Quote is a point-in-time exchange rate for a token/amount/currency
// triple. Rate keeps the provider's full-precision decimal string.
type Quote struct {
	Token     string
	Amount    string
	Currency  string
	Rate      string
	FetchedAt time.Time
}

// Expired reports whether the quote is older than ttl at the given time.
func (q Quote) Expired(ttl time.Duration, now time.Time) bool {
	if q.Rate == "" {
		return true
	}
	return now.Sub(q.FetchedAt) > ttl
}

// Service fetches rates and currency tables from the settlement provider.
// It performs no retries and no caching; re-quoting is the caller's job.
type Service struct {
	client provider.Client
	now    func() time.Time
}

func NewService(client provider.Client) *Service {
	return &Service{client: client, now: time.Now}
}

// Quote asks the provider for a rate. Any transport or provider failure is
// reported as ErrRateUnavailable.
func (s *Service) Quote(ctx context.Context, token, amount, currency, network string) (Quote, error) {
	amt, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || amt.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if token == "" || currency == "" || network == "" {
		return Quote{}, fmt.Errorf("%w: token, currency and network are required", ErrInvalidAmount)
	}

	resp, err := s.client.Rate(ctx, provider.RateRequest{
		Token:    token,
		Amount:   amt.String(),
		Currency: currency,
		Network:  network,
	})
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	if _, err := decimal.NewFromString(resp.Rate); err != nil {
		return Quote{}, fmt.Errorf("%w: bad rate %q", ErrRateUnavailable, resp.Rate)
	}

	return Quote{
		Token:     token,
		Amount:    amt.String(),
		Currency:  currency,
		Rate:      resp.Rate,
		FetchedAt: s.now(),
	}, nil
}

// fallbackCurrencies keeps the currency picker populated when the provider
// lookup fails at startup.
var fallbackCurrencies = []provider.Currency{
	{Code: "KES", Name: "Kenyan Shilling"},
	{Code: "NGN", Name: "Nigerian Naira"},
	{Code: "GHS", Name: "Ghanaian Cedi"},
	{Code: "UGX", Name: "Ugandan Shilling"},
}

// Currencies returns the provider's supported currencies, falling back to
// the hard-coded list so the caller is never left with an empty table.
func (s *Service) Currencies(ctx context.Context) []provider.Currency {
	list, err := s.client.Currencies(ctx)
	if err != nil || len(list) == 0 {
		return fallbackCurrencies
	}
	return list
}
