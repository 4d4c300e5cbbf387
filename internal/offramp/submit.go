package offramp

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"offrails/internal/account"
	"offrails/internal/order"
	"offrails/internal/quote"
)

// Submit runs the full off-ramp: create the settlement order, execute the
// on-chain transfer, and start the background status poll. On failure the
// session returns to review and the next Submit generates a fresh
// reference. Only one submission may be in flight per wallet, across all
// sessions sharing the gate.
func (s *Session) Submit(ctx context.Context) (*Success, error) {
	if !s.gate.tryAcquire(s.holder) {
		return nil, ErrSubmissionInFlight
	}
	defer s.gate.release(s.holder)

	s.mu.Lock()
	if s.phase == PhaseProcessing {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if s.step != StepReview && !(s.step == StepSubmitted && s.phase == PhaseError) {
		s.mu.Unlock()
		return nil, ErrNotAtReview
	}
	q := s.q
	recipient := s.recipient
	amount := s.amount
	s.step = StepSubmitted
	s.phase = PhaseProcessing
	s.mu.Unlock()

	success, err := s.submit(ctx, amount, q, recipient)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// A created order whose execution failed is a failure, never a
		// silent pending success.
		s.phase = PhaseError
		s.step = StepReview
		s.lastErr = err.Error()
		return nil, err
	}
	s.phase = PhaseSuccess
	s.success = success
	s.lastErr = ""
	return success, nil
}

func (s *Session) submit(ctx context.Context, amount string, q quote.Quote, recipient account.Recipient) (*Success, error) {
	if q.Expired(s.quoteTTL, s.now()) {
		return nil, order.ErrQuoteExpired
	}

	scaled, err := quote.ToSmallestUnit(amount, s.token.Decimals)
	if err != nil {
		return nil, err
	}
	amountUnits := scaled.BigInt()

	// The abstraction session is established lazily; a failure here only
	// means the standard path runs.
	s.deps.Coord.Ensure(ctx)

	if err := s.checkBalance(ctx, amountUnits); err != nil {
		return nil, err
	}

	o, err := s.deps.Orders.Create(ctx, order.CreateParams{
		Quote:         q,
		Recipient:     recipient,
		Network:       s.network,
		ReturnAddress: s.retAddr,
	})
	if err != nil {
		return nil, err
	}

	// Rate reservations are short-lived; if the order lapsed before we
	// could move funds, fail it and require a fresh order instead of
	// leaving the race to the provider.
	if o.Expired(s.now()) {
		if updErr := s.deps.Orders.ApplyProviderStatus(ctx, o.ID, string(order.StatusExpired)); updErr != nil {
			log.WithError(updErr).WithField("order", o.ID).Warn("mark expired order")
		}
		return nil, fmt.Errorf("%w: order %s", ErrOrderExpired, o.ID)
	}

	res, err := s.deps.Executor.Execute(ctx, common.HexToAddress(o.ReceiveAddress), amountUnits)
	if err != nil {
		if updErr := s.deps.Orders.ApplyProviderStatus(ctx, o.ID, string(order.StatusFailed)); updErr != nil {
			log.WithError(updErr).WithField("order", o.ID).Warn("mark failed order")
		}
		return nil, err
	}

	if err := s.deps.Orders.RecordExecution(ctx, o.ID, res.TxHash, string(res.Via)); err != nil {
		log.WithError(err).WithField("order", o.ID).Warn("record execution outcome")
	}

	poll, err := s.deps.Orders.StartPolling(o.ID)
	if err != nil {
		log.WithError(err).WithField("order", o.ID).Warn("start status poll")
	} else {
		s.mu.Lock()
		s.poll = poll
		s.mu.Unlock()
	}

	return &Success{
		Reference:      o.Reference,
		OrderID:        o.ID,
		Amount:         o.Amount,
		Network:        o.Network,
		SenderFee:      o.SenderFee,
		TransactionFee: o.TransactionFee,
		ValidUntil:     o.ValidUntil,
		TxHash:         res.TxHash,
		ExecutedVia:    string(res.Via),
	}, nil
}

// checkBalance confirms the wallet covers the amount plus, when the
// abstracted path is active, its flat token-denominated fee. The required
// buffer differs by path, which is why the check lives here and not in the
// executor.
func (s *Session) checkBalance(ctx context.Context, amountUnits *big.Int) error {
	bal, err := s.deps.Reader.Balance(ctx, s.tokenAdr, s.holder)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	required := new(big.Int).Set(amountUnits)
	if s.deps.Coord.Active() {
		required.Add(required, s.deps.Coord.FlatFee())
	}
	if bal.Cmp(required) < 0 {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, required, bal)
	}
	return nil
}
