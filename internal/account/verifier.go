package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"offrails/internal/provider"
)

// ErrVerificationFailed means the destination was rejected, either locally
// (missing fields) or by the provider.
var ErrVerificationFailed = errors.New("account verification failed")

// Recipient is a payout destination. Verified starts false and is flipped
// only by a successful Verifier call; editing the institution or the
// identifier resets it.
type Recipient struct {
	InstitutionCode   string
	AccountIdentifier string
	AccountName       string
	Currency          string
	Verified          bool
}

func (r *Recipient) SetInstitution(code string) {
	if code != r.InstitutionCode {
		r.Verified = false
	}
	r.InstitutionCode = code
}

func (r *Recipient) SetIdentifier(id string) {
	if id != r.AccountIdentifier {
		r.Verified = false
	}
	r.AccountIdentifier = id
}

// Verifier validates payout destinations against the settlement provider.
// Verification is idempotent; retrying with the same inputs is expected.
type Verifier struct {
	client provider.Client
}

func NewVerifier(client provider.Client) *Verifier {
	return &Verifier{client: client}
}

// Verify checks the destination. Missing fields fail locally without a
// network call. A failure never flips Verified; the caller decides when to
// retry.
func (v *Verifier) Verify(ctx context.Context, institutionCode, accountIdentifier string) error {
	if strings.TrimSpace(institutionCode) == "" {
		return fmt.Errorf("%w: institution is required", ErrVerificationFailed)
	}
	if strings.TrimSpace(accountIdentifier) == "" {
		return fmt.Errorf("%w: account identifier is required", ErrVerificationFailed)
	}

	if err := v.client.VerifyAccount(ctx, provider.VerifyAccountRequest{
		Institution:       institutionCode,
		AccountIdentifier: accountIdentifier,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}
