package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind is a closed set of wallet flavors. Branching on Kind must be
// exhaustive; an unknown kind is a programming error, not a default path.
type Kind int

const (
	// Embedded is a custodial wallet created and held by the identity
	// provider on the user's behalf.
	Embedded Kind = iota
	// External is a user-controlled signer connected from outside.
	External
	// FeeSubsidized is a wallet whose own infrastructure already covers
	// fees; it must always use the standard execution path.
	FeeSubsidized
)

func (k Kind) String() string {
	switch k {
	case Embedded:
		return "embedded"
	case External:
		return "external"
	case FeeSubsidized:
		return "fee-subsidized"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Wallet is the signing side of the off-ramp: an address, a kind, and the
// ability to move its active chain. The raw signer stays behind the
// implementation.
type Wallet interface {
	Address() common.Address
	Kind() Kind
	SwitchChain(ctx context.Context, chainID int64) error
}

// Keyed is a wallet backed by a raw secp256k1 private key. The key itself
// lives with the RPC client that signs; Keyed only derives the address.
type Keyed struct {
	addr common.Address
	kind Kind
}

func NewKeyed(privateKeyHex string, kind Kind) (*Keyed, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Keyed{addr: crypto.PubkeyToAddress(key.PublicKey), kind: kind}, nil
}

func (k *Keyed) Address() common.Address { return k.addr }
func (k *Keyed) Kind() Kind              { return k.kind }

// SwitchChain is a no-op: the RPC client is constructed per chain, so there
// is no live connection to move.
func (k *Keyed) SwitchChain(context.Context, int64) error { return nil }

// Fake is a test wallet that records chain switches.
type Fake struct {
	Addr       common.Address
	WalletKind Kind
	SwitchErr  error
	SwitchedTo []int64
}

func (f *Fake) Address() common.Address { return f.Addr }
func (f *Fake) Kind() Kind              { return f.WalletKind }

func (f *Fake) SwitchChain(_ context.Context, chainID int64) error {
	if f.SwitchErr != nil {
		return f.SwitchErr
	}
	f.SwitchedTo = append(f.SwitchedTo, chainID)
	return nil
}
