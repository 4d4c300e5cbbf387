package gasless

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNoBackend means no fee-abstraction backend is configured for this
// deployment.
var ErrNoBackend = errors.New("no gas abstraction backend configured")

// DisabledAPI is wired when no abstraction backend exists. Initialization
// always fails, so the coordinator lands in failed and every transfer
// takes the standard fee-paying path. It never simulates success.
type DisabledAPI struct{}

func (DisabledAPI) InitEmbedded(context.Context, common.Address, int64) error { return ErrNoBackend }
func (DisabledAPI) InitExternal(context.Context, common.Address, int64) error { return ErrNoBackend }

func (DisabledAPI) TransferEmbedded(context.Context, common.Address, common.Address, *big.Int) (string, error) {
	return "", ErrNoBackend
}

func (DisabledAPI) TransferExternal(context.Context, common.Address, common.Address, *big.Int) (string, error) {
	return "", ErrNoBackend
}

func (DisabledAPI) FlatFee() *big.Int { return big.NewInt(0) }
