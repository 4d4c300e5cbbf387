package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reader exposes on-chain token state.
type Reader interface {
	Balance(ctx context.Context, token, holder common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

// TxOptions pin gas parameters on submission. Nil fields let the
// wallet/node choose.
type TxOptions struct {
	GasPrice *big.Int
	GasLimit uint64
}

// Submitter moves tokens and exposes the gas primitives the standard
// execution path needs.
type Submitter interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateTransferGas(ctx context.Context, token, to common.Address, amount *big.Int) (uint64, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int, opts TxOptions) (string, error)
}

// Client is the full chain surface used by the off-ramp.
type Client interface {
	Reader
	Submitter
}

// HealthChecker is implemented by clients that can probe the RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
