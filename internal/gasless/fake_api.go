package gasless

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// FakeAPI scripts the fee-abstraction provider for tests.
type FakeAPI struct {
	InitEmbeddedErr     error
	InitExternalErr     error
	TransferEmbeddedErr error
	TransferExternalErr error
	Fee                 *big.Int

	InitCalls             atomic.Int32
	EmbeddedTransferCalls int
	ExternalTransferCalls int

	// InitHook runs inside Init* before returning, letting tests hold an
	// initialization open.
	InitHook func()
}

func (f *FakeAPI) InitEmbedded(context.Context, common.Address, int64) error {
	f.InitCalls.Add(1)
	if f.InitHook != nil {
		f.InitHook()
	}
	return f.InitEmbeddedErr
}

func (f *FakeAPI) InitExternal(context.Context, common.Address, int64) error {
	f.InitCalls.Add(1)
	if f.InitHook != nil {
		f.InitHook()
	}
	return f.InitExternalErr
}

func (f *FakeAPI) TransferEmbedded(context.Context, common.Address, common.Address, *big.Int) (string, error) {
	f.EmbeddedTransferCalls++
	if f.TransferEmbeddedErr != nil {
		return "", f.TransferEmbeddedErr
	}
	return "0xabstracted-embedded", nil
}

func (f *FakeAPI) TransferExternal(context.Context, common.Address, common.Address, *big.Int) (string, error) {
	f.ExternalTransferCalls++
	if f.TransferExternalErr != nil {
		return "", f.TransferExternalErr
	}
	return "0xabstracted-external", nil
}

func (f *FakeAPI) FlatFee() *big.Int {
	if f.Fee == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(f.Fee)
}
