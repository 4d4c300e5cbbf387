package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FakeClient is an in-memory chain used in tests. Balances are keyed by
// token then holder; gas behavior is scripted per field.
type FakeClient struct {
	Balances map[common.Address]map[common.Address]*big.Int
	Decimals uint8

	GasPrice       *big.Int
	GasPriceErr    error
	EstimatedGas   uint64
	EstimateErr    error
	TransferErr    error
	TransferHashes int

	// TransferOpts records the options of every Transfer call, so tests
	// can assert which gas parameters were pinned.
	TransferOpts []TxOptions
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Balances:     make(map[common.Address]map[common.Address]*big.Int),
		Decimals:     6,
		GasPrice:     big.NewInt(1_000_000_000),
		EstimatedGas: 60_000,
	}
}

func (f *FakeClient) SetBalance(token, holder common.Address, amount *big.Int) {
	if f.Balances[token] == nil {
		f.Balances[token] = make(map[common.Address]*big.Int)
	}
	f.Balances[token][holder] = amount
}

func (f *FakeClient) Balance(_ context.Context, token, holder common.Address) (*big.Int, error) {
	if holders, ok := f.Balances[token]; ok {
		if bal, ok := holders[holder]; ok {
			return new(big.Int).Set(bal), nil
		}
	}
	return big.NewInt(0), nil
}

func (f *FakeClient) TokenDecimals(context.Context, common.Address) (uint8, error) {
	return f.Decimals, nil
}

func (f *FakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	if f.GasPriceErr != nil {
		return nil, f.GasPriceErr
	}
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *FakeClient) EstimateTransferGas(context.Context, common.Address, common.Address, *big.Int) (uint64, error) {
	if f.EstimateErr != nil {
		return 0, f.EstimateErr
	}
	return f.EstimatedGas, nil
}

func (f *FakeClient) Transfer(_ context.Context, _, _ common.Address, _ *big.Int, opts TxOptions) (string, error) {
	f.TransferOpts = append(f.TransferOpts, opts)
	if f.TransferErr != nil {
		return "", f.TransferErr
	}
	f.TransferHashes++
	return fmt.Sprintf("0x%064x", f.TransferHashes), nil
}

func (f *FakeClient) Ping(context.Context) error { return nil }
