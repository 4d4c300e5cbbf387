package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"offrails/internal/chain"
	"offrails/internal/config"
	"offrails/internal/gasless"
	"offrails/internal/wallet"
)

var (
	tokenAddr   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	receiveAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

var gaslessChain = config.Chain{
	ID:              8453,
	Name:            "Base",
	NativeCurrency:  "ETH",
	Supported:       true,
	GaslessEligible: true,
}

func activeCoordinator(t *testing.T, w wallet.Wallet, api *gasless.FakeAPI) *gasless.Coordinator {
	t.Helper()
	c := gasless.NewCoordinator(w, gaslessChain, "USDC", api)
	c.Ensure(context.Background())
	require.True(t, c.Active())
	return c
}

func TestAbstractedPathEmbedded(t *testing.T) {
	w := &wallet.Fake{Addr: common.HexToAddress("0x1"), WalletKind: wallet.Embedded}
	api := &gasless.FakeAPI{}
	fc := chain.NewFakeClient()
	e := New(w, activeCoordinator(t, w, api), fc, tokenAddr)

	res, err := e.Execute(context.Background(), receiveAddr, big.NewInt(100_000_000))
	require.NoError(t, err)
	require.Equal(t, PathAbstracted, res.Via)
	require.Equal(t, 1, api.EmbeddedTransferCalls)
	require.Empty(t, fc.TransferOpts, "standard path must not run")
}

func TestFallbackToStandardOnAbstractedFailure(t *testing.T) {
	for _, kind := range []wallet.Kind{wallet.Embedded, wallet.External} {
		t.Run(kind.String(), func(t *testing.T) {
			w := &wallet.Fake{Addr: common.HexToAddress("0x1"), WalletKind: kind}
			api := &gasless.FakeAPI{
				TransferEmbeddedErr: errors.New("paymaster down"),
				TransferExternalErr: errors.New("paymaster down"),
			}
			fc := chain.NewFakeClient()
			e := New(w, activeCoordinator(t, w, api), fc, tokenAddr)

			res, err := e.Execute(context.Background(), receiveAddr, big.NewInt(100_000_000))
			require.NoError(t, err, "abstraction failure must never fail the off-ramp by itself")
			require.Equal(t, PathStandard, res.Via)
			require.NotEmpty(t, res.TxHash)
		})
	}
}

func TestDisabledBackendNeverFabricatesSuccess(t *testing.T) {
	w := &wallet.Fake{Addr: common.HexToAddress("0x1"), WalletKind: wallet.Embedded}
	coord := gasless.NewCoordinator(w, gaslessChain, "USDC", gasless.DisabledAPI{})
	coord.Ensure(context.Background())
	require.Equal(t, gasless.StateFailed, coord.State())
	require.False(t, coord.Active())

	fc := chain.NewFakeClient()
	e := New(w, coord, fc, tokenAddr)

	res, err := e.Execute(context.Background(), receiveAddr, big.NewInt(100_000_000))
	require.NoError(t, err)
	require.Equal(t, PathStandard, res.Via)
	require.Len(t, fc.TransferOpts, 1, "funds must move through the chain client")
	require.NotEqual(t, "0xabstracted-embedded", res.TxHash)
}

func TestStandardPathAppliesGasMargin(t *testing.T) {
	w := &wallet.Fake{Addr: common.HexToAddress("0x1"), WalletKind: wallet.FeeSubsidized}
	coord := gasless.NewCoordinator(w, gaslessChain, "USDC", &gasless.FakeAPI{})
	fc := chain.NewFakeClient()
	fc.EstimatedGas = 60_000
	fc.GasPrice = big.NewInt(2_000_000_000)
	e := New(w, coord, fc, tokenAddr)

	res, err := e.Execute(context.Background(), receiveAddr, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, PathStandard, res.Via)

	require.Len(t, fc.TransferOpts, 1)
	opts := fc.TransferOpts[0]
	require.Equal(t, uint64(72_000), opts.GasLimit) // 60k + 20%
	require.Equal(t, big.NewInt(2_000_000_000), opts.GasPrice)
}

func TestEstimationFailureRetriesWithoutExplicitGas(t *testing.T) {
	w := &wallet.Fake{Addr: common.HexToAddress("0x1"), WalletKind: wallet.External}
	coord := gasless.NewCoordinator(w, gaslessChain, "USDC", &gasless.FakeAPI{})
	fc := chain.NewFakeClient()
	fc.EstimateErr = errors.New("execution reverted: gas estimation unsupported")
	e := New(w, coord, fc, tokenAddr)

	res, err := e.Execute(context.Background(), receiveAddr, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, PathStandard, res.Via)

	require.Len(t, fc.TransferOpts, 1)
	require.Nil(t, fc.TransferOpts[0].GasPrice)
	require.Zero(t, fc.TransferOpts[0].GasLimit)
}

func TestExecutionErrorSurfaces(t *testing.T) {
	w := &wallet.Fake{Addr: common.HexToAddress("0x1"), WalletKind: wallet.External}
	coord := gasless.NewCoordinator(w, gaslessChain, "USDC", &gasless.FakeAPI{})
	fc := chain.NewFakeClient()
	fc.TransferErr = errors.New("insufficient funds for gas")
	e := New(w, coord, fc, tokenAddr)

	_, err := e.Execute(context.Background(), receiveAddr, big.NewInt(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "standard transfer")
}

func TestRejectsInvalidInputs(t *testing.T) {
	w := &wallet.Fake{Addr: common.HexToAddress("0x1"), WalletKind: wallet.External}
	coord := gasless.NewCoordinator(w, gaslessChain, "USDC", &gasless.FakeAPI{})
	e := New(w, coord, chain.NewFakeClient(), tokenAddr)

	_, err := e.Execute(context.Background(), receiveAddr, big.NewInt(0))
	require.Error(t, err)

	_, err = e.Execute(context.Background(), common.Address{}, big.NewInt(1))
	require.Error(t, err)
}
