package executor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"offrails/internal/chain"
	"offrails/internal/gasless"
	"offrails/internal/wallet"
)

// Path tags which execution route actually ran, so tests and telemetry can
// assert on the degradation behavior instead of inferring it.
type Path string

const (
	PathAbstracted Path = "abstracted"
	PathStandard   Path = "standard"
)

// Result is the outcome of one on-chain transfer.
type Result struct {
	TxHash string
	Via    Path
}

// Executor moves the quoted token amount to the settlement provider's
// receiving address, preferring the fee-abstracted route and degrading to
// the standard fee-paying route. An abstraction failure never by itself
// fails the off-ramp.
type Executor struct {
	wallet wallet.Wallet
	coord  *gasless.Coordinator
	chain  chain.Submitter
	token  common.Address
}

func New(w wallet.Wallet, coord *gasless.Coordinator, submitter chain.Submitter, token common.Address) *Executor {
	return &Executor{wallet: w, coord: coord, chain: submitter, token: token}
}

// Execute transfers amount (smallest units) to receiveAddress. The balance
// check, including the abstracted-path fee buffer, is the caller's
// responsibility because the required buffer differs by path.
func (e *Executor) Execute(ctx context.Context, receiveAddress common.Address, amount *big.Int) (Result, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Result{}, fmt.Errorf("invalid transfer amount")
	}
	if (receiveAddress == common.Address{}) {
		return Result{}, fmt.Errorf("receive address is required")
	}

	if e.coord.Active() {
		txHash, err := e.abstracted(ctx, receiveAddress, amount)
		if err == nil {
			return Result{TxHash: txHash, Via: PathAbstracted}, nil
		}
		log.WithError(err).WithField("wallet", e.wallet.Kind().String()).
			Warn("abstracted transfer failed, falling back to standard path")
	}

	txHash, err := e.standard(ctx, receiveAddress, amount)
	if err != nil {
		return Result{}, fmt.Errorf("standard transfer: %w", err)
	}
	return Result{TxHash: txHash, Via: PathStandard}, nil
}

func (e *Executor) abstracted(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	api := e.coord.API()
	switch e.wallet.Kind() {
	case wallet.Embedded:
		return api.TransferEmbedded(ctx, e.token, to, amount)
	case wallet.External:
		return api.TransferExternal(ctx, e.token, to, amount)
	case wallet.FeeSubsidized:
		return "", fmt.Errorf("fee-subsidized wallets always use the standard path")
	default:
		return "", fmt.Errorf("unhandled wallet kind %s", e.wallet.Kind())
	}
}

// standard reads the gas price, estimates the transfer with a 20% safety
// margin on the limit, and submits with explicit gas parameters. When
// estimation itself fails the transfer is submitted once without explicit
// parameters; estimation failure is common on some networks and should not
// block a legitimate transfer.
func (e *Executor) standard(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	gasPrice, priceErr := e.chain.SuggestGasPrice(ctx)
	gasLimit, estErr := e.chain.EstimateTransferGas(ctx, e.token, to, amount)
	if priceErr != nil || estErr != nil {
		log.WithFields(log.Fields{
			"priceErr": priceErr,
			"estErr":   estErr,
		}).Debug("gas estimation failed, letting the node choose")
		return e.chain.Transfer(ctx, e.token, to, amount, chain.TxOptions{})
	}

	withMargin := gasLimit + gasLimit/5
	return e.chain.Transfer(ctx, e.token, to, amount, chain.TxOptions{
		GasPrice: gasPrice,
		GasLimit: withMargin,
	})
}
