package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// EthClient reads balances and submits ERC-20 transfers over JSON-RPC.
type EthClient struct {
	client    *ethclient.Client
	abi       abi.ABI
	chainID   *big.Int
	transacts *bind.TransactOpts
	from      common.Address
}

type EthClientConfig struct {
	RPCURL        string
	PrivateKeyHex string
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required for submitting transfers")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate unless the caller pins it
	txOpts.GasPrice = nil
	txOpts.Nonce = nil

	return &EthClient{
		client:    cli,
		abi:       parsedABI,
		chainID:   chainID,
		transacts: txOpts,
		from:      crypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *EthClient) Balance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	bound := c.boundContract(token)

	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", holder); err != nil {
		return nil, fmt.Errorf("balance of %s: %w", holder.Hex(), err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balance of %s: unexpected return type", holder.Hex())
	}
	return bal, nil
}

func (c *EthClient) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	bound := c.boundContract(token)

	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("token decimals: %w", err)
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("token decimals: unexpected return type")
	}
	return dec, nil
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	return price, nil
}

func (c *EthClient) EstimateTransferGas(ctx context.Context, token, to common.Address, amount *big.Int) (uint64, error) {
	data, err := c.abi.Pack("transfer", to, amount)
	if err != nil {
		return 0, fmt.Errorf("pack transfer: %w", err)
	}
	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &token,
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

func (c *EthClient) Transfer(ctx context.Context, token, to common.Address, amount *big.Int, txOpts TxOptions) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("invalid transfer amount")
	}

	bound := c.boundContract(token)

	opts := *c.transacts
	opts.Context = ctx
	opts.GasPrice = txOpts.GasPrice
	opts.GasLimit = txOpts.GasLimit

	tx, err := bound.Transact(&opts, "transfer", to, amount)
	if err != nil {
		return "", fmt.Errorf("transfer tx: %w", err)
	}

	// A hash alone is not success: wait for the mined receipt and fail on
	// revert, so the caller never records a transfer that moved nothing.
	receipt, err := WaitForReceipt(ctx, c.client, tx.Hash())
	if err != nil {
		return "", fmt.Errorf("confirm transfer %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("transfer %s reverted", tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

func (c *EthClient) boundContract(token common.Address) *bind.BoundContract {
	return bind.NewBoundContract(token, c.abi, c.client, c.client, c.client)
}

// ReceiptReader fetches transaction receipts. *ethclient.Client satisfies it.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, client ReceiptReader, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
