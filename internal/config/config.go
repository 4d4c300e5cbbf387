package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrUnsupportedToken means a token has no contract address entry for the
// requested chain. Callers must treat this as fatal before any RPC call.
var ErrUnsupportedToken = errors.New("token not supported on chain")

// ErrUnsupportedChain means the chain id is absent from the chain table.
var ErrUnsupportedChain = errors.New("chain not supported")

// Chain describes one network the service can off-ramp from.
type Chain struct {
	ID              int64  `json:"chainId"`
	Name            string `json:"name"`
	NativeCurrency  string `json:"nativeCurrency"`
	Supported       bool   `json:"supported"`
	RPCURL          string `json:"rpcUrl"`
	GaslessEligible bool   `json:"gaslessEligible"`
}

// Token describes a stable-value token and its per-chain deployments.
// Absence of an address entry for a chain is a hard error, not a default.
type Token struct {
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Decimals  int32             `json:"decimals"`
	Addresses map[string]string `json:"addresses"` // chain id (decimal string) -> contract address
}

// ChainsConfig models chains.json.
type ChainsConfig struct {
	Chains []Chain `json:"chains"`
	Tokens []Token `json:"tokens"`
}

// ProviderConfig holds settlement provider connectivity.
type ProviderConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

// ServiceConfig holds HTTP and background-task settings.
type ServiceConfig struct {
	HTTPPort             int
	DefaultChainID       int64
	DefaultToken         string
	HMACClockSkew        time.Duration
	IdempotencyWindow    time.Duration
	IdempotencyStorePath string
	DLQPath              string
	OrderStoreDSN        string
	QuoteTTL             time.Duration
	PollInterval         time.Duration
	PollMaxAttempts      int
	GaslessFlatFee       string // token smallest units charged on the abstracted path
	GaslessSimulation    bool   // simulate the abstraction backend; local development only
	LogLevel             string
}

// WalletConfig holds the embedded custodial signer settings.
type WalletConfig struct {
	PrivateKey    string
	ReturnAddress string
}

// AppConfig ties together chain tables and derived service values.
type AppConfig struct {
	Chains   ChainsConfig
	Provider ProviderConfig
	Service  ServiceConfig
	Wallet   WalletConfig
}

const defaultChainsPath = "./chains.json"

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	chainsPath := envOr("CHAINS_PATH", defaultChainsPath)

	chainsCfg, err := loadChains(chainsPath)
	if err != nil {
		return nil, fmt.Errorf("load chains: %w", err)
	}

	providerCfg := ProviderConfig{
		BaseURL:       envOr("PROVIDER_BASE_URL", "https://api.settlement.example"),
		APIKey:        envOr("PROVIDER_API_KEY", ""),
		WebhookSecret: envOr("PROVIDER_WEBHOOK_SECRET", ""),
		Timeout:       time.Duration(envOrInt("PROVIDER_TIMEOUT_SECONDS", 15)) * time.Second,
	}

	serviceCfg := ServiceConfig{
		HTTPPort:             envOrInt("API_HTTP_PORT", 3000),
		DefaultChainID:       int64(envOrInt("DEFAULT_CHAIN_ID", 8453)),
		DefaultToken:         envOr("DEFAULT_TOKEN", "USDC"),
		HMACClockSkew:        time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		IdempotencyWindow:    time.Duration(envOrInt("IDEMPOTENCY_WINDOW_SECONDS", 600)) * time.Second,
		IdempotencyStorePath: envOr("IDEMPOTENCY_STORE_PATH", filepath.Join(os.TempDir(), "offrails-idem.json")),
		DLQPath:              envOr("WEBHOOK_DLQ_PATH", ""),
		OrderStoreDSN:        envOr("ORDER_STORE_DSN", ""),
		QuoteTTL:             time.Duration(envOrInt("QUOTE_TTL_SECONDS", 30)) * time.Second,
		PollInterval:         time.Duration(envOrInt("ORDER_POLL_INTERVAL_SECONDS", 30)) * time.Second,
		PollMaxAttempts:      envOrInt("ORDER_POLL_MAX_ATTEMPTS", 20),
		GaslessFlatFee:       envOr("GASLESS_FLAT_FEE", "50000"),
		GaslessSimulation:    envOrBool("GASLESS_SIMULATION", false),
		LogLevel:             envOr("LOG_LEVEL", "info"),
	}

	walletCfg := WalletConfig{
		PrivateKey:    envOr("WALLET_PRIVATE_KEY", ""),
		ReturnAddress: envOr("WALLET_RETURN_ADDRESS", ""),
	}

	return &AppConfig{
		Chains:   *chainsCfg,
		Provider: providerCfg,
		Service:  serviceCfg,
		Wallet:   walletCfg,
	}, nil
}

func loadChains(path string) (*ChainsConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ChainsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Chain looks up a chain by id. Unknown or unsupported chains are errors.
func (c *ChainsConfig) Chain(id int64) (Chain, error) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			if !ch.Supported {
				return Chain{}, fmt.Errorf("%w: %s (%d)", ErrUnsupportedChain, ch.Name, id)
			}
			return ch, nil
		}
	}
	return Chain{}, fmt.Errorf("%w: id %d", ErrUnsupportedChain, id)
}

// Token looks up a token by symbol.
func (c *ChainsConfig) Token(symbol string) (Token, error) {
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
}

// TokenAddress resolves the contract address for a token on a chain.
// No entry means the pairing is unsupported; this must fail before any RPC.
func (c *ChainsConfig) TokenAddress(symbol string, chainID int64) (string, error) {
	tok, err := c.Token(symbol)
	if err != nil {
		return "", err
	}
	addr, ok := tok.Addresses[fmt.Sprintf("%d", chainID)]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: %s on chain %d", ErrUnsupportedToken, symbol, chainID)
	}
	return addr, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val == "true" || val == "1"
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
