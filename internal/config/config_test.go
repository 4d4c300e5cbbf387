package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeChains(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.json")
	blob := `{
  "chains": [
    {"chainId": 8453, "name": "Base", "nativeCurrency": "ETH", "supported": true, "rpcUrl": "http://localhost:8545", "gaslessEligible": true},
    {"chainId": 1, "name": "Ethereum", "nativeCurrency": "ETH", "supported": false, "rpcUrl": "", "gaslessEligible": false}
  ],
  "tokens": [
    {"symbol": "USDC", "name": "USD Coin", "decimals": 6, "addresses": {"8453": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))
	return path
}

func TestLoadChainsTable(t *testing.T) {
	cfg, err := loadChains(writeChains(t))
	require.NoError(t, err)

	ch, err := cfg.Chain(8453)
	require.NoError(t, err)
	require.Equal(t, "Base", ch.Name)
	require.Equal(t, "ETH", ch.NativeCurrency)
	require.True(t, ch.GaslessEligible)
}

func TestUnsupportedChainIsError(t *testing.T) {
	cfg, err := loadChains(writeChains(t))
	require.NoError(t, err)

	_, err = cfg.Chain(1)
	require.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = cfg.Chain(42)
	require.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestTokenAddressMissingEntryIsHardError(t *testing.T) {
	cfg, err := loadChains(writeChains(t))
	require.NoError(t, err)

	addr, err := cfg.TokenAddress("USDC", 8453)
	require.NoError(t, err)
	require.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", addr)

	// USDC has no entry for chain 1: hard configuration error, no default.
	_, err = cfg.TokenAddress("USDC", 1)
	require.ErrorIs(t, err, ErrUnsupportedToken)

	_, err = cfg.TokenAddress("DAI", 8453)
	require.ErrorIs(t, err, ErrUnsupportedToken)
}
