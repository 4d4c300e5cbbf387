package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"offrails/internal/account"
	"offrails/internal/chain"
	"offrails/internal/config"
	"offrails/internal/executor"
	"offrails/internal/gasless"
	"offrails/internal/idempotency"
	"offrails/internal/offramp"
	"offrails/internal/order"
	"offrails/internal/provider"
	"offrails/internal/quote"
	"offrails/internal/server"
	"offrails/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}
	if lvl, err := log.ParseLevel(cfg.Service.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	chainCfg, err := cfg.Chains.Chain(cfg.Service.DefaultChainID)
	if err != nil {
		log.WithError(err).Fatal("chain config error")
	}
	tokenAddr, err := cfg.Chains.TokenAddress(cfg.Service.DefaultToken, chainCfg.ID)
	if err != nil {
		log.WithError(err).Fatal("token config error")
	}

	ctx := context.Background()

	var providerClient provider.Client = &provider.FakeClient{}
	if cfg.Provider.APIKey != "" {
		httpClient, err := provider.NewHTTPClient(provider.HTTPClientConfig{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cfg.Provider.APIKey,
			Timeout: cfg.Provider.Timeout,
		})
		if err != nil {
			log.WithError(err).Fatal("provider client error")
		}
		providerClient = httpClient
	}

	var (
		chainClient chain.Client  = chain.NewFakeClient()
		w           wallet.Wallet = &wallet.Fake{WalletKind: wallet.Embedded}
		rpcHealth   func(context.Context) error
	)
	if cfg.Wallet.PrivateKey != "" && chainCfg.RPCURL != "" {
		ethClient, err := chain.NewEthClient(ctx, chain.EthClientConfig{
			RPCURL:        chainCfg.RPCURL,
			PrivateKeyHex: cfg.Wallet.PrivateKey,
		})
		if err != nil {
			log.WithError(err).Fatal("chain client error")
		}
		keyed, err := wallet.NewKeyed(cfg.Wallet.PrivateKey, wallet.Embedded)
		if err != nil {
			log.WithError(err).Fatal("wallet error")
		}
		chainClient = ethClient
		w = keyed
		rpcHealth = ethClient.Ping
	}

	var (
		orderStore  order.Store = order.NewMemoryStore()
		storeHealth func(context.Context) error
		idemStore   idempotency.Store
	)
	if cfg.Service.OrderStoreDSN != "" {
		pgOrders, err := order.NewPostgresStore(ctx, cfg.Service.OrderStoreDSN)
		if err != nil {
			log.WithError(err).Fatal("order store error")
		}
		pgIdem, err := idempotency.NewPostgresStore(ctx, cfg.Service.OrderStoreDSN)
		if err != nil {
			log.WithError(err).Fatal("idempotency store error")
		}
		orderStore = pgOrders
		storeHealth = pgOrders.Ping
		idemStore = pgIdem
	} else {
		fileStore, err := idempotency.NewFileStore(cfg.Service.IdempotencyStorePath)
		if err != nil {
			log.WithError(err).Fatal("idempotency store error")
		}
		idemStore = fileStore
	}

	orders := order.NewManager(providerClient, orderStore, order.ManagerConfig{
		QuoteTTL:        cfg.Service.QuoteTTL,
		PollInterval:    cfg.Service.PollInterval,
		PollMaxAttempts: cfg.Service.PollMaxAttempts,
	})
	quotes := quote.NewService(providerClient)
	verifier := account.NewVerifier(providerClient)

	flatFee, ok := new(big.Int).SetString(cfg.Service.GaslessFlatFee, 10)
	if !ok {
		flatFee = big.NewInt(0)
	}

	token := common.HexToAddress(tokenAddr)
	returnAddr := cfg.Wallet.ReturnAddress
	if returnAddr == "" {
		returnAddr = w.Address().Hex()
	}

	// Abstraction backends are provider-specific. Without one configured
	// the disabled API fails initialization and every transfer takes the
	// standard path; the in-memory simulator is opt-in for local runs.
	var gasAPI gasless.ProviderAPI = gasless.DisabledAPI{}
	if cfg.Service.GaslessSimulation {
		log.Warn("gas abstraction simulation enabled; transfers will not move funds on the abstracted path")
		gasAPI = &gasless.FakeAPI{Fee: flatFee}
	}

	// One coordinator and one gate per wallet: sessions are built per
	// request, but the abstraction session and the submission lock are
	// wallet-scoped and must be shared across them.
	coord := gasless.NewCoordinator(w, chainCfg, cfg.Service.DefaultToken, gasAPI)
	exec := executor.New(w, coord, chainClient, token)
	gate := offramp.NewSubmissionGate()

	newSession := func() (*offramp.Session, error) {
		return offramp.NewSession(offramp.SessionConfig{
			Chains:        &cfg.Chains,
			ChainID:       chainCfg.ID,
			TokenSymbol:   cfg.Service.DefaultToken,
			Holder:        w.Address(),
			ReturnAddress: returnAddr,
			QuoteTTL:      cfg.Service.QuoteTTL,
			Gate:          gate,
		}, offramp.Deps{
			Quotes:   quotes,
			Verifier: verifier,
			Orders:   orders,
			Executor: exec,
			Coord:    coord,
			Reader:   chainClient,
			Provider: providerClient,
		})
	}

	apiServer := server.NewServer(cfg, server.Deps{
		Quotes:      quotes,
		Verifier:    verifier,
		Orders:      orders,
		Provider:    providerClient,
		IdemStore:   idemStore,
		NewSession:  newSession,
		RPCHealth:   rpcHealth,
		StoreHealth: storeHealth,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			log.WithError(err).Info("server stopped")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}
