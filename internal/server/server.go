package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"offrails/internal/account"
	"offrails/internal/config"
	"offrails/internal/hmacauth"
	"offrails/internal/idempotency"
	"offrails/internal/offramp"
	"offrails/internal/order"
	"offrails/internal/provider"
	"offrails/internal/quote"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Quotes    *quote.Service
	Verifier  *account.Verifier
	Orders    *order.Manager
	Provider  provider.Client
	IdemStore idempotency.Store

	// NewSession builds a fresh orchestration per submission; sessions are
	// never shared across submissions.
	NewSession func() (*offramp.Session, error)

	// RPCHealth probes the chain RPC endpoint; nil disables the probe.
	RPCHealth func(context.Context) error
	// StoreHealth probes the order store; nil disables the probe.
	StoreHealth func(context.Context) error
}

type Server struct {
	cfg         *config.AppConfig
	deps        Deps
	webhookHMAC *hmacauth.Verifier
	httpServer  *http.Server
	metrics     *metricsRegistry

	// idemInFlight reserves idempotency keys for the duration of a request
	// so that two concurrent requests with the same key cannot both reach
	// execution before either has saved a replayable record.
	idemMu       sync.Mutex
	idemInFlight map[string]struct{}
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	webhookVerifier := &hmacauth.Verifier{
		Secret:          cfg.Provider.WebhookSecret,
		MaxSkew:         cfg.Service.HMACClockSkew,
		SignatureHeader: "X-Settlement-Signature",
		TimestampHeader: "X-Settlement-Timestamp",
	}

	s := &Server{
		cfg:          cfg,
		deps:         deps,
		webhookHMAC:  webhookVerifier,
		metrics:      newMetricsRegistry(),
		idemInFlight: make(map[string]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/rates", s.handleRates)
	mux.HandleFunc("/api/v1/currencies", s.handleCurrencies)
	mux.HandleFunc("/api/v1/institutions", s.handleInstitutions)
	mux.HandleFunc("/api/v1/verify-account", s.handleVerifyAccount)
	mux.HandleFunc("/api/v1/offramps", s.handleOfframps)
	mux.HandleFunc("/api/v1/offramps/", s.handleOfframpStatus)
	mux.Handle("/api/v1/callbacks/settlement", webhookVerifier.Middleware(http.HandlerFunc(s.handleSettlementWebhook)))
	mux.Handle("/api/v1/metrics", s.metrics.handler())
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	result, err := s.deps.Quotes.Quote(r.Context(), q.Get("token"), q.Get("amount"), q.Get("currency"), q.Get("network"))
	if err != nil {
		s.metrics.incQuote("failed")
		status := http.StatusBadGateway
		if errors.Is(err, quote.ErrInvalidAmount) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.metrics.incQuote("ok")

	estimate, estErr := quote.ReceiveEstimate(result.Amount, result.Rate)
	resp := struct {
		Token           string `json:"token"`
		Amount          string `json:"amount"`
		Currency        string `json:"currency"`
		Rate            string `json:"rate"`
		ReceiveEstimate string `json:"receiveEstimate,omitempty"`
	}{
		Token:    result.Token,
		Amount:   result.Amount,
		Currency: result.Currency,
		Rate:     result.Rate,
	}
	if estErr == nil {
		resp.ReceiveEstimate = estimate.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Quotes.Currencies(r.Context()))
}

func (s *Server) handleInstitutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		http.Error(w, "currency is required", http.StatusBadRequest)
		return
	}
	list, err := s.deps.Provider.Institutions(r.Context(), currency)
	if err != nil {
		http.Error(w, "failed to load institutions: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type verifyAccountRequest struct {
	Institution       string `json:"institution"`
	AccountIdentifier string `json:"accountIdentifier"`
}

func (s *Server) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload verifyAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if err := s.deps.Verifier.Verify(r.Context(), payload.Institution, payload.AccountIdentifier); err != nil {
		s.metrics.incVerification("failed")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.metrics.incVerification("ok")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type offrampRequest struct {
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Institution       string `json:"institution"`
	AccountIdentifier string `json:"accountIdentifier"`
	AccountName       string `json:"accountName"`
}

func validateOfframpRequest(req offrampRequest) error {
	if req.Amount == "" {
		return errors.New("amount is required")
	}
	if req.Currency == "" {
		return errors.New("currency is required")
	}
	if req.Institution == "" {
		return errors.New("institution is required")
	}
	if req.AccountIdentifier == "" {
		return errors.New("accountIdentifier is required")
	}
	if req.AccountName == "" {
		return errors.New("accountName is required")
	}
	return nil
}

// handleOfframps drives one full orchestration: amount gating, destination
// verification, quoting, order creation, execution and poll start. The
// X-Idempotency-Key header makes the whole submission replay-safe.
func (s *Server) handleOfframps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Reserve the key before the replay lookup. A concurrent request with
	// the same key must wait for this one's record, not race it into a
	// second execution.
	s.idemMu.Lock()
	if _, busy := s.idemInFlight[key]; busy {
		s.idemMu.Unlock()
		http.Error(w, "a request with this idempotency key is in progress", http.StatusConflict)
		return
	}
	s.idemInFlight[key] = struct{}{}
	s.idemMu.Unlock()
	defer func() {
		s.idemMu.Lock()
		delete(s.idemInFlight, key)
		s.idemMu.Unlock()
	}()

	if existing, _ := s.deps.IdemStore.Get(ctx, key); existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.StatusCode)
		_, _ = w.Write(existing.Body)
		s.metrics.incOfframp("cached")
		return
	}

	var payload offrampRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if err := validateOfframpRequest(payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	success, err := s.runOfframp(ctx, payload)
	if err != nil {
		s.metrics.incOfframp("failed")
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	s.metrics.incOfframp("created")
	s.metrics.incExecution(success.ExecutedVia)

	body, _ := json.Marshal(success)
	record := idempotency.Record{
		StatusCode: http.StatusCreated,
		Body:       body,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(s.cfg.Service.IdempotencyWindow),
	}
	_ = s.deps.IdemStore.Save(ctx, key, record)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (s *Server) runOfframp(ctx context.Context, payload offrampRequest) (*offramp.Success, error) {
	sess, err := s.deps.NewSession()
	if err != nil {
		return nil, err
	}

	if err := sess.SetAmount(ctx, payload.Amount); err != nil {
		return nil, err
	}
	if err := sess.Next(ctx); err != nil {
		return nil, err
	}
	sess.SetCurrency(payload.Currency)
	if err := sess.Next(ctx); err != nil {
		return nil, err
	}
	sess.SetInstitution(payload.Institution)
	if err := sess.Next(ctx); err != nil {
		return nil, err
	}
	sess.SetAccount(payload.AccountIdentifier, payload.AccountName)
	if err := sess.Verify(ctx); err != nil {
		return nil, err
	}
	if err := sess.Next(ctx); err != nil {
		return nil, err
	}
	if _, err := sess.RefreshQuote(ctx); err != nil {
		return nil, err
	}
	return sess.Submit(ctx)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, offramp.ErrInsufficientBalance),
		errors.Is(err, offramp.ErrCannotProceed),
		errors.Is(err, quote.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrVerificationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, offramp.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, config.ErrUnsupportedToken), errors.Is(err, config.ErrUnsupportedChain):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrQuoteExpired), errors.Is(err, offramp.ErrOrderExpired):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleOfframpStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/offramps/")
	if id == "" {
		http.Error(w, "order id is required", http.StatusBadRequest)
		return
	}
	o, err := s.deps.Orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type settlementWebhookRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (s *Server) handleSettlementWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload settlementWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if payload.OrderID == "" || payload.Status == "" {
		http.Error(w, "orderId and status are required", http.StatusBadRequest)
		return
	}

	if err := s.deps.Orders.ApplyProviderStatus(r.Context(), payload.OrderID, payload.Status); err != nil {
		s.metrics.incWebhook("failed")
		s.writeDLQ(payload, err)
		if errors.Is(err, order.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.metrics.incWebhook("processed")
	s.updateDLQDepth()
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (s *Server) writeDLQ(payload settlementWebhookRequest, hookErr error) {
	if s.cfg.Service.DLQPath == "" {
		return
	}

	entry := struct {
		Timestamp time.Time                `json:"timestamp"`
		Payload   settlementWebhookRequest `json:"payload"`
		Error     string                   `json:"error"`
	}{
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Error:     hookErr.Error(),
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		log.WithError(err).Warn("dlq marshal")
		return
	}

	if err := os.MkdirAll(s.cfg.Service.DLQPath, 0o755); err != nil {
		log.WithError(err).Warn("dlq mkdir")
		return
	}

	filename := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), payload.OrderID)
	path := filepath.Join(s.cfg.Service.DLQPath, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		log.WithError(err).Warn("dlq write")
	}

	s.updateDLQDepth()
}

func (s *Server) updateDLQDepth() int {
	depth := s.currentDLQDepth()
	if s.metrics != nil {
		s.metrics.setDLQDepth(depth)
	}
	return depth
}

func (s *Server) currentDLQDepth() int {
	if s.cfg.Service.DLQPath == "" {
		return 0
	}
	entries, err := os.ReadDir(s.cfg.Service.DLQPath)
	if err != nil {
		return 0
	}
	return len(entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.deps.RPCHealth != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.deps.RPCHealth(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	storeInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.deps.StoreHealth != nil {
		storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.deps.StoreHealth(storeCtx); err != nil {
			storeInfo.Connected = false
			storeInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, struct {
		Status   string      `json:"status"`
		RPC      interface{} `json:"rpc"`
		Store    interface{} `json:"store"`
		DLQDepth int         `json:"dlq_depth"`
	}{
		Status:   status,
		RPC:      rpcInfo,
		Store:    storeInfo,
		DLQDepth: s.updateDLQDepth(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		next.ServeHTTP(w, r)
	})
}
