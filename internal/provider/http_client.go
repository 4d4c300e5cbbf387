package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient talks to the settlement provider REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Rate(ctx context.Context, req RateRequest) (RateResponse, error) {
	q := url.Values{}
	q.Set("token", req.Token)
	q.Set("amount", req.Amount)
	q.Set("currency", req.Currency)
	q.Set("network", req.Network)

	var resp RateResponse
	if err := c.get(ctx, "/rates?"+q.Encode(), &resp); err != nil {
		return RateResponse{}, fmt.Errorf("fetch rate: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) Currencies(ctx context.Context) ([]Currency, error) {
	var out []Currency
	if err := c.get(ctx, "/currencies", &out); err != nil {
		return nil, fmt.Errorf("fetch currencies: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) Institutions(ctx context.Context, currency string) ([]Institution, error) {
	q := url.Values{}
	q.Set("currency", currency)

	var out []Institution
	if err := c.get(ctx, "/institutions?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("fetch institutions: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) VerifyAccount(ctx context.Context, req VerifyAccountRequest) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.post(ctx, "/verify-account", req, &resp); err != nil {
		return fmt.Errorf("verify account: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("verify account: provider rejected destination")
	}
	return nil
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error) {
	var resp CreateOrderResponse
	if err := c.post(ctx, "/orders", req, &resp); err != nil {
		return CreateOrderResponse{}, fmt.Errorf("create order: %w", err)
	}
	if resp.ID == "" || resp.ReceiveAddress == "" {
		return CreateOrderResponse{}, fmt.Errorf("create order: provider returned incomplete order")
	}
	return resp, nil
}

func (c *HTTPClient) OrderStatus(ctx context.Context, orderID string) (OrderStatusResponse, error) {
	var resp OrderStatusResponse
	if err := c.get(ctx, "/orders/"+url.PathEscape(orderID), &resp); err != nil {
		return OrderStatusResponse{}, fmt.Errorf("order status: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider responded %d: %s", resp.StatusCode, providerMessage(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// providerMessage pulls the human-readable message out of an error body,
// falling back to the raw body when it is not the documented shape.
func providerMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
