package provider

import (
	"context"
	"time"
)

// Client abstracts the settlement provider HTTP API. One client is
// constructed per process and injected into the services that need it.
type Client interface {
	Rate(ctx context.Context, req RateRequest) (RateResponse, error)
	Currencies(ctx context.Context) ([]Currency, error)
	Institutions(ctx context.Context, currency string) ([]Institution, error)
	VerifyAccount(ctx context.Context, req VerifyAccountRequest) error
	CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error)
	OrderStatus(ctx context.Context, orderID string) (OrderStatusResponse, error)
}

type RateRequest struct {
	Token    string
	Amount   string
	Currency string
	Network  string
}

type RateResponse struct {
	Rate string `json:"rate"`
}

type Currency struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Institution struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type VerifyAccountRequest struct {
	Institution       string `json:"institution"`
	AccountIdentifier string `json:"accountIdentifier"`
}

type Recipient struct {
	Institution       string `json:"institution"`
	AccountIdentifier string `json:"accountIdentifier"`
	AccountName       string `json:"accountName"`
	Currency          string `json:"currency"`
}

type CreateOrderRequest struct {
	Amount        string    `json:"amount"`
	Rate          string    `json:"rate"`
	Network       string    `json:"network"`
	Token         string    `json:"token"`
	Recipient     Recipient `json:"recipient"`
	ReturnAddress string    `json:"returnAddress"`
	Reference     string    `json:"reference"`
}

type CreateOrderResponse struct {
	ID             string    `json:"id"`
	ReceiveAddress string    `json:"receiveAddress"`
	SenderFee      string    `json:"senderFee"`
	TransactionFee string    `json:"transactionFee"`
	ValidUntil     time.Time `json:"validUntil"`
}

type OrderStatusResponse struct {
	Status string `json:"status"`
}
