package provider

import (
	"context"
	"fmt"
	"time"
)

// FakeClient is an in-memory provider used in tests and local development.
// Every call can be overridden per field; zero value behaves sensibly.
type FakeClient struct {
	RateFn          func(ctx context.Context, req RateRequest) (RateResponse, error)
	CurrenciesFn    func(ctx context.Context) ([]Currency, error)
	InstitutionsFn  func(ctx context.Context, currency string) ([]Institution, error)
	VerifyAccountFn func(ctx context.Context, req VerifyAccountRequest) error
	CreateOrderFn   func(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error)
	OrderStatusFn   func(ctx context.Context, orderID string) (OrderStatusResponse, error)

	CreateOrderCalls []CreateOrderRequest
	StatusCalls      int
}

func (f *FakeClient) Rate(ctx context.Context, req RateRequest) (RateResponse, error) {
	if f.RateFn != nil {
		return f.RateFn(ctx, req)
	}
	return RateResponse{Rate: "1.00"}, nil
}

func (f *FakeClient) Currencies(ctx context.Context) ([]Currency, error) {
	if f.CurrenciesFn != nil {
		return f.CurrenciesFn(ctx)
	}
	return []Currency{{Code: "KES", Name: "Kenyan Shilling"}}, nil
}

func (f *FakeClient) Institutions(ctx context.Context, currency string) ([]Institution, error) {
	if f.InstitutionsFn != nil {
		return f.InstitutionsFn(ctx, currency)
	}
	return []Institution{{Code: "MPESA", Name: "M-PESA"}}, nil
}

func (f *FakeClient) VerifyAccount(ctx context.Context, req VerifyAccountRequest) error {
	if f.VerifyAccountFn != nil {
		return f.VerifyAccountFn(ctx, req)
	}
	return nil
}

func (f *FakeClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error) {
	f.CreateOrderCalls = append(f.CreateOrderCalls, req)
	if f.CreateOrderFn != nil {
		return f.CreateOrderFn(ctx, req)
	}
	return CreateOrderResponse{
		ID:             fmt.Sprintf("ord-%d", len(f.CreateOrderCalls)),
		ReceiveAddress: "0x000000000000000000000000000000000000dEaD",
		SenderFee:      "0.50",
		TransactionFee: "0.10",
		ValidUntil:     time.Now().Add(30 * time.Minute),
	}, nil
}

func (f *FakeClient) OrderStatus(ctx context.Context, orderID string) (OrderStatusResponse, error) {
	f.StatusCalls++
	if f.OrderStatusFn != nil {
		return f.OrderStatusFn(ctx, orderID)
	}
	return OrderStatusResponse{Status: "pending"}, nil
}
