// Package broker defines the brokerage contract the stages consume and an
// Alpaca-backed implementation supporting several independent accounts.
package broker

import (
	"context"

	"github.com/shopspring/decimal"
)

// Position is one open holding in one account.
type Position struct {
	Account        string
	Symbol         string
	Qty            decimal.Decimal
	Side           string // "long" or "short"
	AvgEntryPrice  decimal.Decimal
	CurrentPrice   decimal.Decimal
	UnrealizedPLPC decimal.Decimal
}

// AccountInfo is the sizing-relevant account summary.
type AccountInfo struct {
	Name        string
	Equity      decimal.Decimal
	BuyingPower decimal.Decimal
}

// OrderRequest is one order for one account.
type OrderRequest struct {
	Account     string
	Symbol      string
	Qty         decimal.Decimal
	Side        string // "buy" or "sell"
	Type        string // "market"
	TimeInForce string // "day"
}

// OrderResult is the per-account outcome; failures ride in Err and never
// roll back sibling accounts.
type OrderResult struct {
	Account string
	OrderID string
	Status  string
	Err     error
}

// Client is the brokerage surface the execution and checkpoint stages use.
type Client interface {
	GetAllPositions(ctx context.Context) (map[string][]Position, error)
	GetAllAccounts(ctx context.Context) (map[string]AccountInfo, error)
	CloseAllPositions(ctx context.Context, account string, symbols []string) error
	PlaceOrdersParallel(ctx context.Context, orders []OrderRequest) map[string]OrderResult
}
