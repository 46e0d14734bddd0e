package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/itradeyou/council/internal/config"
)

// AlpacaBroker trades through one alpaca client per configured account.
type AlpacaBroker struct {
	clients map[string]*alpaca.Client
}

var _ Client = (*AlpacaBroker)(nil)

// NewAlpacaBroker builds a client per credential set.
func NewAlpacaBroker(accounts []config.BrokerAccount) (*AlpacaBroker, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no broker accounts configured")
	}
	clients := make(map[string]*alpaca.Client, len(accounts))
	for _, acct := range accounts {
		clients[acct.Name] = alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    acct.APIKey,
			APISecret: acct.APISecret,
			BaseURL:   acct.BaseURL,
		})
	}
	return &AlpacaBroker{clients: clients}, nil
}

func (b *AlpacaBroker) GetAllPositions(ctx context.Context) (map[string][]Position, error) {
	out := make(map[string][]Position, len(b.clients))
	for name, client := range b.clients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := client.GetPositions()
		if err != nil {
			return nil, fmt.Errorf("positions for %s: %w", name, err)
		}
		positions := make([]Position, 0, len(raw))
		for _, p := range raw {
			current := decimal.Zero
			if p.CurrentPrice != nil {
				current = *p.CurrentPrice
			}
			plpc := decimal.Zero
			if p.UnrealizedPLPC != nil {
				plpc = *p.UnrealizedPLPC
			}
			positions = append(positions, Position{
				Account:        name,
				Symbol:         p.Symbol,
				Qty:            p.Qty,
				Side:           string(p.Side),
				AvgEntryPrice:  p.AvgEntryPrice,
				CurrentPrice:   current,
				UnrealizedPLPC: plpc,
			})
		}
		out[name] = positions
	}
	return out, nil
}

func (b *AlpacaBroker) GetAllAccounts(ctx context.Context) (map[string]AccountInfo, error) {
	out := make(map[string]AccountInfo, len(b.clients))
	for name, client := range b.clients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acct, err := client.GetAccount()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		out[name] = AccountInfo{
			Name:        name,
			Equity:      acct.Equity,
			BuyingPower: acct.BuyingPower,
		}
	}
	return out, nil
}

// CloseAllPositions flattens the named symbols (all symbols when the list
// is empty) by submitting offsetting market orders for the full quantity.
func (b *AlpacaBroker) CloseAllPositions(ctx context.Context, account string, symbols []string) error {
	client, ok := b.clients[account]
	if !ok {
		return fmt.Errorf("unknown account %q", account)
	}
	positions, err := client.GetPositions()
	if err != nil {
		return fmt.Errorf("positions for %s: %w", account, err)
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	for _, p := range positions {
		if len(wanted) > 0 && !wanted[p.Symbol] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		qty := p.Qty.Abs()
		side := alpaca.Sell
		if p.Qty.IsNegative() {
			side = alpaca.Buy
		}
		_, err := client.PlaceOrder(alpaca.PlaceOrderRequest{
			Symbol:      p.Symbol,
			Qty:         &qty,
			Side:        side,
			Type:        alpaca.Market,
			TimeInForce: alpaca.Day,
		})
		if err != nil {
			return fmt.Errorf("close %s in %s: %w", p.Symbol, account, err)
		}
		slog.Info("position close submitted", "account", account, "symbol", p.Symbol, "qty", qty)
	}
	return nil
}

// PlaceOrdersParallel places each order concurrently; one result per
// account, failures isolated per account.
func (b *AlpacaBroker) PlaceOrdersParallel(ctx context.Context, orders []OrderRequest) map[string]OrderResult {
	results := make(map[string]OrderResult, len(orders))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, req := range orders {
		wg.Add(1)
		go func(req OrderRequest) {
			defer wg.Done()
			res := b.placeOne(ctx, req)
			mu.Lock()
			results[req.Account] = res
			mu.Unlock()
		}(req)
	}
	wg.Wait()
	return results
}

func (b *AlpacaBroker) placeOne(ctx context.Context, req OrderRequest) OrderResult {
	client, ok := b.clients[req.Account]
	if !ok {
		return OrderResult{Account: req.Account, Err: fmt.Errorf("unknown account %q", req.Account)}
	}
	if err := ctx.Err(); err != nil {
		return OrderResult{Account: req.Account, Err: err}
	}
	qty := req.Qty
	order, err := client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(req.Side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		slog.Warn("order failed", "account", req.Account, "symbol", req.Symbol, "err", err)
		return OrderResult{Account: req.Account, Err: err}
	}
	return OrderResult{Account: req.Account, OrderID: order.ID, Status: string(order.Status)}
}
