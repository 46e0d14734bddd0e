package dataflows

import (
	"fmt"

	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

// QuoteFetcher returns the live market price for a symbol. Checkpoints use
// it for price/P&L only; everything analytical stays frozen.
type QuoteFetcher interface {
	LivePrice(symbol string) (decimal.Decimal, error)
}

// YahooQuotes fetches live prices from Yahoo Finance.
type YahooQuotes struct{}

var _ QuoteFetcher = YahooQuotes{}

func (YahooQuotes) LivePrice(symbol string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := WithRetry(DefaultRetryConfig(), func() error {
		q, err := quote.Get(symbol)
		if err != nil {
			return fmt.Errorf("quote for %s: %w", symbol, err)
		}
		price = decimal.NewFromFloat(q.RegularMarketPrice)
		return nil
	})
	return price, err
}
