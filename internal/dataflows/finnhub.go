package dataflows

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Candle is one daily bar.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// FinnhubClient fetches daily candles and company headlines.
type FinnhubClient struct {
	client *resty.Client
	cache  *CacheManager
	apiKey string
}

func NewFinnhubClient(apiKey, cacheDir string, cacheEnabled bool) *FinnhubClient {
	client := resty.New()
	client.SetBaseURL("https://finnhub.io/api/v1")
	client.SetTimeout(30 * time.Second)

	return &FinnhubClient{
		client: client,
		cache:  NewCacheManager(filepath.Join(cacheDir, "finnhub"), 6*time.Hour, cacheEnabled),
		apiKey: apiKey,
	}
}

type candleResponse struct {
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Time   []int64   `json:"t"`
	Volume []float64 `json:"v"`
	Status string    `json:"s"`
}

// GetDailyCandles returns up to `days` daily bars ending now, oldest first.
func (fc *FinnhubClient) GetDailyCandles(symbol string, days int) ([]Candle, error) {
	if fc.apiKey == "" {
		return nil, fmt.Errorf("finnhub API key not configured")
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days)
	cacheKey := map[string]any{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}

	var cached []Candle
	if fc.cache.Get("finnhub", "candles", cacheKey, &cached) {
		return cached, nil
	}

	var result []Candle
	err := WithRetry(DefaultRetryConfig(), func() error {
		resp, err := fc.client.R().
			SetQueryParams(map[string]string{
				"symbol":     symbol,
				"resolution": "D",
				"from":       strconv.FormatInt(from.Unix(), 10),
				"to":         strconv.FormatInt(to.Unix(), 10),
				"token":      fc.apiKey,
			}).
			Get("/stock/candle")
		if err != nil {
			return fmt.Errorf("fetch candles for %s: %w", symbol, err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
		}

		var body candleResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return fmt.Errorf("parse candle response: %w", err)
		}
		if body.Status != "ok" {
			return fmt.Errorf("no candle data for %s (status %s)", symbol, body.Status)
		}

		result = make([]Candle, 0, len(body.Time))
		for i := range body.Time {
			result = append(result, Candle{
				Date:   time.Unix(body.Time[i], 0),
				Open:   body.Open[i],
				High:   body.High[i],
				Low:    body.Low[i],
				Close:  body.Close[i],
				Volume: int64(body.Volume[i]),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fc.cache.Set("finnhub", "candles", cacheKey, result)
	return result, nil
}

type finnhubNews struct {
	Headline string `json:"headline"`
	Source   string `json:"source"`
	DateTime int64  `json:"datetime"`
}

// GetHeadlines returns the latest company headlines, newest first, capped
// at limit.
func (fc *FinnhubClient) GetHeadlines(symbol string, days, limit int) ([]string, error) {
	if fc.apiKey == "" {
		return nil, fmt.Errorf("finnhub API key not configured")
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days)
	cacheKey := map[string]any{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
		"limit":  limit,
	}

	var cached []string
	if fc.cache.Get("finnhub", "headlines", cacheKey, &cached) {
		return cached, nil
	}

	var result []string
	err := WithRetry(DefaultRetryConfig(), func() error {
		resp, err := fc.client.R().
			SetQueryParams(map[string]string{
				"symbol": symbol,
				"from":   from.Format("2006-01-02"),
				"to":     to.Format("2006-01-02"),
				"token":  fc.apiKey,
			}).
			Get("/company-news")
		if err != nil {
			return fmt.Errorf("fetch news for %s: %w", symbol, err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
		}

		var items []finnhubNews
		if err := json.Unmarshal(resp.Body(), &items); err != nil {
			return fmt.Errorf("parse news response: %w", err)
		}

		result = result[:0]
		for _, item := range items {
			if item.Headline == "" {
				continue
			}
			result = append(result, item.Headline)
			if len(result) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fc.cache.Set("finnhub", "headlines", cacheKey, result)
	return result, nil
}
