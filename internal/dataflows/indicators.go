package dataflows

import (
	"fmt"
	"math"

	"github.com/itradeyou/council/internal/models"
)

// ComputeIndicators derives the frozen indicator set from daily candles,
// oldest first. It needs at least 50 bars for the slowest average.
func ComputeIndicators(candles []Candle) (models.IndicatorSet, error) {
	const minBars = 50
	if len(candles) < minBars {
		return models.IndicatorSet{}, fmt.Errorf("need at least %d candles, have %d", minBars, len(candles))
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	return models.IndicatorSet{
		LastClose:   closes[len(closes)-1],
		SMA20:       sma(closes, 20),
		SMA50:       sma(closes, 50),
		EMA10:       ema(closes, 10),
		RSI14:       rsi(closes, 14),
		ATR14:       atr(candles, 14),
		VolumeTrend: volumeTrend(candles),
	}, nil
}

// sma averages the last n closes.
func sma(closes []float64, n int) float64 {
	sum := 0.0
	for _, c := range closes[len(closes)-n:] {
		sum += c
	}
	return sum / float64(n)
}

// ema seeds with the SMA of the first n closes and folds forward.
func ema(closes []float64, n int) float64 {
	multiplier := 2.0 / (float64(n) + 1.0)

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += closes[i]
	}
	value := sum / float64(n)

	for i := n; i < len(closes); i++ {
		value = closes[i]*multiplier + value*(1-multiplier)
	}
	return value
}

// rsi is Wilder's relative strength index over the last n deltas.
func rsi(closes []float64, n int) float64 {
	gains, losses := 0.0, 0.0
	start := len(closes) - n - 1
	for i := start + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// atr averages the true range over the last n bars.
func atr(candles []Candle, n int) float64 {
	sum := 0.0
	start := len(candles) - n
	for i := start; i < len(candles); i++ {
		tr := candles[i].High - candles[i].Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(
				math.Abs(candles[i].High-prev),
				math.Abs(candles[i].Low-prev),
			))
		}
		sum += tr
	}
	return sum / float64(n)
}

// volumeTrend is the 5-day over 20-day average volume ratio; above 1 means
// volume is picking up.
func volumeTrend(candles []Candle) float64 {
	avg := func(n int) float64 {
		sum := 0.0
		for _, c := range candles[len(candles)-n:] {
			sum += float64(c.Volume)
		}
		return sum / float64(n)
	}
	long := avg(20)
	if long == 0 {
		return 0
	}
	return avg(5) / long
}
