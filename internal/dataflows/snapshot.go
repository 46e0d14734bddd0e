package dataflows

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/itradeyou/council/internal/models"
)

// SnapshotBuilder assembles the frozen research snapshot for a cycle.
type SnapshotBuilder struct {
	finnhub *FinnhubClient
}

func NewSnapshotBuilder(finnhub *FinnhubClient) *SnapshotBuilder {
	return &SnapshotBuilder{finnhub: finnhub}
}

// Build fetches candles and headlines for every tradable instrument and
// computes the indicator sets. Instruments whose data cannot be fetched
// are skipped with a log line; the snapshot fails only when nothing at all
// could be frozen.
func (b *SnapshotBuilder) Build(now time.Time) (models.ResearchSnapshot, error) {
	snap := models.ResearchSnapshot{
		WeekID:       models.WeekID(now),
		ResearchDate: now.Format("2006-01-02"),
		FrozenAt:     now.UTC(),
		Indicators:   make(map[models.Instrument]models.IndicatorSet),
		Headlines:    make(map[models.Instrument][]string),
	}

	for _, inst := range models.TradableInstruments {
		symbol := string(inst)

		candles, err := b.finnhub.GetDailyCandles(symbol, 120)
		if err != nil {
			slog.Warn("snapshot: candles unavailable", "symbol", symbol, "err", err)
			continue
		}
		indicators, err := ComputeIndicators(candles)
		if err != nil {
			slog.Warn("snapshot: indicators unavailable", "symbol", symbol, "err", err)
			continue
		}
		snap.Indicators[inst] = indicators

		headlines, err := b.finnhub.GetHeadlines(symbol, 7, 5)
		if err != nil {
			slog.Debug("snapshot: headlines unavailable", "symbol", symbol, "err", err)
		} else {
			snap.Headlines[inst] = headlines
		}
	}

	if len(snap.Indicators) == 0 {
		return models.ResearchSnapshot{}, fmt.Errorf("snapshot: no instrument data could be frozen")
	}
	return snap, nil
}
