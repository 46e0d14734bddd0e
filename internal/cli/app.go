// Package cli wires the configuration, roster, brokerage and persistence
// into the cobra command surface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/itradeyou/council/internal/broker"
	"github.com/itradeyou/council/internal/config"
	"github.com/itradeyou/council/internal/dataflows"
	"github.com/itradeyou/council/internal/display"
	"github.com/itradeyou/council/internal/llm"
	"github.com/itradeyou/council/internal/storage/sqlite"
)

// App holds the long-lived collaborators every command shares.
type App struct {
	Config   *config.Config
	Roster   *config.Roster
	Agents   []llm.Agent
	Chairman llm.Agent
	Store    *sqlite.Store
	Broker   broker.Client
	Quotes   dataflows.QuoteFetcher
	Builder  *dataflows.SnapshotBuilder
	Render   *display.Renderer
}

// NewApp builds the application from config and roster. The store and
// model clients are created eagerly so a broken setup fails at startup,
// not mid-pipeline.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogging(cfg.Debug)

	roster, err := config.LoadRoster(cfg.RosterPath)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.LLMRatePerSec), 1)

	agents := make([]llm.Agent, 0, len(roster.Agents))
	for _, spec := range roster.Agents {
		q, err := newQuerier(ctx, cfg, spec, limiter)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}
		agents = append(agents, llm.Agent{Name: spec.Name, Querier: q, Temperature: spec.Temperature})
	}
	chairQ, err := newQuerier(ctx, cfg, roster.Chairman, limiter)
	if err != nil {
		return nil, fmt.Errorf("chairman: %w", err)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var alpaca broker.Client
	if len(cfg.Accounts) > 0 {
		alpaca, err = broker.NewAlpacaBroker(cfg.Accounts)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("broker: %w", err)
		}
	}

	finnhub := dataflows.NewFinnhubClient(cfg.FinnhubAPIKey, cfg.DataCacheDir, cfg.CacheEnabled)

	return &App{
		Config:   cfg,
		Roster:   roster,
		Agents:   agents,
		Chairman: llm.Agent{Name: roster.Chairman.Name, Querier: chairQ, Temperature: roster.Chairman.Temperature},
		Store:    store,
		Broker:   alpaca,
		Quotes:   dataflows.YahooQuotes{},
		Builder:  dataflows.NewSnapshotBuilder(finnhub),
		Render:   display.New(os.Stdout),
	}, nil
}

// Close releases held resources.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

func newQuerier(ctx context.Context, cfg *config.Config, spec config.AgentSpec, limiter *rate.Limiter) (llm.Querier, error) {
	pc := llm.ProviderConfig{
		Provider: spec.Provider,
		Model:    spec.Model,
	}
	switch spec.Provider {
	case "deepseek":
		pc.APIKey = cfg.DeepSeekAPIKey
	case "openai":
		pc.APIKey = cfg.OpenAIAPIKey
		pc.BaseURL = cfg.OpenAIBaseURL
	}
	return llm.NewClient(ctx, pc, limiter)
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
