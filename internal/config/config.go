package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// BrokerAccount holds one brokerage credential set. Multiple accounts may
// trade the same decision independently.
type BrokerAccount struct {
	Name      string
	APIKey    string
	APISecret string
	BaseURL   string
}

type Config struct {
	ProjectDir   string `json:"project_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DBPath       string `json:"db_path"`
	RosterPath   string `json:"roster_path"`

	OpenAIAPIKey   string `json:"-"`
	OpenAIBaseURL  string `json:"openai_base_url"`
	DeepSeekAPIKey string `json:"-"`
	FinnhubAPIKey  string `json:"-"`

	// LLMRatePerSec bounds outbound model calls across all agents.
	LLMRatePerSec float64 `json:"llm_rate_per_sec"`
	MaxTokens     int     `json:"max_tokens"`

	CacheEnabled bool `json:"cache_enabled"`
	Debug        bool `json:"debug"`

	// TradeOwnBook lets each PM's own pitch become a parallel candidate
	// trade alongside the chairman decision.
	TradeOwnBook bool `json:"trade_own_book"`

	Accounts []BrokerAccount `json:"-"`
}

// DefaultConfig builds the config from defaults, .env, and the process
// environment, in that order.
func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		ProjectDir:   currentDir,
		DataDir:      filepath.Join(currentDir, "data"),
		DataCacheDir: filepath.Join(currentDir, "data", "cache"),
		DBPath:       filepath.Join(currentDir, "data", "council.db"),
		RosterPath:   filepath.Join(currentDir, "agents.yaml"),

		LLMRatePerSec: 2,
		MaxTokens:     4096,
		CacheEnabled:  true,
		TradeOwnBook:  false,
	}

	_ = godotenv.Load()
	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("COUNCIL_DATA_DIR"); val != "" {
		c.DataDir = val
		c.DataCacheDir = filepath.Join(val, "cache")
		c.DBPath = filepath.Join(val, "council.db")
	}
	if val := os.Getenv("COUNCIL_DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("COUNCIL_ROSTER"); val != "" {
		c.RosterPath = val
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		c.OpenAIBaseURL = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("FINNHUB_API_KEY"); val != "" {
		c.FinnhubAPIKey = val
	}

	if val := os.Getenv("COUNCIL_LLM_RATE"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil && v > 0 {
			c.LLMRatePerSec = v
		}
	}
	if val := os.Getenv("COUNCIL_MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			c.MaxTokens = v
		}
	}
	if val := os.Getenv("COUNCIL_CACHE_ENABLED"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = v
		}
	}
	if val := os.Getenv("COUNCIL_DEBUG"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.Debug = v
		}
	}
	if val := os.Getenv("COUNCIL_TRADE_OWN_BOOK"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.TradeOwnBook = v
		}
	}

	c.Accounts = loadAccountsFromEnv()
}

// loadAccountsFromEnv reads ALPACA_ACCOUNTS="main,ira" plus per-account
// ALPACA_<NAME>_KEY / _SECRET / _URL variables.
func loadAccountsFromEnv() []BrokerAccount {
	names := strings.Split(os.Getenv("ALPACA_ACCOUNTS"), ",")
	var accounts []BrokerAccount
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		upper := strings.ToUpper(name)
		key := os.Getenv("ALPACA_" + upper + "_KEY")
		secret := os.Getenv("ALPACA_" + upper + "_SECRET")
		if key == "" || secret == "" {
			continue
		}
		url := os.Getenv("ALPACA_" + upper + "_URL")
		if url == "" {
			url = "https://paper-api.alpaca.markets"
		}
		accounts = append(accounts, BrokerAccount{
			Name:      name,
			APIKey:    key,
			APISecret: secret,
			BaseURL:   url,
		})
	}
	return accounts
}

// EnsureDirectories creates the data directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.DataCacheDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
