package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itradeyou/council/internal/config"
)

func TestDefaultConfigReadsEnvOverrides(t *testing.T) {
	t.Setenv("COUNCIL_LLM_RATE", "5")
	t.Setenv("COUNCIL_MAX_TOKENS", "2048")
	t.Setenv("COUNCIL_TRADE_OWN_BOOK", "true")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")

	cfg := config.DefaultConfig()
	assert.Equal(t, 5.0, cfg.LLMRatePerSec)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.True(t, cfg.TradeOwnBook)
	assert.Equal(t, "sk-test", cfg.DeepSeekAPIKey)
}

func TestDefaultConfigIgnoresBadNumericEnv(t *testing.T) {
	t.Setenv("COUNCIL_LLM_RATE", "not-a-number")
	t.Setenv("COUNCIL_MAX_TOKENS", "-3")

	cfg := config.DefaultConfig()
	assert.Equal(t, 2.0, cfg.LLMRatePerSec)
	assert.Equal(t, 4096, cfg.MaxTokens)
}

func TestAccountsFromEnv(t *testing.T) {
	t.Setenv("ALPACA_ACCOUNTS", "main, ira,broken")
	t.Setenv("ALPACA_MAIN_KEY", "key-main")
	t.Setenv("ALPACA_MAIN_SECRET", "secret-main")
	t.Setenv("ALPACA_MAIN_URL", "https://api.alpaca.markets")
	t.Setenv("ALPACA_IRA_KEY", "key-ira")
	t.Setenv("ALPACA_IRA_SECRET", "secret-ira")
	// "broken" has no credentials and must be skipped.

	cfg := config.DefaultConfig()
	require.Len(t, cfg.Accounts, 2)

	assert.Equal(t, "main", cfg.Accounts[0].Name)
	assert.Equal(t, "https://api.alpaca.markets", cfg.Accounts[0].BaseURL)
	assert.Equal(t, "ira", cfg.Accounts[1].Name)
	assert.Equal(t, "https://paper-api.alpaca.markets", cfg.Accounts[1].BaseURL, "paper endpoint is the default")
}
