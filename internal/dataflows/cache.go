package dataflows

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CacheManager is a file-backed cache with a TTL, used to avoid hammering
// market-data providers while a cycle is being assembled.
type CacheManager struct {
	cacheDir     string
	ttl          time.Duration
	cacheEnabled bool
}

func NewCacheManager(cacheDir string, ttl time.Duration, cacheEnabled bool) *CacheManager {
	return &CacheManager{cacheDir: cacheDir, ttl: ttl, cacheEnabled: cacheEnabled}
}

func (cm *CacheManager) cacheKey(source, method string, params any) string {
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return fmt.Sprintf("%s_%s_%x.json", source, method, hash)
}

// Get loads a cached value into result; false when absent or expired.
func (cm *CacheManager) Get(source, method string, params, result any) bool {
	if !cm.cacheEnabled {
		return false
	}
	path := filepath.Join(cm.cacheDir, cm.cacheKey(source, method, params))

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > cm.ttl {
		os.Remove(path)
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, result) == nil
}

// Set stores a value under the derived key.
func (cm *CacheManager) Set(source, method string, params, data any) error {
	if !cm.cacheEnabled {
		return nil
	}
	if err := os.MkdirAll(cm.cacheDir, 0o755); err != nil {
		return err
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return err
	}
	path := filepath.Join(cm.cacheDir, cm.cacheKey(source, method, params))
	return os.WriteFile(path, blob, 0o644)
}

// RetryConfig configures retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, Multiplier: 2.0}
}

// WithRetry runs fn with exponential backoff, returning the last error.
func WithRetry(cfg *RetryConfig, fn func() error) error {
	delay := cfg.BaseDelay
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < cfg.MaxRetries {
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * cfg.Multiplier)
		}
	}
	return err
}
