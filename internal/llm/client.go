// Package llm wraps the chat-model providers behind the one query contract
// the stages consume. Provider failures come back inside the Result rather
// than panicking into the pipeline.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"
)

// Request is one completion call.
type Request struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Result carries the completion or the failure that replaced it.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Err              error
}

// Failed reports whether the call produced no usable content.
func (r Result) Failed() bool { return r.Err != nil }

// Querier is the narrow surface stages depend on.
type Querier interface {
	Query(ctx context.Context, req Request) Result
	ModelID() string
}

// Agent pairs a PM (or chairman) identity with its model client.
// Temperature, when positive, overrides the stage default for this agent.
type Agent struct {
	Name        string
	Querier     Querier
	Temperature float32
}

// ProviderConfig selects and configures a chat-model backend.
type ProviderConfig struct {
	Provider string // "openai" or "deepseek"
	Model    string
	APIKey   string
	BaseURL  string // openai-compatible endpoints only
}

// Client is a rate-limited chat-model wrapper.
type Client struct {
	chat    model.BaseChatModel
	modelID string
	limiter *rate.Limiter
}

// NewClient builds a provider-backed client. The limiter is shared across
// agents that talk to the same provider; nil means unlimited.
func NewClient(ctx context.Context, pc ProviderConfig, limiter *rate.Limiter) (*Client, error) {
	var (
		chat model.BaseChatModel
		err  error
	)
	switch pc.Provider {
	case "deepseek":
		chat, err = deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey: pc.APIKey,
			Model:  pc.Model,
		})
	case "openai":
		chat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
			Model:   pc.Model,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q: supported providers are openai, deepseek", pc.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s chat model: %w", pc.Provider, err)
	}
	return &Client{chat: chat, modelID: pc.Provider + ":" + pc.Model, limiter: limiter}, nil
}

// ModelID identifies the backing provider and model.
func (c *Client) ModelID() string { return c.modelID }

// Query runs one completion. Errors never escape as panics; they ride back
// in the Result so a single bad call degrades per-item upstream.
func (c *Client) Query(ctx context.Context, req Request) Result {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{Err: fmt.Errorf("rate wait: %w", err)}
		}
	}

	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, schema.UserMessage(req.User))

	var opts []model.Option
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	out, err := c.chat.Generate(ctx, msgs, opts...)
	if err != nil {
		slog.Warn("model query failed", "model", c.modelID, "err", err)
		return Result{Err: err}
	}

	res := Result{Content: out.Content}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		res.PromptTokens = out.ResponseMeta.Usage.PromptTokens
		res.CompletionTokens = out.ResponseMeta.Usage.CompletionTokens
	}
	return res
}
