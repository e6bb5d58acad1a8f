// Package llm wraps the language model providers behind the two calls the
// builder needs: a forced-choice project classification and a chat turn.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/vibe/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ClassifySystemPrompt forces a single-word project type answer.
const ClassifySystemPrompt = "Return either node or react based on what do you think this project should be. Only return a single word either 'node' or 'react'. Do not return anything extra"

const (
	classifyMaxTokens = 200
	chatMaxTokens     = 8000
)

var ErrNoAPIKey = errors.New("no API key found")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation with the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider is the language model capability.
type Provider interface {
	GenerateTemplate(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, messages []Message, systemPrompt string) (string, error)
}

// Resolver returns a provider for a request, given the provider name and
// an optional caller-supplied API key.
type Resolver func(ctx context.Context, provider, apiKey string) (Provider, error)

// Client adapts a langchaingo model to Provider.
type Client struct {
	Name      string
	Model     llms.Model
	MaxTokens int
}

func NewClient(name string, model llms.Model, maxTokens int) *Client {
	if maxTokens <= 0 {
		maxTokens = chatMaxTokens
	}
	return &Client{Name: name, Model: model, MaxTokens: maxTokens}
}

// New builds the langchaingo model for the named provider.
func New(ctx context.Context, name string, cfg config.ProviderConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoAPIKey, name)
	}

	var (
		model llms.Model
		err   error
	)
	switch name {
	case "gemini":
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(opts...)
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s not supported", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", name, err)
	}
	return NewClient(name, model, cfg.MaxTokens), nil
}

// ConfigResolver resolves providers from cfg and wraps each in the rate
// limit retry policy.
func ConfigResolver(cfg *config.Config) Resolver {
	return func(ctx context.Context, provider, apiKey string) (Provider, error) {
		if provider == "" {
			provider = config.DefaultProvider
		}
		pc, ok := cfg.Provider(provider, apiKey)
		if !ok {
			return nil, fmt.Errorf("provider %s is not enabled", provider)
		}
		c, err := New(ctx, provider, pc)
		if err != nil {
			return nil, err
		}
		return NewRetrying(c), nil
	}
}

func (c *Client) GenerateTemplate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ClassifySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	text, err := c.generate(ctx, messages, classifyMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) Chat(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	var content []llms.MessageContent
	if systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}
	return c.generate(ctx, content, c.MaxTokens)
}

func (c *Client) generate(ctx context.Context, messages []llms.MessageContent, maxTokens int) (string, error) {
	resp, err := c.Model.GenerateContent(ctx, messages, llms.WithMaxTokens(maxTokens))
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", c.Name)
	}
	return resp.Choices[0].Content, nil
}
