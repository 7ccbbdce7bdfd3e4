package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmProvider implements Provider on top of a gollm.LLM instance.
type GollmProvider struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmProvider.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key. If empty, gollm reads it from environment
// variables.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) {
		c.apiKey = key
	}
}

// WithModel sets the model identifier.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) {
		c.temperature = t
	}
}

// WithGollmOptions appends extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// defaultModels maps provider names to a reasonable default model.
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-sonnet-4-5-20250514",
}

// NewGollmProvider creates a Provider backed by gollm for the named
// provider ("openai", "anthropic", ...).
func NewGollmProvider(provider string, opts ...GollmOption) (*GollmProvider, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		model = defaultModels[provider]
		if model == "" {
			model = defaultModels["openai"]
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled by WithRetry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{CompletionError: CompletionError{
			Message: fmt.Sprintf("failed to create gollm LLM for provider %s", provider),
			Cause:   err,
		}}
	}

	return &GollmProvider{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// NewGollmProviderFromLLM wraps an existing gollm.LLM instance.
func NewGollmProviderFromLLM(provider string, llm gollm.LLM) *GollmProvider {
	return &GollmProvider{
		provider: provider,
		llm:      llm,
	}
}

// Name returns the provider identifier.
func (p *GollmProvider) Name() string {
	return p.provider
}

// Model returns the model identifier in use.
func (p *GollmProvider) Model() string {
	return p.model
}

// Complete sends a blocking request and returns the raw response text.
func (p *GollmProvider) Complete(ctx context.Context, req Request) (string, error) {
	prompt := p.translateRequest(req)

	if len(req.StopSequences) > 0 {
		p.llm.SetOption("stop_sequences", req.StopSequences)
	}

	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return "", p.translateError(err)
	}
	return text, nil
}

// translateRequest converts a Request into a gollm Prompt. The transcript
// rides in the prompt body after the task so the model sees the full run
// history on every call.
func (p *GollmProvider) translateRequest(req Request) *gollm.Prompt {
	promptText := req.Task
	if req.Transcript != "" {
		if promptText != "" {
			promptText += "\n\n"
		}
		promptText += req.Transcript
	}
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if req.System != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(req.System), gollm.CacheTypeEphemeral))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// translateError converts a gollm error into the completion error
// taxonomy. gollm surfaces provider failures as strings, so the
// classification is message-based.
func (p *GollmProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)

	providerErr := func(statusCode int, retryable bool) ProviderError {
		return ProviderError{
			CompletionError: CompletionError{Message: msg, Cause: err},
			Provider:        p.provider,
			StatusCode:      statusCode,
			Retryable:       retryable,
		}
	}

	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") ||
		strings.Contains(msgLower, "invalid api key") || strings.Contains(msgLower, "invalid key"):
		return &AuthenticationError{ProviderError: providerErr(401, false)}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return &AccessDeniedError{ProviderError: providerErr(403, false)}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: providerErr(429, true)}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: providerErr(413, false)}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: providerErr(500, true)}
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{CompletionError: CompletionError{Message: msg, Cause: err}}
	default:
		// Generic provider error, retryable by default.
		e := providerErr(0, true)
		return &e
	}
}
