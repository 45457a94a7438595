package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lacquerai/emo/internal/emotion"
	"github.com/lacquerai/emo/internal/provider"
	"github.com/rs/zerolog/log"
)

// Name is the registry name of the Anthropic classifier
const Name = "anthropic"

// DefaultModel is used when no model is configured
const DefaultModel = "claude-3-5-haiku-latest"

// replies are a small JSON object
const maxTokens = 512

// Classifier scores text by asking an Anthropic model for a JSON reply
type Classifier struct {
	client *anthropic.Client
	config *Config
	prompt string
}

// Config contains configuration for the Anthropic classifier
type Config struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Labels     []string      `yaml:"labels"`
	Timeout    time.Duration `yaml:"timeout"`     // zero means no per-request timeout
	MaxRetries *int          `yaml:"max_retries"` // nil means defaultMaxRetries
}

const defaultMaxRetries = 2

// DefaultConfig returns the default configuration for Anthropic
func DefaultConfig() *Config {
	retries := defaultMaxRetries
	config := &Config{
		BaseURL:    "https://api.anthropic.com",
		Model:      DefaultModel,
		MaxRetries: &retries,
	}
	if baseURL := os.Getenv("EMO_ANTHROPIC_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}

	return config
}

// NewClassifier creates a new Anthropic classifier
func NewClassifier(config *Config) (*Classifier, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		// Merge with defaults for missing fields
		defaults := DefaultConfig()
		if config.BaseURL == "" {
			config.BaseURL = defaults.BaseURL
		}
		if config.Model == "" {
			config.Model = defaults.Model
		}
		if config.MaxRetries == nil {
			config.MaxRetries = defaults.MaxRetries
		}
	}
	if len(config.Labels) == 0 {
		config.Labels = provider.Labels(emotion.Options{})
	}

	if config.APIKey == "" {
		config.APIKey = GetAnthropicAPIKeyFromEnv()
		if config.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
	}

	prompt, err := provider.SystemPrompt(config.Labels)
	if err != nil {
		return nil, err
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(*config.MaxRetries),
		option.WithHTTPClient(&http.Client{
			Timeout: config.Timeout,
		}),
	)

	log.Debug().
		Str("base_url", config.BaseURL).
		Str("model", config.Model).
		Msg("Anthropic classifier initialized")

	return &Classifier{
		client: &client,
		config: config,
		prompt: prompt,
	}, nil
}

// NewFromOptions adapts NewClassifier to the registry factory signature
func NewFromOptions(opts emotion.Options) (emotion.Classifier, error) {
	return NewClassifier(&Config{
		APIKey:     opts.APIKey,
		BaseURL:    opts.BaseURL,
		Model:      opts.Model,
		Labels:     opts.Labels,
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
	})
}

// Name returns the registry name
func (c *Classifier) Name() string {
	return Name
}

// Labels returns the labels the model is asked to score
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.config.Labels...)
}

// Classify asks the model to score text
func (c *Classifier) Classify(ctx context.Context, text string) (emotion.Scores, error) {
	response, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: c.prompt}},
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRole("user"),
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(text)},
			},
		},
	})
	if err != nil {
		return nil, emotion.NewClassifierError(Name, fmt.Errorf("Anthropic API call failed: %w", err))
	}

	log.Debug().
		Str("model", c.config.Model).
		Int64("input_tokens", response.Usage.InputTokens).
		Int64("output_tokens", response.Usage.OutputTokens).
		Msg("Anthropic API call completed")

	var reply strings.Builder
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.WriteString(b.Text)
		default:
			log.Warn().
				Str("type", block.Type).
				Msg("Unexpected content block type")
		}
	}

	scores, err := provider.ParseScores(reply.String(), c.config.Labels)
	if err != nil {
		return nil, emotion.NewClassifierError(Name, err)
	}

	return scores, nil
}

// GetAnthropicAPIKeyFromEnv retrieves the Anthropic API key from environment variables
func GetAnthropicAPIKeyFromEnv() string {
	return provider.APIKeyFromEnv(
		"ANTHROPIC_API_KEY",
		"CLAUDE_API_KEY",
		"ANTHROPIC_KEY",
	)
}
