package openai

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lacquerai/emo/internal/emotion"
	"github.com/lacquerai/emo/internal/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// Name is the registry name of the OpenAI classifier
const Name = "openai"

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o-mini"

// Classifier scores text by asking an OpenAI chat model for a JSON reply
type Classifier struct {
	client *openai.Client
	config *Config
	prompt string
}

// Config contains configuration for the OpenAI classifier
type Config struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Labels     []string      `yaml:"labels"`
	Timeout    time.Duration `yaml:"timeout"`     // zero means no per-request timeout
	MaxRetries *int          `yaml:"max_retries"` // nil means defaultMaxRetries
}

const defaultMaxRetries = 2

// NewClassifier creates a new OpenAI classifier
func NewClassifier(config *Config) (*Classifier, error) {
	if config == nil {
		config = &Config{}
	}

	defaults := getDefaultConfig()
	if config.MaxRetries == nil {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if len(config.Labels) == 0 {
		config.Labels = provider.Labels(emotion.Options{})
	}

	if config.APIKey == "" {
		config.APIKey = GetOpenAIAPIKeyFromEnv()
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	prompt, err := provider.SystemPrompt(config.Labels)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(*config.MaxRetries),
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	client := openai.NewClient(opts...)

	log.Debug().
		Str("base_url", config.BaseURL).
		Str("model", config.Model).
		Msg("OpenAI classifier initialized")

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
	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.prompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
		N:           openai.Int(1),
	})
	if err != nil {
		return nil, emotion.NewClassifierError(Name, fmt.Errorf("failed to create OpenAI completion: %w", err))
	}

	if len(response.Choices) == 0 {
		return nil, emotion.NewClassifierError(Name, fmt.Errorf("%w: no choices returned", emotion.ErrMalformedReply))
	}

	log.Debug().
		Str("model", c.config.Model).
		Int64("prompt_tokens", response.Usage.PromptTokens).
		Int64("completion_tokens", response.Usage.CompletionTokens).
		Msg("OpenAI API call completed")

	scores, err := provider.ParseScores(response.Choices[0].Message.Content, c.config.Labels)
	if err != nil {
		return nil, emotion.NewClassifierError(Name, err)
	}

	return scores, nil
}

// getDefaultConfig returns default configuration values
func getDefaultConfig() *Config {
	retries := defaultMaxRetries
	config := &Config{
		BaseURL:    "https://api.openai.com/v1",
		Model:      DefaultModel,
		MaxRetries: &retries,
	}

	if baseURL := os.Getenv("EMO_OPENAI_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}

	return config
}

// GetOpenAIAPIKeyFromEnv retrieves the OpenAI API key from environment variables
func GetOpenAIAPIKeyFromEnv() string {
	return provider.APIKeyFromEnv(
		"OPENAI_API_KEY",
		"OPENAI_KEY",
		"OPENAI_TOKEN",
	)
}
