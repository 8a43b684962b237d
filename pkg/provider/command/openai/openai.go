// Package openai provides a command executor backed by the OpenAI chat
// completions API. The transcribed command is sent as a single user turn
// with a fixed assistant persona; the model's reply is spoken verbatim.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/genievoice/genie/pkg/provider/command"
)

var _ command.Executor = (*Executor)(nil)

const defaultSystemPrompt = "You are Genie, a voice assistant. Reply in one or " +
	"two short spoken sentences. No markdown, no lists, no emoji."

// Executor implements command.Executor using the OpenAI API.
type Executor struct {
	client       oai.Client
	model        string
	systemPrompt string
}

// config holds optional configuration for the executor.
type config struct {
	baseURL      string
	systemPrompt string
	timeout      time.Duration
}

// Option is a functional option for configuring an [Executor].
type Option func(*config)

// WithBaseURL overrides the API endpoint, e.g. for an OpenAI-compatible
// local server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithSystemPrompt replaces the default assistant persona.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI command Executor.
func New(apiKey string, model string, opts ...Option) (*Executor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{systemPrompt: defaultSystemPrompt}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Executor{
		client:       client,
		model:        model,
		systemPrompt: cfg.systemPrompt,
	}, nil
}

// Execute sends text as a single user turn and returns the model's reply.
func (e *Executor) Execute(ctx context.Context, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("openai: empty command: %w", command.ErrUnrecognized)
	}

	resp, err := e.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(e.systemPrompt),
			oai.UserMessage(trimmed),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("openai: empty reply from model")
	}
	return reply, nil
}
