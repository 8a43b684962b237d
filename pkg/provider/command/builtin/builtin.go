// Package builtin implements a local command executor backed by a regex
// pattern table. It handles the handful of requests an assistant can answer
// without any model: clock, calendar, echo and greetings. Everything else
// returns command.ErrUnrecognized so a smarter backend can take over.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/genievoice/genie/pkg/provider/command"
)

var _ command.Executor = (*Executor)(nil)

// Pattern pairs a compiled regex with the handler to run when it matches.
type Pattern struct {
	// Regex is the compiled pattern. Positional groups are passed to
	// Handle as matches[1], matches[2], etc.
	Regex *regexp.Regexp

	// Name is a human-readable label for logging.
	Name string

	// Handle produces the spoken reply using the matched groups.
	// matches is the full submatch slice from Regex.FindStringSubmatch.
	Handle func(ctx context.Context, matches []string) (string, error)
}

// Executor matches transcribed commands against a pattern table. Stateless
// and safe for concurrent use.
type Executor struct {
	patterns []Pattern
	now      func() time.Time
}

// Option is a functional option for configuring an [Executor].
type Option func(*Executor)

// WithPatterns appends extra patterns ahead of the built-in set, so callers
// can override built-in behaviour.
func WithPatterns(patterns ...Pattern) Option {
	return func(e *Executor) {
		e.patterns = append(patterns, e.patterns...)
	}
}

// WithClock overrides the time source used by the clock and calendar
// handlers, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates an Executor with the built-in pattern table.
func New(opts ...Option) *Executor {
	e := &Executor{now: time.Now}
	e.patterns = defaultPatterns(e)
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute tests text against the pattern table in order and runs the first
// match. Returns command.ErrUnrecognized when nothing matches.
func (e *Executor) Execute(ctx context.Context, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("builtin: empty command: %w", command.ErrUnrecognized)
	}

	for _, p := range e.patterns {
		matches := p.Regex.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}

		reply, err := p.Handle(ctx, matches)
		if err != nil {
			slog.Warn("builtin: command failed",
				"pattern", p.Name,
				"text", trimmed,
				"error", err,
			)
			return "", fmt.Errorf("builtin: %s: %w", p.Name, err)
		}

		slog.Info("builtin: command executed",
			"pattern", p.Name,
			"text", trimmed,
		)
		return reply, nil
	}

	return "", fmt.Errorf("builtin: no pattern for %q: %w", trimmed, command.ErrUnrecognized)
}

// defaultPatterns returns the built-in command table.
func defaultPatterns(e *Executor) []Pattern {
	return []Pattern{
		{
			Name:  "what-time",
			Regex: regexp.MustCompile(`(?i)\bwhat(?:'s| is)?\s+(?:the\s+)?time\b`),
			Handle: func(_ context.Context, _ []string) (string, error) {
				return "It is " + e.now().Format("3:04 PM"), nil
			},
		},
		{
			Name:  "what-date",
			Regex: regexp.MustCompile(`(?i)\bwhat(?:'s| is)?\s+(?:the\s+date|today'?s?\s+date)\b`),
			Handle: func(_ context.Context, _ []string) (string, error) {
				return "Today is " + e.now().Format("Monday, January 2"), nil
			},
		},
		{
			Name:  "what-day",
			Regex: regexp.MustCompile(`(?i)\bwhat\s+day\s+is\s+it\b`),
			Handle: func(_ context.Context, _ []string) (string, error) {
				return "It is " + e.now().Format("Monday"), nil
			},
		},
		{
			Name:  "echo",
			Regex: regexp.MustCompile(`(?i)^(?:say|repeat(?:\s+after\s+me)?)\s+(.+)$`),
			Handle: func(_ context.Context, matches []string) (string, error) {
				return matches[1], nil
			},
		},
		{
			Name:  "greeting",
			Regex: regexp.MustCompile(`(?i)^(?:hello|hi|hey|good\s+(?:morning|afternoon|evening))\b`),
			Handle: func(_ context.Context, _ []string) (string, error) {
				return "Hello! How can I help you?", nil
			},
		},
		{
			Name:  "thanks",
			Regex: regexp.MustCompile(`(?i)^thanks?(?:\s+you)?\b`),
			Handle: func(_ context.Context, _ []string) (string, error) {
				return "You're welcome.", nil
			},
		},
	}
}
