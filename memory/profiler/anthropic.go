// Package profiler summarizes a user's dialogue history into a short
// preference profile with Claude.
package profiler

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"

	"github.com/MichaelIeong/SAGE/logging"
	"github.com/MichaelIeong/SAGE/memory"
)

// DefaultModel is the Claude model used when none is configured.
const DefaultModel = "claude-sonnet-4-20250514"

const systemPrompt = `You maintain preference profiles for the residents of a smart home.
Given one resident's past requests grouped by date, write a single short paragraph
describing their habits and preferences: devices they use, preferred settings,
rooms and times of day. Mention only what the requests support. Reply with the
paragraph only.`

// Anthropic implements memory.Profiler with the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ memory.Profiler = (*Anthropic)(nil)

// Option configures an Anthropic profiler.
type Option func(*Anthropic)

// WithModel sets the Claude model.
func WithModel(model string) Option {
	return func(a *Anthropic) {
		if model != "" {
			a.model = model
		}
	}
}

// WithMaxTokens bounds the profile length.
func WithMaxTokens(n int64) Option {
	return func(a *Anthropic) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// New creates a profiler. Request options such as option.WithAPIKey or
// option.WithBaseURL are passed to the client.
func New(reqOpts []option.RequestOption, opts ...Option) *Anthropic {
	a := &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     DefaultModel,
		maxTokens: 512,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Profile implements memory.Profiler.
func (a *Anthropic) Profile(ctx context.Context, user string, history map[string][]string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(renderHistory(user, history))),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", goerr.Wrap(err, "claude API error", goerr.V("user", user))
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	profile := strings.TrimSpace(strings.Join(parts, "\n"))
	if profile == "" {
		return "", goerr.New("empty profile in response", goerr.V("user", user))
	}

	logging.From(ctx).Debug("built user profile", "user", user,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return profile, nil
}

func renderHistory(user string, history map[string][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resident: %s\n", user)
	for _, date := range slices.Sorted(maps.Keys(history)) {
		fmt.Fprintf(&b, "\n%s:\n", date)
		for _, q := range history[date] {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	return b.String()
}
