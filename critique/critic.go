package critique

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/youssefsiam38/historypg/types"
)

// Default configuration values
const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = int64(2048)

	DefaultSystemPrompt = "You review feedback that a human grader wrote about a conversation. " +
		"Point out where the feedback is vague, unsupported by the transcript, or missing " +
		"something important, and suggest concrete improvements. Answer in markdown."
)

var (
	// ErrInvalidConfig is returned when the critic configuration is invalid
	ErrInvalidConfig = errors.New("invalid critique configuration")

	// ErrEmptyInput is returned when there is no feedback or no transcript to review
	ErrEmptyInput = errors.New("feedback and transcript are required")

	// ErrCritiqueFailed is returned when the model call fails or returns no text
	ErrCritiqueFailed = errors.New("critique failed")
)

// Option configures a Critic
type Option func(*Critic) error

// WithModel sets the model ID
func WithModel(model string) Option {
	return func(c *Critic) error {
		if model == "" {
			return fmt.Errorf("%w: model must not be empty", ErrInvalidConfig)
		}
		c.model = model
		return nil
	}
}

// WithMaxTokens sets the maximum number of tokens in the reply
func WithMaxTokens(n int64) Option {
	return func(c *Critic) error {
		if n <= 0 {
			return fmt.Errorf("%w: max tokens must be positive", ErrInvalidConfig)
		}
		c.maxTokens = n
		return nil
	}
}

// WithSystemPrompt replaces the default reviewer instructions
func WithSystemPrompt(prompt string) Option {
	return func(c *Critic) error {
		c.systemPrompt = prompt
		return nil
	}
}

// Critic reviews feedback through the Anthropic Messages API
type Critic struct {
	client       *anthropic.Client
	model        string
	maxTokens    int64
	systemPrompt string
}

// New creates a Critic using client
func New(client *anthropic.Client, opts ...Option) (*Critic, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: Anthropic client is required", ErrInvalidConfig)
	}

	c := &Critic{
		client:       client,
		model:        DefaultModel,
		maxTokens:    DefaultMaxTokens,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Critique sends the feedback and the formatted transcript to the model and
// returns its reply.
func (c *Critic) Critique(ctx context.Context, feedback string, transcript []*types.Message) (string, error) {
	formatted := FormatTranscript(transcript)
	if strings.TrimSpace(feedback) == "" || formatted == "" {
		return "", ErrEmptyInput
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(feedback, formatted))),
		},
	}
	if c.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: c.systemPrompt,
			},
		}
	}

	response, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCritiqueFailed, err)
	}

	var sb strings.Builder
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty reply (stop_reason=%s)", ErrCritiqueFailed, response.StopReason)
	}
	return text, nil
}

// BuildPrompt returns the user prompt sent for one critique
func BuildPrompt(feedback, transcript string) string {
	var sb strings.Builder
	sb.WriteString("## Current feedback\n\n")
	sb.WriteString(strings.TrimSpace(feedback))
	sb.WriteString("\n\n## Transcript\n\n")
	sb.WriteString(transcript)
	return sb.String()
}

// FormatTranscript renders messages as "role: content" lines. Developer
// messages are instructions to the model, not conversation, and are left out.
func FormatTranscript(messages []*types.Message) string {
	var lines []string
	for _, msg := range messages {
		if msg == nil || msg.Role == types.RoleDeveloper {
			continue
		}

		role := string(msg.Role)
		if role == "" {
			role = "item"
		}
		lines = append(lines, role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
