package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Oracle is the external decision-maker consulted for actions, verification, extraction,
// observation and plain questions.
type Oracle interface {
	// Act returns the next primitive operation, or nil when the model skips this chunk.
	Act(ctx context.Context, req ActRequest) (*ActResponse, error)
	Verify(ctx context.Context, req VerifyRequest) (bool, error)
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
	Observe(ctx context.Context, req ObserveRequest) ([]Observation, error)
	Ask(ctx context.Context, question string) (string, error)
	// SupportsVision reports whether the model accepts images
	SupportsVision() bool
	Model() string
}

// ActRequest asks for one operation over a serialized chunk
type ActRequest struct {
	Goal  string
	Steps string
	DOM   string
	Image []byte
}

// ActResponse is the doAction tool call
type ActResponse struct {
	Method    string   `json:"method"`
	Element   int      `json:"element"`
	Args      []string `json:"args"`
	Step      string   `json:"step"`
	Why       string   `json:"why"`
	Completed bool     `json:"completed"`
}

// VerifyRequest asks whether the goal has been reached
type VerifyRequest struct {
	Goal  string
	Steps string
	Image []byte
	DOM   string
}

// ExtractRequest asks for partial content from one chunk. Schema is a JSON schema object
// describing the content fields.
type ExtractRequest struct {
	Instruction string
	Progress    string
	Content     map[string]any
	DOM         string
	Schema      map[string]any
}

// ExtractResponse is the content found in one chunk plus the progress metadata
type ExtractResponse struct {
	Content   map[string]any
	Progress  string
	Completed bool
}

// ObserveRequest asks for elements matching an instruction
type ObserveRequest struct {
	Instruction string
	DOM         string
	Image       []byte
}

// Observation is one matching element reported by the model
type Observation struct {
	ElementID   int    `json:"elementId"`
	Description string `json:"description"`
}

// Options configures a provider
type Options struct {
	APIKey    string
	MaxTokens int64
	Logger    *zap.Logger
}

// NewProvider creates a new oracle based on the provider name
func NewProvider(name, model string, opts Options) (Oracle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		m   chatModel
		err error
	)
	switch name {
	case "claude", "anthropic":
		m, err = NewClaudeProvider(model, opts)
	case "openai", "gpt":
		m, err = NewOpenAIProvider(model, opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
	if err != nil {
		return nil, err
	}
	return newClient(m, logger), nil
}

var visionModelPrefixes = []string{
	"gpt-4o", "gpt-4.1", "gpt-4-turbo", "gpt-5", "o1", "o3", "o4",
	"claude-3", "claude-sonnet-4", "claude-opus-4", "claude-haiku-4",
}

// ModelSupportsVision reports whether a model name belongs to a family that accepts images
func ModelSupportsVision(model string) bool {
	for _, p := range visionModelPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
