package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider talks to Anthropic's Claude through tool use
type ClaudeProvider struct {
	client    *anthropic.Client
	modelName string
	maxTokens int64
}

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(model string, opts Options) (*ClaudeProvider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("PAGEPILOT_ANTHROPIC_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("PAGEPILOT_ANTHROPIC_KEY or ANTHROPIC_API_KEY environment variable required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &ClaudeProvider{
		client:    &client,
		modelName: model,
		maxTokens: maxTokens,
	}, nil
}

func (p *ClaudeProvider) model() string { return p.modelName }

func claudeContent(user message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if len(user.Image) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64(user.imageMIME(), base64.StdEncoding.EncodeToString(user.Image)))
	}
	return append(blocks, anthropic.NewTextBlock(user.Text))
}

func claudeTools(tools []tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Properties,
				Required:   t.Required,
			},
		}})
	}
	return out
}

func (p *ClaudeProvider) callTool(ctx context.Context, system string, user message, tools []tool) (string, json.RawMessage, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelName),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(claudeContent(user)...),
		},
		Tools:      claudeTools(tools),
		ToolChoice: anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}},
	})
	if err != nil {
		return "", nil, fmt.Errorf("Claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "tool_use":
			return block.Name, block.Input, nil
		case "text":
			text.WriteString(block.Text)
		}
	}

	// Some responses describe the call in prose; recover the arguments when there is one tool.
	if raw, ok := extractJSONObject(text.String()); ok && len(tools) == 1 {
		return tools[0].Name, raw, nil
	}
	if text.Len() == 0 {
		return "", nil, fmt.Errorf("empty response from Claude")
	}
	return "", nil, fmt.Errorf("no tool call in Claude response\nResponse: %s", text.String())
}

func (p *ClaudeProvider) complete(ctx context.Context, system string, user message) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelName),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(claudeContent(user)...),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Claude API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from Claude")
}
