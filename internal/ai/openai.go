package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to OpenAI chat completions through function tools
type OpenAIProvider struct {
	client    *openai.Client
	modelName string
	maxTokens int
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(model string, opts Options) (*OpenAIProvider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("PAGEPILOT_OPENAI_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("PAGEPILOT_OPENAI_KEY or OPENAI_API_KEY environment variable required")
	}

	client := openai.NewClient(apiKey)

	if model == "" {
		model = "gpt-4o"
	}
	maxTokens := int(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &OpenAIProvider{
		client:    client,
		modelName: model,
		maxTokens: maxTokens,
	}, nil
}

func (p *OpenAIProvider) model() string { return p.modelName }

func openaiMessages(system string, user message) []openai.ChatCompletionMessage {
	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(user.Image) > 0 {
		userMsg.MultiContent = []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + user.imageMIME() + ";base64," + base64.StdEncoding.EncodeToString(user.Image),
					Detail: openai.ImageURLDetailAuto,
				},
			},
			{Type: openai.ChatMessagePartTypeText, Text: user.Text},
		}
	} else {
		userMsg.Content = user.Text
	}
	return []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		},
		userMsg,
	}
}

func openaiTools(tools []tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.schema(),
			},
		})
	}
	return out
}

func (p *OpenAIProvider) callTool(ctx context.Context, system string, user message, tools []tool) (string, json.RawMessage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:      p.modelName,
		Messages:   openaiMessages(system, user),
		MaxTokens:  p.maxTokens,
		Tools:      openaiTools(tools),
		ToolChoice: "required",
	})
	if err != nil {
		return "", nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("empty response from OpenAI")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0].Function
		return call.Name, json.RawMessage(call.Arguments), nil
	}
	if raw, ok := extractJSONObject(msg.Content); ok && len(tools) == 1 {
		return tools[0].Name, raw, nil
	}
	if msg.Content == "" {
		return "", nil, fmt.Errorf("empty response from OpenAI")
	}
	return "", nil, fmt.Errorf("no tool call in OpenAI response\nResponse: %s", msg.Content)
}

func (p *OpenAIProvider) complete(ctx context.Context, system string, user message) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.modelName,
		Messages:  openaiMessages(system, user),
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
