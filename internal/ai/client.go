package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// message is one user turn: text plus an optional image
type message struct {
	Text  string
	Image []byte
}

func (m message) imageMIME() string {
	return http.DetectContentType(m.Image)
}

// chatModel is what each vendor SDK has to provide
type chatModel interface {
	// callTool forces the model to call one of tools and returns its name and JSON input.
	callTool(ctx context.Context, system string, user message, tools []tool) (string, json.RawMessage, error)
	complete(ctx context.Context, system string, user message) (string, error)
	model() string
}

// client implements Oracle on top of a chatModel
type client struct {
	m      chatModel
	logger *zap.Logger
}

func newClient(m chatModel, logger *zap.Logger) *client {
	return &client{m: m, logger: logger.Named("oracle")}
}

func (c *client) Model() string { return c.m.model() }

func (c *client) SupportsVision() bool { return ModelSupportsVision(c.m.model()) }

func (c *client) Act(ctx context.Context, req ActRequest) (*ActResponse, error) {
	name, input, err := c.m.callTool(ctx, actSystemPrompt,
		message{Text: buildActUserPrompt(req.Goal, req.Steps, req.DOM), Image: req.Image}, actTools)
	if err != nil {
		return nil, fmt.Errorf("act: %w", err)
	}
	c.logger.Debug("received response", zap.String("tool", name), zap.ByteString("input", input))
	return parseAct(name, input)
}

func parseAct(name string, input json.RawMessage) (*ActResponse, error) {
	switch name {
	case toolDoAction:
		var resp ActResponse
		if err := json.Unmarshal(input, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse doAction arguments: %w\nResponse: %s", err, input)
		}
		return &resp, nil
	case toolSkipSection, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected tool %q", name)
}

func (c *client) Verify(ctx context.Context, req VerifyRequest) (bool, error) {
	_, input, err := c.m.callTool(ctx, verifySystemPrompt,
		message{Text: buildVerifyUserPrompt(req.Goal, req.Steps, req.DOM), Image: req.Image},
		[]tool{verifyTool})
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	var out struct {
		Completed bool `json:"completed"`
	}
	if err := json.Unmarshal(input, &out); err != nil {
		return false, fmt.Errorf("failed to parse verify arguments: %w\nResponse: %s", err, input)
	}
	return out.Completed, nil
}

func (c *client) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	_, input, err := c.m.callTool(ctx, squash(extractSystemPrompt),
		message{Text: buildExtractUserPrompt(req.Instruction, req.Progress, req.Content, req.DOM)},
		[]tool{extractTool(req.Schema)})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return parseExtract(input)
}

func parseExtract(input json.RawMessage) (*ExtractResponse, error) {
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse extract arguments: %w\nResponse: %s", err, input)
	}
	resp := &ExtractResponse{Content: fields}
	if meta, ok := fields["metadata"].(map[string]any); ok {
		resp.Progress, _ = meta["progress"].(string)
		resp.Completed, _ = meta["completed"].(bool)
	}
	delete(fields, "metadata")
	return resp, nil
}

func (c *client) Observe(ctx context.Context, req ObserveRequest) ([]Observation, error) {
	_, input, err := c.m.callTool(ctx, squash(observeSystemPrompt),
		message{Text: buildObserveUserPrompt(req.Instruction, req.DOM), Image: req.Image},
		[]tool{observeTool})
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	var out struct {
		Elements []Observation `json:"elements"`
	}
	if err := json.Unmarshal(input, &out); err != nil {
		return nil, fmt.Errorf("failed to parse observe arguments: %w\nResponse: %s", err, input)
	}
	return out.Elements, nil
}

func (c *client) Ask(ctx context.Context, question string) (string, error) {
	answer, err := c.m.complete(ctx, askSystemPrompt, message{Text: buildAskUserPrompt(question)})
	if err != nil {
		return "", fmt.Errorf("ask: %w", err)
	}
	return answer, nil
}
