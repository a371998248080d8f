// Package llm implements the drafting, polishing and repair adapter on
// top of an OpenAI-compatible chat completion API.
//
// Every call asks for a JSON reply. A reply that does not parse is
// retried once with a correction message; a second failure surfaces as
// LLM_INVALID_JSON.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/session"
	"github.com/roach88/specforge/internal/specerr"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// maxAttempts is the initial request plus one retry.
const maxAttempts = 2

// Config selects the endpoint and model.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client is a session.Adapter backed by chat completions.
type Client struct {
	api    *openai.Client
	model  string
	logger *slog.Logger
}

var _ session.Adapter = (*Client)(nil)

// New builds a client. An API key is required.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, specerr.New(specerr.InvalidInput, "llm: api key is not set (OPENAI_API_KEY)")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:    openai.NewClientWithConfig(oc),
		model:  model,
		logger: logger,
	}, nil
}

// DraftFromPrompt asks for a first draft document.
func (c *Client) DraftFromPrompt(ctx context.Context, req session.DraftRequest) (ir.IRValue, error) {
	prompt, err := render("draft.tmpl", req)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "render draft prompt")
	}
	return c.requestJSON(ctx, "draft", prompt, anyJSON)
}

// PolishToDesignSpec asks for a complete candidate DesignSpec.
func (c *Client) PolishToDesignSpec(ctx context.Context, req session.PolishRequest) (ir.IRValue, error) {
	prompt, err := render("polish.tmpl", req)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "render polish prompt")
	}
	return c.requestJSON(ctx, "polish", prompt, anyJSON)
}

// RepairWithJSONPatch asks for a patch fixing req.Diagnostics. The reply
// may be {"patch": [...]} or a bare array; the patch array is returned.
func (c *Client) RepairWithJSONPatch(ctx context.Context, req session.RepairRequest) (ir.IRValue, error) {
	prompt, err := render("repair.tmpl", req)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "render repair prompt")
	}
	return c.requestJSON(ctx, "repair", prompt, patchEnvelope)
}

// shape validates and unwraps a parsed reply.
type shape func(ir.IRValue) (ir.IRValue, error)

func anyJSON(v ir.IRValue) (ir.IRValue, error) { return v, nil }

func patchEnvelope(v ir.IRValue) (ir.IRValue, error) {
	switch t := v.(type) {
	case ir.IRArray:
		return t, nil
	case ir.IRObject:
		if arr, ok := t["patch"].(ir.IRArray); ok {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("expected {\"patch\": [...]} or an array, got %s", ir.TypeName(v))
}

func (c *Client) requestJSON(ctx context.Context, step, prompt string, want shape) (ir.IRValue, error) {
	system, err := render("system.tmpl", nil)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "render system prompt")
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, err := c.complete(ctx, messages)
		if err != nil {
			return nil, err
		}

		v, perr := parseReply(reply)
		if perr == nil {
			v, perr = want(v)
		}
		if perr == nil {
			c.logger.Debug("llm reply parsed", "step", step, "attempt", attempt, "type", ir.TypeName(v))
			return v, nil
		}

		lastErr = perr
		c.logger.Warn("llm reply rejected", "step", step, "attempt", attempt, "error", perr)
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
			openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: "That reply was not usable (" + perr.Error() + "). Reply again with only the JSON value.",
			})
	}
	return nil, specerr.Wrap(specerr.LLMInvalidJSON, lastErr, step+" reply")
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", specerr.Wrap(specerr.IOError, err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	c.logger.Debug("llm response", "model", c.model, "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// parseReply strips an optional markdown fence and parses the rest as JSON.
func parseReply(reply string) (ir.IRValue, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = ""
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	}
	if text == "" {
		return nil, fmt.Errorf("empty reply")
	}
	return ir.ParseValue([]byte(text))
}
