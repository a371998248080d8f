package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/pack"
	"github.com/roach88/specforge/internal/session"
	"github.com/roach88/specforge/internal/specerr"
)

// fakeModel serves scripted chat completion replies in order and records
// the requests it received.
type fakeModel struct {
	mu       sync.Mutex
	replies  []string
	requests []openai.ChatCompletionRequest
}

func (m *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	reply := ""
	if len(m.replies) > 0 {
		reply, m.replies = m.replies[0], m.replies[1:]
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
			FinishReason: openai.FinishReasonStop,
		}},
	})
}

func newTestClient(t *testing.T, replies ...string) (*Client, *fakeModel) {
	t.Helper()
	model := &fakeModel{replies: replies}
	srv := httptest.NewServer(model)
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/v1/"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c, model
}

func testPack(t *testing.T) *pack.Pack {
	t.Helper()
	p, err := pack.NewLoader("").Load(pack.DefaultTemplateID)
	require.NoError(t, err)
	return p
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.True(t, specerr.Is(err, specerr.InvalidInput))
}

func TestDraftFromPrompt(t *testing.T) {
	c, model := newTestClient(t, `{"name": "shop"}`)

	doc, err := c.DraftFromPrompt(context.Background(), session.DraftRequest{
		TemplateID: pack.DefaultTemplateID,
		Prompt:     "a shop with orders",
		Pack:       testPack(t),
	})
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRObject{"name": ir.IRString("shop")}, doc))

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "a shop with orders")
	assert.Contains(t, req.Messages[1].Content, "- projectName (string, required)")
}

func TestPolishStripsFence(t *testing.T) {
	c, model := newTestClient(t, "```json\n{\"name\": \"shop\"}\n```")

	doc, err := c.PolishToDesignSpec(context.Background(), session.PolishRequest{
		TemplateID: pack.DefaultTemplateID,
		Prompt:     "shop",
		Pack:       testPack(t),
		Draft:      ir.IRObject{"name": ir.IRString("draft")},
		Answers:    ir.IRObject{"projectName": ir.IRString("shop")},
	})
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRObject{"name": ir.IRString("shop")}, doc))
	assert.Contains(t, model.requests[0].Messages[1].Content, `"projectName": "shop"`)
}

func TestRetryOnceThenSucceed(t *testing.T) {
	c, model := newTestClient(t, "Sure! Here you go.", `{"name": "shop"}`)

	doc, err := c.DraftFromPrompt(context.Background(), session.DraftRequest{
		TemplateID: pack.DefaultTemplateID, Prompt: "shop", Pack: testPack(t),
	})
	require.NoError(t, err)
	assert.NotNil(t, doc)

	require.Len(t, model.requests, 2)
	retry := model.requests[1].Messages
	require.Len(t, retry, 4)
	assert.Equal(t, "Sure! Here you go.", retry[2].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, retry[3].Role)
}

func TestInvalidJSONAfterRetry(t *testing.T) {
	c, model := newTestClient(t, "not json", "still not json", `{"never": "sent"}`)

	_, err := c.DraftFromPrompt(context.Background(), session.DraftRequest{
		TemplateID: pack.DefaultTemplateID, Prompt: "shop", Pack: testPack(t),
	})
	assert.True(t, specerr.Is(err, specerr.LLMInvalidJSON), "got %v", err)
	assert.Len(t, model.requests, 2)
}

func TestRepairEnvelope(t *testing.T) {
	req := session.RepairRequest{
		Candidate: ir.IRObject{"name": ir.IRString("shop")},
		Diagnostics: []ir.Diagnostic{{
			Code: ir.CodePrimaryKeyNotMarked, Level: ir.LevelError,
			Path: "/domains/0/entities/0/fields/0/primary", Message: "not marked",
			Suggestion: `set "primary": true on the field`,
		}},
		Attempt: 1,
	}
	want := ir.IRArray{ir.IRObject{"op": ir.IRString("remove"), "path": ir.IRString("/name")}}

	tests := []struct {
		name  string
		reply string
	}{
		{"envelope", `{"patch": [{"op": "remove", "path": "/name"}]}`},
		{"bare array", `[{"op": "remove", "path": "/name"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, model := newTestClient(t, tt.reply)
			got, err := c.RepairWithJSONPatch(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, ir.Equal(want, got))

			prompt := model.requests[0].Messages[1].Content
			assert.Contains(t, prompt, "Repair attempt 1.")
			assert.Contains(t, prompt, "PRIMARY_KEY_NOT_MARKED at /domains/0/entities/0/fields/0/primary")
		})
	}

	t.Run("wrong shape is retried", func(t *testing.T) {
		c, model := newTestClient(t, `{"fix": []}`, `{"patch": []}`)
		got, err := c.RepairWithJSONPatch(context.Background(), req)
		require.NoError(t, err)
		assert.IsType(t, ir.IRArray{}, got)
		assert.Empty(t, got)
		assert.Len(t, model.requests, 2)
	})
}

func TestTransportErrorIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	_, err = c.DraftFromPrompt(context.Background(), session.DraftRequest{
		TemplateID: pack.DefaultTemplateID, Prompt: "shop", Pack: testPack(t),
	})
	assert.True(t, specerr.Is(err, specerr.IOError), "got %v", err)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"plain", `{"a": 1}`, false},
		{"fenced", "```json\n{\"a\": 1}\n```", false},
		{"bare fence", "```\n[1]\n```", false},
		{"padded", "  \n{\"a\": 1}\n ", false},
		{"empty", "   ", true},
		{"prose", "here is your json", true},
		{"empty fence", "```", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReply(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
