package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/ai"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL + "/", Model: "test-model", Timeout: 5 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestInvokeSendsConversation(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": ` {"question": "Why Go?", "finished": false} `}},
			},
			"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 7},
		})
	})

	out, err := client.Invoke(context.Background(), []ai.Message{
		ai.System("interviewer"),
		ai.Assistant(`{"question": "Hello", "finished": false}`),
		ai.Human("Hi"),
		ai.System("format"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Content != `{"question": "Why Go?", "finished": false}` {
		t.Fatalf("unexpected content %q", out.Content)
	}

	if got.Model != "test-model" {
		t.Fatalf("unexpected model %q", got.Model)
	}
	wantRoles := []string{"system", "assistant", "user", "system"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(got.Messages))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Fatalf("message %d: expected role %s, got %s", i, role, got.Messages[i].Role)
		}
	}
	if len(got.Tools) != 0 {
		t.Fatalf("expected no tools in plain invoke")
	}
}

func TestInvokeWithToolsDecodesArguments(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "set_marks",
							"arguments": `{"communication": 8}`,
						},
					}},
				},
			}},
		})
	})

	tool := ai.Tool{
		Name: "set_marks",
		Parameters: &ai.Schema{
			Type:       ai.TypeObject,
			Required:   []string{"communication"},
			Properties: map[string]*ai.Schema{"communication": {Type: ai.TypeInteger}},
		},
	}

	out, err := client.InvokeWithTools(context.Background(), []ai.Message{ai.System("evaluate"), ai.Human("transcript")}, tool)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc, ok := out.FindToolCall("set_marks")
	if !ok {
		t.Fatalf("expected set_marks call, got %+v", out.ToolCalls)
	}
	if tc.ID != "call_1" || tc.Args["communication"] != float64(8) {
		t.Fatalf("unexpected tool call %+v", tc)
	}

	if len(got.Tools) != 1 || got.Tools[0].Type != "function" || got.Tools[0].Function.Name != "set_marks" {
		t.Fatalf("unexpected tools in request: %+v", got.Tools)
	}
	if got.Tools[0].Function.Parameters == nil || got.Tools[0].Function.Parameters.Type != ai.TypeObject {
		t.Fatalf("expected object parameters, got %+v", got.Tools[0].Function.Parameters)
	}
}

func TestInvokeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		isEmpty bool
	}{
		{name: "non-success status", status: http.StatusTooManyRequests, body: `{"error": "rate limited"}`, wantErr: "status=429"},
		{name: "invalid json", status: http.StatusOK, body: `not json`, wantErr: "parse openai response"},
		{name: "no choices", status: http.StatusOK, body: `{"choices": []}`, isEmpty: true},
		{name: "blank content", status: http.StatusOK, body: `{"choices": [{"message": {"content": "  "}}]}`, isEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Invoke(context.Background(), []ai.Message{ai.Human("hi")})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.isEmpty && !errors.Is(err, ai.ErrEmptyResponse) {
				t.Fatalf("expected empty response error, got %v", err)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if calls != 1 {
				t.Fatalf("model calls must not be retried, got %d", calls)
			}
		})
	}
}

func TestInvokeKeepsToolCallWithBadArguments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"tool_calls": [{"id": "1", "type": "function", "function": {"name": "set_marks", "arguments": "{"}}]}}]}`))
	})

	out, err := client.InvokeWithTools(context.Background(), []ai.Message{ai.Human("transcript")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := out.FindToolCall("set_marks")
	if !ok {
		t.Fatalf("expected set_marks call, got %+v", out.ToolCalls)
	}
	if len(tc.Args) != 0 {
		t.Fatalf("expected empty arguments, got %v", tc.Args)
	}
}

func TestRequestLeavesTemperatureToModel(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	})

	if _, err := client.Invoke(context.Background(), []ai.Message{ai.Human("hi")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := body["temperature"]; ok {
		t.Fatalf("temperature must not be sent, got %v", body["temperature"])
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "  "}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for missing api key")
	}

	client, err := NewClient(Config{APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Model() != defaultModel || client.url != defaultBaseURL+"/chat/completions" {
		t.Fatalf("unexpected defaults: model=%s url=%s", client.Model(), client.url)
	}
}
