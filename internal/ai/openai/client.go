package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/logger"
	"github.com/spigell/hr-interview-bot/internal/metrics"
	"github.com/spigell/hr-interview-bot/internal/utils"
)

const (
	provider            = "openai"
	defaultModel        = "gpt-4o-mini"
	defaultBaseURL      = "https://api.openai.com/v1"
	defaultTimeout      = 60 * time.Second
	defaultMaxLogLength = 200
	errorBodyLimit      = 400
)

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	MaxLogLength int
}

// Client is a chat completions client implementing ai.Model.
type Client struct {
	apiKey     string
	url        string
	model      string
	maxLogLen  int
	httpClient *http.Client
	logger     *zap.Logger
}

var _ ai.Model = (*Client)(nil)

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Client{
		apiKey:     apiKey,
		url:        baseURL + "/chat/completions",
		model:      model,
		maxLogLen:  maxLogLen,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithCommonFields(log, provider, model),
	}, nil
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Parameters  *ai.Schema `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) Invoke(ctx context.Context, messages []ai.Message) (ai.Message, error) {
	return c.complete(ctx, "invoke", messages, nil)
}

func (c *Client) InvokeWithTools(ctx context.Context, messages []ai.Message, tools ...ai.Tool) (ai.Message, error) {
	return c.complete(ctx, "invoke_with_tools", messages, tools)
}

func (c *Client) Provider() string { return provider }

func (c *Client) Model() string { return c.model }

func (c *Client) complete(ctx context.Context, operation string, messages []ai.Message, tools []ai.Tool) (ai.Message, error) {
	if len(messages) == 0 {
		return ai.Message{}, errors.New("at least one message is required")
	}

	reqBody := chatRequest{
		Model:    c.model,
		Messages: toChatMessages(messages),
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return ai.Message{}, fmt.Errorf("marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return ai.Message{}, fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("openai chat completion request",
		zap.String("operation", operation),
		zap.Int("messages", len(messages)),
		zap.Int("tools", len(tools)),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveModelRequest(provider, operation, start)
	if err != nil {
		return ai.Message{}, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ai.Message{}, fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ai.Message{}, fmt.Errorf("openai non-success status=%d body=%s", resp.StatusCode, utils.TruncateRunes(string(body), errorBodyLimit))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ai.Message{}, fmt.Errorf("parse openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return ai.Message{}, ai.ErrEmptyResponse
	}

	out, err := c.fromChatMessage(parsed.Choices[0].Message)
	if err != nil {
		return ai.Message{}, err
	}

	fields := []zap.Field{
		zap.String("operation", operation),
		zap.Int("response_length", utf8.RuneCountInString(out.Content)),
		zap.String("response_preview", utils.TruncateForLog(out.Content, c.maxLogLen)),
		zap.Int("tool_calls", len(out.ToolCalls)),
	}
	if parsed.Usage != nil {
		fields = append(fields,
			zap.Int("input_tokens", parsed.Usage.PromptTokens),
			zap.Int("output_tokens", parsed.Usage.CompletionTokens),
		)
	}
	c.logger.Debug("openai chat completion response", fields...)

	return out, nil
}

func toChatMessages(messages []ai.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msg := chatMessage{Content: m.Content}
		switch m.Role {
		case ai.RoleSystem:
			msg.Role = "system"
		case ai.RoleAssistant:
			msg.Role = "assistant"
			for _, tc := range m.ToolCalls {
				call := chatToolCall{ID: tc.ID, Type: "function"}
				call.Function.Name = tc.Name
				args, _ := json.Marshal(tc.Args)
				call.Function.Arguments = string(args)
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
		case ai.RoleTool:
			msg.Role = "tool"
		default:
			msg.Role = "user"
		}
		out = append(out, msg)
	}
	return out
}

// fromChatMessage converts the reply. Tool calls with undecodable arguments are
// kept with empty arguments so the caller rejects them like any other
// unusable call.
func (c *Client) fromChatMessage(msg chatMessage) (ai.Message, error) {
	out := ai.Message{Role: ai.RoleAssistant, Content: strings.TrimSpace(msg.Content)}

	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				c.logger.Warn("dropping undecodable tool arguments",
					zap.String("tool", tc.Function.Name),
					zap.String("arguments", utils.TruncateForLog(raw, c.maxLogLen)),
					zap.Error(err),
				)
				args = map[string]any{}
			}
		}
		out.ToolCalls = append(out.ToolCalls, ai.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}

	if out.Content == "" && len(out.ToolCalls) == 0 {
		return ai.Message{}, ai.ErrEmptyResponse
	}
	return out, nil
}
