package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/logger"
	"github.com/spigell/hr-interview-bot/internal/metrics"
	"github.com/spigell/hr-interview-bot/internal/utils"
)

const (
	provider            = "gemini"
	defaultModel        = "gemini-2.5-flash"
	defaultMaxLogLength = 200
)

type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client and implements ai.Model.
type Generator struct {
	models    contentModels
	modelName string
	maxLogLen int
	logger    *zap.Logger
}

var _ ai.Model = (*Generator)(nil)

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, maxLogLength int, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, model, maxLogLength, log), nil
}

func newGenerator(models contentModels, model string, maxLogLength int, log *zap.Logger) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Generator{
		models:    models,
		modelName: model,
		maxLogLen: maxLogLength,
		logger:    logger.WithCommonFields(log, provider, model),
	}
}

func (g *Generator) Invoke(ctx context.Context, messages []ai.Message) (ai.Message, error) {
	return g.generate(ctx, "invoke", messages, nil)
}

func (g *Generator) InvokeWithTools(ctx context.Context, messages []ai.Message, tools ...ai.Tool) (ai.Message, error) {
	return g.generate(ctx, "invoke_with_tools", messages, tools)
}

func (g *Generator) Provider() string { return provider }

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

func (g *Generator) generate(ctx context.Context, operation string, messages []ai.Message, tools []ai.Tool) (ai.Message, error) {
	if g == nil || g.models == nil {
		return ai.Message{}, errors.New("gemini generator is not initialized")
	}

	system, contents := toContents(messages)
	if len(contents) == 0 {
		return ai.Message{}, errors.New("at least one non-system message is required")
	}

	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if len(tools) > 0 {
		config.Tools = toTools(tools)
	}

	g.logger.Debug("gemini generate content request",
		zap.String("operation", operation),
		zap.Int("messages", len(messages)),
		zap.Int("tools", len(tools)),
	)

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.modelName, contents, config)
	metrics.ObserveModelRequest(provider, operation, start)
	if err != nil {
		return ai.Message{}, fmt.Errorf("generate content: %w", err)
	}

	out, err := fromResponse(resp)
	if err != nil {
		return ai.Message{}, err
	}

	g.logger.Debug("gemini generate content response",
		zap.String("operation", operation),
		zap.Int("response_length", utf8.RuneCountInString(out.Content)),
		zap.String("response_preview", utils.TruncateForLog(out.Content, g.maxLogLen)),
		zap.Int("tool_calls", len(out.ToolCalls)),
	)

	return out, nil
}

// toContents maps the conversation onto Gemini contents. Only a leading system
// message can become the system instruction; later system messages are sent
// as user turns since Gemini has no mid-conversation system role.
func toContents(messages []ai.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))

	for i, m := range messages {
		switch m.Role {
		case ai.RoleSystem:
			if i == 0 {
				system = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
				continue
			}
			contents = append(contents, textContent("user", m.Content))
		case ai.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Args},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		default:
			contents = append(contents, textContent("user", m.Content))
		}
	}

	return system, contents
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}

func toTools(tools []ai.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toSchema(s *ai.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        toType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Minimum:     s.Minimum,
		Maximum:     s.Maximum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
	}
	return out
}

func toType(t ai.SchemaType) genai.Type {
	switch t {
	case ai.TypeObject:
		return genai.TypeObject
	case ai.TypeInteger:
		return genai.TypeInteger
	case ai.TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func fromResponse(resp *genai.GenerateContentResponse) (ai.Message, error) {
	if resp == nil {
		return ai.Message{}, ai.ErrEmptyResponse
	}

	out := ai.Message{Role: ai.RoleAssistant}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, ai.ToolCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// Only the first usable candidate is considered.
		if builder.Len() > 0 || len(out.ToolCalls) > 0 {
			break
		}
	}

	out.Content = strings.TrimSpace(builder.String())
	if out.Content == "" && len(out.ToolCalls) == 0 {
		return ai.Message{}, ai.ErrEmptyResponse
	}

	return out, nil
}
