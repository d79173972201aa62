package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/hr"
	"github.com/spigell/hr-interview-bot/internal/logger"
	"github.com/spigell/hr-interview-bot/internal/metrics"
	"github.com/spigell/hr-interview-bot/internal/prompts"
)

// MarksTool is the name of the function the model calls to submit scores.
const MarksTool = "set_marks"

// Evaluator scores a finished session against the vacancy requirements.
type Evaluator struct {
	model   ai.Model
	history History
	prompts *prompts.Composer
	logger  *zap.Logger
}

func NewEvaluator(model ai.Model, history History, composer *prompts.Composer, log *zap.Logger) *Evaluator {
	return &Evaluator{
		model:   model,
		history: history,
		prompts: composer,
		logger:  logger.WithCommonFields(log, model.Provider(), model.Model()),
	}
}

// Evaluate replays the session history to the model with the scoring tool
// bound. ok is false when the model produced no usable marks: it did not call
// the tool, or the arguments do not score every requirement within range.
// That outcome is distinct from a score of zero.
func (e *Evaluator) Evaluate(ctx context.Context, s Session) (hr.Marks, bool, error) {
	log := logger.WithSession(e.logger, s.ID, s.ChatID)

	if err := hr.ValidateRequirements(s.Requirements); err != nil {
		return nil, false, err
	}

	msgs, err := e.history.Messages(ctx, s.ID)
	if err != nil {
		return nil, false, fmt.Errorf("load history: %w", err)
	}
	if len(msgs) == 0 {
		return nil, false, ErrNotStarted
	}

	conversation := make([]ai.Message, 0, len(msgs)+2)
	conversation = append(conversation, ai.System(e.prompts.Evaluator(s.Requirements, s.Candidate.Resume)))
	conversation = append(conversation, msgs...)
	conversation = append(conversation, ai.System(prompts.SubmitMarks))

	resp, err := e.model.InvokeWithTools(ctx, conversation, MarksToolFor(s.Requirements, e.prompts.MaxScore()))
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("failed").Inc()
		return nil, false, fmt.Errorf("invoke model: %w", err)
	}

	call, found := resp.FindToolCall(MarksTool)
	if !found {
		metrics.EvaluationsTotal.WithLabelValues("no_marks").Inc()
		log.Warn("model did not call the scoring tool, no marks",
			zap.Int("tool_calls", len(resp.ToolCalls)),
		)
		return nil, false, nil
	}

	marks, err := DecodeMarks(call.Args, s.Requirements, e.prompts.MaxScore())
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("no_marks").Inc()
		log.Warn("scoring tool arguments rejected, no marks",
			zap.Any("args", call.Args),
			zap.Error(err),
		)
		return nil, false, nil
	}

	metrics.EvaluationsTotal.WithLabelValues("scored").Inc()
	log.Info("marks set", zap.Any("marks", marks))
	return marks, true, nil
}

// MarksToolFor declares the scoring function: one required integer argument
// per requirement name.
func MarksToolFor(requirements []hr.Requirement, maxScore int) ai.Tool {
	lo, hi := 0.0, float64(maxScore)
	props := make(map[string]*ai.Schema, len(requirements))
	for _, r := range requirements {
		props[r.Name] = &ai.Schema{
			Type:        ai.TypeInteger,
			Description: r.Description,
			Minimum:     &lo,
			Maximum:     &hi,
		}
	}

	return ai.Tool{
		Name:        MarksTool,
		Description: "Submit the candidate's scores for every vacancy requirement.",
		Parameters: &ai.Schema{
			Type:       ai.TypeObject,
			Properties: props,
			Required:   hr.RequirementNames(requirements),
		},
	}
}

// DecodeMarks validates tool arguments against the requirement set and
// converts them to marks. Missing, unknown or out of range scores fail the
// whole set.
func DecodeMarks(args map[string]any, requirements []hr.Requirement, maxScore int) (hr.Marks, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(marksSchema(requirements, maxScore)),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return nil, fmt.Errorf("validate marks: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, errors.New(strings.Join(problems, "; "))
	}

	var marks hr.Marks
	if err := mapstructure.Decode(args, &marks); err != nil {
		return nil, fmt.Errorf("decode marks: %w", err)
	}
	return marks, nil
}

func marksSchema(requirements []hr.Requirement, maxScore int) map[string]any {
	props := make(map[string]any, len(requirements))
	for _, r := range requirements {
		props[r.Name] = map[string]any{
			"type":    "integer",
			"minimum": 0,
			"maximum": maxScore,
		}
	}

	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             hr.RequirementNames(requirements),
		"additionalProperties": false,
	}
}
