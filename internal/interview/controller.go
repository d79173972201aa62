// Package interview drives an interview session with the language model and
// extracts the candidate's marks once it is over.
package interview

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/hr"
	"github.com/spigell/hr-interview-bot/internal/logger"
	"github.com/spigell/hr-interview-bot/internal/metrics"
	"github.com/spigell/hr-interview-bot/internal/prompts"
)

// DefaultMaxTurns is the number of candidate answers after which the
// interview is closed without asking the model.
const DefaultMaxTurns = 25

// History is the append-only message log of a session.
type History interface {
	Messages(ctx context.Context, sessionID int64) ([]ai.Message, error)
	Append(ctx context.Context, sessionID int64, from int, msgs []ai.Message) error
}

// Session carries everything a single turn needs. It is built by the caller
// for each turn.
type Session struct {
	ID           int64
	ChatID       int64
	Candidate    hr.Candidate
	Requirements []hr.Requirement
}

type Controller struct {
	model    ai.Model
	history  History
	prompts  *prompts.Composer
	maxTurns int
	logger   *zap.Logger
}

type Option func(*Controller)

// WithMaxTurns caps the number of candidate answers. Zero disables the cap.
func WithMaxTurns(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.maxTurns = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewController(model ai.Model, history History, composer *prompts.Composer, opts ...Option) *Controller {
	c := &Controller{
		model:    model,
		history:  history,
		prompts:  composer,
		maxTurns: DefaultMaxTurns,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.WithCommonFields(c.logger, model.Provider(), model.Model())
	return c
}

// Start opens the session. When history exists the last stored reply is
// parsed again and returned without calling the model.
func (c *Controller) Start(ctx context.Context, s Session) (Turn, error) {
	log := c.turnLogger(s)

	msgs, err := c.history.Messages(ctx, s.ID)
	if err != nil {
		return Turn{}, fmt.Errorf("load history: %w", err)
	}

	if len(msgs) > 0 {
		turn, err := lastTurn(msgs)
		if err != nil {
			metrics.TurnsTotal.WithLabelValues("failed").Inc()
			return Turn{}, err
		}
		turn = c.withFarewell(s, turn)
		metrics.TurnsTotal.WithLabelValues("resumed").Inc()
		log.Info("session resumed from history",
			zap.Int("messages", len(msgs)),
			zap.Bool("finished", turn.Finished),
		)
		return turn, nil
	}

	greeting := ai.System(c.prompts.Greeting(s.Candidate.Name))
	turn, reply, err := c.ask(ctx, s, []ai.Message{greeting})
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("failed").Inc()
		log.Error("failed to start session", zap.Error(err))
		return Turn{}, err
	}

	if err := c.history.Append(ctx, s.ID, 0, []ai.Message{greeting, reply}); err != nil {
		return Turn{}, fmt.Errorf("persist greeting: %w", err)
	}

	c.countTurn(turn)
	log.Info("session started", zap.Bool("finished", turn.Finished))
	return turn, nil
}

// Advance records the candidate's answer and asks the model for the next
// turn with the full history. It returns the turn and the updated history.
func (c *Controller) Advance(ctx context.Context, s Session, answer string) (Turn, []ai.Message, error) {
	log := c.turnLogger(s)

	msgs, err := c.history.Messages(ctx, s.ID)
	if err != nil {
		return Turn{}, nil, fmt.Errorf("load history: %w", err)
	}
	if len(msgs) == 0 {
		return Turn{}, nil, ErrNotStarted
	}

	prev, err := lastTurn(msgs)
	if err != nil {
		return Turn{}, nil, err
	}
	if prev.Finished {
		return Turn{}, nil, ErrSessionFinished
	}

	human := ai.Human(answer)
	conversation := make([]ai.Message, 0, len(msgs)+2)
	conversation = append(conversation, msgs...)
	conversation = append(conversation, human)

	var (
		turn  Turn
		reply ai.Message
	)
	if c.maxTurns > 0 && countAnswers(conversation) >= c.maxTurns {
		turn = Turn{Question: c.prompts.Farewell(s.Candidate.Name), Finished: true}
		reply = ai.Assistant(turn.Encode())
		metrics.TurnsTotal.WithLabelValues("capped").Inc()
		log.Info("turn limit reached, closing interview", zap.Int("max_turns", c.maxTurns))
	} else {
		turn, reply, err = c.ask(ctx, s, conversation)
		if err != nil {
			metrics.TurnsTotal.WithLabelValues("failed").Inc()
			log.Error("failed to advance session", zap.Error(err))
			return Turn{}, nil, err
		}
		c.countTurn(turn)
	}

	if err := c.history.Append(ctx, s.ID, len(msgs), []ai.Message{human, reply}); err != nil {
		return Turn{}, nil, fmt.Errorf("persist turn: %w", err)
	}
	conversation = append(conversation, reply)

	log.Info("session advanced",
		zap.Int("messages", len(conversation)),
		zap.Bool("finished", turn.Finished),
	)
	return turn, conversation, nil
}

// Context returns the exact message list sent to the model for the given
// conversation: the interviewer prompt, the conversation and the format prompt.
func (c *Controller) Context(s Session, conversation []ai.Message) []ai.Message {
	out := make([]ai.Message, 0, len(conversation)+2)
	out = append(out, ai.System(c.prompts.Interviewer(s.Requirements, s.Candidate.Resume)))
	out = append(out, conversation...)
	out = append(out, ai.System(c.prompts.Closing()))
	return out
}

func (c *Controller) ask(ctx context.Context, s Session, conversation []ai.Message) (Turn, ai.Message, error) {
	resp, err := c.model.Invoke(ctx, c.Context(s, conversation))
	if err != nil {
		return Turn{}, ai.Message{}, fmt.Errorf("invoke model: %w", err)
	}

	turn, err := ParseTurn(resp.Content)
	if err != nil {
		return Turn{}, ai.Message{}, err
	}

	return c.withFarewell(s, turn), ai.Assistant(resp.Content), nil
}

// withFarewell fills in the closing remark when the model ended the
// interview without one.
func (c *Controller) withFarewell(s Session, t Turn) Turn {
	if t.Finished && t.Question == "" {
		t.Question = c.prompts.Farewell(s.Candidate.Name)
	}
	return t
}

func (c *Controller) countTurn(t Turn) {
	if t.Finished {
		metrics.TurnsTotal.WithLabelValues("finished").Inc()
		return
	}
	metrics.TurnsTotal.WithLabelValues("continued").Inc()
}

func (c *Controller) turnLogger(s Session) *zap.Logger {
	return logger.WithSession(c.logger, s.ID, s.ChatID).With(zap.String(logger.FieldTurnID, uuid.NewString()))
}

func lastTurn(msgs []ai.Message) (Turn, error) {
	last := msgs[len(msgs)-1]
	if last.Role != ai.RoleAssistant {
		return Turn{}, fmt.Errorf("%w: last message has role %q", ErrCorruptHistory, last.Role)
	}

	turn, err := ParseTurn(last.Content)
	if err != nil {
		return Turn{}, errors.Join(ErrCorruptHistory, err)
	}
	return turn, nil
}

func countAnswers(msgs []ai.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == ai.RoleHuman {
			n++
		}
	}
	return n
}
