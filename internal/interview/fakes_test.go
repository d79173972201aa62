package interview

import (
	"context"
	"errors"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/hr"
)

type scriptedModel struct {
	replies []ai.Message
	err     error
	calls   [][]ai.Message
	tools   [][]ai.Tool
}

func (m *scriptedModel) Invoke(ctx context.Context, msgs []ai.Message) (ai.Message, error) {
	return m.InvokeWithTools(ctx, msgs)
}

func (m *scriptedModel) InvokeWithTools(_ context.Context, msgs []ai.Message, tools ...ai.Tool) (ai.Message, error) {
	m.calls = append(m.calls, append([]ai.Message(nil), msgs...))
	m.tools = append(m.tools, tools)
	if m.err != nil {
		return ai.Message{}, m.err
	}
	if len(m.replies) == 0 {
		return ai.Message{}, errors.New("no scripted reply left")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedModel) Provider() string { return "fake" }
func (m *scriptedModel) Model() string    { return "fake-1" }

func (m *scriptedModel) say(content string) *scriptedModel {
	m.replies = append(m.replies, ai.Assistant(content))
	return m
}

// memoryHistory mimics the store: positions already taken are skipped.
type memoryHistory struct {
	logs      map[int64][]ai.Message
	appendErr error
	appends   int
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{logs: map[int64][]ai.Message{}}
}

func (h *memoryHistory) Messages(_ context.Context, sessionID int64) ([]ai.Message, error) {
	return append([]ai.Message(nil), h.logs[sessionID]...), nil
}

func (h *memoryHistory) Append(_ context.Context, sessionID int64, from int, msgs []ai.Message) error {
	h.appends++
	if h.appendErr != nil {
		return h.appendErr
	}
	log := h.logs[sessionID]
	for i, m := range msgs {
		if from+i < len(log) {
			continue
		}
		log = append(log, m)
	}
	h.logs[sessionID] = log
	return nil
}

var testRequirements = []hr.Requirement{
	{ID: 10, VacancyID: 1, Name: "communication", Description: "Explains ideas clearly"},
}

func testSession() Session {
	return Session{
		ID:     7,
		ChatID: 42,
		Candidate: hr.Candidate{
			ID:     1,
			ChatID: 42,
			Name:   "Ann",
			Resume: "Five years of Go backend development.",
		},
		Requirements: testRequirements,
	}
}
