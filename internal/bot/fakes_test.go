package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/hr"
	"github.com/spigell/hr-interview-bot/internal/interview"
)

type memoryStore struct {
	candidates map[int64]*hr.Candidate
	sessions   map[int64]*hr.Session
	marks      map[int64]map[int64]int
	nextID     int64
	upserts    int
	// failState makes updates into that chat state fail.
	failState hr.ChatState
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		candidates: map[int64]*hr.Candidate{},
		sessions:   map[int64]*hr.Session{},
		marks:      map[int64]map[int64]int{},
		nextID:     100,
	}
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) CandidateByChat(_ context.Context, chatID int64) (hr.Candidate, error) {
	for _, c := range s.candidates {
		if c.ChatID == chatID {
			return *c, nil
		}
	}
	return hr.Candidate{}, hr.ErrNotFound
}

func (s *memoryStore) CreateCandidate(ctx context.Context, chatID int64, name string) (hr.Candidate, error) {
	if c, err := s.CandidateByChat(ctx, chatID); err == nil {
		return c, nil
	}
	c := &hr.Candidate{ID: s.id(), ChatID: chatID, Name: name, State: hr.StateAwaitingEmail}
	s.candidates[c.ID] = c
	return *c, nil
}

func (s *memoryStore) UpdateCandidate(_ context.Context, id int64, upd hr.CandidateUpdate) (hr.Candidate, error) {
	c, ok := s.candidates[id]
	if !ok {
		return hr.Candidate{}, hr.ErrNotFound
	}
	if upd.State != nil && s.failState != "" && *upd.State == s.failState {
		return hr.Candidate{}, errors.New("connection reset")
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.Resume != nil {
		c.Resume = *upd.Resume
	}
	if upd.State != nil {
		c.State = *upd.State
	}
	c.UpdatedAt = time.Now()
	return *c, nil
}

func (s *memoryStore) CandidateWithResumeByEmail(_ context.Context, email string) (hr.Candidate, error) {
	for _, c := range s.candidates {
		if strings.EqualFold(c.Email, email) && c.HasResume() {
			return *c, nil
		}
	}
	return hr.Candidate{}, hr.ErrNotFound
}

func (s *memoryStore) SessionFor(_ context.Context, candidateID, vacancyID int64) (hr.Session, error) {
	for _, sess := range s.sessions {
		if sess.CandidateID == candidateID && sess.VacancyID == vacancyID {
			return *sess, nil
		}
	}
	return hr.Session{}, hr.ErrNotFound
}

func (s *memoryStore) ActiveSession(_ context.Context, candidateID int64) (hr.Session, error) {
	for _, sess := range s.sessions {
		if sess.CandidateID == candidateID && sess.State == hr.SessionStarted {
			return *sess, nil
		}
	}
	return hr.Session{}, hr.ErrNotFound
}

func (s *memoryStore) CreateSession(ctx context.Context, candidateID, vacancyID int64) (hr.Session, error) {
	if sess, err := s.SessionFor(ctx, candidateID, vacancyID); err == nil {
		return sess, nil
	}
	sess := &hr.Session{ID: s.id(), CandidateID: candidateID, VacancyID: vacancyID, State: hr.SessionStarted}
	s.sessions[sess.ID] = sess
	return *sess, nil
}

func (s *memoryStore) FinishSession(_ context.Context, id int64) (hr.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return hr.Session{}, hr.ErrNotFound
	}
	if sess.State == hr.SessionStarted {
		now := time.Now()
		sess.State = hr.SessionFinished
		sess.FinishedAt = &now
	}
	return *sess, nil
}

func (s *memoryStore) UpsertMarks(_ context.Context, session hr.Session, marks map[int64]int) error {
	s.upserts++
	s.marks[session.ID] = marks
	return nil
}

type staticCatalog struct {
	vacancies    []hr.Vacancy
	requirements map[int64][]hr.Requirement
}

func newCatalog() *staticCatalog {
	return &staticCatalog{
		vacancies: []hr.Vacancy{
			{ID: 1, Name: "Backend engineer", Open: true},
			{ID: 2, Name: "Designer", Open: true},
		},
		requirements: map[int64][]hr.Requirement{
			1: {
				{ID: 10, VacancyID: 1, Name: "communication", Description: "Explains ideas clearly"},
				{ID: 11, VacancyID: 1, Name: "go", Description: "Writes idiomatic Go"},
			},
		},
	}
}

func (c *staticCatalog) OpenVacancies(context.Context) ([]hr.Vacancy, error) {
	return c.vacancies, nil
}

func (c *staticCatalog) VacancyByName(_ context.Context, name string) (hr.Vacancy, error) {
	for _, v := range c.vacancies {
		if v.Name == name {
			return v, nil
		}
	}
	return hr.Vacancy{}, hr.ErrNotFound
}

func (c *staticCatalog) Requirements(_ context.Context, vacancyID int64) ([]hr.Requirement, error) {
	return c.requirements[vacancyID], nil
}

type scriptedInterviewer struct {
	start      interview.Turn
	turns      []interview.Turn
	advanceErr error
	// notStarted makes the first Advance report a session without history.
	notStarted bool
	starts     []interview.Session
	answers    []string
}

func (i *scriptedInterviewer) Start(_ context.Context, s interview.Session) (interview.Turn, error) {
	i.starts = append(i.starts, s)
	return i.start, nil
}

func (i *scriptedInterviewer) Advance(_ context.Context, _ interview.Session, answer string) (interview.Turn, []ai.Message, error) {
	i.answers = append(i.answers, answer)
	if i.notStarted && len(i.starts) == 0 {
		return interview.Turn{}, nil, interview.ErrNotStarted
	}
	if i.advanceErr != nil {
		return interview.Turn{}, nil, i.advanceErr
	}
	if len(i.turns) == 0 {
		return interview.Turn{}, nil, errors.New("no scripted turn left")
	}
	t := i.turns[0]
	i.turns = i.turns[1:]
	return t, nil, nil
}

type fixedEvaluator struct {
	marks hr.Marks
	ok    bool
	err   error
	calls int
}

func (e *fixedEvaluator) Evaluate(context.Context, interview.Session) (hr.Marks, bool, error) {
	e.calls++
	return e.marks, e.ok, e.err
}

type sentReply struct {
	chatID int64
	reply  Reply
}

type recordingMessenger struct {
	sent  []sentReply
	files map[string][]byte
}

func (m *recordingMessenger) Send(_ context.Context, chatID int64, reply Reply) error {
	m.sent = append(m.sent, sentReply{chatID: chatID, reply: reply})
	return nil
}

func (m *recordingMessenger) Download(_ context.Context, doc Document) ([]byte, error) {
	data, ok := m.files[doc.FileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *recordingMessenger) last() Reply {
	if len(m.sent) == 0 {
		return Reply{}
	}
	return m.sent[len(m.sent)-1].reply
}
