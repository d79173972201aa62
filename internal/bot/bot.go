// Package bot maps chat updates onto the registration flow and the interview
// controller, and relays the replies back to the candidate.
package bot

import (
	"context"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/hr"
	"github.com/spigell/hr-interview-bot/internal/interview"
)

// Update is an inbound message from a candidate.
type Update struct {
	ID       int
	ChatID   int64
	Name     string
	Text     string
	Document *Document
}

// Document is a file attached to an update.
type Document struct {
	FileID   string
	FileName string
	MIMEType string
	Size     int64
}

// Reply is an outbound message. A non-empty Keyboard is shown as reply
// buttons, otherwise any previous keyboard is removed.
type Reply struct {
	Text     string
	Keyboard []string
}

type Messenger interface {
	Send(ctx context.Context, chatID int64, reply Reply) error
	Download(ctx context.Context, doc Document) ([]byte, error)
}

type Store interface {
	CandidateByChat(ctx context.Context, chatID int64) (hr.Candidate, error)
	CreateCandidate(ctx context.Context, chatID int64, name string) (hr.Candidate, error)
	UpdateCandidate(ctx context.Context, id int64, upd hr.CandidateUpdate) (hr.Candidate, error)
	CandidateWithResumeByEmail(ctx context.Context, email string) (hr.Candidate, error)
	SessionFor(ctx context.Context, candidateID, vacancyID int64) (hr.Session, error)
	ActiveSession(ctx context.Context, candidateID int64) (hr.Session, error)
	CreateSession(ctx context.Context, candidateID, vacancyID int64) (hr.Session, error)
	FinishSession(ctx context.Context, id int64) (hr.Session, error)
	UpsertMarks(ctx context.Context, session hr.Session, marks map[int64]int) error
}

type Catalog interface {
	OpenVacancies(ctx context.Context) ([]hr.Vacancy, error)
	VacancyByName(ctx context.Context, name string) (hr.Vacancy, error)
	Requirements(ctx context.Context, vacancyID int64) ([]hr.Requirement, error)
}

type Interviewer interface {
	Start(ctx context.Context, s interview.Session) (interview.Turn, error)
	Advance(ctx context.Context, s interview.Session, answer string) (interview.Turn, []ai.Message, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, s interview.Session) (hr.Marks, bool, error)
}
