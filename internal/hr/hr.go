// Package hr holds the records the interview bot persists: candidates,
// vacancies with their requirements, interview sessions and marks.
package hr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ChatState is the position of a candidate in the bot dialogue.
type ChatState string

const (
	StateAwaitingEmail   ChatState = "awaiting_email"
	StateAwaitingResume  ChatState = "awaiting_resume"
	StateAwaitingVacancy ChatState = "awaiting_vacancy"
	StateInInterview     ChatState = "in_interview"
	StateFinished        ChatState = "finished"
)

// Valid reports whether s is one of the known chat states.
func (s ChatState) Valid() bool {
	switch s {
	case StateAwaitingEmail, StateAwaitingResume, StateAwaitingVacancy, StateInInterview, StateFinished:
		return true
	default:
		return false
	}
}

// SessionState is the lifecycle of one interview session.
// It only moves forward: started -> finished.
type SessionState string

const (
	SessionStarted  SessionState = "started"
	SessionFinished SessionState = "finished"
)

type Candidate struct {
	ID        int64
	ChatID    int64
	Name      string
	Email     string
	Resume    string
	State     ChatState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasResume reports whether a non-blank resume is stored for the candidate.
func (c *Candidate) HasResume() bool {
	return c != nil && strings.TrimSpace(c.Resume) != ""
}

// CandidateUpdate carries optional fields for a partial candidate update.
// Nil fields are left untouched.
type CandidateUpdate struct {
	Name   *string
	Email  *string
	Resume *string
	State  *ChatState
}

// Empty reports whether the update changes nothing.
func (u CandidateUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Resume == nil && u.State == nil
}

type Vacancy struct {
	ID          int64
	Name        string
	Description string
	Open        bool
}

type Requirement struct {
	ID          int64
	VacancyID   int64
	Name        string
	Description string
}

type Session struct {
	ID          int64
	CandidateID int64
	VacancyID   int64
	State       SessionState
	CreatedAt   time.Time
	FinishedAt  *time.Time
}

// Finished reports whether the session reached its terminal state.
func (s *Session) Finished() bool {
	return s != nil && s.State == SessionFinished
}

type Mark struct {
	SessionID     int64
	RequirementID int64
	VacancyID     int64
	CandidateID   int64
	Value         int
}

// Marks maps a requirement name to its integer score.
type Marks map[string]int

// ResolveMarks translates requirement names into requirement ids.
// Names that do not belong to the requirement list are dropped.
func ResolveMarks(marks Marks, requirements []Requirement) map[int64]int {
	byName := make(map[string]int64, len(requirements))
	for _, r := range requirements {
		byName[r.Name] = r.ID
	}

	resolved := make(map[int64]int, len(marks))
	for name, value := range marks {
		id, ok := byName[name]
		if !ok {
			continue
		}
		resolved[id] = value
	}

	return resolved
}

// RequirementNames returns the names of the requirements in order.
func RequirementNames(requirements []Requirement) []string {
	names := make([]string, 0, len(requirements))
	for _, r := range requirements {
		names = append(names, r.Name)
	}
	return names
}

// ValidateRequirements checks that the requirement list can define an evaluation schema:
// it must be non-empty and names must be unique and non-blank.
func ValidateRequirements(requirements []Requirement) error {
	if len(requirements) == 0 {
		return errors.New("vacancy has no requirements")
	}

	seen := make(map[string]struct{}, len(requirements))
	for _, r := range requirements {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return fmt.Errorf("requirement %d has an empty name", r.ID)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate requirement name %q", name)
		}
		seen[name] = struct{}{}
	}

	return nil
}
