package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/hr-interview-bot/internal/hr"
)

const candidateColumns = `id, chat_id, name, email, resume, state, created_at, updated_at`

func scanCandidate(row pgx.Row) (hr.Candidate, error) {
	var c hr.Candidate
	var state string
	if err := row.Scan(&c.ID, &c.ChatID, &c.Name, &c.Email, &c.Resume, &state, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return hr.Candidate{}, notFound(err)
	}
	c.State = hr.ChatState(state)
	return c, nil
}

// CandidateByChat loads the candidate talking to the bot in chatID.
func (s *Store) CandidateByChat(ctx context.Context, chatID int64) (hr.Candidate, error) {
	var c hr.Candidate
	err := s.retry.Do(ctx, "candidate.by_chat", func(ctx context.Context) error {
		var err error
		c, err = scanCandidate(s.db.QueryRow(ctx,
			`SELECT `+candidateColumns+` FROM candidates WHERE chat_id=$1`, chatID))
		return err
	})
	return c, err
}

func (s *Store) Candidate(ctx context.Context, id int64) (hr.Candidate, error) {
	var c hr.Candidate
	err := s.retry.Do(ctx, "candidate.get", func(ctx context.Context) error {
		var err error
		c, err = scanCandidate(s.db.QueryRow(ctx,
			`SELECT `+candidateColumns+` FROM candidates WHERE id=$1`, id))
		return err
	})
	return c, err
}

// CreateCandidate registers the chat as a candidate awaiting an email. An
// existing candidate for the chat is returned unchanged.
func (s *Store) CreateCandidate(ctx context.Context, chatID int64, name string) (hr.Candidate, error) {
	var c hr.Candidate
	err := s.retry.Do(ctx, "candidate.create", func(ctx context.Context) error {
		var err error
		c, err = scanCandidate(s.db.QueryRow(ctx,
			`INSERT INTO candidates (chat_id, name, state) VALUES ($1, $2, $3)
			 ON CONFLICT (chat_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
			 RETURNING `+candidateColumns,
			chatID, strings.TrimSpace(name), string(hr.StateAwaitingEmail)))
		return err
	})
	return c, err
}

// UpdateCandidate applies the non-nil fields of upd and returns the stored record.
func (s *Store) UpdateCandidate(ctx context.Context, id int64, upd hr.CandidateUpdate) (hr.Candidate, error) {
	var state *string
	if upd.State != nil {
		v := string(*upd.State)
		state = &v
	}

	var c hr.Candidate
	err := s.retry.Do(ctx, "candidate.update", func(ctx context.Context) error {
		var err error
		c, err = scanCandidate(s.db.QueryRow(ctx,
			`UPDATE candidates SET
			   name = COALESCE($2, name),
			   email = COALESCE($3, email),
			   resume = COALESCE($4, resume),
			   state = COALESCE($5, state),
			   updated_at = now()
			 WHERE id=$1
			 RETURNING `+candidateColumns,
			id, upd.Name, upd.Email, upd.Resume, state))
		return err
	})
	return c, err
}

// CandidateWithResumeByEmail returns the most recently updated candidate with
// the given email that has a resume on file.
func (s *Store) CandidateWithResumeByEmail(ctx context.Context, email string) (hr.Candidate, error) {
	var c hr.Candidate
	err := s.retry.Do(ctx, "candidate.by_email", func(ctx context.Context) error {
		var err error
		c, err = scanCandidate(s.db.QueryRow(ctx,
			`SELECT `+candidateColumns+` FROM candidates
			 WHERE lower(email)=lower($1) AND btrim(resume) <> ''
			 ORDER BY updated_at DESC LIMIT 1`,
			strings.TrimSpace(email)))
		return err
	})
	return c, err
}
