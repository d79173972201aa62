package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/hr-interview-bot/internal/hr"
)

const sessionColumns = `id, candidate_id, vacancy_id, state, created_at, finished_at`

func scanSession(row pgx.Row) (hr.Session, error) {
	var s hr.Session
	var state string
	if err := row.Scan(&s.ID, &s.CandidateID, &s.VacancyID, &state, &s.CreatedAt, &s.FinishedAt); err != nil {
		return hr.Session{}, notFound(err)
	}
	s.State = hr.SessionState(state)
	return s, nil
}

func (s *Store) Session(ctx context.Context, id int64) (hr.Session, error) {
	var out hr.Session
	err := s.retry.Do(ctx, "session.get", func(ctx context.Context) error {
		var err error
		out, err = scanSession(s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id))
		return err
	})
	return out, err
}

// SessionFor returns the session of a candidate for a vacancy.
func (s *Store) SessionFor(ctx context.Context, candidateID, vacancyID int64) (hr.Session, error) {
	var out hr.Session
	err := s.retry.Do(ctx, "session.for", func(ctx context.Context) error {
		var err error
		out, err = scanSession(s.db.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE candidate_id=$1 AND vacancy_id=$2`,
			candidateID, vacancyID))
		return err
	})
	return out, err
}

// ActiveSession returns the latest started session of a candidate.
func (s *Store) ActiveSession(ctx context.Context, candidateID int64) (hr.Session, error) {
	var out hr.Session
	err := s.retry.Do(ctx, "session.active", func(ctx context.Context) error {
		var err error
		out, err = scanSession(s.db.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM sessions
			 WHERE candidate_id=$1 AND state=$2
			 ORDER BY created_at DESC LIMIT 1`,
			candidateID, string(hr.SessionStarted)))
		return err
	})
	return out, err
}

// CreateSession opens a session for the pair, or returns the existing one.
// There is at most one session per candidate and vacancy.
func (s *Store) CreateSession(ctx context.Context, candidateID, vacancyID int64) (hr.Session, error) {
	var out hr.Session
	err := s.retry.Do(ctx, "session.create", func(ctx context.Context) error {
		var err error
		out, err = scanSession(s.db.QueryRow(ctx,
			`INSERT INTO sessions (candidate_id, vacancy_id, state) VALUES ($1, $2, $3)
			 ON CONFLICT (candidate_id, vacancy_id) DO UPDATE SET candidate_id = EXCLUDED.candidate_id
			 RETURNING `+sessionColumns,
			candidateID, vacancyID, string(hr.SessionStarted)))
		return err
	})
	return out, err
}

// FinishSession moves a started session to finished. Finishing an already
// finished session returns it unchanged.
func (s *Store) FinishSession(ctx context.Context, id int64) (hr.Session, error) {
	var out hr.Session
	err := s.retry.Do(ctx, "session.finish", func(ctx context.Context) error {
		var err error
		out, err = scanSession(s.db.QueryRow(ctx,
			`UPDATE sessions SET state=$2, finished_at=now()
			 WHERE id=$1 AND state=$3
			 RETURNING `+sessionColumns,
			id, string(hr.SessionFinished), string(hr.SessionStarted)))
		if !errors.Is(err, hr.ErrNotFound) {
			return err
		}
		out, err = scanSession(s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id))
		return err
	})
	return out, err
}
