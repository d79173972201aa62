package store

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/hr-interview-bot/internal/hr"
)

// UpsertMarks writes the scores of a session in one transaction, keyed by requirement id.
func (s *Store) UpsertMarks(ctx context.Context, session hr.Session, marks map[int64]int) error {
	if len(marks) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(marks))
	for id := range marks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return s.retry.Do(ctx, "marks.upsert", func(ctx context.Context) error {
		return inTx(ctx, s.db, func(tx pgx.Tx) error {
			for _, id := range ids {
				if _, err := tx.Exec(ctx,
					`INSERT INTO marks (session_id, requirement_id, vacancy_id, candidate_id, value)
					 VALUES ($1, $2, $3, $4, $5)
					 ON CONFLICT (session_id, requirement_id) DO UPDATE SET value = EXCLUDED.value`,
					session.ID, id, session.VacancyID, session.CandidateID, marks[id]); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// Marks returns the stored scores of a session ordered by requirement id.
func (s *Store) Marks(ctx context.Context, sessionID int64) ([]hr.Mark, error) {
	var out []hr.Mark
	err := s.retry.Do(ctx, "marks.list", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx,
			`SELECT session_id, requirement_id, vacancy_id, candidate_id, value
			 FROM marks WHERE session_id=$1 ORDER BY requirement_id`, sessionID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var m hr.Mark
			if err := rows.Scan(&m.SessionID, &m.RequirementID, &m.VacancyID, &m.CandidateID, &m.Value); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
