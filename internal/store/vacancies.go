package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/hr-interview-bot/internal/hr"
)

const vacancyColumns = `id, name, description, is_open`

func scanVacancy(row pgx.Row) (hr.Vacancy, error) {
	var v hr.Vacancy
	if err := row.Scan(&v.ID, &v.Name, &v.Description, &v.Open); err != nil {
		return hr.Vacancy{}, notFound(err)
	}
	return v, nil
}

func (s *Store) OpenVacancies(ctx context.Context) ([]hr.Vacancy, error) {
	var out []hr.Vacancy
	err := s.retry.Do(ctx, "vacancies.list", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `SELECT `+vacancyColumns+` FROM vacancies WHERE is_open ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			v, err := scanVacancy(rows)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) Vacancy(ctx context.Context, id int64) (hr.Vacancy, error) {
	var v hr.Vacancy
	err := s.retry.Do(ctx, "vacancy.get", func(ctx context.Context) error {
		var err error
		v, err = scanVacancy(s.db.QueryRow(ctx, `SELECT `+vacancyColumns+` FROM vacancies WHERE id=$1`, id))
		return err
	})
	return v, err
}

// Requirements returns the requirements of a vacancy ordered by id.
func (s *Store) Requirements(ctx context.Context, vacancyID int64) ([]hr.Requirement, error) {
	var out []hr.Requirement
	err := s.retry.Do(ctx, "requirements.list", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx,
			`SELECT id, vacancy_id, name, description FROM requirements WHERE vacancy_id=$1 ORDER BY id`, vacancyID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var r hr.Requirement
			if err := rows.Scan(&r.ID, &r.VacancyID, &r.Name, &r.Description); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}
