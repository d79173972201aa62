package store_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/ai"
	"github.com/spigell/hr-interview-bot/internal/hr"
	"github.com/spigell/hr-interview-bot/internal/retry"
	"github.com/spigell/hr-interview-bot/internal/store"
)

// instantTimer fires immediately and records the requested waits.
type instantTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c <- time.Now()
}
func (t *instantTimer) Stop()                 {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func newStore(t *testing.T, policy retry.Policy) (*store.Store, pgxmock.PgxPoolIface, *instantTimer) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	timer := &instantTimer{c: make(chan time.Time, 1)}
	r := store.NewRetrier(policy, zap.NewNop(), retry.WithTimer(timer))
	return store.New(mock, r), mock, timer
}

var (
	candidateCols = []string{"id", "chat_id", "name", "email", "resume", "state", "created_at", "updated_at"}
	sessionCols   = []string{"id", "candidate_id", "vacancy_id", "state", "created_at", "finished_at"}
	now           = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "no rows", err: pgx.ErrNoRows, want: false},
		{name: "not found", err: fmt.Errorf("wrapped: %w", hr.ErrNotFound), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}, want: false},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, store.IsTransient(tt.err))
		})
	}
}

func TestCandidateByChat(t *testing.T) {
	s, mock, _ := newStore(t, retry.DefaultPolicy())

	mock.ExpectQuery("SELECT .* FROM candidates WHERE chat_id").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(candidateCols).
			AddRow(int64(1), int64(42), "Ann", "ann@example.com", "resume", "in_interview", now, now))

	c, err := s.CandidateByChat(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, hr.StateInInterview, c.State)
	assert.True(t, c.HasResume())

	mock.ExpectQuery("SELECT .* FROM candidates WHERE chat_id").
		WithArgs(int64(7)).
		WillReturnError(pgx.ErrNoRows)

	_, err = s.CandidateByChat(context.Background(), 7)
	require.ErrorIs(t, err, hr.ErrNotFound)
	assert.Contains(t, err.Error(), "candidate.by_chat")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadRetriesTransientFailure(t *testing.T) {
	policy := retry.Policy{Tries: 3, Delay: 2 * time.Second, Backoff: 2}
	s, mock, timer := newStore(t, policy)

	transient := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	for i := 0; i < policy.Tries; i++ {
		mock.ExpectQuery("SELECT .* FROM sessions WHERE id").
			WithArgs(int64(5)).
			WillReturnError(transient)
	}

	_, err := s.Session(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, roundWaits(timer.waits))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadRecoversAfterTransientFailure(t *testing.T) {
	s, mock, timer := newStore(t, retry.DefaultPolicy())

	mock.ExpectQuery("SELECT .* FROM sessions WHERE id").
		WithArgs(int64(5)).
		WillReturnError(&pgconn.PgError{Code: "57P03"})
	mock.ExpectQuery("SELECT .* FROM sessions WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow(int64(5), int64(1), int64(2), "started", now, (*time.Time)(nil)))

	sess, err := s.Session(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, hr.SessionStarted, sess.State)
	assert.Len(t, timer.waits, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	s, mock, timer := newStore(t, retry.DefaultPolicy())

	mock.ExpectQuery("UPDATE candidates SET").
		WithArgs(int64(1), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	email := "ann@example.com"
	_, err := s.UpdateCandidate(context.Background(), 1, hr.CandidateUpdate{Email: &email})
	require.Error(t, err)
	assert.Empty(t, timer.waits)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishSessionIsMonotonic(t *testing.T) {
	s, mock, _ := newStore(t, retry.DefaultPolicy())
	finished := now.Add(time.Hour)

	mock.ExpectQuery("UPDATE sessions SET state").
		WithArgs(int64(5), "finished", "started").
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow(int64(5), int64(1), int64(2), "finished", now, &finished))

	sess, err := s.FinishSession(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, sess.Finished())

	// Second call finds nothing to update and returns the stored session.
	mock.ExpectQuery("UPDATE sessions SET state").
		WithArgs(int64(5), "finished", "started").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .* FROM sessions WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow(int64(5), int64(1), int64(2), "finished", now, &finished))

	sess, err = s.FinishSession(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, sess.Finished())
	require.NotNil(t, sess.FinishedAt)
	assert.Equal(t, finished, *sess.FinishedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMarksInOneTransaction(t *testing.T) {
	s, mock, _ := newStore(t, retry.DefaultPolicy())
	session := hr.Session{ID: 5, CandidateID: 1, VacancyID: 2}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO marks").
		WithArgs(int64(5), int64(10), int64(2), int64(1), 7).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO marks").
		WithArgs(int64(5), int64(11), int64(2), int64(1), 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertMarks(context.Background(), session, map[int64]int{11: 3, 10: 7}))

	// Nothing to write means no transaction at all.
	require.NoError(t, s.UpsertMarks(context.Background(), session, nil))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMarksRollsBackOnFailure(t *testing.T) {
	s, mock, _ := newStore(t, retry.DefaultPolicy())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO marks").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	err := s.UpsertMarks(context.Background(), hr.Session{ID: 5}, map[int64]int{10: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marks.upsert")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarksOfSession(t *testing.T) {
	s, mock, _ := newStore(t, retry.DefaultPolicy())

	mock.ExpectQuery("SELECT session_id, requirement_id, vacancy_id, candidate_id, value").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "requirement_id", "vacancy_id", "candidate_id", "value"}).
			AddRow(int64(5), int64(10), int64(2), int64(1), 7).
			AddRow(int64(5), int64(11), int64(2), int64(1), 3))

	marks, err := s.Marks(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []hr.Mark{
		{SessionID: 5, RequirementID: 10, VacancyID: 2, CandidateID: 1, Value: 7},
		{SessionID: 5, RequirementID: 11, VacancyID: 2, CandidateID: 1, Value: 3},
	}, marks)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryAppendAndMessages(t *testing.T) {
	s, mock, _ := newStore(t, retry.DefaultPolicy())

	msgs := []ai.Message{
		ai.Human("I have 5 years experience"),
		{Role: ai.RoleAssistant, Content: `{"question": "Which ones?", "finished": false}`},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_history").
		WithArgs(pgxmock.AnyArg(), int64(5), 2, "human", msgs[0].Content, []byte(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chat_history").
		WithArgs(pgxmock.AnyArg(), int64(5), 3, "assistant", msgs[1].Content, []byte(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	require.NoError(t, s.Append(context.Background(), 5, 2, msgs))

	mock.ExpectQuery("SELECT role, content, tool_calls FROM chat_history").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"role", "content", "tool_calls"}).
			AddRow("system", "greet Ann", []byte(nil)).
			AddRow("assistant", "", []byte(`[{"name": "set_marks", "args": {"communication": 5}}]`)))

	got, err := s.Messages(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ai.RoleSystem, got[0].Role)
	tc, ok := got[1].FindToolCall("set_marks")
	require.True(t, ok)
	assert.Equal(t, float64(5), tc.Args["communication"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAppliesSchema(t *testing.T) {
	s, mock, _ := newStore(t, retry.DefaultPolicy())

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS candidates").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func roundWaits(waits []time.Duration) []time.Duration {
	out := make([]time.Duration, len(waits))
	for i, w := range waits {
		out[i] = w.Round(time.Millisecond)
	}
	return out
}
