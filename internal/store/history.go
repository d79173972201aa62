package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spigell/hr-interview-bot/internal/ai"
)

// Messages returns the chat history of a session in the order it was appended.
func (s *Store) Messages(ctx context.Context, sessionID int64) ([]ai.Message, error) {
	var out []ai.Message
	err := s.retry.Do(ctx, "history.get", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx,
			`SELECT role, content, tool_calls FROM chat_history WHERE session_id=$1 ORDER BY seq`, sessionID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				role      string
				msg       ai.Message
				toolCalls []byte
			)
			if err := rows.Scan(&role, &msg.Content, &toolCalls); err != nil {
				return err
			}
			msg.Role = ai.Role(role)
			if len(toolCalls) > 0 {
				if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
					return fmt.Errorf("decode tool calls: %w", err)
				}
			}
			out = append(out, msg)
		}
		return rows.Err()
	})
	return out, err
}

// Append stores msgs at positions from, from+1, ... of the session log.
// Positions that are already taken are skipped, so a retried append never
// duplicates a turn.
func (s *Store) Append(ctx context.Context, sessionID int64, from int, msgs []ai.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	type row struct {
		id        uuid.UUID
		toolCalls []byte
	}
	prepared := make([]row, len(msgs))
	for i, m := range msgs {
		prepared[i].id = uuid.New()
		if len(m.ToolCalls) == 0 {
			continue
		}
		raw, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		prepared[i].toolCalls = raw
	}

	return s.retry.Do(ctx, "history.append", func(ctx context.Context) error {
		return inTx(ctx, s.db, func(tx pgx.Tx) error {
			for i, m := range msgs {
				if _, err := tx.Exec(ctx,
					`INSERT INTO chat_history (id, session_id, seq, role, content, tool_calls)
					 VALUES ($1, $2, $3, $4, $5, $6)
					 ON CONFLICT (session_id, seq) DO NOTHING`,
					prepared[i].id, sessionID, from+i, string(m.Role), m.Content, prepared[i].toolCalls); err != nil {
					return err
				}
			}
			return nil
		})
	})
}
