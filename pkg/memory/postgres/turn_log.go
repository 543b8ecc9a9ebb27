package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/parley/pkg/memory"
)

// AppendTurn implements [memory.TurnLog].
func (s *Store) AppendTurn(ctx context.Context, rec memory.TurnRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	const q = `
		INSERT INTO turns (session_id, user_text, reply_text, fast_path, latency_ns, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.UserText,
		rec.ReplyText,
		rec.FastPath,
		rec.Latency.Nanoseconds(),
		ts,
	)
	if err != nil {
		return fmt.Errorf("turn log: append turn: %w", err)
	}
	return nil
}

// RecentTurns implements [memory.TurnLog]. Turns are returned newest first.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]memory.TurnRecord, error) {
	const q = `
		SELECT id, session_id, user_text, reply_text, fast_path, latency_ns, timestamp
		FROM   turns
		WHERE  session_id = $1
		ORDER  BY timestamp DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("turn log: recent turns: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.TurnRecord, error) {
		var (
			rec       memory.TurnRecord
			latencyNs int64
		)
		if err := row.Scan(&rec.ID, &rec.SessionID, &rec.UserText, &rec.ReplyText, &rec.FastPath, &latencyNs, &rec.Timestamp); err != nil {
			return memory.TurnRecord{}, err
		}
		rec.Latency = time.Duration(latencyNs)
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("turn log: scan rows: %w", err)
	}
	return records, nil
}
