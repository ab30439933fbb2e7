package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/agora/internal/debate/core"
)

// ErrNotFound is returned when a debate does not exist in a store.
var ErrNotFound = errors.New("debate not found")

// PostgresArchive keeps finished debates queryable: indexed columns for
// listing plus the full state as JSONB.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(ctx context.Context, dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	return &PostgresArchive{db: db}, nil
}

func (a *PostgresArchive) SaveDebate(ctx context.Context, state *core.DebateState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling debate state: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO debates (id, topic, winner, rounds, state, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			winner = EXCLUDED.winner,
			rounds = EXCLUDED.rounds,
			state = EXCLUDED.state,
			finished_at = EXCLUDED.finished_at`,
		state.DebateID, state.Topic, state.Winner, state.CurrentRound, payload, state.StartTime, state.CurrentTime)
	return err
}

func (a *PostgresArchive) GetDebate(ctx context.Context, debateID string) (*core.DebateState, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, `SELECT state FROM debates WHERE id = $1`, debateID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var state core.DebateState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("unmarshalling debate state: %w", err)
	}
	return &state, nil
}

func (a *PostgresArchive) ListDebates(ctx context.Context, limit int) ([]core.DebateState, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `SELECT state FROM debates ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var debates []core.DebateState
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var state core.DebateState
		if err := json.Unmarshal(payload, &state); err != nil {
			return nil, fmt.Errorf("unmarshalling debate state: %w", err)
		}
		debates = append(debates, state)
	}
	return debates, rows.Err()
}

func (a *PostgresArchive) Close() error {
	return a.db.Close()
}
