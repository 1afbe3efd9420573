package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore archives sessions in a single flat table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS session_archive (
		session_id TEXT PRIMARY KEY,
		language TEXT NOT NULL,
		voice_id TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		turn_count INT NOT NULL,
		reconnect_count INT NOT NULL,
		transcript TEXT NOT NULL,
		scenario_state JSONB
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, rec Record) error {
	var scenario []byte
	if len(rec.ScenarioState) > 0 {
		var err error
		scenario, err = json.Marshal(rec.ScenarioState)
		if err != nil {
			return err
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_archive
		 (session_id, language, voice_id, started_at, ended_at, turn_count, reconnect_count, transcript, scenario_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID,
		rec.Language,
		rec.VoiceID,
		rec.StartedAt,
		rec.EndedAt,
		rec.TurnCount,
		rec.ReconnectCount,
		rec.Transcript,
		scenario,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
