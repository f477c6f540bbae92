package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

func ConnectPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// um único serviço escreve; pool pequeno é suficiente
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// schema das tabelas de pontos e histórico de rodadas
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	twitch_name TEXT UNIQUE,
	points      BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rounds (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	winner      TEXT NOT NULL,
	pool        BIGINT NOT NULL,
	settled_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS round_bets (
	round_id    TEXT NOT NULL REFERENCES rounds(id),
	user_id     TEXT NOT NULL REFERENCES users(id),
	target      TEXT NOT NULL,
	amount      BIGINT NOT NULL,
	settled_ret BIGINT NOT NULL,
	PRIMARY KEY (round_id, user_id)
);
`

// EnsureSchema cria as tabelas se ainda não existirem
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
