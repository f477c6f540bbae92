package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/radieske/live-betting-engine/internal/betting-service/engine"
	"github.com/radieske/live-betting-engine/internal/betting-service/match"
	"github.com/radieske/live-betting-engine/internal/betting-service/users"
)

// Postgres persiste usuários, pontos e o histórico de rodadas liquidadas
type Postgres struct {
	db            *sql.DB
	initialPoints int64
}

// NewPostgres recebe o saldo dado a usuários novos
func NewPostgres(db *sql.DB, initialPoints int64) *Postgres {
	return &Postgres{db: db, initialPoints: initialPoints}
}

// GetOrCreateByTwitchName retorna o usuário pelo nome da Twitch, criando com
// o saldo inicial se não existir
func (p *Postgres) GetOrCreateByTwitchName(ctx context.Context, twitchName string) (users.Record, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return users.Record{}, err
	}
	defer tx.Rollback()

	rec := users.Record{TwitchName: twitchName}
	err = tx.QueryRowContext(ctx,
		`SELECT id, points FROM users WHERE twitch_name=$1`, twitchName,
	).Scan(&rec.ID, &rec.Points)
	if errors.Is(err, sql.ErrNoRows) {
		rec.ID = uuid.NewString()
		// corrida entre dois bots criando o mesmo nome: quem perde lê a linha do vencedor
		if err = tx.QueryRowContext(ctx, `
			INSERT INTO users(id, twitch_name, points) VALUES($1,$2,$3)
			ON CONFLICT (twitch_name) DO UPDATE SET twitch_name = EXCLUDED.twitch_name
			RETURNING id, points`,
			rec.ID, twitchName, p.initialPoints).Scan(&rec.ID, &rec.Points); err != nil {
			return users.Record{}, err
		}
	} else if err != nil {
		return users.Record{}, err
	}

	if err = tx.Commit(); err != nil {
		return users.Record{}, err
	}
	return rec, nil
}

// Points lê o saldo persistido
func (p *Postgres) Points(ctx context.Context, userID string) (int64, error) {
	var points int64
	err := p.db.QueryRowContext(ctx, `SELECT points FROM users WHERE id=$1`, userID).Scan(&points)
	return points, err
}

// RecordSettlement grava a rodada, as apostas com seus retornos e o saldo
// novo de cada apostador numa única transação
func (p *Postgres) RecordSettlement(ctx context.Context, roundID, eventID string, st match.Settlement) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO rounds(id, event_id, winner, pool) VALUES($1,$2,$3,$4)`,
		roundID, eventID, st.Winner, st.Pool); err != nil {
		return fmt.Errorf("insert round: %w", err)
	}

	for _, b := range st.Bets {
		ret, _ := b.SettledReturn()

		if _, err = tx.ExecContext(ctx,
			`UPDATE users SET points=$1 WHERE id=$2`,
			b.User.Ledger.Points(), b.User.ID); err != nil {
			return fmt.Errorf("update points of %s: %w", b.User.ID, err)
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO round_bets(round_id, user_id, target, amount, settled_ret)
			VALUES($1,$2,$3,$4,$5)`,
			roundID, b.User.ID, b.Target, b.Amount, ret); err != nil {
			return fmt.Errorf("insert bet of %s: %w", b.User.ID, err)
		}
	}

	return tx.Commit()
}

// OnMatchEnded é o handler do sinal OnEnd do motor
func (p *Postgres) OnMatchEnded(ctx context.Context, ev engine.MatchEnded) error {
	return p.RecordSettlement(ctx, ev.Match.ID, ev.Event.ID, ev.Settlement)
}
