package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/internal/betting-service/engine"
	"github.com/radieske/live-betting-engine/internal/betting-service/users"
	"github.com/radieske/live-betting-engine/internal/shared/db"
)

// Testes de integração: só rodam com BETTING_TEST_POSTGRES_DSN apontando
// para um banco descartável
func openTestDB(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("BETTING_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BETTING_TEST_POSTGRES_DSN not set")
	}
	pg, err := db.ConnectPostgres(dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pg.Close() })
	if err := db.EnsureSchema(context.Background(), pg); err != nil {
		t.Fatal(err)
	}
	return NewPostgres(pg, 100)
}

func TestGetOrCreateIsStable(t *testing.T) {
	p := openTestDB(t)
	ctx := context.Background()
	name := "viewer_" + uuid.NewString()[:8]

	first, err := p.GetOrCreateByTwitchName(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if first.Points != 100 || first.TwitchName != name {
		t.Errorf("new user: %+v", first)
	}

	again, err := p.GetOrCreateByTwitchName(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Errorf("id changed: %s -> %s", first.ID, again.ID)
	}
}

func TestSettlementCommitsPoints(t *testing.T) {
	p := openTestDB(t)
	ctx := context.Background()

	load := func(prefix string, points int64) *users.User {
		rec, err := p.GetOrCreateByTwitchName(ctx, prefix+uuid.NewString()[:8])
		if err != nil {
			t.Fatal(err)
		}
		return users.New(rec.ID, rec.TwitchName, points)
	}
	alice, bob := load("alice_", 1000), load("bob_", 1000)

	e := engine.New(engine.Config{CountdownTimeout: time.Hour, BaseBet: 100, MinPoints: 100}, zap.NewNop(), nil)
	t.Cleanup(e.Close)
	e.OnEnd.Subscribe(p.OnMatchEnded)

	if err := e.Start(ctx, engine.Event{ID: "ev-int", TeamIDs: []string{"A", "B"}}, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Bet(ctx, alice, "A", 300); err != nil {
		t.Fatal(err)
	}
	if err := e.Bet(ctx, bob, "B", 100); err != nil {
		t.Fatal(err)
	}
	if _, err := e.End(ctx, "A"); err != nil {
		t.Fatal(err)
	}

	// pool 500 vai todo para alice: 1000 - 300 + 500
	for _, tc := range []struct {
		u    *users.User
		want int64
	}{{alice, 1200}, {bob, 900}} {
		got, err := p.Points(ctx, tc.u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("%s points: got %d, want %d", tc.u.TwitchName, got, tc.want)
		}
	}
}
