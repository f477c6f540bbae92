package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/radieske/live-betting-engine/internal/betting-service/countdown"
	"github.com/radieske/live-betting-engine/internal/betting-service/ledger"
	"github.com/radieske/live-betting-engine/internal/betting-service/match"
	"github.com/radieske/live-betting-engine/internal/betting-service/users"
)

type record struct {
	kind string
	cd   *countdown.Countdown
	bet  *BetPlaced
	end  *MatchEnded
}

// recorder guarda a ordem das notificações de um motor
type recorder struct {
	mu   sync.Mutex
	recs []record
}

func attach(e *Engine) *recorder {
	r := &recorder{}
	add := func(rec record) {
		r.mu.Lock()
		r.recs = append(r.recs, rec)
		r.mu.Unlock()
	}
	matchEvent := func(kind string) func(context.Context, MatchEvent) error {
		return func(_ context.Context, p MatchEvent) error {
			add(record{kind: kind, cd: p.Countdown})
			return nil
		}
	}

	e.OnStart.Subscribe(matchEvent("start"))
	e.OnCountdownStart.Subscribe(matchEvent("countdown_start"))
	e.OnCountdownCancel.Subscribe(matchEvent("countdown_cancel"))
	e.OnCountdownEnd.Subscribe(matchEvent("countdown_end"))
	e.OnCancel.Subscribe(matchEvent("cancel"))
	e.OnBet.Subscribe(func(_ context.Context, p BetPlaced) error {
		add(record{kind: "bet", bet: &p})
		return nil
	})
	e.OnEnd.Subscribe(func(_ context.Context, p MatchEnded) error {
		add(record{kind: "end", end: &p})
		return nil
	})
	return r
}

// waitFor espera a primeira notificação do tipo kind
func (r *recorder) waitFor(t *testing.T, kind string) record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, rec := range r.all() {
			if rec.kind == kind {
				return rec
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q; got %v", kind, r.kinds())
	return record{}
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.recs))
	for i, rec := range r.recs {
		out[i] = rec.kind
	}
	return out
}

func (r *recorder) all() []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record(nil), r.recs...)
}

func newEngine(t *testing.T, cfg Config) (*Engine, *observer.ObservedLogs, *Metrics) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics(prometheus.NewRegistry())
	e := New(cfg, zap.New(core), metrics)
	t.Cleanup(e.Close)
	return e, logs, metrics
}

var testEvent = Event{ID: "ev-1", TeamIDs: []string{"A", "B"}}

func TestStartAndBet(t *testing.T) {
	e, _, metrics := newEngine(t, Config{CountdownTimeout: time.Hour})
	rec := attach(e)
	ctx := context.Background()

	if err := e.Start(ctx, testEvent, 0); err != nil {
		t.Fatal(err)
	}
	start := rec.waitFor(t, "start")
	if start.cd == nil || start.cd.Duration() != time.Hour {
		t.Fatalf("start countdown should use the default timeout, got %+v", start.cd)
	}
	rec.waitFor(t, "countdown_start")

	if err := e.Start(ctx, testEvent, 0); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second start: got %v, want ErrAlreadyActive", err)
	}

	u := users.New("u1", "alice", 500)
	if err := e.Bet(ctx, u, "A", 120); err != nil {
		t.Fatal(err)
	}
	bet := rec.waitFor(t, "bet")
	if bet.bet.User != u || bet.bet.Target != "A" || bet.bet.Amount != 120 || bet.bet.Event.ID != "ev-1" {
		t.Errorf("bet payload: %+v", bet.bet)
	}
	if got := u.Ledger.Allocated(); got != 120 {
		t.Errorf("allocated: got %d, want 120", got)
	}

	if err := e.Bet(ctx, u, "Z", 10); !errors.Is(err, match.ErrInvalidTarget) {
		t.Errorf("invalid target: got %v", err)
	}
	if got := testutil.ToFloat64(metrics.BetsPlaced); got != 1 {
		t.Errorf("bets placed metric: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.BetsRejected.WithLabelValues("invalid_target")); got != 1 {
		t.Errorf("bets rejected metric: got %v, want 1", got)
	}
}

func TestOperationsWithoutMatch(t *testing.T) {
	e, _, _ := newEngine(t, DefaultConfig())
	rec := attach(e)
	ctx := context.Background()

	if err := e.Cancel(ctx); err != nil {
		t.Errorf("cancel without match: got %v, want nil", err)
	}
	if err := e.Bet(ctx, users.New("u1", "alice", 100), "A", 10); !errors.Is(err, ErrNoMatch) {
		t.Errorf("bet: got %v, want ErrNoMatch", err)
	}
	if err := e.RestartCountdown(0); !errors.Is(err, ErrNoMatch) {
		t.Errorf("restart: got %v, want ErrNoMatch", err)
	}
	if _, err := e.End(ctx, "A"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("end: got %v, want ErrNoMatch", err)
	}
	if got := rec.kinds(); len(got) != 0 {
		t.Errorf("no notification expected, got %v", got)
	}
}

func TestCountdownElapsesAndClosesBetting(t *testing.T) {
	e, logs, metrics := newEngine(t, DefaultConfig())
	rec := attach(e)
	ctx := context.Background()

	if err := e.Start(ctx, testEvent, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "countdown_end")

	if want := []string{"start", "countdown_start", "countdown_end"}; !reflect.DeepEqual(rec.kinds(), want) {
		t.Fatalf("notifications: got %v, want %v", rec.kinds(), want)
	}
	if err := e.Bet(ctx, users.New("u1", "alice", 100), "A", 10); !errors.Is(err, match.ErrNoCountdown) {
		t.Errorf("bet after countdown: got %v, want ErrNoCountdown", err)
	}

	if _, err := e.End(ctx, "A"); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("match ended while countdown is still active").Len() != 0 {
		t.Error("unexpected warning when ending after the countdown elapsed")
	}
	if got := testutil.ToFloat64(metrics.Countdowns.WithLabelValues("elapsed")); got != 1 {
		t.Errorf("elapsed countdowns: got %v, want 1", got)
	}
}

func TestRestartCountdownDoesNotInterleave(t *testing.T) {
	e, _, _ := newEngine(t, DefaultConfig())
	rec := attach(e)
	ctx := context.Background()

	// countdown_start lento segura o primeiro watcher enquanto os reinícios acontecem
	var once sync.Once
	e.OnCountdownStart.Subscribe(func(context.Context, MatchEvent) error {
		once.Do(func() { time.Sleep(30 * time.Millisecond) })
		return nil
	})

	if err := e.Start(ctx, testEvent, time.Hour); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := e.RestartCountdown(time.Hour); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.RestartCountdown(20 * time.Millisecond); err != nil {
		t.Fatal(err)
	}

	rec.waitFor(t, "countdown_end")

	want := []string{
		"start",
		"countdown_start", "countdown_cancel",
		"countdown_start", "countdown_cancel",
		"countdown_start", "countdown_cancel",
		"countdown_start", "countdown_end",
	}
	if got := rec.kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("notifications:\n got %v\nwant %v", got, want)
	}

	// cada par start/terminal pertence à mesma contagem, e cada par a uma contagem nova
	recs := rec.all()
	seen := map[*countdown.Countdown]bool{}
	for i := 1; i < len(recs); i += 2 {
		if recs[i].cd != recs[i+1].cd {
			t.Fatalf("pair %d mixes countdown generations", i/2)
		}
		if seen[recs[i].cd] {
			t.Fatalf("countdown generation repeated at pair %d", i/2)
		}
		seen[recs[i].cd] = true
	}
	if recs[0].cd != recs[1].cd {
		t.Error("start and first countdown_start should carry the same countdown")
	}
}

func TestRestartCountdownReopensBetting(t *testing.T) {
	e, _, _ := newEngine(t, DefaultConfig())
	rec := attach(e)
	ctx := context.Background()
	u := users.New("u1", "alice", 100)

	if err := e.Start(ctx, testEvent, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "countdown_end")
	if err := e.Bet(ctx, u, "A", 10); !errors.Is(err, match.ErrNoCountdown) {
		t.Fatalf("got %v, want ErrNoCountdown", err)
	}

	if err := e.RestartCountdown(time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := e.Bet(ctx, u, "A", 10); err != nil {
		t.Errorf("bet after restart: %v", err)
	}
}

func TestEndSettlesAndWarnsDuringCountdown(t *testing.T) {
	e, logs, metrics := newEngine(t, Config{CountdownTimeout: time.Hour, BaseBet: 0, MinPoints: 0})
	rec := attach(e)
	ctx := context.Background()

	if err := e.Start(ctx, testEvent, 0); err != nil {
		t.Fatal(err)
	}
	u1, u2, u3 := users.New("u1", "a", 1000), users.New("u2", "b", 1000), users.New("u3", "c", 1000)
	for _, b := range []struct {
		u      *users.User
		target string
		amount int64
	}{{u1, "A", 100}, {u2, "B", 100}, {u3, "A", 200}} {
		if err := e.Bet(ctx, b.u, b.target, b.amount); err != nil {
			t.Fatal(err)
		}
	}

	st, err := e.End(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if st.Pool != 400 || st.TotalReturned() != 400 {
		t.Errorf("pool/returned: got %d/%d, want 400/400", st.Pool, st.TotalReturned())
	}
	if e.Active() {
		t.Error("engine should be idle after end")
	}

	end := rec.waitFor(t, "end")
	if len(end.end.Settlement.Bets) != 3 || end.end.Event.ID != "ev-1" {
		t.Errorf("end payload: %+v", end.end)
	}
	rec.waitFor(t, "countdown_cancel")

	if logs.FilterMessage("match ended while countdown is still active").FilterField(zap.String("event_id", "ev-1")).Len() != 1 {
		t.Error("expected warning for ending during countdown")
	}
	if p := u3.Ledger.Points(); p != 1067 {
		t.Errorf("u3 points: got %d, want 1067", p)
	}
	if got := testutil.ToFloat64(metrics.RoundsEnded); got != 1 {
		t.Errorf("rounds ended: got %v", got)
	}

	// depois de end é possível abrir outra rodada
	if err := e.Start(ctx, Event{ID: "ev-2", TeamIDs: []string{"C", "D"}}, 0); err != nil {
		t.Errorf("start after end: %v", err)
	}
}

func TestCancelRefundsAndNotifies(t *testing.T) {
	e, _, _ := newEngine(t, DefaultConfig())
	rec := attach(e)
	ctx := context.Background()
	u := users.New("u1", "alice", 300)

	if err := e.Start(ctx, testEvent, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := e.Bet(ctx, u, "B", 250); err != nil {
		t.Fatal(err)
	}

	if err := e.Cancel(ctx); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "cancel")
	rec.waitFor(t, "countdown_cancel")

	if p, a := u.Ledger.Snapshot(); p != 300 || a != 0 {
		t.Errorf("ledger: points=%d allocated=%d, want 300/0", p, a)
	}
	if e.Active() {
		t.Error("engine should be idle after cancel")
	}

	before := len(rec.kinds())
	if err := e.Cancel(ctx); err != nil {
		t.Errorf("second cancel: %v", err)
	}
	if len(rec.kinds()) != before {
		t.Error("second cancel emitted notifications")
	}
}

func TestNotificationFailurePropagates(t *testing.T) {
	e, _, _ := newEngine(t, DefaultConfig())
	ctx := context.Background()
	boom := errors.New("relay down")

	if err := e.Start(ctx, testEvent, time.Hour); err != nil {
		t.Fatal(err)
	}
	e.OnBet.Subscribe(func(context.Context, BetPlaced) error { return boom })

	u := users.New("u1", "alice", 100)
	if err := e.Bet(ctx, u, "A", 40); !errors.Is(err, boom) {
		t.Fatalf("got %v, want subscriber error", err)
	}
	m, _, _ := e.Current()
	if _, ok := m.BetOf("u1"); !ok {
		t.Error("bet should stay placed when only the notification failed")
	}
}

func TestStartNotificationFailureStillWatchesCountdown(t *testing.T) {
	e, _, _ := newEngine(t, DefaultConfig())
	rec := attach(e)
	boom := errors.New("relay down")
	e.OnStart.Subscribe(func(context.Context, MatchEvent) error { return boom })

	if err := e.Start(context.Background(), testEvent, 10*time.Millisecond); !errors.Is(err, boom) {
		t.Fatalf("got %v, want subscriber error", err)
	}
	if !e.Active() {
		t.Fatal("match should stay open")
	}
	rec.waitFor(t, "countdown_end")
}

func TestCloseInterruptsWatcherWithoutTerminalNotification(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics(nil)
	e := New(Config{CountdownTimeout: time.Hour}, zap.New(core), metrics)
	rec := attach(e)

	if err := e.Start(context.Background(), testEvent, 0); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "countdown_start")

	e.Close()

	for _, k := range rec.kinds() {
		if k == "countdown_end" || k == "countdown_cancel" {
			t.Fatalf("unexpected terminal notification %q after external interruption", k)
		}
	}
	if got := testutil.ToFloat64(metrics.WatcherFailures); got != 1 {
		t.Errorf("watcher failures: got %v, want 1", got)
	}
	if logs.FilterMessage("countdown watcher interrupted").Len() != 1 {
		t.Error("interruption should be logged")
	}
	if err := e.Start(context.Background(), testEvent, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("start after close: got %v, want ErrClosed", err)
	}
}

func TestClosedEngineRejectsBetAndEnd(t *testing.T) {
	metrics := NewMetrics(nil)
	e := New(Config{CountdownTimeout: time.Hour}, zap.NewNop(), metrics)
	rec := attach(e)
	ctx := context.Background()

	u := users.New("u1", "alice", 500)
	if err := e.Start(ctx, testEvent, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Bet(ctx, u, testEvent.TeamIDs[0], 200); err != nil {
		t.Fatal(err)
	}
	e.Close()

	if err := e.Bet(ctx, u, testEvent.TeamIDs[0], 300); !errors.Is(err, ErrClosed) {
		t.Errorf("bet after close: got %v, want ErrClosed", err)
	}
	if _, err := e.End(ctx, testEvent.TeamIDs[0]); !errors.Is(err, ErrClosed) {
		t.Errorf("end after close: got %v, want ErrClosed", err)
	}
	if got := testutil.ToFloat64(metrics.BetsRejected.WithLabelValues("closed")); got != 1 {
		t.Errorf("closed rejections: got %v, want 1", got)
	}
	// a rodada continua como estava: nada liquidado nem realocado
	if p, a := u.Ledger.Snapshot(); p != 500 || a != 200 {
		t.Errorf("ledger: points=%d allocated=%d", p, a)
	}
	for _, k := range rec.kinds() {
		if k == "end" {
			t.Fatal("end notified after close")
		}
	}
	if !e.Active() {
		t.Error("match should still be held after close")
	}
}

func TestLedgerInvariantThroughRound(t *testing.T) {
	e, _, _ := newEngine(t, Config{CountdownTimeout: time.Hour, BaseBet: 100, MinPoints: 100})
	ctx := context.Background()
	us := []*users.User{users.New("u1", "a", 150), users.New("u2", "b", 400), users.New("u3", "c", 90)}

	check := func(stage string) {
		t.Helper()
		for _, u := range us {
			p, a := u.Ledger.Snapshot()
			if a < 0 || a > p {
				t.Fatalf("%s: %s points=%d allocated=%d", stage, u.ID, p, a)
			}
		}
	}

	if err := e.Start(ctx, testEvent, 0); err != nil {
		t.Fatal(err)
	}
	_ = e.Bet(ctx, us[0], "A", 150)
	check("bet 1")
	_ = e.Bet(ctx, us[1], "B", 300)
	check("bet 2")
	if err := e.Bet(ctx, us[2], "A", 100); !errors.Is(err, ledger.ErrInsufficientPoints) {
		t.Fatalf("got %v, want ErrInsufficientPoints", err)
	}
	check("rejected bet")
	_ = e.Bet(ctx, us[1], "A", 50)
	check("replacement")

	if _, err := e.End(ctx, "B"); err != nil {
		t.Fatal(err)
	}
	check("settled")
	for _, u := range us {
		if u.Ledger.Allocated() != 0 {
			t.Errorf("%s still has reservations after settlement", u.ID)
		}
	}
}

func TestIsBusinessError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrNoMatch, true},
		{ErrAlreadyActive, true},
		{match.ErrInvalidTarget, true},
		{match.ErrNoCountdown, true},
		{ledger.ErrInsufficientPoints, true},
		{errors.Join(errors.New("ctx"), ledger.ErrNegativeAmount), true},
		{ErrClosed, false},
		{errors.New("pg down"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsBusinessError(tc.err); got != tc.want {
			t.Errorf("IsBusinessError(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
}
