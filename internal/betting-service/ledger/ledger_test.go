package ledger

import (
	"errors"
	"testing"
)

func assertInvariant(t *testing.T, l *Ledger) {
	t.Helper()
	p, a := l.Snapshot()
	if a < 0 || a > p {
		t.Fatalf("invariant broken: points=%d allocated=%d", p, a)
	}
}

func TestAllocate(t *testing.T) {
	cases := []struct {
		name      string
		points    int64
		amount    int64
		wantErr   error
		wantAlloc int64
	}{
		{"within available", 100, 60, nil, 60},
		{"all available", 100, 100, nil, 100},
		{"zero", 100, 0, nil, 0},
		{"negative", 100, -1, ErrNegativeAmount, 0},
		{"over available", 40, 50, ErrInsufficientPoints, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(tc.points)
			err := l.Allocate(tc.amount)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err: got %v, want %v", err, tc.wantErr)
			}
			if got := l.Allocated(); got != tc.wantAlloc {
				t.Errorf("allocated: got %d, want %d", got, tc.wantAlloc)
			}
			if got := l.Points(); got != tc.points {
				t.Errorf("points changed: got %d, want %d", got, tc.points)
			}
			assertInvariant(t, l)
		})
	}
}

func TestAllocateCountsExistingReservations(t *testing.T) {
	l := New(100)
	if err := l.Allocate(70); err != nil {
		t.Fatal(err)
	}
	if err := l.Allocate(40); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("got %v, want ErrInsufficientPoints", err)
	}
	if got := l.Available(); got != 30 {
		t.Errorf("available: got %d, want 30", got)
	}
}

func TestDeallocate(t *testing.T) {
	l := New(100)
	if err := l.Allocate(50); err != nil {
		t.Fatal(err)
	}

	if err := l.Deallocate(-5); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("negative: got %v", err)
	}
	if err := l.Deallocate(51); !errors.Is(err, ErrOverDeallocation) {
		t.Errorf("over: got %v", err)
	}
	if got := l.Allocated(); got != 50 {
		t.Fatalf("failed deallocate must not change state, allocated=%d", got)
	}

	if err := l.Deallocate(50); err != nil {
		t.Fatal(err)
	}
	if got := l.Allocated(); got != 0 {
		t.Errorf("allocated: got %d, want 0", got)
	}
	assertInvariant(t, l)
}

func TestGiveAppliesFloor(t *testing.T) {
	cases := []struct {
		name   string
		points int64
		delta  int64
		floor  int64
		want   int64
	}{
		{"gain", 100, 33, 100, 133},
		{"loss above floor", 300, -100, 100, 200},
		{"loss clamped", 150, -100, 100, 100},
		{"below floor raised", 20, 0, 100, 100},
		{"zero floor", 100, -100, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(tc.points)
			l.Give(tc.delta, tc.floor)
			if got := l.Points(); got != tc.want {
				t.Errorf("points: got %d, want %d", got, tc.want)
			}
			if got := l.Allocated(); got != 0 {
				t.Errorf("give must not touch allocated, got %d", got)
			}
		})
	}
}
