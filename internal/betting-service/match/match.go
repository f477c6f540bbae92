package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/live-betting-engine/internal/betting-service/countdown"
	"github.com/radieske/live-betting-engine/internal/betting-service/users"
)

var (
	ErrInvalidTarget          = errors.New("invalid target")
	ErrNoCountdown            = errors.New("can't place a bet now")
	ErrCountdownAlreadyActive = errors.New("a countdown is already active")
	ErrMatchClosed            = errors.New("match already settled or cancelled")
)

// Bet é a aposta aberta de um usuário numa rodada
type Bet struct {
	User   *users.User
	Target string
	Amount int64

	settled       bool
	settledReturn int64
}

// SettledReturn retorna o prêmio da aposta; ok=false antes da liquidação
func (b Bet) SettledReturn() (ret int64, ok bool) {
	return b.settledReturn, b.settled
}

// Match é a rodada de apostas sobre um conjunto fixo de alvos.
// Depois de Settle ou Cancel a rodada está consumida.
type Match struct {
	ID string

	targets    map[string]struct{}
	targetList []string

	mu        sync.Mutex
	bets      map[string]*Bet // user id -> aposta
	countdown *countdown.Countdown
	closed    bool
}

// New cria a rodada; alvos repetidos contam uma vez
func New(targets []string) *Match {
	m := &Match{
		ID:      uuid.NewString(),
		targets: make(map[string]struct{}, len(targets)),
		bets:    make(map[string]*Bet),
	}
	for _, t := range targets {
		if _, dup := m.targets[t]; dup {
			continue
		}
		m.targets[t] = struct{}{}
		m.targetList = append(m.targetList, t)
	}
	sort.Strings(m.targetList)
	return m
}

// Targets retorna os alvos válidos em ordem
func (m *Match) Targets() []string {
	out := make([]string, len(m.targetList))
	copy(out, m.targetList)
	return out
}

func (m *Match) HasTarget(target string) bool {
	_, ok := m.targets[target]
	return ok
}

// StartCountdown inicia a contagem da rodada. parent é o tempo de vida do motor.
func (m *Match) StartCountdown(parent context.Context, timeout time.Duration) (*countdown.Countdown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrMatchClosed
	}
	if m.countdownActiveLocked() {
		return nil, ErrCountdownAlreadyActive
	}

	m.countdown = countdown.Start(parent, timeout)
	return m.countdown, nil
}

// CancelCountdown cancela a contagem ativa; sem contagem ativa não faz nada
func (m *Match) CancelCountdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCountdownLocked()
}

func (m *Match) cancelCountdownLocked() {
	if m.countdownActiveLocked() {
		m.countdown.Cancel()
		m.countdown = nil
	}
}

// CountdownActive informa se existe contagem ainda não terminada
func (m *Match) CountdownActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countdownActiveLocked()
}

func (m *Match) countdownActiveLocked() bool {
	return m.countdown != nil && !m.countdown.Done()
}

// PlaceBet registra a aposta do usuário, substituindo a anterior.
// amount == 0 não altera nada e retorna (nil, nil).
// A aposta anterior é removida antes de reservar a nova; se a reserva
// falhar, a anterior não volta.
func (m *Match) PlaceBet(u *users.User, target string, amount int64, requireCountdown bool) (*Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrMatchClosed
	}
	if requireCountdown && !m.countdownActiveLocked() {
		return nil, ErrNoCountdown
	}
	if !m.HasTarget(target) {
		return nil, fmt.Errorf("%w: %s (expected one of: %v)", ErrInvalidTarget, target, m.targetList)
	}
	if amount == 0 {
		return nil, nil
	}

	if _, _, err := m.removeBetLocked(u); err != nil {
		return nil, err
	}

	if err := u.Ledger.Allocate(amount); err != nil {
		return nil, err
	}

	b := &Bet{User: u, Target: target, Amount: amount}
	m.bets[u.ID] = b
	return b, nil
}

// RemoveBet retira a aposta do usuário e devolve a reserva
func (m *Match) RemoveBet(u *users.User) (Bet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Bet{}, false, nil
	}
	return m.removeBetLocked(u)
}

func (m *Match) removeBetLocked(u *users.User) (Bet, bool, error) {
	b, ok := m.bets[u.ID]
	if !ok {
		return Bet{}, false, nil
	}
	delete(m.bets, u.ID)

	if err := b.User.Ledger.Deallocate(b.Amount); err != nil {
		return *b, true, err
	}
	return *b, true, nil
}

// BetOf retorna uma cópia da aposta aberta do usuário
func (m *Match) BetOf(userID string) (Bet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[userID]
	if !ok {
		return Bet{}, false
	}
	return *b, true
}

// Bets retorna cópias das apostas abertas ordenadas por usuário
func (m *Match) Bets() []Bet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Match) snapshotLocked() []Bet {
	out := make([]Bet, 0, len(m.bets))
	for _, b := range m.bets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out
}

// Closed informa se a rodada já foi liquidada ou cancelada
func (m *Match) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Cancel cancela a contagem e devolve todas as reservas.
// Chamar de novo numa rodada já consumida não faz nada.
func (m *Match) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.cancelCountdownLocked()

	var errs []error
	for _, b := range m.snapshotLocked() {
		if _, _, err := m.removeBetLocked(b.User); err != nil {
			errs = append(errs, err)
		}
	}
	m.closed = true
	return errors.Join(errs...)
}
