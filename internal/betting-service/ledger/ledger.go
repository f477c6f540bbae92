package ledger

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNegativeAmount     = errors.New("negative amount")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrOverDeallocation   = errors.New("over deallocation")
)

// Ledger guarda os pontos de um usuário e quanto deles está reservado em
// apostas abertas. Invariante: 0 <= allocated <= points.
type Ledger struct {
	mu        sync.Mutex
	points    int64
	allocated int64
}

// New cria um ledger com saldo inicial e nenhuma reserva.
// Reservas vivem só em memória; ao carregar do banco começam zeradas.
func New(points int64) *Ledger {
	if points < 0 {
		points = 0
	}
	return &Ledger{points: points}
}

// Allocate reserva amount pontos para uma aposta aberta
func (l *Ledger) Allocate(amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount < 0 {
		return fmt.Errorf("allocate %d: %w", amount, ErrNegativeAmount)
	}
	if avail := l.points - l.allocated; amount > avail {
		return fmt.Errorf("trying to allocate %d points but only %d available: %w", amount, avail, ErrInsufficientPoints)
	}

	l.allocated += amount
	return nil
}

// Deallocate devolve uma reserva feita por Allocate
func (l *Ledger) Deallocate(amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount < 0 {
		return fmt.Errorf("deallocate %d: %w", amount, ErrNegativeAmount)
	}
	if amount > l.allocated {
		return fmt.Errorf("trying to deallocate %d points but only %d allocated: %w", amount, l.allocated, ErrOverDeallocation)
	}

	l.allocated -= amount
	return nil
}

// Give aplica delta ao saldo sem nunca deixá-lo abaixo de floor.
// Não mexe na reserva: a liquidação chama Deallocate antes.
func (l *Ledger) Give(delta, floor int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.points = max(l.points+delta, floor)
}

func (l *Ledger) Points() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.points
}

func (l *Ledger) Allocated() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocated
}

func (l *Ledger) Available() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.points - l.allocated
}

// Snapshot retorna (points, allocated) lidos de forma consistente
func (l *Ledger) Snapshot() (points, allocated int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.points, l.allocated
}
