package countdown

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCancelled indica que a contagem foi cancelada por quem a criou
var ErrCancelled = errors.New("countdown cancelled")

// ErrInterrupted indica que a contagem foi interrompida por fora
// (ex.: shutdown do motor), e não por Cancel
var ErrInterrupted = errors.New("countdown interrupted")

// Outcome é o resultado final de uma contagem
type Outcome int

const (
	Pending Outcome = iota
	Elapsed
	CancelledByCaller
	CancelledExternally
)

func (o Outcome) String() string {
	switch o {
	case Elapsed:
		return "elapsed"
	case CancelledByCaller:
		return "cancelled"
	case CancelledExternally:
		return "interrupted"
	default:
		return "pending"
	}
}

// errCallerCancel é a causa usada por Cancel no contexto interno
var errCallerCancel = errors.New("cancelled by caller")

// Countdown é um atraso cancelável. Termina quando o prazo vence, quando
// Cancel é chamado ou quando o contexto pai é cancelado.
type Countdown struct {
	duration time.Duration
	deadline time.Time
	cancel   context.CancelCauseFunc
	done     chan struct{}

	mu      sync.Mutex
	outcome Outcome
}

// Start inicia a contagem. parent representa o tempo de vida de quem a
// controla; cancelá-lo interrompe a contagem como CancelledExternally.
func Start(parent context.Context, d time.Duration) *Countdown {
	ctx, cancel := context.WithCancelCause(parent)
	c := &Countdown{
		duration: d,
		deadline: time.Now().Add(d),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go c.run(ctx)
	return c
}

func (c *Countdown) run(ctx context.Context) {
	timer := time.NewTimer(c.duration)
	defer timer.Stop()

	var out Outcome
	select {
	case <-timer.C:
		out = Elapsed
	case <-ctx.Done():
		if errors.Is(context.Cause(ctx), errCallerCancel) {
			out = CancelledByCaller
		} else {
			out = CancelledExternally
		}
	}

	c.mu.Lock()
	c.outcome = out
	c.mu.Unlock()

	// libera o contexto interno
	c.cancel(nil)
	close(c.done)
}

// Cancel marca o cancelamento como do chamador e interrompe a espera.
// Não tem efeito se a contagem já terminou.
func (c *Countdown) Cancel() {
	c.cancel(errCallerCancel)
}

// Done informa, sem bloquear, se a contagem já terminou
func (c *Countdown) Done() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Finished fecha quando a contagem termina
func (c *Countdown) Finished() <-chan struct{} { return c.done }

func (c *Countdown) Deadline() time.Time { return c.deadline }

func (c *Countdown) Duration() time.Duration { return c.duration }

// Outcome retorna Pending enquanto a contagem não terminou
func (c *Countdown) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Wait bloqueia até a contagem terminar.
// Retorna nil se o prazo venceu, ErrCancelled se Cancel foi chamado e
// ErrInterrupted em qualquer outra interrupção. Se ctx for cancelado antes,
// retorna ctx.Err().
func (c *Countdown) Wait(ctx context.Context) error {
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	switch c.Outcome() {
	case Elapsed:
		return nil
	case CancelledByCaller:
		return ErrCancelled
	default:
		return ErrInterrupted
	}
}
