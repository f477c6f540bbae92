package eventbus

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Handler recebe um payload despachado. Retornar erro faz o Dispatch falhar.
type Handler[T any] func(ctx context.Context, payload T) error

// Subscription identifica um handler registrado
type Subscription uint64

type entry[T any] struct {
	id Subscription
	fn Handler[T]
}

// Signal é um canal de notificação tipado com vários inscritos.
// Cada instância pertence a um único motor; não há registro global.
type Signal[T any] struct {
	mu       sync.RWMutex
	nextID   Subscription
	handlers []entry[T]
}

// Subscribe registra fn e retorna o identificador para Unsubscribe
func (s *Signal[T]) Subscribe(fn Handler[T]) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.handlers = append(s.handlers, entry[T]{id: s.nextID, fn: fn})
	return s.nextID
}

// Unsubscribe remove o handler; retorna false se ele não estava registrado
func (s *Signal[T]) Unsubscribe(id Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Len retorna quantos handlers estão registrados
func (s *Signal[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Dispatch chama todos os handlers em paralelo e espera todos terminarem.
// O primeiro erro é devolvido ao chamador; o contexto passado aos demais
// handlers é cancelado nesse momento, então eles podem não concluir.
func (s *Signal[T]) Dispatch(ctx context.Context, payload T) error {
	s.mu.RLock()
	handlers := make([]entry[T], len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		h := h
		g.Go(func() error {
			return h.fn(gctx, payload)
		})
	}
	return g.Wait()
}
