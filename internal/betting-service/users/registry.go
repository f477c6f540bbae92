package users

import (
	"context"
	"fmt"
	"sync"
)

// Record é a forma persistida de um usuário (sem reservas)
type Record struct {
	ID         string
	TwitchName string
	Points     int64
}

// Store carrega ou cria usuários no armazenamento permanente
type Store interface {
	GetOrCreateByTwitchName(ctx context.Context, twitchName string) (Record, error)
}

// Registry mantém uma única instância de User por usuário enquanto o
// serviço roda, para que todas as apostas dele compartilhem o mesmo ledger.
type Registry struct {
	store Store

	mu     sync.Mutex
	byName map[string]*User
	byID   map[string]*User
}

func NewRegistry(store Store) *Registry {
	return &Registry{
		store:  store,
		byName: make(map[string]*User),
		byID:   make(map[string]*User),
	}
}

// GetOrCreate devolve o usuário em cache ou carrega/cria no store.
// O lock não é mantido durante a ida ao store; se duas chamadas carregarem o
// mesmo nome, a primeira a inserir no cache vence.
func (r *Registry) GetOrCreate(ctx context.Context, twitchName string) (*User, error) {
	if u, ok := r.Lookup(twitchName); ok {
		return u, nil
	}

	rec, err := r.store.GetOrCreateByTwitchName(ctx, twitchName)
	if err != nil {
		return nil, fmt.Errorf("load user %q: %w", twitchName, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byName[twitchName]; ok {
		return u, nil
	}
	u := New(rec.ID, rec.TwitchName, rec.Points)
	r.byName[twitchName] = u
	r.byID[u.ID] = u
	return u, nil
}

// Lookup busca apenas no cache
func (r *Registry) Lookup(twitchName string) (*User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byName[twitchName]
	return u, ok
}

func (r *Registry) ByID(id string) (*User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	return u, ok
}
