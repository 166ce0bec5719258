package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"RiskArena/internal/model"
)

// MemoryStore keeps games in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]*model.Game
	codes map[string]string // code -> id
	hub   *hub
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games: make(map[string]*model.Game),
		codes: make(map[string]string),
		hub:   newHub(),
	}
}

func (m *MemoryStore) Create(_ context.Context, g *model.Game) error {
	m.mu.Lock()
	code := strings.ToUpper(g.Code)
	if _, ok := m.games[g.ID]; ok {
		m.mu.Unlock()
		return ErrExists
	}
	if _, ok := m.codes[code]; ok {
		m.mu.Unlock()
		return ErrExists
	}
	stored := g.Clone()
	stored.Version = 1
	m.games[g.ID] = stored
	m.codes[code] = g.ID
	g.Version = stored.Version
	m.mu.Unlock()

	m.hub.publish(stored)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (m *MemoryStore) FindByCode(ctx context.Context, code string) (*model.Game, error) {
	m.mu.RLock()
	id, ok := m.codes[strings.ToUpper(strings.TrimSpace(code))]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*model.Game) error) (*model.Game, error) {
	m.mu.Lock()
	cur, ok := m.games[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	next.ID = cur.ID
	next.Code = cur.Code
	next.Version = cur.Version + 1
	m.games[id] = next
	out := next.Clone()
	m.mu.Unlock()

	m.hub.publish(next)
	return out, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan model.Game, error) {
	m.mu.RLock()
	_, ok := m.games[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.hub.subscribe(ctx, id), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	g, ok := m.games[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.games, id)
	delete(m.codes, strings.ToUpper(g.Code))
	m.mu.Unlock()

	m.hub.closeGame(id)
	return nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]*model.Game, error) {
	return m.filter(func(g *model.Game) bool { return g.Status == model.StatusActive }), nil
}

func (m *MemoryStore) ListFinishedBefore(_ context.Context, t time.Time) ([]*model.Game, error) {
	return m.filter(func(g *model.Game) bool {
		return g.Status == model.StatusFinished && g.FinishedAt.Before(t)
	}), nil
}

func (m *MemoryStore) filter(keep func(*model.Game) bool) []*model.Game {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Game
	for _, g := range m.games {
		if keep(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) Close() error {
	m.hub.closeAll()
	return nil
}
