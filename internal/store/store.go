// Package store keeps game session documents and fans out changes to
// subscribers.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"RiskArena/internal/model"
)

var (
	ErrNotFound = errors.New("game not found")
	// ErrConflict means the document changed between read and write.
	ErrConflict = errors.New("game version conflict")
	ErrExists   = errors.New("game id or code already exists")
)

// Store is a document store for games. Update runs fn against a private copy
// of the current document and persists it with Version incremented; if fn
// returns an error nothing is written.
type Store interface {
	Create(ctx context.Context, g *model.Game) error
	Get(ctx context.Context, id string) (*model.Game, error)
	FindByCode(ctx context.Context, code string) (*model.Game, error)
	Update(ctx context.Context, id string, fn func(*model.Game) error) (*model.Game, error)
	// Subscribe delivers the document after every successful write until ctx
	// ends or the game is deleted. Slow readers only see the latest snapshot.
	Subscribe(ctx context.Context, id string) (<-chan model.Game, error)
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*model.Game, error)
	ListFinishedBefore(ctx context.Context, t time.Time) ([]*model.Game, error)
	Close() error
}

// hub tracks subscriber channels per game id. Writers publish after their
// commit without holding the store lock, so snapshots can arrive out of
// order; last holds the highest version published per game and anything not
// newer is dropped.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan model.Game]struct{}
	last map[string]int64
}

func newHub() *hub {
	return &hub{
		subs: make(map[string]map[chan model.Game]struct{}),
		last: make(map[string]int64),
	}
}

func (h *hub) subscribe(ctx context.Context, id string) <-chan model.Game {
	ch := make(chan model.Game, 1)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan model.Game]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(id, ch)
	}()
	return ch
}

func (h *hub) remove(id string, ch chan model.Game) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[id]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, id)
	}
}

// publish replaces any undelivered snapshot with g.
func (h *hub) publish(g *model.Game) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g.Version <= h.last[g.ID] {
		return
	}
	h.last[g.ID] = g.Version
	for ch := range h.subs[g.ID] {
		snap := *g.Clone()
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (h *hub) closeGame(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[id] {
		close(ch)
	}
	delete(h.subs, id)
	delete(h.last, id)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, id)
	}
}
