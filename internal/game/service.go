// Package game runs classroom sessions: lobby, rounds, submissions and
// settlement through the outcome engine.
package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"RiskArena/internal/catalog"
	"RiskArena/internal/engine"
	"RiskArena/internal/leaderboard"
	"RiskArena/internal/model"
	"RiskArena/internal/recorder"
	"RiskArena/internal/store"
)

// SystemUID is the identity the scheduler acts under.
const SystemUID = "system"

const (
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength    = 6
	codeAttempts  = 8
	maxPlayerName = 40
)

// Session defaults applied when a Config field is unset.
const (
	DefaultTotalRounds    = 5
	DefaultRoundDuration  = 120 * time.Second
	DefaultInitialCapital = 100_000_000
	DefaultMaxRetries     = 5
)

// Evaluator is the outcome engine as seen by the service.
type Evaluator interface {
	Evaluate(country model.CountryProfile, amount float64, seed string) model.OutcomeResult
	Probabilities(country model.CountryProfile) engine.Partition
}

// Notifier receives settled rounds and finished games.
type Notifier interface {
	RoundClosed(g *model.Game, round int)
	GameFinished(g *model.Game)
}

// Config holds session defaults.
type Config struct {
	TotalRounds    int
	RoundDuration  time.Duration
	InitialCapital float64
	// MaxRetries bounds write attempts after a version conflict.
	MaxRetries uint64
	// Workers caps concurrent evaluations while settling; 0 means unlimited.
	Workers int
}

func (c Config) withDefaults() Config {
	if c.TotalRounds <= 0 {
		c.TotalRounds = DefaultTotalRounds
	}
	if c.RoundDuration <= 0 {
		c.RoundDuration = DefaultRoundDuration
	}
	if c.InitialCapital <= 0 {
		c.InitialCapital = DefaultInitialCapital
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Deps are the collaborators a Service needs. Recorder, Notifier and Now
// are optional.
type Deps struct {
	Store    store.Store
	Catalog  *catalog.Catalog
	Engine   Evaluator
	Recorder recorder.Recorder
	Notifier Notifier
	Log      zerolog.Logger
	Now      func() time.Time
}

// Service owns every session mutation.
type Service struct {
	cfg     Config
	store   store.Store
	catalog *catalog.Catalog
	engine  Evaluator
	rec     recorder.Recorder
	notify  Notifier
	log     zerolog.Logger
	now     func() time.Time
}

// NewService builds a Service.
func NewService(cfg Config, deps Deps) *Service {
	s := &Service{
		cfg:     cfg.withDefaults(),
		store:   deps.Store,
		catalog: deps.Catalog,
		engine:  deps.Engine,
		rec:     deps.Recorder,
		notify:  deps.Notifier,
		log:     deps.Log.With().Str("component", "game").Logger(),
		now:     deps.Now,
	}
	if s.engine == nil {
		s.engine = engine.New(engine.Config{})
	}
	if s.rec == nil {
		s.rec = recorder.NewNoopRecorder()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Config returns the effective session defaults.
func (s *Service) Config() Config { return s.cfg }

// CreateGame opens a lobby with uid as admin and first player.
func (s *Service) CreateGame(ctx context.Context, uid, adminName string) (*model.Game, error) {
	name, err := cleanName(adminName)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	for attempt := 0; attempt < codeAttempts; attempt++ {
		g := &model.Game{
			ID:          uuid.NewString(),
			Code:        newCode(),
			Status:      model.StatusWaiting,
			TotalRounds: s.cfg.TotalRounds,
			CreatedAt:   now,
			CreatedBy:   uid,
			UpdatedAt:   now,
			Settings: model.Settings{
				RoundDuration:  s.cfg.RoundDuration,
				InitialCapital: s.cfg.InitialCapital,
			},
			Players: map[string]*model.Player{
				uid: {UID: uid, Name: name, Capital: s.cfg.InitialCapital, IsAdmin: true, JoinedAt: now},
			},
			Rounds: map[int]*model.Round{},
		}
		err := s.store.Create(ctx, g)
		if errors.Is(err, store.ErrExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create game: %w", err)
		}
		s.log.Info().Str("game", g.ID).Str("code", g.Code).Str("admin", name).Msg("game created")
		return g, nil
	}
	return nil, fmt.Errorf("create game: no free code after %d attempts", codeAttempts)
}

// JoinGame adds uid to the lobby identified by code. Joining again returns
// the game unchanged, even after it started.
func (s *Service) JoinGame(ctx context.Context, uid, code, playerName string) (*model.Game, error) {
	name, err := cleanName(playerName)
	if err != nil {
		return nil, err
	}
	g, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, notFound(err)
	}
	if _, ok := g.Players[uid]; ok {
		return g, nil
	}

	g, err = s.update(ctx, g.ID, func(g *model.Game) error {
		if _, ok := g.Players[uid]; ok {
			return nil
		}
		if g.Status != model.StatusWaiting {
			return ErrGameNotWaiting
		}
		g.Players[uid] = &model.Player{
			UID:      uid,
			Name:     name,
			Capital:  g.Settings.InitialCapital,
			JoinedAt: s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("game", g.ID).Str("player", name).Int("players", len(g.Players)).Msg("player joined")
	return g, nil
}

// Get returns the current document.
func (s *Service) Get(ctx context.Context, id string) (*model.Game, error) {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

// FindByCode resolves a join code.
func (s *Service) FindByCode(ctx context.Context, code string) (*model.Game, error) {
	g, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

// Subscribe streams document snapshots until ctx ends.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan model.Game, error) {
	ch, err := s.store.Subscribe(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return ch, nil
}

// Leaderboard ranks the players of a game.
func (s *Service) Leaderboard(ctx context.Context, id string) (leaderboard.Board, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return leaderboard.Board{}, err
	}
	return leaderboard.Build(g), nil
}

// Countries lists the catalog.
func (s *Service) Countries() []model.CountryProfile { return s.catalog.All() }

// PreviewResult is a dry-run evaluation.
type PreviewResult struct {
	Country       model.CountryProfile `json:"country"`
	Amount        float64              `json:"amount"`
	Seed          string               `json:"seed"`
	Probabilities engine.Partition     `json:"probabilities"`
	Outcome       model.OutcomeResult  `json:"result"`
}

// Preview evaluates an investment against the catalog without touching any
// session.
func (s *Service) Preview(iso string, amount float64, seed string) (PreviewResult, error) {
	c, ok := s.catalog.Lookup(iso)
	if !ok {
		return PreviewResult{}, fmt.Errorf("%w: %q", ErrUnknownCountry, iso)
	}
	if !validAmount(amount) {
		return PreviewResult{}, fmt.Errorf("%w: amount must be a non-negative number", ErrInvalidAllocation)
	}
	return PreviewResult{
		Country:       c,
		Amount:        amount,
		Seed:          seed,
		Probabilities: s.engine.Probabilities(c),
		Outcome:       s.engine.Evaluate(c, amount, seed),
	}, nil
}

// Cleanup deletes finished games older than before.
func (s *Service) Cleanup(ctx context.Context, before time.Time) (int, error) {
	games, err := s.store.ListFinishedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("list finished games: %w", err)
	}
	deleted := 0
	for _, g := range games {
		if err := s.store.Delete(ctx, g.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return deleted, fmt.Errorf("delete game %s: %w", g.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// TimeRemaining is how long the current round stays open at now.
func TimeRemaining(g *model.Game, now time.Time) time.Duration {
	r, ok := g.Current()
	if !ok || !r.IsActive {
		return 0
	}
	if left := r.EndTime.Sub(now); left > 0 {
		return left
	}
	return 0
}

func (s *Service) update(ctx context.Context, id string, fn func(*model.Game) error) (*model.Game, error) {
	g, err := s.store.Update(ctx, id, func(g *model.Game) error {
		if err := fn(g); err != nil {
			return err
		}
		g.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

func (s *Service) requireAdmin(ctx context.Context, uid, id string) (*model.Game, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.IsAdmin(uid) {
		return nil, ErrNotAdmin
	}
	return g, nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrGameNotFound
	}
	return err
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	if r := []rune(name); len(r) > maxPlayerName {
		name = string(r[:maxPlayerName])
	}
	return name, nil
}

func newCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
