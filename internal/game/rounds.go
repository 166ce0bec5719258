package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"RiskArena/internal/engine"
	"RiskArena/internal/model"
	"RiskArena/internal/recorder"
)

// StartGame moves a lobby to active and opens round 1.
func (s *Service) StartGame(ctx context.Context, uid, id string) (*model.Game, error) {
	g, err := s.update(ctx, id, func(g *model.Game) error {
		if !g.IsAdmin(uid) {
			return ErrNotAdmin
		}
		if g.Status != model.StatusWaiting {
			return ErrGameNotWaiting
		}
		g.Status = model.StatusActive
		s.openRound(g, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("game", g.ID).Int("players", len(g.Players)).Msg("game started")
	s.roundOpened(g)
	return g, nil
}

// StartRound opens round n on an active game whose previous round is closed.
func (s *Service) StartRound(ctx context.Context, id string, n int) (*model.Game, error) {
	g, err := s.update(ctx, id, func(g *model.Game) error {
		if g.Status != model.StatusActive {
			return ErrGameNotActive
		}
		if r, ok := g.Current(); ok && r.IsActive {
			return ErrRoundStillOpen
		}
		if n < 1 || n > g.TotalRounds {
			return fmt.Errorf("%w: round %d outside 1-%d", ErrRoundNotActive, n, g.TotalRounds)
		}
		s.openRound(g, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.roundOpened(g)
	return g, nil
}

// openRound pairs two countries with an rng keyed by game id and round, so
// replaying a round offers the same pair.
func (s *Service) openRound(g *model.Game, n int) {
	rng := rand.New(rand.NewPCG(uint64(engine.HashSeed(g.ID)), uint64(n)))
	a, b := s.catalog.Pair(rng)
	now := s.now().UTC()
	g.Rounds[n] = &model.Round{
		Number:    n,
		Countries: model.RoundCountries{A: a, B: b},
		StartTime: now,
		EndTime:   now.Add(g.Settings.RoundDuration),
		IsActive:  true,
	}
	g.CurrentRound = n
}

// SubmitInvestment stores uid's allocation for round.
func (s *Service) SubmitInvestment(ctx context.Context, uid, id string, round int, alloc model.Allocation) (*model.Game, error) {
	if !validAmount(alloc.A) || !validAmount(alloc.B) {
		return nil, fmt.Errorf("%w: amounts must be non-negative numbers", ErrInvalidAllocation)
	}
	return s.update(ctx, id, func(g *model.Game) error {
		p, ok := g.Players[uid]
		if !ok {
			return ErrNotPlayer
		}
		if g.Status != model.StatusActive {
			return ErrGameNotActive
		}
		r, ok := g.Rounds[round]
		now := s.now()
		if !ok || !r.IsActive || !now.Before(r.EndTime) {
			return ErrRoundNotActive
		}
		if _, done := p.SubmissionFor(round); done {
			return ErrAlreadySubmitted
		}
		total := decimal.NewFromFloat(alloc.A).Add(decimal.NewFromFloat(alloc.B))
		if total.GreaterThan(decimal.NewFromFloat(p.Capital)) {
			return fmt.Errorf("%w: %s exceeds capital %.2f", ErrInvalidAllocation, total.StringFixed(2), p.Capital)
		}
		p.Submissions = append(p.Submissions, model.Submission{
			Round:       round,
			Allocation:  alloc,
			SubmittedAt: now.UTC(),
		})
		return nil
	})
}

// CloseRound settles round for every player with an unsettled submission
// and marks it inactive. Settled submissions are left alone, so closing
// twice is harmless.
func (s *Service) CloseRound(ctx context.Context, uid, id string, round int) (*model.Game, error) {
	if uid != SystemUID {
		if _, err := s.requireAdmin(ctx, uid, id); err != nil {
			return nil, err
		}
	}
	return s.closeRound(ctx, id, round)
}

// CloseExpired closes every active round whose end time has passed.
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	games, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active games: %w", err)
	}
	now := s.now()
	closed := 0
	var errs error
	for _, g := range games {
		r, ok := g.Current()
		if !ok || !r.IsActive || now.Before(r.EndTime) {
			continue
		}
		if _, err := s.CloseRound(ctx, SystemUID, g.ID, r.Number); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("game %s round %d: %w", g.ID, r.Number, err))
			continue
		}
		closed++
	}
	return closed, errs
}

// NextRound opens the following round, or finishes the game after the last.
func (s *Service) NextRound(ctx context.Context, uid, id string) (*model.Game, error) {
	g, err := s.update(ctx, id, func(g *model.Game) error {
		if !g.IsAdmin(uid) {
			return ErrNotAdmin
		}
		if g.Status != model.StatusActive {
			return ErrGameNotActive
		}
		if r, ok := g.Current(); ok && r.IsActive {
			return ErrRoundStillOpen
		}
		if g.CurrentRound >= g.TotalRounds {
			s.finish(g)
			return nil
		}
		s.openRound(g, g.CurrentRound+1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if g.Status == model.StatusFinished {
		s.gameFinished(g)
	} else {
		s.roundOpened(g)
	}
	return g, nil
}

// FinishGame ends the game, settling the open round first.
func (s *Service) FinishGame(ctx context.Context, uid, id string) (*model.Game, error) {
	g, err := s.requireAdmin(ctx, uid, id)
	if err != nil {
		return nil, err
	}
	if g.Status == model.StatusFinished {
		return g, nil
	}
	if r, ok := g.Current(); ok && r.IsActive {
		if _, err := s.closeRound(ctx, id, r.Number); err != nil {
			return nil, err
		}
	}
	g, err = s.update(ctx, id, func(g *model.Game) error {
		s.finish(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.gameFinished(g)
	return g, nil
}

// ResetGame returns the game to the lobby with fresh capital.
func (s *Service) ResetGame(ctx context.Context, uid, id string) (*model.Game, error) {
	g, err := s.update(ctx, id, func(g *model.Game) error {
		if !g.IsAdmin(uid) {
			return ErrNotAdmin
		}
		g.Status = model.StatusWaiting
		g.CurrentRound = 0
		g.FinishedAt = time.Time{}
		g.Rounds = map[int]*model.Round{}
		for _, p := range g.Players {
			p.Capital = g.Settings.InitialCapital
			p.Submissions = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("game", g.ID).Msg("game reset")
	return g, nil
}

func (s *Service) finish(g *model.Game) {
	if r, ok := g.Current(); ok {
		r.IsActive = false
	}
	g.Status = model.StatusFinished
	g.FinishedAt = s.now().UTC()
}

func (s *Service) roundOpened(g *model.Game) {
	r, ok := g.Current()
	if !ok {
		return
	}
	s.log.Info().Str("game", g.ID).Int("round", r.Number).
		Str("a", r.Countries.A.ISOCode).Str("b", r.Countries.B.ISOCode).Msg("round opened")
	s.record(s.rec.RecordRound(&recorder.RoundEvent{
		GameID:   g.ID,
		Round:    r.Number,
		Event:    recorder.RoundOpened,
		CountryA: r.Countries.A.ISOCode,
		CountryB: r.Countries.B.ISOCode,
		Players:  len(g.Players),
	}))
}

func (s *Service) gameFinished(g *model.Game) {
	s.log.Info().Str("game", g.ID).Int("rounds", g.CurrentRound).Msg("game finished")
	if s.notify != nil {
		s.notify.GameFinished(g)
	}
}

func (s *Service) record(err error) {
	if err != nil {
		s.log.Warn().Err(err).Msg("history write failed")
	}
}
