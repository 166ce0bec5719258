package game

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"RiskArena/internal/engine"
	"RiskArena/internal/model"
	"RiskArena/internal/recorder"
	"RiskArena/internal/store"
)

// settlement is what one player's round close produced, kept for the
// history writes that follow a successful store update.
type settlement struct {
	event    recorder.SettlementEvent
	outcomes []recorder.OutcomeEvent
}

// errNothingToSettle aborts the write when the round was already closed and
// every submission in it is settled.
var errNothingToSettle = errors.New("round already settled")

func (s *Service) closeRound(ctx context.Context, id string, round int) (*model.Game, error) {
	var (
		g       *model.Game
		settled []*settlement
		pending int
	)
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := s.update(ctx, id, func(g *model.Game) error {
			r, ok := g.Rounds[round]
			if !ok {
				return ErrRoundNotActive
			}
			res, err := s.settle(ctx, g, r)
			if err != nil {
				return err
			}
			if !r.IsActive && len(res) == 0 {
				return errNothingToSettle
			}
			settled, pending = res, len(res)
			r.IsActive = false
			return nil
		})
		if errors.Is(err, store.ErrConflict) {
			s.log.Debug().Str("game", id).Int("round", round).Msg("settlement conflict, retrying")
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		g = out
		return nil
	})
	if errors.Is(err, errNothingToSettle) {
		return s.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	for _, st := range settled {
		for i := range st.outcomes {
			s.record(s.rec.RecordOutcome(&st.outcomes[i]))
		}
		s.record(s.rec.RecordSettlement(&st.event))
	}
	r := g.Rounds[round]
	s.record(s.rec.RecordRound(&recorder.RoundEvent{
		GameID:      g.ID,
		Round:       round,
		Event:       recorder.RoundClosed,
		CountryA:    r.Countries.A.ISOCode,
		CountryB:    r.Countries.B.ISOCode,
		Players:     len(g.Players),
		Submissions: pending,
	}))
	s.log.Info().Str("game", g.ID).Int("round", round).Int("settled", pending).Msg("round closed")
	if s.notify != nil {
		s.notify.RoundClosed(g, round)
	}
	return g, nil
}

// settle evaluates every unsettled submission for r concurrently. Each
// goroutine only touches its own player.
func (s *Service) settle(ctx context.Context, g *model.Game, r *model.Round) ([]*settlement, error) {
	players := g.SortedPlayers()
	results := make([]*settlement, len(players))

	eg, ectx := errgroup.WithContext(ctx)
	if s.cfg.Workers > 0 {
		eg.SetLimit(s.cfg.Workers)
	}
	for i, p := range players {
		sub, ok := p.SubmissionFor(r.Number)
		if !ok || sub.Result != nil {
			continue
		}
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			results[i] = s.settleOne(g.ID, r, p, sub)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]*settlement, 0, len(results))
	for _, st := range results {
		if st != nil {
			out = append(out, st)
		}
	}
	return out, nil
}

// settleOne evaluates both slots and applies the result to p. Zero
// allocations never reach the engine. Money is summed in decimal and
// rounded to cents.
func (s *Service) settleOne(gameID string, r *model.Round, p *model.Player, sub *model.Submission) *settlement {
	st := &settlement{}
	result := &model.SubmissionResult{}
	payout := decimal.Zero

	for _, slot := range []model.Slot{model.SlotA, model.SlotB} {
		amount := sub.Allocation.Amount(slot)
		if amount == 0 {
			continue
		}
		country := r.Countries.Country(slot)
		seed := engine.Seed(r.Number, p.UID, slot)
		outcome := s.engine.Evaluate(country, amount, seed)
		payout = payout.Add(decimal.NewFromFloat(outcome.FinalAmount))

		if slot == model.SlotA {
			result.OutcomeA = &outcome
		} else {
			result.OutcomeB = &outcome
		}
		st.outcomes = append(st.outcomes, recorder.OutcomeEvent{
			GameID:   gameID,
			PlayerID: p.UID,
			Round:    r.Number,
			Slot:     slot,
			Country:  country.ISOCode,
			Amount:   amount,
			Seed:     seed,
			Outcome:  outcome,
		})
	}

	invested := decimal.NewFromFloat(sub.Allocation.A).Add(decimal.NewFromFloat(sub.Allocation.B))
	before := decimal.NewFromFloat(p.Capital)
	payout = payout.Round(2)
	newCapital := before.Sub(invested).Add(payout).Round(2)

	result.Payout = payout.InexactFloat64()
	result.NetGain = payout.Sub(invested).Round(2).InexactFloat64()
	result.NewCapital = newCapital.InexactFloat64()
	sub.Result = result
	p.Capital = result.NewCapital

	st.event = recorder.SettlementEvent{
		GameID:        gameID,
		PlayerID:      p.UID,
		PlayerName:    p.Name,
		Round:         r.Number,
		Invested:      invested.InexactFloat64(),
		Payout:        result.Payout,
		NetGain:       result.NetGain,
		CapitalBefore: before.InexactFloat64(),
		CapitalAfter:  result.NewCapital,
	}
	return st
}
