// Package leaderboard ranks players and summarizes how a game went.
package leaderboard

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"RiskArena/internal/model"
)

// Entry is one ranked player.
type Entry struct {
	Rank         int       `json:"rank"`
	UID          string    `json:"uid"`
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"is_admin"`
	Capital      float64   `json:"capital"`
	NetGain      float64   `json:"net_gain"`
	ReturnPct    float64   `json:"return_pct"`
	RoundsPlayed int       `json:"rounds_played"`
	Returns      []float64 `json:"returns"` // per settled round, relative to capital before the round
	MeanReturn   float64   `json:"mean_return"`
	Volatility   float64   `json:"volatility"`
	Outcomes     Tally     `json:"outcomes"`
}

// Tally counts evaluated outcomes by kind.
type Tally struct {
	Success       int `json:"success"`
	Failure       int `json:"failure"`
	Expropriation int `json:"expropriation"`
}

func (t *Tally) add(o *model.OutcomeResult) {
	if o == nil {
		return
	}
	switch o.Kind {
	case model.OutcomeSuccess:
		t.Success++
	case model.OutcomeFailure:
		t.Failure++
	case model.OutcomeExpropriation:
		t.Expropriation++
	}
}

// Summary aggregates the whole table.
type Summary struct {
	Players           int     `json:"players"`
	MeanCapital       float64 `json:"mean_capital"`
	StdDevCapital     float64 `json:"stddev_capital"`
	MeanRoundReturn   float64 `json:"mean_round_return"`
	StdDevRoundReturn float64 `json:"stddev_round_return"`
	Best              string  `json:"best,omitempty"`
	Worst             string  `json:"worst,omitempty"`
	Outcomes          Tally   `json:"outcomes"`
}

// Board is the ranked table for a game.
type Board struct {
	GameID      string           `json:"game_id"`
	Code        string           `json:"code"`
	Status      model.GameStatus `json:"status"`
	Round       int              `json:"round"`
	TotalRounds int              `json:"total_rounds"`
	Entries     []Entry          `json:"entries"`
	Summary     Summary          `json:"summary"`
}

// Build ranks players by capital, ties broken by name then uid.
func Build(g *model.Game) Board {
	b := Board{
		GameID:      g.ID,
		Code:        g.Code,
		Status:      g.Status,
		Round:       g.CurrentRound,
		TotalRounds: g.TotalRounds,
		Entries:     make([]Entry, 0, len(g.Players)),
	}

	var capitals, allReturns []float64
	for _, p := range g.Players {
		e := entryFor(p, g.Settings.InitialCapital)
		b.Entries = append(b.Entries, e)
		capitals = append(capitals, e.Capital)
		allReturns = append(allReturns, e.Returns...)
		b.Summary.Outcomes.Success += e.Outcomes.Success
		b.Summary.Outcomes.Failure += e.Outcomes.Failure
		b.Summary.Outcomes.Expropriation += e.Outcomes.Expropriation
	}

	sort.Slice(b.Entries, func(i, j int) bool {
		a, c := b.Entries[i], b.Entries[j]
		if a.Capital != c.Capital {
			return a.Capital > c.Capital
		}
		if a.Name != c.Name {
			return a.Name < c.Name
		}
		return a.UID < c.UID
	})
	for i := range b.Entries {
		b.Entries[i].Rank = i + 1
	}

	b.Summary.Players = len(b.Entries)
	b.Summary.MeanCapital = mean(capitals)
	b.Summary.StdDevCapital = stdDev(capitals)
	b.Summary.MeanRoundReturn = mean(allReturns)
	b.Summary.StdDevRoundReturn = stdDev(allReturns)
	if n := len(b.Entries); n > 0 {
		b.Summary.Best = b.Entries[0].Name
		b.Summary.Worst = b.Entries[n-1].Name
	}
	return b
}

func entryFor(p *model.Player, initial float64) Entry {
	e := Entry{
		UID:     p.UID,
		Name:    p.Name,
		IsAdmin: p.IsAdmin,
		Capital: p.Capital,
		NetGain: p.Capital - initial,
		Returns: []float64{},
	}
	if initial > 0 {
		e.ReturnPct = e.NetGain / initial * 100
	}

	subs := make([]model.Submission, len(p.Submissions))
	copy(subs, p.Submissions)
	sort.Slice(subs, func(i, j int) bool { return subs[i].Round < subs[j].Round })

	for _, s := range subs {
		if s.Result == nil {
			continue
		}
		e.RoundsPlayed++
		e.Outcomes.add(s.Result.OutcomeA)
		e.Outcomes.add(s.Result.OutcomeB)
		if before := s.Result.NewCapital - s.Result.NetGain; before > 0 {
			e.Returns = append(e.Returns, s.Result.NetGain/before)
		}
	}
	e.MeanReturn = mean(e.Returns)
	e.Volatility = stdDev(e.Returns)
	return e
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// stdDev is the sample standard deviation; fewer than two samples give 0.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
