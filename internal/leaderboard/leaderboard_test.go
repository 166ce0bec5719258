package leaderboard

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskArena/internal/model"
)

func settled(round int, netGain, newCapital float64, a, b model.OutcomeKind) model.Submission {
	s := model.Submission{Round: round, Result: &model.SubmissionResult{NetGain: netGain, NewCapital: newCapital}}
	if a != "" {
		s.Result.OutcomeA = &model.OutcomeResult{Kind: a}
	}
	if b != "" {
		s.Result.OutcomeB = &model.OutcomeResult{Kind: b}
	}
	return s
}

func sampleGame() *model.Game {
	now := time.Now()
	return &model.Game{
		ID: "g1", Code: "ABC123", Status: model.StatusActive, CurrentRound: 2, TotalRounds: 5,
		Settings: model.Settings{InitialCapital: 1000},
		Players: map[string]*model.Player{
			"u1": {UID: "u1", Name: "Bea", Capital: 1210, JoinedAt: now, Submissions: []model.Submission{
				settled(2, 110, 1210, model.OutcomeSuccess, ""),
				settled(1, 100, 1100, model.OutcomeSuccess, model.OutcomeFailure),
			}},
			"u2": {UID: "u2", Name: "Ana", Capital: 500, JoinedAt: now, Submissions: []model.Submission{
				settled(1, -500, 500, model.OutcomeExpropriation, ""),
				{Round: 2, Allocation: model.Allocation{A: 100}},
			}},
			"u3": {UID: "u3", Name: "Carl", Capital: 1000, IsAdmin: true, JoinedAt: now},
			"u4": {UID: "u4", Name: "Abe", Capital: 1000, JoinedAt: now},
		},
	}
}

func TestBuild_RanksByCapitalThenName(t *testing.T) {
	b := Build(sampleGame())
	require.Len(t, b.Entries, 4)

	names := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		names[i] = e.Name
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, []string{"Bea", "Abe", "Carl", "Ana"}, names)
	assert.Equal(t, "Bea", b.Summary.Best)
	assert.Equal(t, "Ana", b.Summary.Worst)
	assert.Equal(t, "ABC123", b.Code)
	assert.Equal(t, 2, b.Round)
}

func TestBuild_PerPlayerStats(t *testing.T) {
	b := Build(sampleGame())
	bea := b.Entries[0]

	assert.InDelta(t, 210, bea.NetGain, 1e-9)
	assert.InDelta(t, 21, bea.ReturnPct, 1e-9)
	assert.Equal(t, 2, bea.RoundsPlayed)
	require.Len(t, bea.Returns, 2)
	assert.InDelta(t, 0.10, bea.Returns[0], 1e-9, "returns are ordered by round")
	assert.InDelta(t, 0.10, bea.Returns[1], 1e-9)
	assert.InDelta(t, 0.10, bea.MeanReturn, 1e-9)
	assert.InDelta(t, 0, bea.Volatility, 1e-9)
	assert.Equal(t, Tally{Success: 2, Failure: 1}, bea.Outcomes)

	ana := b.Entries[3]
	assert.Equal(t, 1, ana.RoundsPlayed, "unsettled submissions are not counted")
	assert.Equal(t, []float64{-0.5}, ana.Returns)
	assert.Equal(t, 1, ana.Outcomes.Expropriation)
}

func TestBuild_Summary(t *testing.T) {
	s := Build(sampleGame()).Summary
	assert.Equal(t, 4, s.Players)
	assert.InDelta(t, (1210+500+1000+1000)/4.0, s.MeanCapital, 1e-9)

	returns := []float64{0.1, 0.1, -0.5}
	m := (0.1 + 0.1 - 0.5) / 3
	var ss float64
	for _, r := range returns {
		ss += (r - m) * (r - m)
	}
	assert.InDelta(t, m, s.MeanRoundReturn, 1e-9)
	assert.InDelta(t, math.Sqrt(ss/2), s.StdDevRoundReturn, 1e-9)
	assert.Equal(t, Tally{Success: 2, Failure: 1, Expropriation: 1}, s.Outcomes)
}

func TestBuild_EmptyGame(t *testing.T) {
	b := Build(&model.Game{ID: "g", Players: map[string]*model.Player{}})
	assert.Empty(t, b.Entries)
	assert.Zero(t, b.Summary.StdDevCapital)
	assert.Empty(t, b.Summary.Best)
}
