package model

import (
	"sort"
	"time"
)

// GameStatus is the lifecycle state of a session.
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

// Slot identifies one of the two countries offered in a round.
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

// Settings are fixed when the game is created.
type Settings struct {
	RoundDuration  time.Duration `json:"round_duration" msgpack:"round_duration"`
	InitialCapital float64       `json:"initial_capital" msgpack:"initial_capital"`
}

// Allocation is the amount a player puts into each slot.
type Allocation struct {
	A float64 `json:"a" msgpack:"a"`
	B float64 `json:"b" msgpack:"b"`
}

// Total returns the combined investment.
func (a Allocation) Total() float64 { return a.A + a.B }

// Amount returns the allocation for one slot.
func (a Allocation) Amount(slot Slot) float64 {
	if slot == SlotB {
		return a.B
	}
	return a.A
}

// SubmissionResult is written back once the round is settled.
type SubmissionResult struct {
	Payout     float64        `json:"payout" msgpack:"payout"`
	NetGain    float64        `json:"net_gain" msgpack:"net_gain"`
	NewCapital float64        `json:"new_capital" msgpack:"new_capital"`
	OutcomeA   *OutcomeResult `json:"outcome_a,omitempty" msgpack:"outcome_a"`
	OutcomeB   *OutcomeResult `json:"outcome_b,omitempty" msgpack:"outcome_b"`
}

// Submission is one player's allocation for one round.
type Submission struct {
	Round       int               `json:"round" msgpack:"round"`
	Allocation  Allocation        `json:"allocation" msgpack:"allocation"`
	SubmittedAt time.Time         `json:"submitted_at" msgpack:"submitted_at"`
	Result      *SubmissionResult `json:"result,omitempty" msgpack:"result"`
}

// Player is a participant; the creator is the admin.
type Player struct {
	UID         string       `json:"uid" msgpack:"uid"`
	Name        string       `json:"name" msgpack:"name"`
	Capital     float64      `json:"capital" msgpack:"capital"`
	IsAdmin     bool         `json:"is_admin" msgpack:"is_admin"`
	JoinedAt    time.Time    `json:"joined_at" msgpack:"joined_at"`
	Submissions []Submission `json:"submissions" msgpack:"submissions"`
}

// SubmissionFor returns the player's submission for round, if any.
func (p *Player) SubmissionFor(round int) (*Submission, bool) {
	for i := range p.Submissions {
		if p.Submissions[i].Round == round {
			return &p.Submissions[i], true
		}
	}
	return nil, false
}

// RoundCountries holds the pair offered in a round.
type RoundCountries struct {
	A CountryProfile `json:"a" msgpack:"a"`
	B CountryProfile `json:"b" msgpack:"b"`
}

// Country returns the profile offered in slot.
func (c RoundCountries) Country(slot Slot) CountryProfile {
	if slot == SlotB {
		return c.B
	}
	return c.A
}

// Round is one allocation window.
type Round struct {
	Number    int            `json:"round" msgpack:"round"`
	Countries RoundCountries `json:"countries" msgpack:"countries"`
	StartTime time.Time      `json:"start_time" msgpack:"start_time"`
	EndTime   time.Time      `json:"end_time" msgpack:"end_time"`
	IsActive  bool           `json:"is_active" msgpack:"is_active"`
}

// Game is the shared session document.
type Game struct {
	ID           string             `json:"id" msgpack:"id"`
	Code         string             `json:"code" msgpack:"code"`
	Status       GameStatus         `json:"status" msgpack:"status"`
	CurrentRound int                `json:"current_round" msgpack:"current_round"`
	TotalRounds  int                `json:"total_rounds" msgpack:"total_rounds"`
	CreatedAt    time.Time          `json:"created_at" msgpack:"created_at"`
	CreatedBy    string             `json:"created_by" msgpack:"created_by"`
	UpdatedAt    time.Time          `json:"updated_at" msgpack:"updated_at"`
	FinishedAt   time.Time          `json:"finished_at,omitempty" msgpack:"finished_at"`
	Version      int64              `json:"version" msgpack:"version"`
	Settings     Settings           `json:"settings" msgpack:"settings"`
	Players      map[string]*Player `json:"players" msgpack:"players"`
	Rounds       map[int]*Round     `json:"rounds" msgpack:"rounds"`
}

// IsAdmin reports whether uid created the game.
func (g *Game) IsAdmin(uid string) bool {
	p, ok := g.Players[uid]
	return ok && p.IsAdmin
}

// Current returns the active round document, if any.
func (g *Game) Current() (*Round, bool) {
	r, ok := g.Rounds[g.CurrentRound]
	return r, ok
}

// SortedPlayers returns players ordered by join time, then uid.
func (g *Game) SortedPlayers() []*Player {
	out := make([]*Player, 0, len(g.Players))
	for _, p := range g.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// Clone returns a deep copy so store snapshots never alias.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.Players = make(map[string]*Player, len(g.Players))
	for uid, p := range g.Players {
		pc := *p
		pc.Submissions = make([]Submission, len(p.Submissions))
		for i, s := range p.Submissions {
			sc := s
			if s.Result != nil {
				rc := *s.Result
				if s.Result.OutcomeA != nil {
					oa := *s.Result.OutcomeA
					rc.OutcomeA = &oa
				}
				if s.Result.OutcomeB != nil {
					ob := *s.Result.OutcomeB
					rc.OutcomeB = &ob
				}
				sc.Result = &rc
			}
			pc.Submissions[i] = sc
		}
		c.Players[uid] = &pc
	}
	c.Rounds = make(map[int]*Round, len(g.Rounds))
	for n, r := range g.Rounds {
		rc := *r
		c.Rounds[n] = &rc
	}
	return &c
}
