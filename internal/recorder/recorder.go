package recorder

import "RiskArena/internal/model"

// OutcomeEvent is one engine evaluation.
type OutcomeEvent struct {
	GameID   string
	PlayerID string
	Round    int
	Slot     model.Slot
	Country  string
	Amount   float64
	Seed     string
	Outcome  model.OutcomeResult
}

// SettlementEvent records a player's capital change for a round.
type SettlementEvent struct {
	GameID        string
	PlayerID      string
	PlayerName    string
	Round         int
	Invested      float64
	Payout        float64
	NetGain       float64
	CapitalBefore float64
	CapitalAfter  float64
}

// RoundEvent records a round lifecycle transition.
type RoundEvent struct {
	GameID      string
	Round       int
	Event       string // "OPENED" or "CLOSED"
	CountryA    string
	CountryB    string
	Players     int
	Submissions int
}

const (
	RoundOpened = "OPENED"
	RoundClosed = "CLOSED"
)

// Recorder persists game history for after-class analysis.
type Recorder interface {
	RecordOutcome(evt *OutcomeEvent) error
	RecordSettlement(evt *SettlementEvent) error
	RecordRound(evt *RoundEvent) error
	Close() error
}
