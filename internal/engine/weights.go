package engine

import (
	"math"

	"RiskArena/internal/model"
)

// RiskScale is the top of the catalog risk scale. Profiles are normalized
// to 0..RiskScale before they reach the engine.
const RiskScale = 10.0

// Success probability blend.
const (
	RiskWeight   = 0.5
	GrowthWeight = 0.4
	BaseBonus    = 0.35

	LegacyRiskWeight   = 0.6
	LegacyGrowthWeight = 0.3
	LegacyBaseBonus    = 0.2

	// Growth is mapped onto [0,1] over [GrowthFloor, GrowthFloor+GrowthWindow].
	GrowthFloor  = -0.05
	GrowthWindow = 0.15
)

// Success payout terms.
const (
	RiskPremiumRate    = 0.04
	GrowthBonusRate    = 0.8
	SuccessVolatility  = 0.3 // ±15%
	SuccessReturnFloor = -0.5
)

// Failure payout terms.
const (
	FailureBaseLoss   = -0.10
	FailureRiskLoss   = 0.5
	RecessionPenalty  = 2.0
	FailureVolatility = 0.2 // ±10%
	FailureLossFloor  = -0.8
)

// Weights tunes the success probability blend.
type Weights struct {
	Risk   float64 `yaml:"risk"`
	Growth float64 `yaml:"growth"`
	Bonus  float64 `yaml:"bonus"`
}

// DefaultWeights is the current, more generous blend.
var DefaultWeights = Weights{Risk: RiskWeight, Growth: GrowthWeight, Bonus: BaseBonus}

// LegacyWeights reproduces sessions played before the bonus was raised.
var LegacyWeights = Weights{Risk: LegacyRiskWeight, Growth: LegacyGrowthWeight, Bonus: LegacyBaseBonus}

// IsZero reports whether no weight was configured.
func (w Weights) IsZero() bool { return w == Weights{} }

// SuccessProbability blends inverse risk, normalized growth and the flat bonus.
// The result is not clamped; Partition does that.
func (w Weights) SuccessProbability(c model.CountryProfile) float64 {
	return (1-normalizedRisk(c))*w.Risk + normalizedGrowth(c)*w.Growth + w.Bonus
}

// Partition holds the widths of the three consecutive ranges of [0,1):
// expropriation first, then success, then failure.
type Partition struct {
	Expropriation float64 `json:"expropriation"`
	Success       float64 `json:"success"`
	Failure       float64 `json:"failure"`
}

// Partition splits [0,1) for country c. The widths always sum to 1.
func (w Weights) Partition(c model.CountryProfile) Partition {
	e := clamp(c.ExpropriationProbability, 0, 1)
	s := clamp(w.SuccessProbability(c), 0, 1-e)
	return Partition{Expropriation: e, Success: s, Failure: 1 - e - s}
}

// Select maps a draw in [0,1) onto the partition.
func (p Partition) Select(r float64) model.OutcomeKind {
	switch {
	case r < p.Expropriation:
		return model.OutcomeExpropriation
	case r < p.Expropriation+p.Success:
		return model.OutcomeSuccess
	default:
		return model.OutcomeFailure
	}
}

func normalizedRisk(c model.CountryProfile) float64 {
	return c.RiskScore / RiskScale
}

func normalizedGrowth(c model.CountryProfile) float64 {
	return clamp((c.GrowthRate-GrowthFloor)/GrowthWindow, 0, 1)
}

// successReturn is clamped at SuccessReturnFloor.
func successReturn(c model.CountryProfile, r2 float64) float64 {
	riskPremium := normalizedRisk(c) * RiskPremiumRate
	growthBonus := math.Max(0, c.GrowthRate) * GrowthBonusRate
	volatility := SuccessVolatility * (r2 - 0.5)
	return math.Max(SuccessReturnFloor, c.BaseReturnRate+riskPremium+growthBonus+volatility)
}

// failureReturn is clamped at FailureLossFloor. Recessions deepen the loss.
func failureReturn(c model.CountryProfile, r2 float64) float64 {
	baseLoss := FailureBaseLoss - normalizedRisk(c)*FailureRiskLoss
	economicPenalty := math.Min(0, c.GrowthRate) * RecessionPenalty
	volatility := FailureVolatility * (r2 - 0.5)
	return math.Max(FailureLossFloor, baseLoss+economicPenalty+volatility)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
