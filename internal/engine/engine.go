// Package engine derives investment outcomes from a country profile, an
// amount and a seed. Evaluation is pure: no clocks, no global random source,
// no logging. The same inputs always produce the same OutcomeResult.
package engine

import (
	"fmt"

	"RiskArena/internal/model"
)

// Config selects weights, draw source and message language. The zero value
// uses DefaultWeights, SourceSine and English.
type Config struct {
	Weights Weights
	Source  Source
	Locale  string
}

// Engine evaluates investments with a fixed configuration. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	weights  Weights
	source   Source
	messages *messageSet
}

// New builds an Engine, filling unset fields with defaults.
func New(cfg Config) *Engine {
	if cfg.Weights.IsZero() {
		cfg.Weights = DefaultWeights
	}
	if cfg.Source == "" {
		cfg.Source = SourceSine
	}
	return &Engine{
		weights:  cfg.Weights,
		source:   cfg.Source,
		messages: messagesFor(cfg.Locale),
	}
}

var defaultEngine = New(Config{})

// Evaluate runs the default engine.
func Evaluate(country model.CountryProfile, amount float64, seed string) model.OutcomeResult {
	return defaultEngine.Evaluate(country, amount, seed)
}

// Seed builds the canonical seed for one (round, player, slot) evaluation.
func Seed(round int, playerID string, slot model.Slot) string {
	return fmt.Sprintf("%d-%s-%s", round, playerID, slot)
}

// Weights returns the configured probability blend.
func (e *Engine) Weights() Weights { return e.weights }

// Probabilities returns the partition used for country.
func (e *Engine) Probabilities(country model.CountryProfile) Partition {
	return e.weights.Partition(country)
}

// Evaluate derives the outcome of investing amount in country. amount must
// be non-negative; callers reject negative amounts before calling.
func (e *Engine) Evaluate(country model.CountryProfile, amount float64, seed string) model.OutcomeResult {
	r := e.source.Draws(HashSeed(seed + country.ISOCode + FormatAmount(amount)))
	r1, r2, r3 := r[0], r[1], r[2]

	if amount == 0 {
		return model.OutcomeResult{
			Kind:    model.OutcomeSuccess,
			Message: e.messages.render(pick(e.messages.noInvestment, r1), country),
		}
	}

	kind := e.weights.Partition(country).Select(r1)
	switch kind {
	case model.OutcomeExpropriation:
		return model.OutcomeResult{
			Kind:       kind,
			ReturnRate: -1,
			Message:    e.messages.render(pick(e.messages.pool(kind), r2), country),
		}
	case model.OutcomeSuccess:
		rate := successReturn(country, r2)
		return model.OutcomeResult{
			Kind:        kind,
			ReturnRate:  rate,
			FinalAmount: amount * (1 + rate),
			Message:     e.messages.render(pick(e.messages.pool(kind), r3), country),
		}
	default:
		rate := failureReturn(country, r2)
		return model.OutcomeResult{
			Kind:        kind,
			ReturnRate:  rate,
			FinalAmount: amount * (1 + rate),
			Message:     e.messages.render(pick(e.messages.pool(kind), r3), country),
		}
	}
}
