package model

// OutcomeKind is the category selected by the outcome partition.
type OutcomeKind string

const (
	OutcomeSuccess       OutcomeKind = "success"
	OutcomeFailure       OutcomeKind = "failure"
	OutcomeExpropriation OutcomeKind = "expropriation"
)

// OutcomeResult is the engine output for one investment.
type OutcomeResult struct {
	Kind        OutcomeKind `json:"outcome" msgpack:"kind"`
	ReturnRate  float64     `json:"return_rate" msgpack:"rate"`
	FinalAmount float64     `json:"final_amount" msgpack:"final"`
	Message     string      `json:"message" msgpack:"msg"`
}
