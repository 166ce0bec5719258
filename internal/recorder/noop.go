package recorder

// NoopRecorder is used when no history database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordOutcome(_ *OutcomeEvent) error       { return nil }
func (n *NoopRecorder) RecordSettlement(_ *SettlementEvent) error { return nil }
func (n *NoopRecorder) RecordRound(_ *RoundEvent) error           { return nil }
func (n *NoopRecorder) Close() error                              { return nil }
