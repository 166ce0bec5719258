package game

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskArena/internal/catalog"
	"RiskArena/internal/engine"
	"RiskArena/internal/model"
	"RiskArena/internal/recorder"
	"RiskArena/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// stubEngine pays 10% on slot A and expropriates slot B.
type stubEngine struct {
	calls atomic.Int32
}

func (e *stubEngine) Evaluate(c model.CountryProfile, amount float64, seed string) model.OutcomeResult {
	e.calls.Add(1)
	if seed[len(seed)-1] == 'B' {
		return model.OutcomeResult{Kind: model.OutcomeExpropriation, ReturnRate: -1, Message: "seized in " + c.DisplayName}
	}
	return model.OutcomeResult{Kind: model.OutcomeSuccess, ReturnRate: 0.1, FinalAmount: amount * 1.1, Message: "ok in " + c.DisplayName}
}

func (e *stubEngine) Probabilities(c model.CountryProfile) engine.Partition {
	return engine.DefaultWeights.Partition(c)
}

type captureRecorder struct {
	mu          sync.Mutex
	outcomes    []recorder.OutcomeEvent
	settlements []recorder.SettlementEvent
	rounds      []recorder.RoundEvent
}

func (r *captureRecorder) RecordOutcome(e *recorder.OutcomeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, *e)
	return nil
}

func (r *captureRecorder) RecordSettlement(e *recorder.SettlementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settlements = append(r.settlements, *e)
	return nil
}

func (r *captureRecorder) RecordRound(e *recorder.RoundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, *e)
	return nil
}

func (r *captureRecorder) Close() error { return nil }

type captureNotifier struct {
	closed   []int
	finished int
}

func (n *captureNotifier) RoundClosed(_ *model.Game, round int) { n.closed = append(n.closed, round) }
func (n *captureNotifier) GameFinished(_ *model.Game)           { n.finished++ }

// conflictStore fails the next n updates with ErrConflict.
type conflictStore struct {
	*store.MemoryStore
	failures atomic.Int32
}

func (c *conflictStore) Update(ctx context.Context, id string, fn func(*model.Game) error) (*model.Game, error) {
	if c.failures.Add(-1) >= 0 {
		return nil, store.ErrConflict
	}
	return c.MemoryStore.Update(ctx, id, fn)
}

type fixture struct {
	svc      *Service
	store    store.Store
	clock    *fakeClock
	rec      *captureRecorder
	notifier *captureNotifier
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]model.CountryProfile{
		{ISOCode: "AA", DisplayName: "Alpha", RiskScore: 2, GrowthRate: 0.03, BaseReturnRate: 0.05, ExpropriationProbability: 0.01},
		{ISOCode: "BB", DisplayName: "Beta", RiskScore: 8, GrowthRate: 0.02, BaseReturnRate: 0.05, ExpropriationProbability: 0.10},
		{ISOCode: "CC", DisplayName: "Gamma", RiskScore: 5, GrowthRate: -0.02, BaseReturnRate: 0.08, ExpropriationProbability: 0.05},
	})
	require.NoError(t, err)
	return c
}

func newFixture(t *testing.T, eng Evaluator, st store.Store) *fixture {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	f := &fixture{
		store:    st,
		clock:    &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		rec:      &captureRecorder{},
		notifier: &captureNotifier{},
	}
	f.svc = NewService(Config{TotalRounds: 2, RoundDuration: time.Minute, InitialCapital: 1000}, Deps{
		Store:    st,
		Catalog:  testCatalog(t),
		Engine:   eng,
		Recorder: f.rec,
		Notifier: f.notifier,
		Log:      zerolog.New(nil).Level(zerolog.Disabled),
		Now:      f.clock.Now,
	})
	return f
}

// lobby creates a game with admin "t" and players "p1", "p2".
func (f *fixture) lobby(t *testing.T) *model.Game {
	t.Helper()
	ctx := context.Background()
	g, err := f.svc.CreateGame(ctx, "t", "Teacher")
	require.NoError(t, err)
	_, err = f.svc.JoinGame(ctx, "p1", g.Code, "Ana")
	require.NoError(t, err)
	g, err = f.svc.JoinGame(ctx, "p2", g.Code, "Bea")
	require.NoError(t, err)
	return g
}

func TestCreateGame_Defaults(t *testing.T) {
	f := newFixture(t, nil, nil)
	g, err := f.svc.CreateGame(context.Background(), "t", "  Teacher  ")
	require.NoError(t, err)

	assert.Regexp(t, `^[A-Z0-9]{6}$`, g.Code)
	assert.Equal(t, model.StatusWaiting, g.Status)
	assert.Equal(t, 2, g.TotalRounds)
	assert.Equal(t, time.Minute, g.Settings.RoundDuration)
	require.Contains(t, g.Players, "t")
	assert.True(t, g.Players["t"].IsAdmin)
	assert.Equal(t, "Teacher", g.Players["t"].Name)
	assert.Equal(t, 1000.0, g.Players["t"].Capital)

	_, err = f.svc.CreateGame(context.Background(), "t", " ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNewService_FillsDefaults(t *testing.T) {
	svc := NewService(Config{}, Deps{Store: store.NewMemoryStore(), Catalog: testCatalog(t)})
	cfg := svc.Config()
	assert.Equal(t, 5, cfg.TotalRounds)
	assert.Equal(t, 120*time.Second, cfg.RoundDuration)
	assert.Equal(t, 100_000_000.0, cfg.InitialCapital)
}

func TestJoinGame(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	g := f.lobby(t)
	assert.Len(t, g.Players, 3)
	assert.False(t, g.Players["p1"].IsAdmin)

	again, err := f.svc.JoinGame(ctx, "p1", g.Code, "Ana")
	require.NoError(t, err)
	assert.Len(t, again.Players, 3)

	_, err = f.svc.JoinGame(ctx, "p9", "ZZZZZZ", "Zed")
	assert.ErrorIs(t, err, ErrGameNotFound)

	_, err = f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinGame(ctx, "late", g.Code, "Late")
	assert.ErrorIs(t, err, ErrGameNotWaiting)

	rejoin, err := f.svc.JoinGame(ctx, "p2", g.Code, "Bea")
	require.NoError(t, err, "existing players can reconnect after start")
	assert.Equal(t, model.StatusActive, rejoin.Status)
}

func TestStartGame(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	g := f.lobby(t)

	_, err := f.svc.StartGame(ctx, "p1", g.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)

	g, err = f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, g.Status)
	assert.Equal(t, 1, g.CurrentRound)

	r, ok := g.Current()
	require.True(t, ok)
	assert.True(t, r.IsActive)
	assert.NotEqual(t, r.Countries.A.ISOCode, r.Countries.B.ISOCode)
	assert.Equal(t, f.clock.Now(), r.StartTime)
	assert.Equal(t, f.clock.Now().Add(time.Minute), r.EndTime)
	assert.Equal(t, time.Minute, TimeRemaining(g, f.clock.Now()))

	_, err = f.svc.StartGame(ctx, "t", g.ID)
	assert.ErrorIs(t, err, ErrGameNotWaiting)

	require.Len(t, f.rec.rounds, 1)
	assert.Equal(t, recorder.RoundOpened, f.rec.rounds[0].Event)
}

func TestStartRound_PairIsReproducible(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	g := f.lobby(t)

	g, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	first := g.Rounds[1].Countries

	_, err = f.svc.ResetGame(ctx, "t", g.ID)
	require.NoError(t, err)
	g, err = f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	assert.Equal(t, first, g.Rounds[1].Countries)

	_, err = f.svc.StartRound(ctx, g.ID, 2)
	assert.ErrorIs(t, err, ErrRoundStillOpen)
}

func TestSubmitInvestment_Validation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	g := f.lobby(t)

	_, err := f.svc.SubmitInvestment(ctx, "p1", g.ID, 1, model.Allocation{A: 10})
	assert.ErrorIs(t, err, ErrGameNotActive)

	_, err = f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		uid   string
		round int
		alloc model.Allocation
		want  error
	}{
		{"negative", "p1", 1, model.Allocation{A: -1}, ErrInvalidAllocation},
		{"over capital", "p1", 1, model.Allocation{A: 600, B: 400.01}, ErrInvalidAllocation},
		{"stranger", "nobody", 1, model.Allocation{A: 1}, ErrNotPlayer},
		{"wrong round", "p1", 2, model.Allocation{A: 1}, ErrRoundNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitInvestment(ctx, tt.uid, g.ID, tt.round, tt.alloc)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	g, err = f.svc.SubmitInvestment(ctx, "p1", g.ID, 1, model.Allocation{A: 600, B: 400})
	require.NoError(t, err, "the whole capital may be invested")
	sub, ok := g.Players["p1"].SubmissionFor(1)
	require.True(t, ok)
	assert.Nil(t, sub.Result)

	_, err = f.svc.SubmitInvestment(ctx, "p1", g.ID, 1, model.Allocation{A: 1})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	f.clock.Advance(time.Minute)
	_, err = f.svc.SubmitInvestment(ctx, "p2", g.ID, 1, model.Allocation{A: 1})
	assert.ErrorIs(t, err, ErrRoundNotActive, "expired rounds refuse submissions")
}

func TestCloseRound_Settlement(t *testing.T) {
	eng := &stubEngine{}
	f := newFixture(t, eng, nil)
	ctx := context.Background()
	g := f.lobby(t)
	_, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitInvestment(ctx, "p1", g.ID, 1, model.Allocation{A: 300, B: 200})
	require.NoError(t, err)
	_, err = f.svc.SubmitInvestment(ctx, "p2", g.ID, 1, model.Allocation{A: 0, B: 0})
	require.NoError(t, err)

	_, err = f.svc.CloseRound(ctx, "p1", g.ID, 1)
	assert.ErrorIs(t, err, ErrNotAdmin)

	g, err = f.svc.CloseRound(ctx, "t", g.ID, 1)
	require.NoError(t, err)
	assert.False(t, g.Rounds[1].IsActive)
	assert.Equal(t, int32(2), eng.calls.Load(), "zero allocations never reach the engine")

	ana := g.Players["p1"]
	sub, _ := ana.SubmissionFor(1)
	require.NotNil(t, sub.Result)
	assert.Equal(t, 330.0, sub.Result.Payout)
	assert.Equal(t, -170.0, sub.Result.NetGain)
	assert.Equal(t, 830.0, sub.Result.NewCapital)
	assert.Equal(t, 830.0, ana.Capital)
	require.NotNil(t, sub.Result.OutcomeA)
	require.NotNil(t, sub.Result.OutcomeB)
	assert.Equal(t, model.OutcomeSuccess, sub.Result.OutcomeA.Kind)
	assert.Equal(t, model.OutcomeExpropriation, sub.Result.OutcomeB.Kind)

	bea := g.Players["p2"]
	bsub, _ := bea.SubmissionFor(1)
	require.NotNil(t, bsub.Result)
	assert.Nil(t, bsub.Result.OutcomeA)
	assert.Nil(t, bsub.Result.OutcomeB)
	assert.Equal(t, 1000.0, bea.Capital)

	assert.Equal(t, 1000.0, g.Players["t"].Capital, "players without a submission are untouched")

	assert.Len(t, f.rec.outcomes, 2)
	assert.Len(t, f.rec.settlements, 2)
	assert.Equal(t, []int{1}, f.notifier.closed)

	// closing again settles nothing new
	g, err = f.svc.CloseRound(ctx, "t", g.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 830.0, g.Players["p1"].Capital)
	assert.Equal(t, int32(2), eng.calls.Load())
	assert.Len(t, f.rec.settlements, 2)
	assert.Equal(t, []int{1}, f.notifier.closed, "no second summary for a settled round")
	assert.Len(t, f.rec.rounds, 2, "one OPENED and one CLOSED row")
	assert.Equal(t, recorder.RoundClosed, f.rec.rounds[1].Event)
}

func TestCloseRound_UsesCanonicalSeeds(t *testing.T) {
	eng := engine.New(engine.Config{})
	f := newFixture(t, eng, nil)
	ctx := context.Background()
	g := f.lobby(t)
	g, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	countries := g.Rounds[1].Countries

	_, err = f.svc.SubmitInvestment(ctx, "p1", g.ID, 1, model.Allocation{A: 250.5, B: 400})
	require.NoError(t, err)
	g, err = f.svc.CloseRound(ctx, "t", g.ID, 1)
	require.NoError(t, err)

	sub, _ := g.Players["p1"].SubmissionFor(1)
	wantA := eng.Evaluate(countries.A, 250.5, "1-p1-A")
	wantB := eng.Evaluate(countries.B, 400, "1-p1-B")
	assert.Equal(t, wantA, *sub.Result.OutcomeA)
	assert.Equal(t, wantB, *sub.Result.OutcomeB)
	assert.InDelta(t, wantA.FinalAmount+wantB.FinalAmount, sub.Result.Payout, 0.005)
	assert.InDelta(t, 1000-650.5+sub.Result.Payout, g.Players["p1"].Capital, 0.005)
}

func TestCloseRound_RetriesConflicts(t *testing.T) {
	cs := &conflictStore{MemoryStore: store.NewMemoryStore()}
	f := newFixture(t, &stubEngine{}, cs)
	ctx := context.Background()
	g := f.lobby(t)
	_, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitInvestment(ctx, "p1", g.ID, 1, model.Allocation{A: 100})
	require.NoError(t, err)

	cs.failures.Store(2)
	g, err = f.svc.CloseRound(ctx, "t", g.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1010.0, g.Players["p1"].Capital)
	assert.Len(t, f.rec.settlements, 1, "history is written once")

	cs.failures.Store(100)
	_, err = f.svc.CloseRound(ctx, "t", g.ID, 1)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestNextRoundAndFinish(t *testing.T) {
	f := newFixture(t, &stubEngine{}, nil)
	ctx := context.Background()
	g := f.lobby(t)
	_, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)

	_, err = f.svc.NextRound(ctx, "t", g.ID)
	assert.ErrorIs(t, err, ErrRoundStillOpen)

	_, err = f.svc.CloseRound(ctx, "t", g.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.NextRound(ctx, "p1", g.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)

	g, err = f.svc.NextRound(ctx, "t", g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, g.CurrentRound)
	assert.True(t, g.Rounds[2].IsActive)

	_, err = f.svc.CloseRound(ctx, "t", g.ID, 2)
	require.NoError(t, err)
	g, err = f.svc.NextRound(ctx, "t", g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, g.Status)
	assert.Equal(t, f.clock.Now(), g.FinishedAt)
	assert.Equal(t, 1, f.notifier.finished)

	_, err = f.svc.NextRound(ctx, "t", g.ID)
	assert.ErrorIs(t, err, ErrGameNotActive)
}

func TestFinishGame_SettlesOpenRound(t *testing.T) {
	f := newFixture(t, &stubEngine{}, nil)
	ctx := context.Background()
	g := f.lobby(t)
	_, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitInvestment(ctx, "p2", g.ID, 1, model.Allocation{A: 500})
	require.NoError(t, err)

	g, err = f.svc.FinishGame(ctx, "t", g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, g.Status)
	assert.False(t, g.Rounds[1].IsActive)
	assert.Equal(t, 1050.0, g.Players["p2"].Capital)

	again, err := f.svc.FinishGame(ctx, "t", g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Version, again.Version)
}

func TestResetGame(t *testing.T) {
	f := newFixture(t, &stubEngine{}, nil)
	ctx := context.Background()
	g := f.lobby(t)
	_, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitInvestment(ctx, "p1", g.ID, 1, model.Allocation{B: 400})
	require.NoError(t, err)
	_, err = f.svc.CloseRound(ctx, "t", g.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.ResetGame(ctx, "p1", g.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)

	g, err = f.svc.ResetGame(ctx, "t", g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, g.Status)
	assert.Zero(t, g.CurrentRound)
	assert.Empty(t, g.Rounds)
	for _, p := range g.Players {
		assert.Equal(t, 1000.0, p.Capital)
		assert.Empty(t, p.Submissions)
	}
	assert.Len(t, g.Players, 3, "players stay in the lobby")
}

func TestCloseExpired(t *testing.T) {
	f := newFixture(t, &stubEngine{}, nil)
	ctx := context.Background()
	g := f.lobby(t)
	_, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitInvestment(ctx, "p1", g.ID, 1, model.Allocation{A: 100})
	require.NoError(t, err)

	n, err := f.svc.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(61 * time.Second)
	n, err = f.svc.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g, err = f.svc.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, g.Rounds[1].IsActive)
	assert.Equal(t, 1010.0, g.Players["p1"].Capital)
	assert.Zero(t, TimeRemaining(g, f.clock.Now()))

	n, err = f.svc.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil, nil)

	res, err := f.svc.Preview("bb", 1_000_000, "3-playerX-A")
	require.NoError(t, err)
	assert.Equal(t, "BB", res.Country.ISOCode)
	assert.Equal(t, engine.Evaluate(res.Country, 1_000_000, "3-playerX-A"), res.Outcome)
	assert.InDelta(t, 1.0, res.Probabilities.Expropriation+res.Probabilities.Success+res.Probabilities.Failure, 1e-12)

	_, err = f.svc.Preview("XX", 1, "s")
	assert.ErrorIs(t, err, ErrUnknownCountry)
	_, err = f.svc.Preview("AA", -5, "s")
	assert.ErrorIs(t, err, ErrInvalidAllocation)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, &stubEngine{}, nil)
	ctx := context.Background()
	g := f.lobby(t)
	_, err := f.svc.FinishGame(ctx, "t", g.ID)
	require.NoError(t, err)

	n, err := f.svc.Cleanup(ctx, f.clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(48 * time.Hour)
	n, err = f.svc.Cleanup(ctx, f.clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.Get(ctx, g.ID)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(t, &stubEngine{}, nil)
	ctx := context.Background()
	g := f.lobby(t)
	_, err := f.svc.StartGame(ctx, "t", g.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitInvestment(ctx, "p2", g.ID, 1, model.Allocation{A: 1000})
	require.NoError(t, err)
	_, err = f.svc.CloseRound(ctx, "t", g.ID, 1)
	require.NoError(t, err)

	board, err := f.svc.Leaderboard(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, board.Entries, 3)
	assert.Equal(t, "Bea", board.Entries[0].Name)
	assert.Equal(t, 1100.0, board.Entries[0].Capital)

	_, err = f.svc.Leaderboard(ctx, "missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}
