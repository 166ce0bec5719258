package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"RiskArena/internal/game"
	"RiskArena/internal/leaderboard"
	"RiskArena/internal/model"
	"RiskArena/internal/notifier"
)

// Config holds the cron specs (with seconds) and retention.
type Config struct {
	SweepCron   string        `yaml:"sweep_cron" env:"SCHEDULER_SWEEP_CRON"`
	CleanupCron string        `yaml:"cleanup_cron" env:"SCHEDULER_CLEANUP_CRON"`
	Retention   time.Duration `yaml:"retention" env:"SCHEDULER_RETENTION"`
}

// Games is the part of the game service the scheduler drives.
type Games interface {
	CloseExpired(ctx context.Context) (int, error)
	Cleanup(ctx context.Context, before time.Time) (int, error)
	FindByCode(ctx context.Context, code string) (*model.Game, error)
}

// Scheduler runs the periodic jobs.
type Scheduler struct {
	cron  *cron.Cron
	games Games
	cfg   Config
	ctx   context.Context
	log   zerolog.Logger
	now   func() time.Time
}

// NewScheduler creates a new Scheduler. Jobs run under ctx.
func NewScheduler(ctx context.Context, games Games, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		games: games,
		cfg:   cfg,
		ctx:   ctx,
		log:   log.With().Str("component", "scheduler").Logger(),
		now:   time.Now,
	}
}

// RegisterAll registers the expiry sweep and the retention cleanup.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.cron.AddFunc(s.cfg.SweepCron, s.sweep); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.CleanupCron, s.cleanup); err != nil {
		return fmt.Errorf("register cleanup task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Str("sweep", s.cfg.SweepCron).Str("cleanup", s.cfg.CleanupCron).Msg("scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunSweepNow closes expired rounds immediately.
func (s *Scheduler) RunSweepNow() {
	s.sweep()
}

func (s *Scheduler) sweep() {
	n, err := s.games.CloseExpired(s.ctx)
	if err != nil {
		s.log.Error().Err(err).Int("closed", n).Msg("expiry sweep")
		return
	}
	if n > 0 {
		s.log.Info().Int("closed", n).Msg("closed expired rounds")
	}
}

func (s *Scheduler) cleanup() {
	before := s.now().Add(-s.cfg.Retention)
	n, err := s.games.Cleanup(s.ctx, before)
	if err != nil {
		s.log.Error().Err(err).Msg("cleanup")
		return
	}
	s.log.Info().Int("deleted", n).Time("before", before).Msg("finished games cleaned up")
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	// "/board@MyBot ABC123" in group chats
	name, _, _ := strings.Cut(fields[0], "@")

	switch name {
	case "/board", "/status":
		if len(fields) < 2 {
			return fmt.Sprintf("Usage: %s &lt;game code&gt;", name)
		}
		g, err := s.games.FindByCode(ctx, fields[1])
		if errors.Is(err, game.ErrGameNotFound) {
			return fmt.Sprintf("No game with code %s", strings.ToUpper(fields[1]))
		}
		if err != nil {
			s.log.Error().Err(err).Str("command", command).Msg("command lookup")
			return "Something went wrong, try again."
		}
		if name == "/board" {
			return notifier.FormatLeaderboard(leaderboard.Build(g))
		}
		return notifier.FormatStatus(g, game.TimeRemaining(g, s.now()))
	default:
		return "Available commands:\n• /board &lt;code&gt; standings\n• /status &lt;code&gt; round progress"
	}
}
