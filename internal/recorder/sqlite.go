package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder appends history rows to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so analysis queries can read while rounds are being settled.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{
		db:  db,
		log: log.With().Str("component", "recorder").Logger(),
		now: time.Now,
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			game_id      TEXT NOT NULL,
			player_id    TEXT NOT NULL,
			round        INTEGER NOT NULL,
			slot         TEXT NOT NULL,
			country      TEXT NOT NULL,
			amount       REAL,
			seed         TEXT,
			outcome      TEXT,
			return_rate  REAL,
			final_amount REAL,
			message      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_game ON outcomes(game_id, round)`,

		`CREATE TABLE IF NOT EXISTS settlements (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			game_id        TEXT NOT NULL,
			player_id      TEXT NOT NULL,
			player_name    TEXT,
			round          INTEGER NOT NULL,
			invested       REAL,
			payout         REAL,
			net_gain       REAL,
			capital_before REAL,
			capital_after  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_game ON settlements(game_id, round)`,

		`CREATE TABLE IF NOT EXISTS rounds (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			game_id     TEXT NOT NULL,
			round       INTEGER NOT NULL,
			event       TEXT NOT NULL,
			country_a   TEXT,
			country_b   TEXT,
			players     INTEGER,
			submissions INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_game ON rounds(game_id, round)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordOutcome(evt *OutcomeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO outcomes
		(timestamp, game_id, player_id, round, slot, country, amount, seed,
		 outcome, return_rate, final_amount, message)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.GameID, evt.PlayerID, evt.Round, string(evt.Slot),
		evt.Country, evt.Amount, evt.Seed,
		string(evt.Outcome.Kind), evt.Outcome.ReturnRate, evt.Outcome.FinalAmount, evt.Outcome.Message,
	)
	return err
}

func (r *SQLiteRecorder) RecordSettlement(evt *SettlementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO settlements
		(timestamp, game_id, player_id, player_name, round,
		 invested, payout, net_gain, capital_before, capital_after)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.GameID, evt.PlayerID, evt.PlayerName, evt.Round,
		evt.Invested, evt.Payout, evt.NetGain, evt.CapitalBefore, evt.CapitalAfter,
	)
	return err
}

func (r *SQLiteRecorder) RecordRound(evt *RoundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO rounds
		(timestamp, game_id, round, event, country_a, country_b, players, submissions)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.GameID, evt.Round, evt.Event,
		evt.CountryA, evt.CountryB, evt.Players, evt.Submissions,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
