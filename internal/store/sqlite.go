package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"RiskArena/internal/model"
)

// SQLiteStore persists one msgpack-encoded document per game. The version
// column guards read-modify-write cycles against concurrent writers.
type SQLiteStore struct {
	db  *sql.DB
	hub *hub
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string, log zerolog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, hub: newHub(), log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id          TEXT PRIMARY KEY,
			code        TEXT NOT NULL UNIQUE,
			status      TEXT NOT NULL,
			version     INTEGER NOT NULL,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			data        BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_status ON games(status, finished_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("exec %q: %w", q[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, g *model.Game) error {
	stored := g.Clone()
	stored.Code = strings.ToUpper(stored.Code)
	stored.Version = 1
	data, err := msgpack.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode game: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO games
		(id, code, status, version, created_at, updated_at, finished_at, data)
		VALUES (?,?,?,?,?,?,?,?)`,
		stored.ID, stored.Code, string(stored.Status), stored.Version,
		stored.CreatedAt.Unix(), stored.UpdatedAt.Unix(), unixOrZero(stored.FinishedAt), data,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrExists
		}
		return fmt.Errorf("insert game: %w", err)
	}
	g.Version = stored.Version
	s.hub.publish(stored)
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Game, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `SELECT data, version FROM games WHERE id = ?`, id))
}

func (s *SQLiteStore) FindByCode(ctx context.Context, code string) (*model.Game, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT data, version FROM games WHERE code = ?`, strings.ToUpper(strings.TrimSpace(code))))
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*model.Game) error) (*model.Game, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := cur.Version
	if err := fn(cur); err != nil {
		return nil, err
	}
	cur.ID = id
	cur.Version = prev + 1
	data, err := msgpack.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("encode game: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE games
		SET status = ?, version = ?, updated_at = ?, finished_at = ?, data = ?
		WHERE id = ? AND version = ?`,
		string(cur.Status), cur.Version, cur.UpdatedAt.Unix(), unixOrZero(cur.FinishedAt), data,
		id, prev,
	)
	if err != nil {
		return nil, fmt.Errorf("update game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update game: %w", err)
	}
	if n == 0 {
		return nil, ErrConflict
	}
	s.hub.publish(cur)
	return cur.Clone(), nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, id string) (<-chan model.Game, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup game: %w", err)
	}
	return s.hub.subscribe(ctx, id), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.hub.closeGame(id)
	return nil
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]*model.Game, error) {
	return s.list(ctx, `SELECT data, version FROM games WHERE status = ? ORDER BY created_at`,
		string(model.StatusActive))
}

func (s *SQLiteStore) ListFinishedBefore(ctx context.Context, t time.Time) ([]*model.Game, error) {
	return s.list(ctx, `SELECT data, version FROM games
		WHERE status = ? AND finished_at < ? ORDER BY created_at`,
		string(model.StatusFinished), t.Unix())
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]*model.Game, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []*model.Game
	for rows.Next() {
		g, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanOne(row scanner) (*model.Game, error) {
	var (
		data    []byte
		version int64
	)
	if err := row.Scan(&data, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan game: %w", err)
	}
	g := &model.Game{}
	if err := msgpack.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	g.Version = version
	if g.Players == nil {
		g.Players = make(map[string]*model.Player)
	}
	if g.Rounds == nil {
		g.Rounds = make(map[int]*model.Round)
	}
	return g, nil
}

func (s *SQLiteStore) Close() error {
	s.hub.closeAll()
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
