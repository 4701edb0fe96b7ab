package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id      BIGSERIAL PRIMARY KEY,
	name    TEXT NOT NULL UNIQUE,
	level   INTEGER NOT NULL DEFAULT 1,
	xp      INTEGER NOT NULL DEFAULT 0,
	wins    INTEGER NOT NULL DEFAULT 0,
	losses  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS matches (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL REFERENCES users(id),
	opponent_id  BIGINT NOT NULL DEFAULT 0,
	result       TEXT NOT NULL,
	damage_dealt INTEGER NOT NULL,
	damage_taken INTEGER NOT NULL,
	length_ms    BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS matches_user_id_idx ON matches (user_id);
`

// PostgresStore persists profiles in PostgreSQL through a pgx pool.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// OpenPostgres connects, pings and bootstraps the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &PostgresStore{Pool: pool}, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.Level, &p.XP, &p.Wins, &p.Losses)
	return p, err
}

// GetOrCreate inserts the name if it is new and returns the stored row.
func (s *PostgresStore) GetOrCreate(ctx context.Context, name string) (Profile, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Profile{}, err
	}

	_, err = s.Pool.Exec(ctx,
		`INSERT INTO users (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name,
	)
	if err != nil {
		return Profile{}, fmt.Errorf("insert user %q: %w", name, err)
	}

	p, err := scanProfile(s.Pool.QueryRow(ctx,
		`SELECT id, name, level, xp, wins, losses FROM users WHERE name = $1`, name,
	))
	if err != nil {
		return Profile{}, fmt.Errorf("load user %q: %w", name, err)
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Profile, error) {
	p, err := scanProfile(s.Pool.QueryRow(ctx,
		`SELECT id, name, level, xp, wins, losses FROM users WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load user %d: %w", id, err)
	}
	return p, nil
}

// RecordMatch inserts the match row and applies the result in one transaction.
func (s *PostgresStore) RecordMatch(ctx context.Context, rec MatchRecord) (Profile, error) {
	if _, err := ParseResult(string(rec.Result)); err != nil {
		return Profile{}, err
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanProfile(tx.QueryRow(ctx,
		`SELECT id, name, level, xp, wins, losses FROM users WHERE id = $1 FOR UPDATE`, rec.UserID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, fmt.Errorf("%w: id %d", ErrNotFound, rec.UserID)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("lock user %d: %w", rec.UserID, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO matches (user_id, opponent_id, result, damage_dealt, damage_taken, length_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.UserID, rec.OpponentID, string(rec.Result), rec.DamageDealt, rec.DamageTaken, rec.Length.Milliseconds(),
	)
	if err != nil {
		return Profile{}, fmt.Errorf("insert match: %w", err)
	}

	p = ApplyResult(p, rec.Result)
	_, err = tx.Exec(ctx,
		`UPDATE users SET level = $2, xp = $3, wins = $4, losses = $5 WHERE id = $1`,
		p.ID, p.Level, p.XP, p.Wins, p.Losses,
	)
	if err != nil {
		return Profile{}, fmt.Errorf("update user %d: %w", p.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Profile{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Profile, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, name, level, xp, wins, losses FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}
