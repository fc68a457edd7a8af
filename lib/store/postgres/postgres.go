// Package postgres implements the intent log for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tarancss/linka/lib/store"
)

const schema = `CREATE TABLE IF NOT EXISTS escrow_intents (
	id         TEXT PRIMARY KEY,
	op         TEXT NOT NULL,
	escrow_id  TEXT NOT NULL DEFAULT '',
	tx_hash    TEXT NOT NULL DEFAULT '',
	from_block BIGINT NOT NULL DEFAULT 0,
	payload    JSONB,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	attempts   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS escrow_intents_open ON escrow_intents (status, updated_at);`

const columns = `id, op, escrow_id, tx_hash, from_block, payload, status, error, attempts, created_at, updated_at`

// Postgres implements store.IntentLog on a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection'.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	return &Postgres{db: db}, nil
}

// NewWithDB wraps an already opened database handle.
func NewWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Setup creates the intent table if it does not exist.
func (p *Postgres) Setup(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("cannot create intent table: %w", err)
	}

	return nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// AddIntent records a new intent.
func (p *Postgres) AddIntent(ctx context.Context, in *store.Intent) error {
	now := time.Now().UTC()
	in.CreatedAt, in.UpdatedAt = now, now

	var payload interface{}
	if len(in.Payload) > 0 {
		payload = []byte(in.Payload)
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO escrow_intents (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		in.ID, in.Op, in.EscrowID, in.TxHash, int64(in.FromBlock), payload, in.Status, in.Error, in.Attempts, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("intent %s: %w", in.ID, store.ErrDuplicate)
		}

		return fmt.Errorf("could not insert intent: %w", err)
	}

	return nil
}

// UpdateIntent sets the non-empty fields of u and counts one more attempt.
func (p *Postgres) UpdateIntent(ctx context.Context, id string, u store.IntentUpdate) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE escrow_intents SET
			status = COALESCE(NULLIF($2, ''), status),
			tx_hash = COALESCE(NULLIF($3, ''), tx_hash),
			escrow_id = COALESCE(NULLIF($4, ''), escrow_id),
			error = COALESCE(NULLIF($5, ''), error),
			attempts = attempts + 1,
			updated_at = $6
		WHERE id = $1`,
		id, u.Status, u.TxHash, u.EscrowID, u.Error, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("could not update intent %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not update intent %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("intent %s: %w", id, store.ErrNotFound)
	}

	return nil
}

// GetIntent finds an intent by id.
func (p *Postgres) GetIntent(ctx context.Context, id string) (*store.Intent, error) {
	in, err := scanIntent(p.db.QueryRowContext(ctx, `SELECT `+columns+` FROM escrow_intents WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("intent %s: %w", id, store.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("could not get intent %s: %w", id, err)
	}

	return in, nil
}

// OpenIntents returns intents still pending, submitted or mined that were last touched before the given time, least
// recently touched first.
func (p *Postgres) OpenIntents(ctx context.Context, before time.Time, limit int) ([]store.Intent, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+columns+` FROM escrow_intents WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		pq.Array(store.OpenStatuses), before, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list open intents: %w", err)
	}
	defer rows.Close()

	ins := []store.Intent{}

	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan intent: %w", err)
		}

		ins = append(ins, *in)
	}

	return ins, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIntent(s scanner) (*store.Intent, error) {
	var (
		in        store.Intent
		fromBlock int64
		payload   []byte
	)

	err := s.Scan(&in.ID, &in.Op, &in.EscrowID, &in.TxHash, &fromBlock, &payload, &in.Status, &in.Error, &in.Attempts,
		&in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}

	in.FromBlock = uint64(fromBlock)
	in.Payload = payload

	return &in, nil
}
