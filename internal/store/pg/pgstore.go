// Package pg persists the registry's versioned-record stores in PostgreSQL.
// Records are stored as jsonb exactly as the envelope wraps them; the schema
// tag travels inside the record, so deploys never need data migrations.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"guildry.org/internal/envelope"
	"guildry.org/internal/registry"
)

// Store implements registry.Store over a Postgres pool.
type Store struct {
	db *sql.DB
	view
}

var _ registry.Store = (*Store)(nil)

// Open connects to Postgres with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, view: view{q: db}}, nil
}

// NewWithDB wraps an existing pool (used by tests and cmd/migrate).
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, view: view{q: db}}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Atomic runs fn inside a single transaction.
func (s *Store) Atomic(ctx context.Context, fn func(registry.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&txStore{view{q: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore is the transaction-scoped view handed to Atomic callbacks.
type txStore struct {
	view
}

// Atomic on an already transactional view just runs fn.
func (t *txStore) Atomic(ctx context.Context, fn func(registry.Store) error) error {
	return fn(t)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// view implements the per-store accessors against a querier. Table names are
// code constants, never caller input.
type view struct {
	q querier
}

func (v view) Entities() registry.KV          { return kvTable{v.q, "entities"} }
func (v view) Contributors() registry.KV      { return kvTable{v.q, "contributors"} }
func (v view) Contributions() registry.PairKV { return pairTable{v.q, "contributions"} }
func (v view) Requests() registry.PairKV      { return pairTable{v.q, "contribution_requests"} }
func (v view) Invites() registry.PairKV       { return pairTable{v.q, "contribution_invites"} }
func (v view) Needs() registry.PairKV         { return pairTable{v.q, "contribution_needs"} }

func (v view) Moderator(ctx context.Context) (string, error) {
	var value string
	err := v.q.QueryRowContext(ctx, `select value from registry_meta where name = 'moderator'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (v view) SetModerator(ctx context.Context, accountID string) error {
	_, err := v.q.ExecContext(ctx, `
		insert into registry_meta(name, value) values ('moderator', $1)
		on conflict (name) do update set value = excluded.value
	`, accountID)
	return err
}

type kvTable struct {
	q     querier
	table string
}

func (t kvTable) Get(ctx context.Context, key string) (envelope.Record, bool, error) {
	var raw []byte
	err := t.q.QueryRowContext(ctx, `select record from `+t.table+` where id = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return envelope.Record{}, false, nil
	}
	if err != nil {
		return envelope.Record{}, false, err
	}
	rec, err := decodeRecord(raw)
	return rec, err == nil, err
}

func (t kvTable) Put(ctx context.Context, key string, rec envelope.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
		insert into `+t.table+`(id, record, updated_at) values ($1, $2, now())
		on conflict (id) do update set record = excluded.record, updated_at = now()
	`, key, raw)
	return err
}

func (t kvTable) Delete(ctx context.Context, key string) (bool, error) {
	res, err := t.q.ExecContext(ctx, `delete from `+t.table+` where id = $1`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t kvTable) All(ctx context.Context) (map[string]envelope.Record, error) {
	rows, err := t.q.QueryContext(ctx, `select id, record from `+t.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]envelope.Record)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out[key] = rec
	}
	return out, rows.Err()
}

type pairTable struct {
	q     querier
	table string
}

func (t pairTable) Get(ctx context.Context, key registry.PairKey) (envelope.Record, bool, error) {
	var raw []byte
	err := t.q.QueryRowContext(ctx,
		`select record from `+t.table+` where entity_id = $1 and member = $2`,
		key.EntityID, key.Member).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return envelope.Record{}, false, nil
	}
	if err != nil {
		return envelope.Record{}, false, err
	}
	rec, err := decodeRecord(raw)
	return rec, err == nil, err
}

func (t pairTable) Put(ctx context.Context, key registry.PairKey, rec envelope.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
		insert into `+t.table+`(entity_id, member, record, updated_at) values ($1, $2, $3, now())
		on conflict (entity_id, member) do update set record = excluded.record, updated_at = now()
	`, key.EntityID, key.Member, raw)
	return err
}

func (t pairTable) Delete(ctx context.Context, key registry.PairKey) (bool, error) {
	res, err := t.q.ExecContext(ctx,
		`delete from `+t.table+` where entity_id = $1 and member = $2`,
		key.EntityID, key.Member)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t pairTable) All(ctx context.Context) (map[registry.PairKey]envelope.Record, error) {
	rows, err := t.q.QueryContext(ctx, `select entity_id, member, record from `+t.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[registry.PairKey]envelope.Record)
	for rows.Next() {
		var key registry.PairKey
		var raw []byte
		if err := rows.Scan(&key.EntityID, &key.Member, &raw); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out[key] = rec
	}
	return out, rows.Err()
}

func decodeRecord(raw []byte) (envelope.Record, error) {
	var rec envelope.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return envelope.Record{}, err
	}
	return rec, nil
}
