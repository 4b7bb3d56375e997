// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides PostgreSQL persistence for plugin key-value data.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// Error codes for store failures.
const (
	CodeConnectFailed = "DB_CONNECT_FAILED"
	CodeSchemaMissing = "DB_SCHEMA_MISSING"
	CodeQueryFailed   = "DB_QUERY_FAILED"
)

// ErrEmptyKey is returned for operations on an empty key.
var ErrEmptyKey = errors.New("key cannot be empty")

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresKV stores plugin key-value data in the plugin_kv table. Values
// survive host restarts and plugin reloads.
type PostgresKV struct {
	pool Pool
}

// NewPostgresKV creates a store over an existing pool.
func NewPostgresKV(pool Pool) *PostgresKV {
	return &PostgresKV{pool: pool}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*PostgresKV, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.In("store").Code(CodeConnectFailed).Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.In("store").Code(CodeConnectFailed).Hint("database is unreachable").Wrap(err)
	}
	return NewPostgresKV(pool), nil
}

// Close releases the pool.
func (s *PostgresKV) Close() {
	s.pool.Close()
}

// Get returns nil, nil for a missing key.
func (s *PostgresKV) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM plugin_kv WHERE namespace = $1 AND key = $2`,
		namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryError(err, "get", namespace, key)
	}
	return value, nil
}

// Set creates or replaces a value.
func (s *PostgresKV) Set(ctx context.Context, namespace, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO plugin_kv (namespace, key, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = $3, updated_at = now()`,
		namespace, key, value)
	if err != nil {
		return queryError(err, "set", namespace, key)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *PostgresKV) Delete(ctx context.Context, namespace, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM plugin_kv WHERE namespace = $1 AND key = $2`,
		namespace, key)
	if err != nil {
		return queryError(err, "delete", namespace, key)
	}
	return nil
}

// Keys lists the keys of a namespace in order.
func (s *PostgresKV) Keys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM plugin_kv WHERE namespace = $1 ORDER BY key`,
		namespace)
	if err != nil {
		return nil, queryError(err, "keys", namespace, "")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, queryError(err, "scan key", namespace, "")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err, "iterate keys", namespace, "")
	}
	return keys, nil
}

func queryError(err error, op, namespace, key string) error {
	b := oops.In("store").Code(CodeQueryFailed).
		With("operation", op).
		With("namespace", namespace)
	if key != "" {
		b = b.With("key", key)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		b = b.With("sqlstate", pgErr.Code)
		if pgErr.Code == pgerrcode.UndefinedTable {
			return b.Code(CodeSchemaMissing).Hint("run `wand migrate up` first").Wrap(err)
		}
	}
	return b.Wrap(err)
}
