// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/wand/internal/store"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wand"),
		postgres.WithUsername("wand"),
		postgres.WithPassword("wand"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresKV_RoundTrip(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	migrator, err := store.NewMigrator(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = migrator.Close() })

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, migrator.Up())
	pending, err := migrator.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	kv, err := store.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(kv.Close)

	got, err := kv.Get(ctx, "counter", "count")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, kv.Set(ctx, "counter", "count", []byte("1")))
	require.NoError(t, kv.Set(ctx, "counter", "count", []byte("2")))
	require.NoError(t, kv.Set(ctx, "other", "count", []byte("9")))

	got, err = kv.Get(ctx, "counter", "count")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	keys, err := kv.Keys(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, keys)

	require.NoError(t, kv.Delete(ctx, "counter", "count"))
	got, err = kv.Get(ctx, "counter", "count")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, migrator.Steps(-1))
	version, _, err = migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, migrator.Down())
	_, err = kv.Get(ctx, "counter", "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin_kv")
}
