// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostfunc_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/wand/internal/plugin/hostfunc"
)

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := hostfunc.NewMemoryKV()

	v, err := kv.Get(ctx, "a", "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, kv.Set(ctx, "a", "k", []byte("one")))
	require.NoError(t, kv.Set(ctx, "b", "k", []byte("two")))
	require.NoError(t, kv.Set(ctx, "a", "empty", nil))

	v, err = kv.Get(ctx, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	v, err = kv.Get(ctx, "a", "empty")
	require.NoError(t, err)
	assert.NotNil(t, v, "stored empty value is distinct from missing")
	assert.Empty(t, v)

	assert.Equal(t, []string{"empty", "k"}, kv.Keys("a"))
	assert.Equal(t, 3, kv.Len())

	require.NoError(t, kv.Delete(ctx, "a", "k"))
	require.NoError(t, kv.Delete(ctx, "a", "k"))
	assert.Equal(t, []string{"k"}, kv.Keys("b"))

	assert.ErrorIs(t, kv.Set(ctx, "a", "", []byte("x")), hostfunc.ErrEmptyKey)
	_, err = kv.Get(ctx, "a", "")
	assert.ErrorIs(t, err, hostfunc.ErrEmptyKey)
	assert.ErrorIs(t, kv.Delete(ctx, "a", ""), hostfunc.ErrEmptyKey)
}

func TestMemoryKV_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	kv := hostfunc.NewMemoryKV()
	in := []byte("abc")
	require.NoError(t, kv.Set(ctx, "a", "k", in))
	in[0] = 'x'

	out, err := kv.Get(ctx, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
	out[0] = 'y'

	again, err := kv.Get(ctx, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryKV_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	kv := hostfunc.NewMemoryKV()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 32 {
				assert.NoError(t, kv.Set(ctx, fmt.Sprintf("p%d", i), fmt.Sprintf("k%d", j), []byte("v")))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16*32, kv.Len())
}
