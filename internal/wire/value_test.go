// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package wire_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
	"pgregory.net/rapid"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/wire"
)

func TestToValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "nil", in: nil, want: nil},
		{name: "none", in: bridge.None, want: nil},
		{name: "bool", in: true, want: true},
		{name: "string", in: "hi", want: "hi"},
		{name: "int64", in: int64(-7), want: float64(-7)},
		{name: "uint8", in: uint8(200), want: float64(200)},
		{name: "float32", in: float32(1.5), want: float64(1.5)},
		{name: "typed slice", in: []int32{1, 2}, want: []any{float64(1), float64(2)}},
		{name: "nested", in: []any{"a", []any{true}}, want: []any{"a", []any{true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := wire.ToValue(tt.in, bridge.IsNone)
			require.NoError(t, err)
			assert.Equal(t, tt.want, wire.FromValue(v))
		})
	}
}

func TestToValue_Rejects(t *testing.T) {
	cb := bridge.Callback(func(context.Context, ...any) (any, error) { return nil, nil })
	_, err := wire.ToValue(cb, bridge.IsNone)
	require.ErrorIs(t, err, wire.ErrFunctionValue)

	_, err = wire.ToValue([]any{1, cb}, bridge.IsNone)
	require.ErrorIs(t, err, wire.ErrFunctionValue)

	_, err = wire.ToValue(struct{}{}, nil)
	require.Error(t, err)
}

func TestToValue_NoneWithoutChecker(t *testing.T) {
	v, err := wire.ToValue(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &structpb.Value_NullValue{}, v.GetKind())
}

func TestNumbersSurviveTheWire(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Int32().Draw(t, "n")
		v, err := wire.ToValue(n, bridge.IsNone)
		require.NoError(t, err)

		got, err := bridge.Marshal(bridge.Type{Kind: bridge.KindInt32}, wire.FromValue(v))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	})
}
