// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/holomush/wand/internal/bridge"
	"github.com/holomush/wand/internal/wire"
)

func TestLifecycleRequest(t *testing.T) {
	got := wire.ParseLifecycleRequest(wire.NewLifecycleRequest(wire.PhaseCreate, "call-1", 7))
	assert.Equal(t, wire.LifecycleRequest{Phase: "create", CallID: "call-1", Broker: 7}, got)

	got = wire.ParseLifecycleRequest(wire.NewLifecycleRequest(wire.PhaseEnd, "", 0))
	assert.Equal(t, wire.LifecycleRequest{Phase: "end"}, got)
}

func TestCallRequest(t *testing.T) {
	req, err := wire.NewCallRequest("add", "c1", []any{int64(2), bridge.None, "x"}, bridge.IsNone)
	require.NoError(t, err)

	got := wire.ParseCallRequest(req)
	assert.Equal(t, "add", got.Method)
	assert.Equal(t, "c1", got.CallID)
	assert.Equal(t, []any{float64(2), nil, "x"}, got.Args)
}

func TestInvokeRequest(t *testing.T) {
	req, err := wire.NewInvokeRequest("kv.get", "c9", []any{"greeting"})
	require.NoError(t, err)

	got := wire.ParseInvokeRequest(req)
	assert.Equal(t, wire.CallRequest{Method: "kv.get", CallID: "c9", Args: []any{"greeting"}}, got)
}

func TestResult(t *testing.T) {
	res, err := wire.NewResult(int64(5), map[int]any{1: "b", 0: int64(3)}, bridge.IsNone)
	require.NoError(t, err)

	got := wire.ParseResult(res)
	assert.Equal(t, float64(5), got.Value)
	assert.Equal(t, map[int]any{0: float64(3), 1: "b"}, got.Refs)

	res, err = wire.NewResult(bridge.None, nil, bridge.IsNone)
	require.NoError(t, err)
	got = wire.ParseResult(res)
	assert.Nil(t, got.Value)
	assert.Nil(t, got.Refs)
}

func TestParseResult_IgnoresBadRefKeys(t *testing.T) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		wire.FieldRefs: structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"x":  structpb.NewStringValue("ignored"),
			"-1": structpb.NewStringValue("ignored"),
			"2":  structpb.NewStringValue("kept"),
		}}),
	}}
	assert.Equal(t, map[int]any{2: "kept"}, wire.ParseResult(s).Refs)
}

func TestDescription(t *testing.T) {
	d := wire.NewDescription("greeter", []string{"greet", "shout"})
	assert.Equal(t, "greeter", wire.NameOf(d))
	assert.Equal(t, []string{"greet", "shout"}, wire.ParseDescription(d))
}

func TestPluginInfo(t *testing.T) {
	_, ok := wire.ParsePluginInfo(wire.NewPluginInfo(nil))
	assert.False(t, ok)

	in := &wire.PluginInfo{Name: "counter", ID: "01ABC", Version: "1.2.0", State: "started"}
	got, ok := wire.ParsePluginInfo(wire.NewPluginInfo(in))
	require.True(t, ok)
	assert.Equal(t, *in, got)

	assert.Equal(t, "counter", wire.NameOf(wire.NewFindPluginRequest("counter")))
}
