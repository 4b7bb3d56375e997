// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/wand/internal/plugin"
	"github.com/holomush/wand/pkg/errutil"
	"github.com/holomush/wand/pkg/pluginsdk"
)

// createTempExecutable creates a dummy file that passes os.Stat checks.
func createTempExecutable(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin"), []byte("dummy"), 0o600))
	return dir
}

func binaryDescriptor(name, dir, executable string) *plugin.Descriptor {
	return &plugin.Descriptor{
		Name:    name,
		Version: "1.0.0",
		Kind:    Kind,
		Dir:     dir,
		Manifest: &plugin.Manifest{
			Name:         name,
			Version:      "1.0.0",
			Type:         plugin.TypeBinary,
			BinaryPlugin: &plugin.BinaryConfig{Executable: executable},
		},
	}
}

// mockClientProtocol implements hashiplug.ClientProtocol for testing.
type mockClientProtocol struct {
	dispenseErr error
	raw         any
}

func (m *mockClientProtocol) Close() error { return nil }
func (m *mockClientProtocol) Dispense(_ string) (any, error) {
	if m.dispenseErr != nil {
		return nil, m.dispenseErr
	}
	return m.raw, nil
}
func (m *mockClientProtocol) Ping() error { return nil }

// mockPluginClient implements PluginClient for testing.
type mockPluginClient struct {
	protocol  hashiplug.ClientProtocol
	clientErr error
	mu        sync.Mutex
	killed    bool
}

func (m *mockPluginClient) Client() (hashiplug.ClientProtocol, error) {
	if m.clientErr != nil {
		return nil, m.clientErr
	}
	return m.protocol, nil
}

func (m *mockPluginClient) Kill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killed {
		return
	}
	m.killed = true
	if m.protocol != nil {
		_ = m.protocol.Close()
	}
}

func (m *mockPluginClient) wasKilled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killed
}

// scriptedFactory hands out clients in order, repeating the last one.
type scriptedFactory struct {
	clients []*mockPluginClient
	calls   int
	paths   []string
}

func (f *scriptedFactory) NewClient(execPath string) PluginClient {
	f.paths = append(f.paths, execPath)
	i := min(f.calls, len(f.clients)-1)
	f.calls++
	return f.clients[i]
}

func TestNewFactory_NilClientFactoryPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewFactory(WithClientFactory(nil))
	})
}

func TestNewFactory_Defaults(t *testing.T) {
	f := NewFactory()
	assert.IsType(t, &DefaultClientFactory{}, f.clients)
	assert.Equal(t, uint64(DefaultConnectAttempts), f.attempts)
	assert.Equal(t, DefaultConnectBackoff, f.backoff)
}

func TestFactory_New_RejectsBadDescriptors(t *testing.T) {
	dir := createTempExecutable(t)
	f := NewFactory(WithClientFactory(&scriptedFactory{clients: []*mockPluginClient{{}}}))

	tests := []struct {
		name    string
		desc    *plugin.Descriptor
		message string
	}{
		{
			name:    "no manifest",
			desc:    &plugin.Descriptor{Name: "bare", Kind: Kind, Dir: dir},
			message: "not a binary plugin",
		},
		{
			name:    "executable escapes directory",
			desc:    binaryDescriptor("escape", dir, "../outside"),
			message: "inside the plugin directory",
		},
		{
			name:    "executable missing",
			desc:    binaryDescriptor("missing", dir, "nope"),
			message: "no such file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.New(context.Background(), tt.desc, plugin.Env{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestFactory_New_MissingExecutableHint(t *testing.T) {
	dir := createTempExecutable(t)
	f := NewFactory(WithClientFactory(&scriptedFactory{clients: []*mockPluginClient{{}}}))

	_, err := f.New(context.Background(), binaryDescriptor("missing", dir, "nope"), plugin.Env{})
	errutil.AssertErrorHint(t, err, "executable not found")
	errutil.AssertErrorContext(t, err, "plugin", "missing")
}

func TestFactory_New_RetriesConnect(t *testing.T) {
	dir := createTempExecutable(t)
	failing := &mockPluginClient{clientErr: errors.New("handshake failed")}
	working := &mockPluginClient{protocol: &mockClientProtocol{raw: &Conn{}}}
	cf := &scriptedFactory{clients: []*mockPluginClient{failing, failing, working}}
	f := NewFactory(WithClientFactory(cf), WithConnectRetry(3, time.Millisecond))

	p, err := f.New(context.Background(), binaryDescriptor("flaky", dir, "plugin"), plugin.Env{})
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, 3, cf.calls)
	assert.True(t, failing.wasKilled())
	assert.False(t, working.wasKilled())
	assert.Equal(t, filepath.Join(dir, "plugin"), cf.paths[0])
}

func TestFactory_New_GivesUp(t *testing.T) {
	dir := createTempExecutable(t)
	failing := &mockPluginClient{protocol: &mockClientProtocol{dispenseErr: errors.New("dispense failed")}}
	cf := &scriptedFactory{clients: []*mockPluginClient{failing}}
	f := NewFactory(WithClientFactory(cf), WithConnectRetry(2, time.Millisecond))

	_, err := f.New(context.Background(), binaryDescriptor("down", dir, "plugin"), plugin.Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispense failed")
	assert.Equal(t, 2, cf.calls)
}

func TestFactory_New_WrongProtocolIsNotRetried(t *testing.T) {
	dir := createTempExecutable(t)
	client := &mockPluginClient{protocol: &mockClientProtocol{raw: "not a conn"}}
	cf := &scriptedFactory{clients: []*mockPluginClient{client}}
	f := NewFactory(WithClientFactory(cf), WithConnectRetry(5, time.Millisecond))

	_, err := f.New(context.Background(), binaryDescriptor("odd", dir, "plugin"), plugin.Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wand plugin protocol")
	assert.Equal(t, 1, cf.calls)
	assert.True(t, client.wasKilled())
}

func TestFactory_New_HonorsCanceledContext(t *testing.T) {
	dir := createTempExecutable(t)
	failing := &mockPluginClient{clientErr: errors.New("handshake failed")}
	cf := &scriptedFactory{clients: []*mockPluginClient{failing}}
	f := NewFactory(WithClientFactory(cf), WithConnectRetry(100, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.New(ctx, binaryDescriptor("slow", dir, "plugin"), plugin.Env{})
	require.Error(t, err)
	assert.Equal(t, 1, cf.calls)
}

func TestPluginMap_UsesSDKKey(t *testing.T) {
	_, ok := PluginMap[pluginsdk.PluginKey]
	assert.True(t, ok)
	assert.Equal(t, pluginsdk.HandshakeConfig, HandshakeConfig)
}
