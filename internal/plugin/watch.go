// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/holomush/wand/pkg/errutil"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Replacer swaps a live plugin for a freshly loaded one.
type Replacer interface {
	Replace(ctx context.Context, desc *Descriptor) (*Instance, error)
}

// Watcher reloads plugins whose directory changes on disk.
type Watcher struct {
	root     string
	target   Replacer
	logger   *slog.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the settle time before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// NewWatcher watches root and every plugin directory directly under it.
func NewWatcher(root string, target Replacer, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		target:   target,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fsw.Add(root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.addDir(filepath.Join(root, entry.Name()))
		}
	}
	return w, nil
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("closing file watcher", "error", err)
		}
	}()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var settle <-chan time.Time
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			dir := w.pluginDir(event)
			if dir == "" {
				continue
			}
			pending[dir] = true
			timer.Reset(w.debounce)
			settle = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		case <-settle:
			settle = nil
			dirs := make([]string, 0, len(pending))
			for dir := range pending {
				dirs = append(dirs, dir)
			}
			clear(pending)
			slices.Sort(dirs)
			for _, dir := range dirs {
				w.reload(ctx, dir)
			}
		}
	}
}

// pluginDir maps an event to the plugin directory it belongs to, or "".
func (w *Watcher) pluginDir(event fsnotify.Event) string {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	name, _, nested := strings.Cut(rel, string(filepath.Separator))
	dir := filepath.Join(w.root, name)
	if !nested && event.Has(fsnotify.Create) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			w.addDir(dir)
		}
	}
	return dir
}

func (w *Watcher) addDir(dir string) {
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("cannot watch plugin directory", "dir", dir, "error", err)
	}
}

func (w *Watcher) reload(ctx context.Context, dir string) {
	desc, err := LoadManifest(dir)
	if err != nil {
		w.logger.Warn("not reloading plugin with unreadable manifest",
			"dir", dir,
			"error", FormatSchemaError(err))
		return
	}
	if _, err := w.target.Replace(ctx, desc); err != nil {
		errutil.LogError(w.logger, "plugin reload failed", err, "plugin", desc.Name)
		return
	}
	w.logger.Info("plugin reloaded from disk", "plugin", desc.Name, "dir", dir)
}
