// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/holomush/wand/internal/plugin"
)

// Whatever sequence of requests arrives, states never move backwards and no
// hook runs twice.
func TestManager_LifecycleNeverRegresses(t *testing.T) {
	phases := []plugin.Phase{plugin.PhaseStart, plugin.PhaseEnd, plugin.PhaseDestroy}

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		log := &journal{}
		p := newFake("prop", log)
		if rapid.Bool().Draw(t, "fail") {
			p.fail[rapid.SampledFrom(phases).Draw(t, "failPhase")] = errors.New("injected")
		}

		mgr := newTestManager()
		inst, err := mgr.Load(ctx, describe(p))
		if err != nil {
			t.Fatalf("load: %v", err)
		}

		ops := rapid.SliceOfN(rapid.SampledFrom(phases), 1, 12).Draw(t, "ops")
		last := inst.State()
		for _, op := range ops {
			switch op {
			case plugin.PhaseStart:
				_ = mgr.Start(ctx, inst)
			case plugin.PhaseEnd:
				_ = mgr.End(ctx, inst)
			case plugin.PhaseDestroy:
				_ = mgr.Unload(ctx, inst)
			}
			if now := inst.State(); now < last {
				t.Fatalf("state went from %s back to %s", last, now)
			} else {
				last = now
			}
		}

		entries := log.list()
		seen := make(map[string]bool)
		for _, e := range entries {
			if seen[e] {
				t.Fatalf("hook %s ran twice: %v", e, entries)
			}
			seen[e] = true
		}
		if seen["prop:end"] && !seen["prop:start"] {
			t.Fatalf("OnEnd without OnStart: %v", entries)
		}
		if i := slices.Index(entries, "prop:destroy"); i >= 0 && i != len(entries)-1 {
			t.Fatalf("hook after OnDestroy: %v", entries)
		}
		_, registered := mgr.Registry().FindByName("prop")
		if registered == (inst.State() == plugin.StateDestroyed) {
			t.Fatalf("registered=%v in state %s", registered, inst.State())
		}
	})
}
