// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements the greeter binary plugin.
//
// Build with:
//
//	go build -o plugins/greeter/greeter ./plugins/greeter
package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/holomush/wand/pkg/pluginsdk"
)

type greeter struct {
	pluginsdk.NopHooks
	greeted atomic.Int64
}

// OnStart announces the plugin through the host log.
func (g *greeter) OnStart(ctx context.Context) error {
	host, ok := pluginsdk.HostFrom(ctx)
	if !ok {
		return nil
	}
	return host.Log(ctx, "info", "greeter ready")
}

// greet returns a greeting and counts how many were handed out.
func (g *greeter) greet(_ context.Context, call *pluginsdk.Call) (any, error) {
	name, err := pluginsdk.Arg[string](call, 0)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("greet: name is empty")
	}
	g.greeted.Add(1)
	return "hello, " + name, nil
}

// shout greets through the counter plugin when it is around, so the
// greeting carries a sequence number.
func (g *greeter) shout(ctx context.Context, call *pluginsdk.Call) (any, error) {
	name, err := pluginsdk.Arg[string](call, 0)
	if err != nil {
		return nil, err
	}
	host, ok := pluginsdk.HostFrom(ctx)
	if !ok {
		return strings.ToUpper("hello, " + name), nil
	}
	if _, found, err := host.FindPlugin(ctx, "counter"); err != nil || !found {
		return strings.ToUpper("hello, " + name), err
	}
	res, err := host.Invoke(ctx, "counter.increment")
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("HELLO, %s (#%v)", strings.ToUpper(name), res.Value), nil
}

// tally writes the greeting count into the first argument slot.
func (g *greeter) tally(_ context.Context, call *pluginsdk.Call) (any, error) {
	call.SetRef(0, float64(g.greeted.Load()))
	return nil, nil
}

func main() {
	g := &greeter{}
	pluginsdk.Serve(&pluginsdk.ServeConfig{
		Name:  "greeter",
		Hooks: g,
		Methods: map[string]pluginsdk.Method{
			"greet": g.greet,
			"shout": g.shout,
			"tally": g.tally,
		},
	})
}
