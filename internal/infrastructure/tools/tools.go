// Package tools implements the tools module: latency probes and throughput
// measurement. Tools are compositions of nested socket calls, so every
// connection they make passes the same destination check as a direct call,
// and every socket they open is closed on every exit path.
package tools

import (
	"context"
	"time"

	"github.com/reglet-dev/netgate/internal/application/services"
)

// StopResult is returned by tools.*.stop.
type StopResult struct {
	Stopped bool `json:"stopped" cbor:"stopped"`
}

// Register adds tools.ping and tools.iperf to the registry.
func Register(r *services.Registry) {
	r.Register("tools", "ping", "start", services.Method{Handler: pingStart, Destination: pingDestination, Streaming: true})
	r.Register("tools", "ping", "stop", services.Method{Handler: stop})
	r.Register("tools", "iperf", "start", services.Method{Handler: iperfStart, Destination: iperfDestination, Streaming: true})
	r.Register("tools", "iperf", "serve", services.Method{Handler: iperfServe, Streaming: true})
	r.Register("tools", "iperf", "stop", services.Method{Handler: stop})
}

// stop cancels a running call of the same session by its request id.
func stop(_ context.Context, c *services.Call) (any, error) {
	a := services.ArgsOf(c)
	id := a.Int(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	return StopResult{Stopped: c.Sandbox().Cancel(int64(id))}, nil
}

// sleep waits d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// closeQuietly closes a socket opened by a composition. It runs even when ctx
// is already cancelled.
func closeQuietly(ctx context.Context, c *services.Call, submodule string, h any) {
	_, _ = c.Invoke(context.WithoutCancel(ctx), "socket", submodule, "closeSocket", h)
}
