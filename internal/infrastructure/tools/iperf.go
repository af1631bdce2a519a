package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/reglet-dev/netgate/internal/application/dto"
	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/services"
	"github.com/reglet-dev/netgate/internal/domain/permission"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

const maxBlockSize = 1 << 20

// IperfOptions configures tools.iperf.start and tools.iperf.serve.
type IperfOptions struct {
	Proto     values.Scheme
	Host      string
	Port      int
	Duration  time.Duration
	Interval  time.Duration
	Timeout   time.Duration
	BlockSize int
}

// IntervalReport is emitted once per interval.
type IntervalReport struct {
	Bytes         int64   `json:"bytes" cbor:"bytes"`
	IntervalMs    float64 `json:"interval_ms" cbor:"interval_ms"`
	BitsPerSecond float64 `json:"bits_per_second" cbor:"bits_per_second"`
}

// IperfReport is the final report of a run.
type IperfReport struct {
	Bytes         int64   `json:"bytes" cbor:"bytes"`
	DurationMs    float64 `json:"duration_ms" cbor:"duration_ms"`
	BitsPerSecond float64 `json:"bits_per_second" cbor:"bits_per_second"`
	Stopped       bool    `json:"stopped,omitempty" cbor:"stopped,omitempty"`
}

// ServeEvent reports server progress before any data flows.
type ServeEvent struct {
	State string `json:"state" cbor:"state"`
	Peer  string `json:"peer,omitempty" cbor:"peer,omitempty"`
	Port  int    `json:"port,omitempty" cbor:"port,omitempty"`
}

func iperfOptions(o dto.ObjectView, server bool) (IperfOptions, error) {
	var opts IperfOptions
	var err error
	read := func(key string, def int) int {
		if err != nil {
			return 0
		}
		var n int
		n, err = o.Int(key, def)
		return n
	}

	proto, perr := o.String("proto", string(values.SchemeTCP))
	if perr != nil {
		return IperfOptions{}, perr
	}
	host, herr := o.String("host", "")
	if herr != nil {
		return IperfOptions{}, herr
	}
	opts.Proto = values.Scheme(proto)
	opts.Host = host
	opts.Port = read("port", 0)
	opts.Duration = time.Duration(read("duration_ms", 2000)) * time.Millisecond
	opts.Interval = time.Duration(read("interval_ms", 500)) * time.Millisecond
	opts.Timeout = time.Duration(read("timeout_ms", 10000)) * time.Millisecond
	opts.BlockSize = read("block_size", 16*1024)
	if err != nil {
		return IperfOptions{}, err
	}

	switch {
	case opts.Proto != values.SchemeTCP:
		return IperfOptions{}, fmt.Errorf("iperf supports tcp only, got %q", proto)
	case !server && opts.Host == "":
		return IperfOptions{}, fmt.Errorf("iperf requires a host")
	case opts.Port < 0 || opts.Port > 65535 || (!server && opts.Port == 0):
		return IperfOptions{}, fmt.Errorf("iperf port %d out of range", opts.Port)
	case opts.BlockSize < 1 || opts.BlockSize > maxBlockSize:
		return IperfOptions{}, fmt.Errorf("iperf block_size must be in 1..%d", maxBlockSize)
	case opts.Duration <= 0 || opts.Interval <= 0 || opts.Timeout <= 0:
		return IperfOptions{}, fmt.Errorf("iperf durations must be positive")
	}
	return opts, nil
}

func iperfDestination(p dto.Params) (permission.DestinationQuery, error) {
	o, err := p.Object(0)
	if err != nil {
		return permission.DestinationQuery{}, err
	}
	opts, err := iperfOptions(o, false)
	if err != nil {
		return permission.DestinationQuery{}, err
	}
	return permission.DestinationQuery{Proto: opts.Proto, Host: opts.Host, Port: opts.Port}, nil
}

// meter accumulates transferred bytes and emits interval reports.
type meter struct {
	c        *services.Call
	start    time.Time
	last     time.Time
	interval time.Duration
	total    int64
	current  int64
}

func newMeter(c *services.Call, interval time.Duration) *meter {
	now := time.Now()
	return &meter{c: c, start: now, last: now, interval: interval}
}

// add records n bytes and reports false once the caller stopped listening.
func (m *meter) add(n int) bool {
	m.total += int64(n)
	m.current += int64(n)
	elapsed := time.Since(m.last)
	if elapsed < m.interval {
		return true
	}
	report := IntervalReport{
		Bytes:         m.current,
		IntervalMs:    float64(elapsed.Microseconds()) / 1000,
		BitsPerSecond: bitsPerSecond(m.current, elapsed),
	}
	m.last = time.Now()
	m.current = 0
	return m.c.Emit(report)
}

func (m *meter) report(stopped bool) IperfReport {
	elapsed := time.Since(m.start)
	return IperfReport{
		Bytes:         m.total,
		DurationMs:    float64(elapsed.Microseconds()) / 1000,
		BitsPerSecond: bitsPerSecond(m.total, elapsed),
		Stopped:       stopped,
	}
}

func bitsPerSecond(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes*8) / d.Seconds()
}

// iperfStart connects to a server and sends blocks for the configured
// duration.
func iperfStart(ctx context.Context, c *services.Call) (any, error) {
	a := services.ArgsOf(c)
	raw := a.Object(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	opts, err := iperfOptions(raw, false)
	if err != nil {
		return nil, apperrors.NewProtocolError("tools.iperf.start", err)
	}

	hv, err := c.Invoke(ctx, "socket", "tcp", "openSendSocket", opts.Host, opts.Port, int(opts.Timeout/time.Millisecond))
	if err != nil {
		return nil, err
	}
	defer closeQuietly(ctx, c, "tcp", hv)

	block := make([]byte, opts.BlockSize)
	for i := range block {
		block[i] = byte(i)
	}

	m := newMeter(c, opts.Interval)
	for time.Since(m.start) < opts.Duration {
		if ctx.Err() != nil {
			return m.report(true), nil
		}
		rv, err := c.Invoke(ctx, "socket", "tcp", "send", hv, block)
		if err != nil {
			return nil, err
		}
		if !m.add(rv.(services.SendResult).Length) {
			return m.report(true), nil
		}
	}
	return m.report(false), nil
}

// iperfServe accepts one client and counts bytes until it disconnects.
func iperfServe(ctx context.Context, c *services.Call) (any, error) {
	a := services.ArgsOf(c)
	raw := a.Object(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	opts, err := iperfOptions(raw, true)
	if err != nil {
		return nil, apperrors.NewProtocolError("tools.iperf.serve", err)
	}
	timeoutMs := int(opts.Timeout / time.Millisecond)

	lv, err := c.Invoke(ctx, "socket", "tcp", "openListenSocket", opts.Port, true)
	if err != nil {
		return nil, err
	}
	local, err := c.Invoke(ctx, "socket", "tcp", "getHostIP", lv)
	if err != nil {
		closeQuietly(ctx, c, "tcp", lv)
		return nil, err
	}
	c.Emit(ServeEvent{State: "listening", Port: local.(values.Endpoint).Port})

	av, err := c.Invoke(ctx, "socket", "tcp", "acceptstart", lv, timeoutMs)
	if err != nil {
		// the listener survives a failed accept
		closeQuietly(ctx, c, "tcp", lv)
		return nil, err
	}
	accepted := av.(services.AcceptResult)
	defer closeQuietly(ctx, c, "tcp", accepted.Handle)
	c.Emit(ServeEvent{State: "connected", Peer: values.Endpoint{Address: accepted.IP, Port: accepted.Port}.String()})

	m := newMeter(c, opts.Interval)
	for {
		if ctx.Err() != nil {
			return m.report(true), nil
		}
		rv, err := c.Invoke(ctx, "socket", "tcp", "recv", accepted.Handle, true, timeoutMs)
		if err != nil {
			return nil, err
		}
		n := rv.(services.RecvResult).Length
		if n == 0 {
			return m.report(false), nil
		}
		if !m.add(n) {
			return m.report(true), nil
		}
	}
}
