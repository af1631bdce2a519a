package tools

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/reglet-dev/netgate/internal/application/dto"
	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/services"
	"github.com/reglet-dev/netgate/internal/domain/permission"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// PingOptions configures tools.ping.start.
type PingOptions struct {
	Proto    values.Scheme
	Host     string
	Port     int
	Count    int
	Interval time.Duration
	Timeout  time.Duration
}

// ProbeResult is the intermediate report of one probe.
type ProbeResult struct {
	Error *dto.ErrorDetail `json:"error,omitempty" cbor:"error,omitempty"`
	Seq   int              `json:"seq" cbor:"seq"`
	RTTMs float64          `json:"rtt_ms,omitempty" cbor:"rtt_ms,omitempty"`
}

// PingSummary is the final report of tools.ping.start.
type PingSummary struct {
	Sent     int     `json:"sent" cbor:"sent"`
	Received int     `json:"received" cbor:"received"`
	MinMs    float64 `json:"min_ms" cbor:"min_ms"`
	AvgMs    float64 `json:"avg_ms" cbor:"avg_ms"`
	MaxMs    float64 `json:"max_ms" cbor:"max_ms"`
	Stopped  bool    `json:"stopped,omitempty" cbor:"stopped,omitempty"`
}

func (s *PingSummary) add(rtt float64) {
	if s.Received == 0 || rtt < s.MinMs {
		s.MinMs = rtt
	}
	s.MaxMs = math.Max(s.MaxMs, rtt)
	s.AvgMs = (s.AvgMs*float64(s.Received) + rtt) / float64(s.Received+1)
	s.Received++
}

func pingOptions(o dto.ObjectView) (PingOptions, error) {
	proto, err := o.String("proto", string(values.SchemeTCP))
	if err != nil {
		return PingOptions{}, err
	}
	host, err := o.String("host", "")
	if err != nil {
		return PingOptions{}, err
	}
	port, err := o.Int("port", 0)
	if err != nil {
		return PingOptions{}, err
	}
	count, err := o.Int("count", 4)
	if err != nil {
		return PingOptions{}, err
	}
	interval, err := o.Int("interval_ms", 1000)
	if err != nil {
		return PingOptions{}, err
	}
	timeout, err := o.Int("timeout_ms", 1000)
	if err != nil {
		return PingOptions{}, err
	}

	opts := PingOptions{
		Proto:    values.Scheme(proto),
		Host:     host,
		Port:     port,
		Count:    count,
		Interval: time.Duration(interval) * time.Millisecond,
		Timeout:  time.Duration(timeout) * time.Millisecond,
	}
	switch {
	case opts.Proto != values.SchemeTCP && opts.Proto != values.SchemeUDP:
		return PingOptions{}, fmt.Errorf("ping proto must be tcp or udp, got %q", proto)
	case opts.Host == "":
		return PingOptions{}, fmt.Errorf("ping requires a host")
	case opts.Port < 1 || opts.Port > 65535:
		return PingOptions{}, fmt.Errorf("ping port %d out of range", opts.Port)
	case opts.Count < 1:
		return PingOptions{}, fmt.Errorf("ping count must be positive")
	case opts.Timeout <= 0:
		return PingOptions{}, fmt.Errorf("ping timeout must be positive")
	}
	return opts, nil
}

func pingDestination(p dto.Params) (permission.DestinationQuery, error) {
	o, err := p.Object(0)
	if err != nil {
		return permission.DestinationQuery{}, err
	}
	opts, err := pingOptions(o)
	if err != nil {
		return permission.DestinationQuery{}, err
	}
	return permission.DestinationQuery{Proto: opts.Proto, Host: opts.Host, Port: opts.Port}, nil
}

func pingStart(ctx context.Context, c *services.Call) (any, error) {
	a := services.ArgsOf(c)
	raw := a.Object(0)
	if err := a.Err(); err != nil {
		return nil, err
	}
	opts, err := pingOptions(raw)
	if err != nil {
		return nil, apperrors.NewProtocolError("tools.ping.start", err)
	}

	var summary PingSummary
	for seq := 1; seq <= opts.Count; seq++ {
		if seq > 1 && !sleep(ctx, opts.Interval) {
			summary.Stopped = true
			return summary, nil
		}

		summary.Sent++
		rtt, err := probe(ctx, c, opts)
		result := ProbeResult{Seq: seq}
		switch {
		case ctx.Err() != nil:
			summary.Sent--
			summary.Stopped = true
			return summary, nil
		case err == nil:
			summary.add(rtt)
			result.RTTMs = rtt
		case isProbeFailure(err):
			result.Error = apperrors.Detail(err)
		default:
			// denials and bad requests abort the whole run
			return nil, err
		}
		if !c.Emit(result) {
			summary.Stopped = true
			return summary, nil
		}
	}
	return summary, nil
}

// isProbeFailure reports errors that count as a lost probe rather than a
// failed run.
func isProbeFailure(err error) bool {
	switch apperrors.Detail(err).Type {
	case values.ErrorTimeout, values.ErrorSocket:
		return true
	}
	return false
}

// probe measures one round trip in milliseconds. TCP times the connect, UDP
// times a datagram and any reply.
func probe(ctx context.Context, c *services.Call, opts PingOptions) (float64, error) {
	timeoutMs := int(opts.Timeout / time.Millisecond)
	start := time.Now()

	if opts.Proto == values.SchemeTCP {
		hv, err := c.Invoke(ctx, "socket", "tcp", "openSendSocket", opts.Host, opts.Port, timeoutMs)
		if err != nil {
			return 0, err
		}
		rtt := elapsedMs(start)
		closeQuietly(ctx, c, "tcp", hv)
		return rtt, nil
	}

	hv, err := c.Invoke(ctx, "socket", "udp", "openSocket")
	if err != nil {
		return 0, err
	}
	defer closeQuietly(ctx, c, "udp", hv)

	start = time.Now()
	if _, err := c.Invoke(ctx, "socket", "udp", "sendto", hv, pingPayload, opts.Host, opts.Port); err != nil {
		return 0, err
	}
	if _, err := c.Invoke(ctx, "socket", "udp", "recvfrom", hv, false, timeoutMs); err != nil {
		return 0, err
	}
	return elapsedMs(start), nil
}

var pingPayload = []byte("netgate-ping")

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
