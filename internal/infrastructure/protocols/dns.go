// Package protocols implements the request/response members of the proto
// module: DNS lookups composed from nested socket calls, and HTTP GET.
package protocols

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"

	"github.com/reglet-dev/netgate/internal/application/dto"
	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/services"
	"github.com/reglet-dev/netgate/internal/domain/permission"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

const (
	dnsPort           = 53
	defaultDNSTimeout = 2 * time.Second
)

var recordTypes = map[string]dnsmessage.Type{
	"A":     dnsmessage.TypeA,
	"AAAA":  dnsmessage.TypeAAAA,
	"CNAME": dnsmessage.TypeCNAME,
	"MX":    dnsmessage.TypeMX,
	"NS":    dnsmessage.TypeNS,
	"PTR":   dnsmessage.TypePTR,
	"SRV":   dnsmessage.TypeSRV,
	"TXT":   dnsmessage.TypeTXT,
}

// Answer is one resource record of a lookup.
type Answer struct {
	Name string `json:"name" cbor:"name"`
	Type string `json:"type" cbor:"type"`
	Data string `json:"data" cbor:"data"`
	TTL  uint32 `json:"ttl" cbor:"ttl"`
}

// LookupResult is returned by proto.dns.lookup.
type LookupResult struct {
	Rcode   string   `json:"rcode" cbor:"rcode"`
	Answers []Answer `json:"answers" cbor:"answers"`
}

// splitServer accepts "host" or "host:port" and defaults the port to 53.
func splitServer(server string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(server)
	if err != nil {
		// no port given
		return strings.Trim(server, "[]"), dnsPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid dns server port %q", portStr)
	}
	return host, port, nil
}

func dnsDestination(p dto.Params) (permission.DestinationQuery, error) {
	server, err := p.String(0)
	if err != nil {
		return permission.DestinationQuery{}, err
	}
	host, port, err := splitServer(server)
	if err != nil {
		return permission.DestinationQuery{}, err
	}
	return permission.DestinationQuery{Proto: values.SchemeUDP, Host: host, Port: port}, nil
}

func lookup(ctx context.Context, c *services.Call) (any, error) {
	a := services.ArgsOf(c)
	server, name := a.String(0), a.String(1)
	qtype := "A"
	if c.Params().Has(2) {
		qtype = strings.ToUpper(a.String(2))
	}
	timeout := a.Timeout(3, defaultDNSTimeout)
	if err := a.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}

	t, ok := recordTypes[qtype]
	if !ok {
		return nil, apperrors.NewProtocolError("unsupported record type "+strconv.Quote(qtype), nil)
	}
	host, port, err := splitServer(server)
	if err != nil {
		return nil, apperrors.NewProtocolError("proto.dns.lookup", err)
	}
	id := uint16(rand.UintN(1 << 16))
	query, err := buildQuery(id, name, t)
	if err != nil {
		return nil, apperrors.NewProtocolError("build dns query", err)
	}

	hv, err := c.Invoke(ctx, "socket", "udp", "openSocket")
	if err != nil {
		return nil, err
	}
	h := hv.(values.SocketHandle)
	defer func() {
		_, _ = c.Invoke(context.WithoutCancel(ctx), "socket", "udp", "closeSocket", h)
	}()

	if _, err := c.Invoke(ctx, "socket", "udp", "sendto", h, query, host, port); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, apperrors.NewTimeoutError("dns lookup "+name, nil)
		}
		// a zero millisecond wait would mean poll, so never round down to it
		ms := max(int(remaining/time.Millisecond), 1)
		rv, err := c.Invoke(ctx, "socket", "udp", "recvfrom", h, false, ms)
		if err != nil {
			return nil, err
		}
		res, ok, err := parseReply(id, rv.(services.RecvResult).Raw)
		if err != nil {
			return nil, apperrors.NewProtocolError("malformed dns reply", err)
		}
		if ok {
			return res, nil
		}
	}
}

func buildQuery(id uint16, name string, t dnsmessage.Type) ([]byte, error) {
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	n, err := dnsmessage.NewName(name)
	if err != nil {
		return nil, err
	}
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: id, RecursionDesired: true})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	if err := b.Question(dnsmessage.Question{Name: n, Type: t, Class: dnsmessage.ClassINET}); err != nil {
		return nil, err
	}
	return b.Finish()
}

// parseReply returns ok=false for datagrams that do not answer query id.
func parseReply(id uint16, data []byte) (LookupResult, bool, error) {
	var p dnsmessage.Parser
	h, err := p.Start(data)
	if err != nil {
		return LookupResult{}, false, err
	}
	if !h.Response || h.ID != id {
		return LookupResult{}, false, nil
	}
	if err := p.SkipAllQuestions(); err != nil {
		return LookupResult{}, false, err
	}

	res := LookupResult{Rcode: rcodeName(h.RCode), Answers: []Answer{}}
	for {
		rh, err := p.AnswerHeader()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			return LookupResult{}, false, err
		}
		data, err := answerData(&p, rh)
		if err != nil {
			return LookupResult{}, false, err
		}
		res.Answers = append(res.Answers, Answer{
			Name: rh.Name.String(),
			Type: strings.TrimPrefix(rh.Type.String(), "Type"),
			TTL:  rh.TTL,
			Data: data,
		})
	}
	return res, true, nil
}

func answerData(p *dnsmessage.Parser, rh dnsmessage.ResourceHeader) (string, error) {
	switch rh.Type {
	case dnsmessage.TypeA:
		r, err := p.AResource()
		return netip.AddrFrom4(r.A).String(), err
	case dnsmessage.TypeAAAA:
		r, err := p.AAAAResource()
		return netip.AddrFrom16(r.AAAA).String(), err
	case dnsmessage.TypeCNAME:
		r, err := p.CNAMEResource()
		return r.CNAME.String(), err
	case dnsmessage.TypeMX:
		r, err := p.MXResource()
		return strconv.Itoa(int(r.Pref)) + " " + r.MX.String(), err
	case dnsmessage.TypeNS:
		r, err := p.NSResource()
		return r.NS.String(), err
	case dnsmessage.TypePTR:
		r, err := p.PTRResource()
		return r.PTR.String(), err
	case dnsmessage.TypeSRV:
		r, err := p.SRVResource()
		return fmt.Sprintf("%d %d %d %s", r.Priority, r.Weight, r.Port, r.Target.String()), err
	case dnsmessage.TypeTXT:
		r, err := p.TXTResource()
		return strings.Join(r.TXT, ""), err
	default:
		return "", p.SkipAnswer()
	}
}

func rcodeName(rc dnsmessage.RCode) string {
	return strings.TrimPrefix(rc.String(), "RCode")
}
