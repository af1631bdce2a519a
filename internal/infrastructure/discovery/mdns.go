package discovery

import (
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/net/dns/dnsmessage"

	"github.com/reglet-dev/netgate/internal/domain/values"
)

// ServicesQuery is the DNS-SD meta query that every responder answers.
const ServicesQuery = "_services._dns-sd._udp.local."

// MDNS is multicast DNS on 224.0.0.251:5353.
var MDNS = Protocol{
	Name:  "mdns",
	Group: "224.0.0.251",
	Port:  5353,
	TTL:   255,
	Query: func() ([]byte, error) { return mdnsQuery(ServicesQuery) },
	Parse: parseMDNS,
}

func mdnsQuery(name string) ([]byte, error) {
	n, err := dnsmessage.NewName(name)
	if err != nil {
		return nil, err
	}
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	if err := b.Question(dnsmessage.Question{Name: n, Type: dnsmessage.TypePTR, Class: dnsmessage.ClassINET}); err != nil {
		return nil, err
	}
	return b.Finish()
}

// parseMDNS accepts responses only. Queries from other hosts on the group are
// not evidence of a device.
func parseMDNS(data []byte, from values.Endpoint) (Result, bool) {
	var p dnsmessage.Parser
	h, err := p.Start(data)
	if err != nil || !h.Response {
		return Result{}, false
	}
	if err := p.SkipAllQuestions(); err != nil {
		return Result{}, false
	}

	r := Result{Address: from.Address, Metadata: map[string]string{}}
	collect := func(section func() (dnsmessage.ResourceHeader, error), body func(dnsmessage.ResourceHeader)) {
		for {
			rh, err := section()
			if err != nil {
				return
			}
			body(rh)
		}
	}

	record := func(rh dnsmessage.ResourceHeader) {
		name := rh.Name.String()
		if r.Name == "" {
			r.Name = name
		}
		switch rh.Type {
		case dnsmessage.TypePTR:
			if res, err := p.PTRResource(); err == nil {
				appendMeta(r.Metadata, "ptr", res.PTR.String())
			}
		case dnsmessage.TypeSRV:
			if res, err := p.SRVResource(); err == nil {
				r.Port = int(res.Port)
				appendMeta(r.Metadata, "srv", res.Target.String()+":"+strconv.Itoa(int(res.Port)))
			}
		case dnsmessage.TypeTXT:
			if res, err := p.TXTResource(); err == nil {
				appendMeta(r.Metadata, "txt", strings.Join(res.TXT, ";"))
			}
		case dnsmessage.TypeA:
			if res, err := p.AResource(); err == nil {
				appendMeta(r.Metadata, "a", netip.AddrFrom4(res.A).String())
			}
		case dnsmessage.TypeAAAA:
			if res, err := p.AAAAResource(); err == nil {
				appendMeta(r.Metadata, "aaaa", netip.AddrFrom16(res.AAAA).String())
			}
		default:
			_ = p.SkipAnswer()
		}
	}

	collect(p.AnswerHeader, record)
	if err := p.SkipAllAuthorities(); err == nil {
		collect(p.AdditionalHeader, func(rh dnsmessage.ResourceHeader) {
			// additionals carry the addresses and ports behind the answers
			switch rh.Type {
			case dnsmessage.TypeA, dnsmessage.TypeAAAA, dnsmessage.TypeSRV, dnsmessage.TypeTXT:
				record(rh)
			default:
				_ = p.SkipAdditional()
			}
		})
	}

	if len(r.Metadata) == 0 {
		r.Metadata = nil
	}
	return r, true
}

func appendMeta(m map[string]string, key, value string) {
	if prev, ok := m[key]; ok {
		m[key] = prev + "," + value
		return
	}
	m[key] = value
}
