package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw SecurityManifest) *Canonical {
	t.Helper()
	c, err := Parse(raw, Options{MissingAPI: MissingAPIDeny})
	require.NoError(t, err)
	return c
}

func TestParse_APIPatterns(t *testing.T) {
	t.Parallel()

	c := mustParse(t, SecurityManifest{API: []string{"socket.*", "proto.dns.lookup", "tools.iperf"}})

	socket, ok := c.API().Child("socket")
	require.True(t, ok)
	_, ok = socket.Wildcard()
	assert.True(t, ok, "socket.* should set wildcard on socket")

	proto, ok := c.API().Child("proto")
	require.True(t, ok)
	dns, ok := proto.Child("dns")
	require.True(t, ok)
	_, ok = dns.Child("lookup")
	assert.True(t, ok)
	_, ok = dns.Wildcard()
	assert.False(t, ok)

	tools, _ := c.API().Child("tools")
	iperf, ok := tools.Child("iperf")
	require.True(t, ok)
	_, ok = iperf.Wildcard()
	assert.True(t, ok, "two segments expand to module.submodule.*")
}

func TestParse_SingleSegmentExpands(t *testing.T) {
	t.Parallel()
	a := mustParse(t, SecurityManifest{API: []string{"socket"}})
	b := mustParse(t, SecurityManifest{API: []string{"socket.*"}})
	assert.True(t, a.Equal(b))
}

func TestParse_RootWildcard(t *testing.T) {
	t.Parallel()
	c := mustParse(t, SecurityManifest{API: []string{"*"}})
	_, ok := c.API().Wildcard()
	assert.True(t, ok)

	d := mustParse(t, SecurityManifest{API: []string{"*.*.*"}})
	assert.True(t, c.Equal(d))
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   SecurityManifest
		field string
	}{
		{"unknown module", SecurityManifest{API: []string{"filesystem.*"}}, "api"},
		{"unknown submodule", SecurityManifest{API: []string{"socket.sctp"}}, "api"},
		{"too many segments", SecurityManifest{API: []string{"socket.tcp.send.now"}}, "api"},
		{"empty pattern", SecurityManifest{API: []string{""}}, "api"},
		{"non identifier", SecurityManifest{API: []string{"socket.tcp.se-nd"}}, "api"},
		{"specific after wildcard", SecurityManifest{API: []string{"socket.*.send"}}, "api"},
		{"non numeric port", SecurityManifest{API: []string{}, Destinations: []string{"tcp://host:http"}}, "destinations"},
		{"port too large", SecurityManifest{API: []string{}, Destinations: []string{"udp://10.0.0.1:65536"}}, "destinations"},
		{"negative port", SecurityManifest{API: []string{}, Destinations: []string{"udp://10.0.0.1:-1"}}, "destinations"},
		{"unknown scheme", SecurityManifest{API: []string{}, Destinations: []string{"http://example.com:80"}}, "destinations"},
		{"empty host", SecurityManifest{API: []string{}, Destinations: []string{"tcp://:80"}}, "destinations"},
		{"empty port", SecurityManifest{API: []string{}, Destinations: []string{"tcp://host:"}}, "destinations"},
		{"bad placeholder", SecurityManifest{API: []string{}, Destinations: []string{"*://{mdns:*"}}, "destinations"},
		{"missing api without policy", SecurityManifest{Destinations: []string{"tcp://a:1"}}, "api"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{MissingAPI: MissingAPIDeny}
			if tt.name == "missing api without policy" {
				opts = Options{}
			}
			c, err := Parse(tt.raw, opts)
			require.Error(t, err)
			assert.Nil(t, c, "a failed parse must not yield a manifest")

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.field, parseErr.Field)
		})
	}
}

func TestParse_AllOrNothing(t *testing.T) {
	t.Parallel()
	c, err := Parse(SecurityManifest{
		API:          []string{"socket.*", "tools.*"},
		Destinations: []string{"tcp://127.0.0.1:80", "udp://1.1.1.1:99999"},
	}, Options{MissingAPI: MissingAPIDeny})
	require.Error(t, err)
	assert.Nil(t, c)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 1, parseErr.Index)
}

func TestParse_Destinations(t *testing.T) {
	t.Parallel()

	c := mustParse(t, SecurityManifest{
		API: []string{},
		Destinations: []string{
			"udp://192.168.1.1:53",
			"127.0.0.1",
			"tcp://*:443",
			"*://{mdns}:*",
			"tcp://[::1]:8080",
		},
	})

	udp, ok := c.Destinations().Child("udp")
	require.True(t, ok)
	host, ok := udp.Child("192.168.1.1")
	require.True(t, ok)
	_, ok = host.Child("53")
	assert.True(t, ok)

	anyScheme, ok := c.Destinations().Wildcard()
	require.True(t, ok)
	local, ok := anyScheme.Child("127.0.0.1")
	require.True(t, ok)
	_, ok = local.Wildcard()
	assert.True(t, ok, "missing port defaults to *")

	_, ok = anyScheme.Placeholder("mdns")
	assert.True(t, ok)

	tcp, _ := c.Destinations().Child("tcp")
	v6, ok := tcp.Child("::1")
	require.True(t, ok)
	_, ok = v6.Child("8080")
	assert.True(t, ok)

	assert.Equal(t, []string{"mdns"}, c.Placeholders())
}

func TestParse_PortCanonicalized(t *testing.T) {
	t.Parallel()
	a := mustParse(t, SecurityManifest{API: []string{}, Destinations: []string{"udp://h:053"}})
	b := mustParse(t, SecurityManifest{API: []string{}, Destinations: []string{"udp://h:53"}})
	assert.True(t, a.Equal(b))
}

func TestParse_DuplicatesCoalesce(t *testing.T) {
	t.Parallel()
	once := mustParse(t, SecurityManifest{
		API:          []string{"socket.tcp.send"},
		Destinations: []string{"tcp://a:1"},
	})
	twice := mustParse(t, SecurityManifest{
		API:          []string{"socket.tcp.send", "socket.tcp.send"},
		Destinations: []string{"tcp://a:1", "tcp://a:1"},
	})
	assert.True(t, once.Equal(twice))
	assert.Len(t, twice.Manifest().API, 1)
	assert.Len(t, twice.Manifest().Destinations, 1)
}

func TestParse_Idempotent(t *testing.T) {
	t.Parallel()

	raw := SecurityManifest{
		API:          []string{"tools.*", "socket.udp.send", "socket.udp", "system"},
		Destinations: []string{"udp://192.168.1.1:53", "*://{upnp}:*", "multicast://224.0.0.251:5353", "[fe80::1]:9"},
	}
	first := mustParse(t, raw)
	second := mustParse(t, first.Manifest())
	third := mustParse(t, second.Manifest())

	assert.True(t, first.Equal(second))
	assert.Equal(t, second.Manifest(), third.Manifest())
}

func TestParse_Deterministic(t *testing.T) {
	t.Parallel()
	a := mustParse(t, SecurityManifest{API: []string{"tools.*", "socket.*"}, Destinations: []string{"tcp://b:2", "tcp://a:1"}})
	b := mustParse(t, SecurityManifest{API: []string{"socket.*", "tools.*"}, Destinations: []string{"tcp://a:1", "tcp://b:2"}})
	assert.Equal(t, a.Manifest(), b.Manifest())
}

func TestParse_MissingAPIPolicy(t *testing.T) {
	t.Parallel()

	allow, err := Parse(SecurityManifest{}, Options{MissingAPI: MissingAPIAllow})
	require.NoError(t, err)
	_, ok := allow.API().Wildcard()
	assert.True(t, ok)

	deny, err := Parse(SecurityManifest{}, Options{MissingAPI: MissingAPIDeny})
	require.NoError(t, err)
	assert.True(t, deny.API().IsEmpty())

	// An explicit empty list is not "absent": no policy is needed.
	empty, err := Parse(SecurityManifest{API: []string{}}, Options{})
	require.NoError(t, err)
	assert.True(t, empty.API().IsEmpty())
}

func TestParseMissingAPIPolicy(t *testing.T) {
	t.Parallel()
	p, err := ParseMissingAPIPolicy("Deny")
	require.NoError(t, err)
	assert.Equal(t, MissingAPIDeny, p)

	p, err = ParseMissingAPIPolicy("allow")
	require.NoError(t, err)
	assert.Equal(t, "allow", p.String())

	_, err = ParseMissingAPIPolicy("")
	assert.Error(t, err)
}

func TestParse_Requires(t *testing.T) {
	t.Parallel()

	_, err := Parse(SecurityManifest{API: []string{}, Requires: ">= 0.2.0"}, Options{HostVersion: "0.3.1"})
	assert.NoError(t, err)

	_, err = Parse(SecurityManifest{API: []string{}, Requires: ">= 1.0.0"}, Options{HostVersion: "0.3.1"})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "requires", parseErr.Field)

	_, err = Parse(SecurityManifest{API: []string{}, Requires: "not a constraint"}, Options{HostVersion: "0.3.1"})
	assert.Error(t, err)

	// Development builds satisfy any valid constraint.
	_, err = Parse(SecurityManifest{API: []string{}, Requires: ">= 9.0.0"}, Options{HostVersion: "dev"})
	assert.NoError(t, err)
}

func TestParse_SchemeForms(t *testing.T) {
	t.Parallel()

	parse := func(dst string) *Canonical {
		c, err := Parse(SecurityManifest{API: []string{}, Destinations: []string{dst}}, Options{MissingAPI: MissingAPIDeny})
		require.NoError(t, err, dst)
		return c
	}

	assert.True(t, parse("10.0.0.1:80").Equal(parse("*://10.0.0.1:80")), "omitted scheme is the wildcard")
	for _, scheme := range []string{"tcp", "udp", "broadcast", "multicast"} {
		c := parse(scheme + "://10.0.0.1:80")
		assert.False(t, c.Equal(parse("*://10.0.0.1:80")), scheme)
		assert.Contains(t, c.Manifest().Destinations, scheme+"://10.0.0.1:80")
	}
}
