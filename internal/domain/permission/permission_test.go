package permission

import (
	"testing"

	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNeighbors map[string]map[string]bool

func (f fakeNeighbors) Contains(placeholder, host string) bool {
	return f[placeholder][host]
}

func parse(t *testing.T, api []string, dst ...string) *manifest.Canonical {
	t.Helper()
	c, err := manifest.Parse(manifest.SecurityManifest{API: api, Destinations: dst}, manifest.Options{MissingAPI: manifest.MissingAPIDeny})
	require.NoError(t, err)
	return c
}

func TestCheckAPI_ModuleWildcard(t *testing.T) {
	t.Parallel()
	m := parse(t, []string{"socket.*"})

	for _, sub := range []string{"tcp", "udp", "broadcast", "multicast", "anything"} {
		for _, method := range []string{"send", "recv", "openSendSocket", "x"} {
			assert.True(t, CheckAPI("socket", sub, method, m), "%s.%s", sub, method)
		}
	}
	assert.False(t, CheckAPI("proto", "dns", "lookup", m))
	assert.False(t, CheckAPI("tools", "iperf", "start", m))
}

func TestCheckAPI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		api      []string
		call     [3]string
		expected bool
	}{
		{"exact method", []string{"socket.tcp.send"}, [3]string{"socket", "tcp", "send"}, true},
		{"other method denied", []string{"socket.tcp.send"}, [3]string{"socket", "tcp", "recv"}, false},
		{"submodule wildcard", []string{"socket.udp.*"}, [3]string{"socket", "udp", "recvfrom"}, true},
		{"other submodule denied", []string{"socket.udp.*"}, [3]string{"socket", "tcp", "send"}, false},
		{"two segment shorthand", []string{"tools.ping"}, [3]string{"tools", "ping", "start"}, true},
		{"root wildcard", []string{"*"}, [3]string{"system", "info", "getOS"}, true},
		{"empty api denies", []string{}, [3]string{"system", "info", "getOS"}, false},
		{"case sensitive", []string{"socket.tcp.send"}, [3]string{"socket", "tcp", "Send"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parse(t, tt.api)
			assert.Equal(t, tt.expected, CheckAPI(tt.call[0], tt.call[1], tt.call[2], m))
		})
	}
}

func TestCheckAPI_NilManifest(t *testing.T) {
	t.Parallel()
	assert.False(t, CheckAPI("socket", "tcp", "send", nil))
}

func TestCheckDestination_ExactTriple(t *testing.T) {
	t.Parallel()
	m := parse(t, []string{}, "udp://192.168.1.1:53")

	base := DestinationQuery{Proto: values.SchemeUDP, Host: "192.168.1.1", Port: 53}
	assert.True(t, CheckDestination(base, m, nil))

	flipped := []DestinationQuery{
		{Proto: values.SchemeTCP, Host: "192.168.1.1", Port: 53},
		{Proto: values.SchemeUDP, Host: "192.168.1.2", Port: 53},
		{Proto: values.SchemeUDP, Host: "192.168.1.1", Port: 54},
	}
	for _, q := range flipped {
		assert.False(t, CheckDestination(q, m, nil), q.String())
	}
}

func TestCheckDestination_Wildcards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		dst      []string
		query    DestinationQuery
		expected bool
	}{
		{"scheme defaults to any", []string{"10.0.0.1:22"}, DestinationQuery{values.SchemeTCP, "10.0.0.1", 22}, true},
		{"port defaults to any", []string{"tcp://10.0.0.1"}, DestinationQuery{values.SchemeTCP, "10.0.0.1", 9999}, true},
		{"host wildcard", []string{"udp://*:53"}, DestinationQuery{values.SchemeUDP, "8.8.8.8", 53}, true},
		{"host wildcard wrong port", []string{"udp://*:53"}, DestinationQuery{values.SchemeUDP, "8.8.8.8", 54}, false},
		{"no prefix matching", []string{"tcp://10.0.0.1:80"}, DestinationQuery{values.SchemeTCP, "10.0.0.10", 80}, false},
		{"no range semantics", []string{"tcp://10.0.0.0:80"}, DestinationQuery{values.SchemeTCP, "10.0.0.1", 80}, false},
		{"exact scheme shadows wildcard scheme", []string{"tcp://a:1", "*://b:2"}, DestinationQuery{values.SchemeTCP, "b", 2}, false},
		{"wildcard scheme used when no exact bucket", []string{"udp://a:1", "*://b:2"}, DestinationQuery{values.SchemeTCP, "b", 2}, true},
		{"exact host shadows wildcard host", []string{"tcp://a:1", "tcp://*:2"}, DestinationQuery{values.SchemeTCP, "a", 2}, false},
		{"port out of range", []string{"tcp://a"}, DestinationQuery{values.SchemeTCP, "a", 70000}, false},
		{"empty destinations", nil, DestinationQuery{values.SchemeTCP, "a", 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parse(t, []string{}, tt.dst...)
			assert.Equal(t, tt.expected, CheckDestination(tt.query, m, nil))
		})
	}
}

func TestCheckDestination_Placeholder(t *testing.T) {
	t.Parallel()
	m := parse(t, []string{}, "*://{mdns}:*")
	q := DestinationQuery{Proto: values.SchemeAny, Host: "192.168.1.40", Port: 8009}

	assert.False(t, CheckDestination(q, m, fakeNeighbors{}))
	assert.False(t, CheckDestination(q, m, nil))

	found := fakeNeighbors{"mdns": {"192.168.1.40": true}}
	assert.True(t, CheckDestination(q, m, found))

	// Discovered under a different placeholder does not count.
	other := fakeNeighbors{"upnp": {"192.168.1.40": true}}
	assert.False(t, CheckDestination(q, m, other))
}

func TestCheckDestination_PlaceholderPort(t *testing.T) {
	t.Parallel()
	m := parse(t, []string{}, "tcp://{upnp}:80")
	found := fakeNeighbors{"upnp": {"10.0.0.7": true}}

	assert.True(t, CheckDestination(DestinationQuery{values.SchemeTCP, "10.0.0.7", 80}, m, found))
	assert.False(t, CheckDestination(DestinationQuery{values.SchemeTCP, "10.0.0.7", 81}, m, found))
	assert.False(t, CheckDestination(DestinationQuery{values.SchemeUDP, "10.0.0.7", 80}, m, found))
}

func TestCheckDestination_Pure(t *testing.T) {
	t.Parallel()
	m := parse(t, []string{}, "udp://192.168.1.1:53")
	q := DestinationQuery{Proto: values.SchemeUDP, Host: "192.168.1.1", Port: 53}

	for i := 0; i < 10; i++ {
		assert.True(t, CheckDestination(q, m, nil))
	}
}

func TestDestinationQuery_String(t *testing.T) {
	t.Parallel()
	q := DestinationQuery{Proto: values.SchemeUDP, Host: "1.2.3.4", Port: 53}
	assert.Equal(t, "udp://1.2.3.4:53", q.String())
}
