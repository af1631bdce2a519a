package protocols

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"

	"github.com/reglet-dev/netgate/internal/application/dto"
	"github.com/reglet-dev/netgate/internal/application/services"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/session"
	"github.com/reglet-dev/netgate/internal/domain/values"
	"github.com/reglet-dev/netgate/internal/infrastructure/sockets"
)

func setup(t *testing.T, raw manifest.SecurityManifest) (*services.Dispatcher, *services.Sandbox, *sockets.Engine) {
	t.Helper()
	m, err := manifest.Parse(raw, manifest.Options{MissingAPI: manifest.MissingAPIDeny})
	require.NoError(t, err)
	engine := sockets.NewEngine()
	sb := services.NewSandbox(session.New(m), engine, nil)
	t.Cleanup(func() { _ = sb.Close() })

	r := services.NewRegistry()
	services.RegisterSocketModule(r)
	Register(r)
	return services.NewDispatcher(r), sb, engine
}

// serveDNS answers every A query with 10.1.2.3.
func serveDNS(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			var p dnsmessage.Parser
			h, err := p.Start(buf[:n])
			if err != nil {
				continue
			}
			q, err := p.Question()
			if err != nil {
				continue
			}

			b := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: h.ID, Response: true, RecursionAvailable: true})
			_ = b.StartQuestions()
			_ = b.Question(q)
			_ = b.StartAnswers()
			_ = b.AResource(dnsmessage.ResourceHeader{Name: q.Name, Class: dnsmessage.ClassINET, TTL: 60}, dnsmessage.AResource{A: [4]byte{10, 1, 2, 3}})
			reply, err := b.Finish()
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(reply, from)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestDNSLookup(t *testing.T) {
	t.Parallel()

	port := serveDNS(t)
	d, sb, engine := setup(t, manifest.SecurityManifest{
		API:          []string{"proto.dns"},
		Destinations: []string{"udp://127.0.0.1:" + strconv.Itoa(port)},
	})

	resp := d.Call(context.Background(), sb, dto.CallRequest{
		Module: "proto", Submodule: "dns", Method: "lookup",
		Params: dto.Params{fmt.Sprintf("127.0.0.1:%d", port), "printer.test", "a", 2000}, ID: 1,
	})
	require.Nil(t, resp.Error, "lookup failed: %v", resp.Error)

	res := resp.Result.(LookupResult)
	assert.Equal(t, "Success", res.Rcode)
	require.Len(t, res.Answers, 1)
	assert.Equal(t, Answer{Name: "printer.test.", Type: "A", Data: "10.1.2.3", TTL: 60}, res.Answers[0])

	assert.Empty(t, engine.Handles(), "the composition closes its socket")
}

func TestDNSLookup_Denied(t *testing.T) {
	t.Parallel()

	d, sb, engine := setup(t, manifest.SecurityManifest{
		API:          []string{"proto.dns"},
		Destinations: []string{"udp://127.0.0.1:53"},
	})

	resp := d.Call(context.Background(), sb, dto.CallRequest{
		Module: "proto", Submodule: "dns", Method: "lookup",
		Params: dto.Params{"127.0.0.1:5353", "printer.test"}, ID: 1,
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, values.ErrorPermissionDenied, resp.Error.Type)
	assert.Empty(t, engine.Handles())
}

func TestDNSLookup_UnsupportedType(t *testing.T) {
	t.Parallel()

	d, sb, _ := setup(t, manifest.SecurityManifest{API: []string{"proto"}, Destinations: []string{"udp://*:*"}})
	resp := d.Call(context.Background(), sb, dto.CallRequest{
		Module: "proto", Submodule: "dns", Method: "lookup", Params: dto.Params{"127.0.0.1", "x.test", "AXFR"}, ID: 1,
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, values.ErrorProtocol, resp.Error.Type)
}

func TestSplitServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{in: "8.8.8.8", wantHost: "8.8.8.8", wantPort: 53},
		{in: "8.8.8.8:5353", wantHost: "8.8.8.8", wantPort: 5353},
		{in: "[::1]:53", wantHost: "::1", wantPort: 53},
		{in: "::1", wantHost: "::1", wantPort: 53},
		{in: "8.8.8.8:dns", wantErr: true},
		{in: "8.8.8.8:0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := splitServer(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestHTTPDestination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "http://example.com/x", want: "tcp://example.com:80"},
		{raw: "https://example.com", want: "tcp://example.com:443"},
		{raw: "http://127.0.0.1:8080/", want: "tcp://127.0.0.1:8080"},
		{raw: "ftp://example.com", wantErr: true},
		{raw: "http:///path", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			q, err := httpDestination(u)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
		})
	}
}

func TestHTTPGet(t *testing.T) {
	t.Parallel()

	var srvURL *url.URL
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/redirect":
			http.Redirect(w, r, "http://localhost:"+srvURL.Port()+"/", http.StatusFound)
		default:
			w.Header().Set("X-Agent", r.UserAgent())
			_, _ = w.Write([]byte("hello"))
		}
	}))
	t.Cleanup(srv.Close)
	var err error
	srvURL, err = url.Parse(srv.URL)
	require.NoError(t, err)

	d, sb, _ := setup(t, manifest.SecurityManifest{
		API:          []string{"proto.http"},
		Destinations: []string{"tcp://127.0.0.1:" + srvURL.Port()},
	})
	get := func(target string) dto.CallResponse {
		return d.Call(context.Background(), sb, dto.CallRequest{
			Module: "proto", Submodule: "http", Method: "get", Params: dto.Params{target, 2000}, ID: 1,
		})
	}

	t.Run("granted", func(t *testing.T) {
		resp := get(srv.URL + "/")
		require.Nil(t, resp.Error, "get failed: %v", resp.Error)
		res := resp.Result.(HTTPResult)
		assert.Equal(t, http.StatusOK, res.Status)
		assert.Equal(t, "hello", res.Body)
		assert.Contains(t, res.Headers["X-Agent"], "netgate/")
	})

	t.Run("redirect to ungranted host", func(t *testing.T) {
		resp := get(srv.URL + "/redirect")
		require.NotNil(t, resp.Error)
		assert.Equal(t, values.ErrorPermissionDenied, resp.Error.Type)
	})

	t.Run("ungranted port", func(t *testing.T) {
		resp := get("http://127.0.0.1:1/")
		require.NotNil(t, resp.Error)
		assert.Equal(t, values.ErrorPermissionDenied, resp.Error.Type)
	})
}
