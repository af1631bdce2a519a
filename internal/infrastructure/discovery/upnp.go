package discovery

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/reglet-dev/netgate/internal/domain/values"
)

// SearchTarget is the SSDP search target used for discovery.
const SearchTarget = "ssdp:all"

// UPnP is SSDP on 239.255.255.250:1900.
var UPnP = Protocol{
	Name:  "upnp",
	Group: "239.255.255.250",
	Port:  1900,
	TTL:   2,
	Query: func() ([]byte, error) { return ssdpSearch(SearchTarget, 2), nil },
	Parse: parseSSDP,
}

func ssdpSearch(target string, mx int) []byte {
	return []byte(fmt.Sprintf("M-SEARCH * HTTP/1.1\r\n"+
		"HOST: 239.255.255.250:1900\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: %d\r\n"+
		"ST: %s\r\n\r\n", mx, target))
}

// ssdpHeaders are copied into the result metadata when present.
var ssdpHeaders = []string{"Location", "Server", "St", "Nt", "Usn", "Cache-Control"}

// parseSSDP accepts search responses and NOTIFY announcements, and ignores
// other hosts' M-SEARCH requests.
func parseSSDP(data []byte, from values.Endpoint) (Result, bool) {
	var header http.Header
	switch {
	case bytes.HasPrefix(data, []byte("HTTP/")):
		resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
		if err != nil {
			return Result{}, false
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return Result{}, false
		}
		header = resp.Header
	case bytes.HasPrefix(data, []byte("NOTIFY ")):
		req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data)))
		if err != nil {
			return Result{}, false
		}
		if strings.EqualFold(req.Header.Get("Nts"), "ssdp:byebye") {
			return Result{}, false
		}
		header = req.Header
	default:
		return Result{}, false
	}

	r := Result{Address: from.Address, Metadata: map[string]string{}}
	for _, key := range ssdpHeaders {
		if v := header.Get(key); v != "" {
			r.Metadata[strings.ToLower(key)] = v
		}
	}
	r.Name = header.Get("Server")
	if len(r.Metadata) == 0 {
		r.Metadata = nil
	}
	return r, true
}
