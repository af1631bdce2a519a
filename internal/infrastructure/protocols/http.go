package protocols

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/reglet-dev/netgate/internal/application/dto"
	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/services"
	"github.com/reglet-dev/netgate/internal/domain/permission"
	"github.com/reglet-dev/netgate/internal/domain/values"
	"github.com/reglet-dev/netgate/internal/version"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxRedirects       = 10
)

// HTTPResult is returned by proto.http.get.
type HTTPResult struct {
	Headers map[string]string `json:"headers" cbor:"headers"`
	Body    string            `json:"body" cbor:"body"`
	Status  int               `json:"status" cbor:"status"`
}

// httpDestination maps a URL to the TCP endpoint it connects to.
func httpDestination(u *url.URL) (permission.DestinationQuery, error) {
	var port int
	switch strings.ToLower(u.Scheme) {
	case "http":
		port = 80
	case "https":
		port = 443
	default:
		return permission.DestinationQuery{}, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return permission.DestinationQuery{}, errors.New("url has no host")
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return permission.DestinationQuery{}, fmt.Errorf("invalid url port %q", p)
		}
		port = n
	}
	return permission.DestinationQuery{Proto: values.SchemeTCP, Host: u.Hostname(), Port: port}, nil
}

func httpGetDestination(p dto.Params) (permission.DestinationQuery, error) {
	raw, err := p.String(0)
	if err != nil {
		return permission.DestinationQuery{}, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return permission.DestinationQuery{}, err
	}
	return httpDestination(u)
}

func httpGet(ctx context.Context, c *services.Call) (any, error) {
	a := services.ArgsOf(c)
	target, timeout := a.String(0), a.Timeout(1, defaultHTTPTimeout)
	if err := a.Err(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	sess := c.Sandbox().Session()
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", version.Get().UserAgent()).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			// every hop is a new destination
			q, err := httpDestination(req.URL)
			if err != nil {
				return apperrors.NewProtocolError("redirect", err)
			}
			if !sess.AllowsDestination(q) {
				return apperrors.NewDestinationDenied(q.String())
			}
			return nil
		}))

	resp, err := client.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, apperrors.FromIO("http get", err)
	}

	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		headers[k] = strings.Join(v, ", ")
	}
	return HTTPResult{Status: resp.StatusCode(), Headers: headers, Body: resp.String()}, nil
}
