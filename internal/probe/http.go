package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
	"github.com/leaguepulse/leaguepulse/internal/provider/resilience"
)

// Default liveness endpoints.
const (
	DefaultSleeperURL = "https://api.sleeper.app/v1/state/nfl"
	DefaultESPNURL    = "https://lm-api-reads.fantasy.espn.com/apis/v3/games/ffl"
	DefaultYahooURL   = "https://fantasysports.yahooapis.com/fantasy/v2/game/nfl"
)

// maxDrain bounds how much of a response body is read before closing.
const maxDrain = 64 << 10

// HTTPConfig holds configuration for an HTTP liveness adapter.
type HTTPConfig struct {
	Source monitor.SourceID
	URL    string
	Client *resilience.Client

	// Headers and Cookies are sent with every probe. Either one marks the
	// adapter as authenticated.
	Headers map[string]string
	Cookies []*http.Cookie
}

// HTTPAdapter probes an integration over HTTP through a resilient client.
type HTTPAdapter struct {
	source        monitor.SourceID
	url           string
	client        *resilience.Client
	headers       map[string]string
	cookies       []*http.Cookie
	authenticated bool
}

// NewHTTPAdapter creates an HTTP liveness adapter.
func NewHTTPAdapter(cfg HTTPConfig) *HTTPAdapter {
	return &HTTPAdapter{
		source:        cfg.Source,
		url:           cfg.URL,
		client:        cfg.Client,
		headers:       cfg.Headers,
		cookies:       cfg.Cookies,
		authenticated: len(cfg.Headers) > 0 || len(cfg.Cookies) > 0,
	}
}

// NewSleeperAdapter probes the public Sleeper API. It needs no credentials.
func NewSleeperAdapter(client *resilience.Client, endpoint string) *HTTPAdapter {
	if endpoint == "" {
		endpoint = DefaultSleeperURL
	}
	return NewHTTPAdapter(HTTPConfig{Source: monitor.SourceSleeper, URL: endpoint, Client: client})
}

// NewESPNAdapter probes the ESPN fantasy API. Private leagues authenticate
// with the espn_s2 and SWID cookies; both empty probes anonymously.
func NewESPNAdapter(client *resilience.Client, endpoint, espnS2, swid string) *HTTPAdapter {
	if endpoint == "" {
		endpoint = DefaultESPNURL
	}
	var cookies []*http.Cookie
	if espnS2 != "" && swid != "" {
		cookies = []*http.Cookie{
			{Name: "espn_s2", Value: espnS2},
			{Name: "SWID", Value: swid},
		}
	}
	return NewHTTPAdapter(HTTPConfig{Source: monitor.SourceESPN, URL: endpoint, Client: client, Cookies: cookies})
}

// NewYahooAdapter probes the Yahoo Fantasy API, with an OAuth bearer token
// when one is given.
func NewYahooAdapter(client *resilience.Client, endpoint, accessToken string) *HTTPAdapter {
	if endpoint == "" {
		endpoint = DefaultYahooURL
	}
	var headers map[string]string
	if accessToken != "" {
		headers = map[string]string{"Authorization": "Bearer " + accessToken}
	}
	return NewHTTPAdapter(HTTPConfig{Source: monitor.SourceYahoo, URL: endpoint, Client: client, Headers: headers})
}

// Source returns the probed source.
func (a *HTTPAdapter) Source() monitor.SourceID {
	return a.source
}

// Authenticated reports whether probes carry credentials.
func (a *HTTPAdapter) Authenticated() bool {
	return a.authenticated
}

// Probe issues one GET and interprets the status code.
func (a *HTTPAdapter) Probe(ctx context.Context) monitor.Sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, http.NoBody)
	if err != nil {
		return failure(a.source, "build request: "+err.Error())
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
	for _, c := range a.cookies {
		req.AddCookie(c)
	}

	start := time.Now()
	resp, err := a.client.DoWithContext(ctx, req)
	if err != nil {
		return failure(a.source, transportError(err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
		resp.Body.Close()
	}()
	latency := time.Since(start)

	outcome, text := Interpret(resp.StatusCode, a.authenticated)
	status := resp.StatusCode
	sample := monitor.Sample{
		Source:     a.source,
		Kind:       monitor.KindHealthCheck,
		Outcome:    outcome,
		Latency:    &latency,
		StatusCode: &status,
	}
	if text != "" {
		sample.Error = &text
	}
	return sample
}

// transportError drops the method and URL prefix that url.Error adds.
func transportError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
