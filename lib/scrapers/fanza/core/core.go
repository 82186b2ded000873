// Package core implements the authenticated scraping client for the
// FANZA storefront: a transport with spoofed browser headers, the
// login state machine with manual redirect handling, and the age gate
// confirmation that sits in front of the doujin floor.
package core

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"

	"marketsuite-backend/lib/telemetry"
)

var tracer = otel.Tracer("scrapers/fanza/core")

const DefaultBaseURL = "https://www.dmm.co.jp"

var baselineHeaders = map[string]string{
	"user-agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.110 Safari/537.36",
	"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"accept-language": "ja,en-US;q=0.7,en;q=0.3",
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
	Session *Session
}

type ClientOptions struct {
	BaseUrl string
	// Timeout bounds every transport call; zero means 30s.
	Timeout time.Duration
	// Session restores a previous session; nil starts anonymous.
	Session *Session
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseURL
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	// redirects are followed manually so cookies can be captured at
	// every hop; ErrUseLastResponse hands the 3xx back instead of
	// erroring the way resty.NoRedirectPolicy would
	client.GetClient().CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "scrapers/fanza/http")

	session := opts.Session
	if session == nil {
		session = NewSession()
	}
	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
		Session: session,
	}, nil
}

// FetchResult is one response: status, headers with lowercased keys
// (last value wins for repeats) and the body.
type FetchResult struct {
	Status  int
	Headers map[string]string
	Body    string
}

// Redirect reports whether the response is a 3xx.
func (r FetchResult) Redirect() bool {
	return r.Status >= 300 && r.Status < 400
}

type FetchOptions struct {
	Method string
	// Headers override session and baseline headers, keys matched
	// case-insensitively.
	Headers map[string]string
	// Form, when set, is sent URL-encoded with a POST content type.
	Form map[string]string
}

func lowerHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Fetch issues one request. Header precedence is caller > session >
// baseline. Statuses of 400 and above and network failures come back
// as TransportError; 3xx responses are returned to the caller, never
// followed. Every response's Set-Cookie replaces the session cookies.
func (c *Client) Fetch(ctx context.Context, path string, opts FetchOptions) (FetchResult, error) {
	headers := map[string]string{}
	for k, v := range baselineHeaders {
		headers[k] = v
	}
	for k, v := range c.Session.AuthHeaders() {
		headers[k] = v
	}
	for k, v := range lowerHeaders(opts.Headers) {
		headers[k] = v
	}

	req := c.Http.R().
		SetContext(ctx).
		SetHeaders(headers)
	method := opts.Method
	if method == "" {
		method = "GET"
	}
	if opts.Form != nil {
		req.SetFormData(opts.Form)
		if method == "" || method == "GET" {
			method = "POST"
		}
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return FetchResult{}, &TransportError{Err: err}
	}

	c.Session.ReplaceCookies(res)

	result := FetchResult{
		Status:  res.StatusCode(),
		Headers: map[string]string{},
		Body:    string(res.Body()),
	}
	for name, values := range res.Header() {
		if len(values) == 0 {
			continue
		}
		result.Headers[strings.ToLower(name)] = values[len(values)-1]
	}

	if result.Status >= 400 {
		return result, &TransportError{Status: result.Status}
	}
	return result, nil
}

// Document fetches a page and parses it.
func (c *Client) Document(ctx context.Context, path string, opts FetchOptions) (*goquery.Document, error) {
	res, err := c.Fetch(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(res.Body))
}

// resolve turns a redirect target into an absolute URL against the
// client base.
func (c *Client) resolve(location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return c.BaseUrl.String() + location
	}
	return c.BaseUrl.ResolveReference(ref).String()
}
