package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "job-scraper/1.0"

// RequestOptions carries the per-call knobs shared by the page fetcher and
// the API client.
type RequestOptions struct {
	Headers       http.Header
	Timeout       time.Duration
	RespectRobots bool
}

// Page is one fetched document.
type Page struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// CollyFetcher wraps Colly for single-shot HTML fetching and CSS-based parsing.
// It never retries: fallback between strategies is the caller's job.
type CollyFetcher struct {
	userAgent  string
	timeout    time.Duration
	transport  http.RoundTripper
	maxBodyLen int
}

type FetcherOption func(*CollyFetcher)

// WithCloudflareBypass wraps the transport with browser-like TLS settings.
func WithCloudflareBypass() FetcherOption {
	return func(f *CollyFetcher) {
		f.transport = cloudflarebp.AddCloudFlareByPass(baseTransport())
	}
}

func WithTimeout(d time.Duration) FetcherOption {
	return func(f *CollyFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func NewCollyFetcher(userAgent string, opts ...FetcherOption) *CollyFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	f := &CollyFetcher{
		userAgent:  userAgent,
		timeout:    15 * time.Second,
		maxBodyLen: 10 << 20,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch requests rawURL once, letting register attach OnHTML/OnResponse
// callbacks before the request goes out.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string, opts RequestOptions, register func(*colly.Collector)) (*Page, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := f.newCollector(ctx, opts)
	if register != nil {
		register(c)
	}

	page := &Page{URL: target}
	var reqErr error
	c.OnResponse(func(r *colly.Response) {
		page.Status = r.StatusCode
		page.Body = r.Body
		if r.Headers != nil {
			page.Header = r.Headers.Clone()
		}
		if r.Request != nil && r.Request.URL != nil {
			page.URL = r.Request.URL.String()
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			page.Status = r.StatusCode
			if r.Headers != nil {
				page.Header = r.Headers.Clone()
			}
		}
		reqErr = err
	})

	err = c.Request(http.MethodGet, target, nil, colly.NewContext(), cloneHeader(opts.Headers))
	if err == nil {
		err = reqErr
	}
	if err == nil && ctx.Err() != nil {
		// aborted in OnRequest
		err = ctx.Err()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &FetchError{URL: target, Status: page.Status, Header: page.Header, Err: ctxErr}
		}
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return nil, &FetchError{URL: target, Err: ErrRobotsDisallowed}
		}
		return nil, &FetchError{URL: target, Status: page.Status, Header: page.Header, Err: err}
	}
	if page.Status >= 400 {
		return nil, &FetchError{URL: target, Status: page.Status, Header: page.Header, Err: fmt.Errorf("status %d", page.Status)}
	}
	if page.Status == 0 {
		page.Status = http.StatusOK
	}
	return page, nil
}

// FetchBytes returns the raw body of rawURL.
func (f *CollyFetcher) FetchBytes(ctx context.Context, rawURL string, opts RequestOptions) ([]byte, int, error) {
	page, err := f.Fetch(ctx, rawURL, opts, nil)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe.Status, err
		}
		return nil, 0, err
	}
	return page.Body, page.Status, nil
}

func (f *CollyFetcher) newCollector(ctx context.Context, opts RequestOptions) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(f.maxBodyLen),
	)
	c.IgnoreRobotsTxt = !opts.RespectRobots

	timeout := f.timeout
	if opts.Timeout > 0 && opts.Timeout < timeout {
		timeout = opts.Timeout
	}
	if f.transport != nil {
		c.WithTransport(f.transport)
	}
	c.SetRequestTimeout(timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	return c
}

func baseTransport() *http.Transport {
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		return t.Clone()
	}
	return &http.Transport{}
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	return h.Clone()
}

func normalizeURL(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + strings.TrimSpace(rawURL))
		if err != nil {
			return "", err
		}
	}
	return u.String(), nil
}
