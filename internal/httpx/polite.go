package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"
)

// PoliteClient is the JSON API client: resty underneath, robots.txt aware,
// one attempt per call.
type PoliteClient struct {
	http        *resty.Client
	ua          string
	robotsCache map[string]*robotstxt.RobotsData
	mu          sync.Mutex
}

type ClientOption func(*PoliteClient)

func WithClientCloudflareBypass() ClientOption {
	return func(p *PoliteClient) {
		p.http.SetTransport(cloudflarebp.AddCloudFlareByPass(baseTransport()))
	}
}

func WithClientTimeout(d time.Duration) ClientOption {
	return func(p *PoliteClient) {
		if d > 0 {
			p.http.SetTimeout(d)
		}
	}
}

func NewPoliteClient(userAgent string, opts ...ClientOption) *PoliteClient {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", userAgent)

	p := &PoliteClient{
		http:        client,
		ua:          userAgent,
		robotsCache: map[string]*robotstxt.RobotsData{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetJSON fetches rawURL and decodes the body into out.
func (p *PoliteClient) GetJSON(ctx context.Context, rawURL string, opts RequestOptions, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &FetchError{URL: rawURL, Err: err}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	if opts.RespectRobots && !p.allowed(ctx, u) {
		return &FetchError{URL: u.String(), Err: ErrRobotsDisallowed}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := p.http.R().SetContext(ctx)
	if len(opts.Headers) > 0 {
		req.SetHeaderMultiValues(opts.Headers)
	}
	req.SetHeader("Accept", "application/json")

	resp, err := req.Get(u.String())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &FetchError{URL: u.String(), Err: ctxErr}
		}
		var status int
		var header http.Header
		if resp != nil && resp.RawResponse != nil {
			status = resp.StatusCode()
			header = resp.Header()
		}
		return &FetchError{URL: u.String(), Status: status, Header: header, Err: err}
	}
	if resp.IsError() {
		return &FetchError{
			URL:    u.String(),
			Status: resp.StatusCode(),
			Header: resp.Header(),
			Err:    fmt.Errorf("status %d", resp.StatusCode()),
		}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, u.String(), err)
	}
	return nil
}

func (p *PoliteClient) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Host
	p.mu.Lock()
	if data, ok := p.robotsCache[host]; ok {
		p.mu.Unlock()
		return data, nil
	}
	p.mu.Unlock()

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	resp, err := p.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(robotsURL)
	if err != nil {
		return nil, err
	}
	raw := resp.RawResponse
	defer raw.Body.Close()

	data, err := robotstxt.FromResponse(raw)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.robotsCache[host] = data
	p.mu.Unlock()
	return data, nil
}

func (p *PoliteClient) allowed(ctx context.Context, u *url.URL) bool {
	data, err := p.robotsFor(ctx, u)
	if err != nil {
		return true // fail open
	}
	group := data.FindGroup(p.ua)
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// ResolveEndpoint joins base and a path template such as "/v1/boards/%s/jobs".
func ResolveEndpoint(base, pathFormat string, args ...any) string {
	base = strings.TrimSuffix(base, "/")
	return base + fmt.Sprintf(pathFormat, args...)
}
