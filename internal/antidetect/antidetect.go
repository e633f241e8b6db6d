package antidetect

import (
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	delayMean   = 3500 * time.Millisecond
	delayStdDev = 1500 * time.Millisecond
	delayMin    = time.Second
	delayMax    = 10 * time.Second

	refererProbability = 0.3
)

type profile struct {
	userAgent string
	// secCHUA is empty for browsers that do not send client hints.
	secCHUA  string
	platform string
	mobile   bool
}

var profiles = []profile{
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		secCHUA:   `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		platform:  `"Windows"`,
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		secCHUA:   `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		platform:  `"macOS"`,
	},
	{
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
		secCHUA:   `"Google Chrome";v="130", "Chromium";v="130", "Not?A_Brand";v="99"`,
		platform:  `"Linux"`,
	},
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		secCHUA:   `"Microsoft Edge";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		platform:  `"Windows"`,
	},
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
	},
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.8",
	"en-GB,en;q=0.9,en-US;q=0.8",
	"en-US,en;q=0.9,es;q=0.8",
}

var searchEngines = []string{
	"https://www.google.com/search?q=",
	"https://www.bing.com/search?q=",
	"https://duckduckgo.com/?q=",
}

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// Generator produces browser-like request headers and pacing delays.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator. A nil rnd seeds one from the clock.
func New(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rnd: rnd}
}

// Headers builds a header set for a request to rawURL.
func (g *Generator) Headers(rawURL string) http.Header {
	g.mu.Lock()
	p := profiles[g.rnd.Intn(len(profiles))]
	lang := acceptLanguages[g.rnd.Intn(len(acceptLanguages))]
	withReferer := g.rnd.Float64() < refererProbability
	engine := searchEngines[g.rnd.Intn(len(searchEngines))]
	g.mu.Unlock()

	h := http.Header{}
	h.Set("User-Agent", p.userAgent)
	h.Set("Accept", acceptHTML)
	h.Set("Accept-Language", lang)
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-User", "?1")
	if p.secCHUA != "" {
		h.Set("Sec-CH-UA", p.secCHUA)
		h.Set("Sec-CH-UA-Mobile", "?0")
		h.Set("Sec-CH-UA-Platform", p.platform)
	}

	site := "none"
	if withReferer {
		if domain := hostOf(rawURL); domain != "" {
			h.Set("Referer", engine+url.QueryEscape(domain+" careers"))
			site = "cross-site"
		}
	}
	h.Set("Sec-Fetch-Site", site)
	return h
}

// APIHeaders is the header set for JSON endpoints: same identity, JSON accept,
// CORS-style fetch metadata.
func (g *Generator) APIHeaders(rawURL string) http.Header {
	h := g.Headers(rawURL)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Del("Sec-Fetch-User")
	h.Del("Upgrade-Insecure-Requests")
	return h
}

// RandomDelay returns a human-like pause drawn from a normal distribution
// around 3.5s, clamped to [1s, 10s].
func (g *Generator) RandomDelay() time.Duration {
	g.mu.Lock()
	n := g.rnd.NormFloat64()
	g.mu.Unlock()

	d := time.Duration(float64(delayMean) + n*float64(delayStdDev))
	return time.Duration(math.Min(math.Max(float64(d), float64(delayMin)), float64(delayMax)))
}

// UserAgents lists the pool, for transports that set the header themselves.
func UserAgents() []string {
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.userAgent)
	}
	return out
}

var botHeaders = []string{
	"cf-mitigated",
	"x-datadome",
	"x-datadome-cid",
	"x-amzn-waf-action",
	"x-sucuri-block",
	"x-distil-cs",
}

// IsBotDetected reports whether a response looks like an anti-bot block.
func IsBotDetected(status int, header http.Header) bool {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		return true
	}
	if header == nil {
		return false
	}
	for _, name := range botHeaders {
		if header.Get(name) != "" {
			return true
		}
	}
	for name := range header {
		if strings.HasPrefix(strings.ToLower(name), "x-px-") {
			return true
		}
	}
	if status == http.StatusServiceUnavailable {
		server := strings.ToLower(header.Get("Server"))
		if strings.Contains(server, "cloudflare") || header.Get("Cf-Chl-Bypass") != "" {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
