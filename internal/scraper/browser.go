package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer returns the DOM of a page after scripts have run.
type Renderer interface {
	Render(ctx context.Context, rawURL, userAgent string) (string, error)
}

// ChromeRenderer renders pages in a headless Chrome. Requires Chrome or
// Chromium on the host.
type ChromeRenderer struct {
	settle time.Duration
}

func NewChromeRenderer(settle time.Duration) *ChromeRenderer {
	return &ChromeRenderer{settle: settle}
}

func (r *ChromeRenderer) Render(ctx context.Context, rawURL, userAgent string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var html string
	actions := []chromedp.Action{
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
	}
	if r.settle > 0 {
		actions = append(actions, chromedp.Sleep(r.settle))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}
	return html, nil
}

// BrowserStrategy renders the target and runs the page extractors over the
// resulting DOM.
type BrowserStrategy struct {
	renderer Renderer
	enabled  bool
}

func NewBrowserStrategy(renderer Renderer, enabled bool) *BrowserStrategy {
	return &BrowserStrategy{renderer: renderer, enabled: enabled}
}

func (s *BrowserStrategy) Kind() StrategyKind { return StrategyBrowser }

func (s *BrowserStrategy) Extract(ctx context.Context, target TargetConfig, opts FetchOptions) ([]RawJob, error) {
	if !s.enabled || s.renderer == nil {
		return nil, configError(StrategyBrowser, "browser automation disabled")
	}

	renderCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	html, err := s.renderer.Render(renderCtx, target.URL, opts.Headers.Get("User-Agent"))
	if err != nil {
		if ctxErr := renderCtx.Err(); ctxErr != nil {
			return nil, NewError(ErrTimeout, StrategyBrowser, fmt.Errorf("%w: %v", ctxErr, err))
		}
		return nil, Classify(err, StrategyBrowser)
	}

	body := []byte(html)
	jobs, _ := ExtractJSONLD(body)
	if len(jobs) == 0 {
		jobs, _ = ExtractDataIsland(body, target.URL)
	}
	if len(jobs) == 0 {
		jobs, err = ExtractHTML(body, target.URL, target.Selectors)
		if err != nil {
			return nil, parseError(StrategyBrowser, err)
		}
	}
	return finishPageJobs(jobs, target.URL, target, StrategyBrowser), nil
}
