package scraper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	html  string
	err   error
	delay time.Duration
	ua    string
}

func (r *fakeRenderer) Render(ctx context.Context, _ string, userAgent string) (string, error) {
	r.ua = userAgent
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.delay):
		}
	}
	return r.html, r.err
}

func TestBrowserStrategy_Extract(t *testing.T) {
	target := pageTarget("https://acme.example/careers", StrategyBrowser)
	headers := http.Header{"User-Agent": {"Mozilla/5.0 test"}}

	t.Run("json-ld in rendered dom", func(t *testing.T) {
		r := &fakeRenderer{html: `<script type="application/ld+json">{"@type":"JobPosting","title":"Growth Marketer","url":"https://acme.example/careers/growth"}</script>`}
		jobs, err := NewBrowserStrategy(r, true).Extract(context.Background(), target, FetchOptions{Headers: headers})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "Growth Marketer", jobs[0].Title)
		assert.Equal(t, StrategyBrowser, jobs[0].Strategy)
		assert.Equal(t, "Mozilla/5.0 test", r.ua)
	})

	t.Run("falls through to island", func(t *testing.T) {
		r := &fakeRenderer{html: nextDataPage}
		jobs, err := NewBrowserStrategy(r, true).Extract(context.Background(), target, FetchOptions{})
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})

	t.Run("falls through to cards", func(t *testing.T) {
		r := &fakeRenderer{html: cardsPage1}
		jobs, err := NewBrowserStrategy(r, true).Extract(context.Background(), target, FetchOptions{})
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})

	t.Run("empty dom", func(t *testing.T) {
		r := &fakeRenderer{html: `<html><body></body></html>`}
		jobs, err := NewBrowserStrategy(r, true).Extract(context.Background(), target, FetchOptions{})
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestBrowserStrategy_Errors(t *testing.T) {
	target := pageTarget("https://acme.example/careers", StrategyBrowser)

	_, err := NewBrowserStrategy(&fakeRenderer{}, false).Extract(context.Background(), target, FetchOptions{})
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrConfig, se.Kind)

	slow := &fakeRenderer{delay: time.Second}
	_, err = NewBrowserStrategy(slow, true).Extract(context.Background(), target, FetchOptions{Timeout: 20 * time.Millisecond})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrTimeout, se.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	broken := &fakeRenderer{err: errors.New("browser rendering failed: chrome not found")}
	_, err = NewBrowserStrategy(broken, true).Extract(context.Background(), target, FetchOptions{})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrUnknown, se.Kind)
}
