package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
)

// RenderMode selects how event pages are fetched.
type RenderMode string

const (
	// RenderStatic fetches the raw HTML over plain HTTP.
	RenderStatic RenderMode = "static"
	// RenderBrowser loads the page in a headless browser and waits for
	// client-side hydration before snapshotting the DOM.
	RenderBrowser RenderMode = "rendered"
)

var (
	// ErrFetch marks a source page that was unreachable or non-200.
	ErrFetch = errors.New("fetch failed")
	// ErrParse marks a page that was fetched but structurally unrecognizable.
	ErrParse = errors.New("parse failed")
)

const fetchUserAgent = "Mozilla/5.0 (compatible; OharaCatalogBot/1.0)"

// PageFetcher fetches a URL and returns the document HTML.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// StaticFetcher fetches pages with a plain HTTP client.
type StaticFetcher struct {
	client *http.Client
}

func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (f *StaticFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d for %s", ErrFetch, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	return string(body), nil
}

// RenderedFetcher loads pages in headless Chrome for sources that hydrate
// their event listings client-side.
type RenderedFetcher struct {
	wait      time.Duration
	remoteURL string
}

// NewRenderedFetcher creates a browser-backed fetcher. remoteURL optionally
// points at an existing Chrome DevTools endpoint; empty launches a local
// browser. wait is how long to let the page hydrate after navigation.
func NewRenderedFetcher(remoteURL string, wait time.Duration) *RenderedFetcher {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &RenderedFetcher{wait: wait, remoteURL: remoteURL}
}

func (f *RenderedFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	parent := ctx
	var cancels []context.CancelFunc
	defer func() {
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
	}()

	if f.remoteURL != "" {
		allocCtx, cancel := chromedp.NewRemoteAllocator(parent, f.remoteURL)
		cancels = append(cancels, cancel)
		parent = allocCtx
	}

	browserCtx, cancel := chromedp.NewContext(parent, chromedp.WithLogf(func(string, ...interface{}) {}))
	cancels = append(cancels, cancel)

	browserCtx, cancel = context.WithTimeout(browserCtx, 45*time.Second)
	cancels = append(cancels, cancel)

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(f.wait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("%w: render %s: %v", ErrFetch, url, err)
	}
	return html, nil
}

// fetcherFor selects the fetch strategy for a render mode.
func fetcherFor(mode RenderMode, remoteURL string, wait time.Duration) PageFetcher {
	if mode == RenderBrowser {
		return NewRenderedFetcher(remoteURL, wait)
	}
	return NewStaticFetcher()
}
