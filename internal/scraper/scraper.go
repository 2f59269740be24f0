// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package scraper fetches a Wikipedia article and extracts its paragraph
// text.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "wikiqa/1.0 (+https://github.com/sigil-dev/wikiqa)"

	maxBodyBytes = 16 << 20
)

// Page is the extracted content of one article.
type Page struct {
	URL        string
	Title      string
	Paragraphs []string
}

// Text joins the paragraphs with single spaces.
func (p *Page) Text() string {
	return strings.Join(p.Paragraphs, " ")
}

// Fetcher retrieves and parses a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Config configures an HTTPFetcher.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// RequestsPerSecond caps outbound fetches; zero or less disables the cap.
	RequestsPerSecond float64
	Client            *http.Client
}

// HTTPFetcher fetches pages over HTTP and extracts <p> text with goquery.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

var _ Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &HTTPFetcher{
		client:    client,
		userAgent: ua,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, classify(ctx, err, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeRequestInvalidInput, "building page request", wikierr.FieldURL(url))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err, url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, wikierr.New(wikierr.CodeScrapeUpstreamFailure,
			fmt.Sprintf("fetching %s: unexpected status %d", url, resp.StatusCode),
			wikierr.FieldURL(url),
			wikierr.Field("status", resp.StatusCode),
		)
	}

	page, err := Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(ctx, err, url)
	}
	page.URL = url
	return page, nil
}

// Parse extracts the title and the trimmed, non-empty <p> texts from an
// HTML document.
func Parse(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodeScrapeParseFailure, "parsing html")
	}

	page := &Page{Title: title(doc)}
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			page.Paragraphs = append(page.Paragraphs, text)
		}
	})
	return page, nil
}

func title(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("h1#firstHeading").First().Text()); t != "" {
		return t
	}
	t := strings.TrimSpace(doc.Find("title").First().Text())
	return strings.TrimSuffix(t, " - Wikipedia")
}

func classify(ctx context.Context, err error, url string) error {
	if wikierr.CodeOf(err) != "" {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return wikierr.Wrap(err, wikierr.CodeScrapeTimeout, "fetching page timed out", wikierr.FieldURL(url))
	}
	return wikierr.Wrap(err, wikierr.CodeScrapeUpstreamFailure, "fetching page", wikierr.FieldURL(url))
}
