// Package fetcher downloads PDFs from URLs, following links on HTML pages to find them.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/xhad/ackaudit/internal/models"
)

var pdfMagic = []byte("%PDF-")

type FetcherConfig struct {
	// MaxDepth bounds how many HTML pages deep links are followed from the start URL.
	MaxDepth       int
	RateLimit      float64 // requests per second
	IgnorePatterns []string
	Timeout        time.Duration
	MaxBytes       int64
	UserAgent      string
	OnProgress     func(url string)
}

type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu      sync.Mutex
	visited map[string]bool
}

func NewWithConfig(config FetcherConfig, logger zerolog.Logger) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 1
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 100 << 20
	}
	if config.UserAgent == "" {
		config.UserAgent = "ackaudit/1.0"
	}

	return &Fetcher{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger.With().Str("component", "fetcher").Logger(),
		visited: make(map[string]bool),
	}
}

// Fetch returns the PDF at rawURL, or every PDF linked from it when it is an HTML page.
// Links are only followed on the start URL's host.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]models.Document, error) {
	start, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", start.Scheme)
	}

	var docs []models.Document
	if err := f.fetch(ctx, start, start.Host, 0, &docs); err != nil {
		return docs, err
	}
	return docs, nil
}

func (f *Fetcher) shouldVisit(u *url.URL, host string) bool {
	if u.Host != host {
		return false
	}
	for _, pattern := range f.config.IgnorePatterns {
		if strings.Contains(u.String(), pattern) {
			return false
		}
	}

	key := u.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visited[key] {
		return false
	}
	f.visited[key] = true
	return true
}

func (f *Fetcher) fetch(ctx context.Context, u *url.URL, host string, depth int, docs *[]models.Document) error {
	u.Fragment = ""
	if !f.shouldVisit(u, host) {
		return nil
	}
	if f.config.OnProgress != nil {
		f.config.OnProgress(u.String())
	}

	body, contentType, err := f.get(ctx, u.String())
	if err != nil {
		return err
	}

	if isPDF(u, contentType, body) {
		if !bytes.HasPrefix(body, pdfMagic) {
			return fmt.Errorf("%s is not a PDF", u)
		}
		*docs = append(*docs, models.Document{
			ID:    uuid.NewString(),
			Name:  documentName(u),
			Bytes: body,
		})
		f.logger.Debug().Str("url", u.String()).Int("bytes", len(body)).Msg("downloaded document")
		return nil
	}

	if depth >= f.config.MaxDepth {
		return nil
	}
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", u, err)
	}

	page.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link, err := u.Parse(strings.TrimSpace(href))
		if err != nil {
			f.logger.Debug().Err(err).Str("href", href).Msg("skipping link")
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := f.fetch(ctx, link, host, depth+1, docs); err != nil {
			f.logger.Warn().Err(err).Str("url", link.String()).Msg("failed to fetch link")
		}
	})
	return ctx.Err()
}

func (f *Fetcher) get(ctx context.Context, u string) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, u)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", u, err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, "", fmt.Errorf("%s exceeds %d bytes", u, f.config.MaxBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func isPDF(u *url.URL, contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf") || bytes.HasPrefix(body, pdfMagic)
}

func documentName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = u.Host
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
