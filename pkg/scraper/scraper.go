package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second
	MaxBytes  int64
}

// Page is the readable text of one web page.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Filename names the page as a plain text upload.
func (p Page) Filename() string {
	u, err := url.Parse(p.URL)
	if err != nil || u.Host == "" {
		return "page.txt"
	}
	name := strings.ReplaceAll(u.Host, ":", "_")
	if base := path.Base(u.Path); base != "/" && base != "." {
		name += "_" + strings.TrimSuffix(base, path.Ext(base))
	}
	return name + ".txt"
}

// Text is the page as it is uploaded for extraction.
func (p Page) Text() string {
	if p.Title == "" {
		return p.Content
	}
	return p.Title + "\n\n" + p.Content
}

// Scraper turns a web page into text that can be loaded as a document.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 10 << 20
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// IsURL reports whether s looks like an http(s) address rather than a path.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (s *Scraper) Fetch(ctx context.Context, urlStr string) (Page, error) {
	if !IsURL(urlStr) {
		return Page{}, fmt.Errorf("not an http(s) URL: %s", urlStr)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return Page{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.config.MaxBytes))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse %s: %w", urlStr, err)
	}

	content := extractMainContent(doc)
	if content == "" {
		return Page{}, fmt.Errorf("no readable text found at %s", urlStr)
	}

	return Page{
		URL:     urlStr,
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Content: content,
	}, nil
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer").Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}
