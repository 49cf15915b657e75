// Package wikidata reads entity search results and localized titles from
// Wikidata's HTML pages.
package wikidata

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/eamt-tools/entsub/langmeta"
	"github.com/eamt-tools/entsub/netclient"
	"github.com/eamt-tools/entsub/resolve"
)

const (
	// DefaultBaseURL is the public Wikidata site.
	DefaultBaseURL = "https://www.wikidata.org"
	// DefaultUserAgent mimics a desktop browser; the search page serves a
	// reduced layout to unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"
)

// StatusError is returned for a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Config configures a Client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL   string
	UserAgent string
	// Proxy is an optional HTTP/HTTPS proxy URL. HTTP_PROXY and friends are
	// honoured when empty.
	Proxy   string
	Timeout time.Duration
	// RateLimit caps requests per second across both endpoints.
	// Zero means one request every 500ms; rate.Inf disables limiting.
	RateLimit rate.Limit
	// MaxRetries is the number of retries after a transport error, a 429 or
	// a 5xx response. Default: 0.
	MaxRetries int
	// RetryBase is the first backoff delay; it doubles per attempt.
	// Default: 1s.
	RetryBase time.Duration
	// Lang maps a target locale to the site's UI language.
	// Default: langmeta.KBCode.
	Lang func(locale string) string
	// OnLog receives request diagnostics.
	OnLog func(format string, args ...any)
}

// Stats counts requests issued by a Client.
type Stats struct {
	Searches int64 `json:"searches"`
	Fetches  int64 `json:"fetches"`
	Retries  int64 `json:"retries"`
}

// Client implements resolve.KnowledgeBase against Wikidata.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	searches atomic.Int64
	fetches  atomic.Int64
	retries  atomic.Int64
}

var _ resolve.KnowledgeBase = (*Client)(nil)

// New returns a Client with defaults filled in.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = rate.Every(500 * time.Millisecond)
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.Lang == nil {
		cfg.Lang = langmeta.KBCode
	}

	return &Client{
		cfg:        cfg,
		httpClient: netclient.New(cfg.Proxy, cfg.Timeout),
		limiter:    rate.NewLimiter(cfg.RateLimit, 1),
	}
}

func (c *Client) log(format string, args ...any) {
	if c.cfg.OnLog != nil {
		c.cfg.OnLog(format, args...)
	}
}

// Stats returns request counters.
func (c *Client) Stats() Stats {
	return Stats{
		Searches: c.searches.Load(),
		Fetches:  c.fetches.Load(),
		Retries:  c.retries.Load(),
	}
}

// SearchURL returns the search page URL for query.
func (c *Client) SearchURL(query string) string {
	params := url.Values{}
	params.Set("search", query)
	params.Set("ns0", "1")
	return c.cfg.BaseURL + "/w/index.php?" + params.Encode()
}

// EntityURL returns the page URL of entity id rendered in lang.
func (c *Client) EntityURL(id, lang string) string {
	return c.cfg.BaseURL + "/wiki/" + url.PathEscape(id) + "?uselang=" + url.QueryEscape(lang)
}

// Search implements resolve.KnowledgeBase.
func (c *Client) Search(ctx context.Context, query, locale string) ([]resolve.Candidate, error) {
	c.searches.Add(1)
	lang := c.cfg.Lang(locale)

	var cands []resolve.Candidate
	err := c.get(ctx, c.SearchURL(query), lang, func(body io.Reader) error {
		var perr error
		cands, perr = ParseSearch(body)
		return perr
	})
	if err != nil {
		return nil, err
	}
	return cands, nil
}

// FetchLabel implements resolve.KnowledgeBase.
func (c *Client) FetchLabel(ctx context.Context, id, locale string) (string, error) {
	c.fetches.Add(1)
	lang := c.cfg.Lang(locale)

	var label string
	err := c.get(ctx, c.EntityURL(id, lang), lang, func(body io.Reader) error {
		var perr error
		label, perr = ParseLabel(body)
		return perr
	})
	if err != nil {
		return "", err
	}
	return label, nil
}

// get fetches pageURL and hands the decoded body to parse, retrying
// transport errors, 429 and 5xx responses up to MaxRetries times.
func (c *Client) get(ctx context.Context, pageURL, lang string, parse func(io.Reader) error) error {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", lang)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.cfg.MaxRetries && ctx.Err() == nil {
				c.log("GET %s failed (attempt %d/%d): %v", pageURL, attempt+1, c.cfg.MaxRetries+1, err)
				if werr := c.backoff(ctx, attempt); werr != nil {
					return werr
				}
				continue
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			if retryable && attempt < c.cfg.MaxRetries {
				c.log("GET %s returned %d (attempt %d/%d)", pageURL, resp.StatusCode, attempt+1, c.cfg.MaxRetries+1)
				if werr := c.backoff(ctx, attempt); werr != nil {
					return werr
				}
				continue
			}
			return &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
		}

		body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
		if err != nil {
			resp.Body.Close()
			return fmt.Errorf("decoding %s: %w", pageURL, err)
		}
		err = parse(body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("parsing %s: %w", pageURL, err)
		}
		return nil
	}
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	c.retries.Add(1)
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.RetryBase
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
