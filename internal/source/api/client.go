// Package api implements the structured-API retrieval strategy against the
// public OpenReview notes endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hmoravej/orlink/internal/source"
)

// DefaultBases are tried in order; the v2 API host first, then the legacy
// host, then the web host which proxies the API.
var DefaultBases = []string{
	"https://api2.openreview.net",
	"https://api.openreview.net",
	"https://openreview.net",
}

const (
	// DefaultSearchLimit caps how many candidate notes one search returns.
	DefaultSearchLimit = 100

	// DefaultRateLimit is requests per second against the public API.
	DefaultRateLimit = 4.0
)

// Client is a rate-limited OpenReview API client implementing source.Source.
type Client struct {
	bases       []string
	searchLimit int
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBases overrides the API base URLs tried in order.
func WithBases(bases []string) Option {
	return func(c *Client) {
		if len(bases) > 0 {
			c.bases = bases
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSearchLimit caps the number of candidates requested per search.
func WithSearchLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// WithRateLimit sets the outbound requests-per-second budget.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an OpenReview API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		bases:       DefaultBases,
		searchLimit: DefaultSearchLimit,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:      log.New(log.Writer(), "[SOURCE] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type notesResponse struct {
	Notes []source.Note `json:"notes"`
}

// SearchByTitle queries the notes search endpoint with exact-phrase
// semantics. Malformed records (no forum id or no title) are dropped.
func (c *Client) SearchByTitle(ctx context.Context, titleQuery string) ([]source.Note, error) {
	resp, err := c.getPath(ctx, "/notes/search", url.Values{
		"query":   {quoteTitleQuery(titleQuery)},
		"content": {"title"},
		"source":  {"forum"},
		"sort":    {"cdate:desc"},
		"limit":   {strconv.Itoa(c.searchLimit)},
	})
	if err != nil {
		return nil, err
	}

	var usable []source.Note
	for _, n := range resp.Notes {
		if n.ForumID() == "" || n.Title() == "" {
			continue
		}
		usable = append(usable, n)
	}
	return usable, nil
}

// FetchByID retrieves the full note for a forum thread. A missing thread is
// reported as (nil, nil).
func (c *Client) FetchByID(ctx context.Context, id string) (*source.Note, error) {
	resp, err := c.getPath(ctx, "/notes", url.Values{"id": {id}})
	if err != nil {
		return nil, err
	}
	if len(resp.Notes) == 0 {
		return nil, nil
	}
	return &resp.Notes[0], nil
}

// getPath tries each base in order and returns the first success. Only when
// every base fails does it return an error, wrapping source.ErrUnavailable
// with the attempted hosts and the last underlying cause.
func (c *Client) getPath(ctx context.Context, path string, params url.Values) (*notesResponse, error) {
	var lastErr error
	for _, base := range c.bases {
		resp, err := c.get(ctx, strings.TrimSuffix(base, "/")+path+"?"+params.Encode())
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Printf("base %s failed: %v", base, err)
	}
	return nil, fmt.Errorf("%w on all hosts: %s: last error: %v",
		source.ErrUnavailable, strings.Join(c.bases, ", "), lastErr)
}

func (c *Client) get(ctx context.Context, rawURL string) (*notesResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openreview api status %d", resp.StatusCode)
	}
	var out notesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode notes response: %w", err)
	}
	return &out, nil
}

// quoteTitleQuery wraps the title in double quotes for exact-phrase search,
// escaping reserved Lucene syntax so every character is treated literally.
func quoteTitleQuery(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return `"` + escapeLucene(s) + `"`
}

const luceneSpecials = `+-!(){}[]^"~*?:\/`

func escapeLucene(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch == '&' || ch == '|') && i+1 < len(s) && s[i+1] == ch {
			b.WriteByte('\\')
			b.WriteByte(ch)
			b.WriteByte(ch)
			i++
			continue
		}
		if strings.IndexByte(luceneSpecials, ch) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	return b.String()
}
