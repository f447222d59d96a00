// Package source defines the retrieval capability for OpenReview submission
// records. Exactly one concrete strategy (structured API or rendered page)
// is instantiated at startup; everything downstream only sees this package.
package source

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// DefaultWebBase is the public OpenReview site.
const DefaultWebBase = "https://openreview.net"

// ErrUnavailable reports that every retrieval endpoint failed. Errors from
// concrete strategies wrap it so callers can branch without knowing which
// strategy is deployed.
var ErrUnavailable = errors.New("openreview unavailable")

// Source retrieves candidate submission records from OpenReview.
type Source interface {
	// SearchByTitle returns candidate notes for a title query. Records
	// missing a forum id or a title are dropped before return.
	SearchByTitle(ctx context.Context, title string) ([]Note, error)
	// FetchByID returns the full note for a forum thread, or nil when the
	// thread does not exist upstream.
	FetchByID(ctx context.Context, id string) (*Note, error)
}

// Note is a single submission record. Content values come back from the
// upstream in several shapes (plain string, list, or a {value: ...} wrapper
// in API v2); accessors flatten all of them.
type Note struct {
	ID      string         `json:"id"`
	Forum   string         `json:"forum"`
	CDate   int64          `json:"cdate"`
	TCDate  int64          `json:"tcdate"`
	TMDate  int64          `json:"tmdate"`
	Content map[string]any `json:"content"`
}

// ForumID returns the thread identifier, preferring the forum field over the
// note's own id.
func (n Note) ForumID() string {
	if forum := strings.TrimSpace(n.Forum); forum != "" {
		return forum
	}
	return strings.TrimSpace(n.ID)
}

// Title returns the note's title content field.
func (n Note) Title() string {
	return n.ContentText("title")
}

// ContentText flattens the content field under key to a display string.
// Lists are joined with ", "; unknown shapes yield "".
func (n Note) ContentText(key string) string {
	return flatten(n.Content[key])
}

// ContentList flattens the content field under key to a list of non-empty
// strings, unwrapping {value: ...} shapes.
func (n Note) ContentList(key string) []string {
	return collect(n.Content[key])
}

func collect(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, collect(e)...)
		}
		return out
	case []string:
		var out []string
		for _, e := range t {
			if s := strings.TrimSpace(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		return collect(t["value"])
	default:
		return nil
	}
}

func flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		var parts []string
		for _, e := range t {
			if s := flatten(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		var parts []string
		for _, e := range t {
			if s := strings.TrimSpace(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return flatten(t["value"])
	default:
		return ""
	}
}

// CreatedMillis returns the best available creation timestamp in unix millis,
// or zero when the upstream supplied none.
func (n Note) CreatedMillis() int64 {
	for _, ms := range []int64{n.CDate, n.TCDate, n.TMDate} {
		if ms > 0 {
			return ms
		}
	}
	return 0
}

// Year derives the creation year when it is a plausible value (1990-2100
// inclusive); zero otherwise.
func (n Note) Year() int {
	ms := n.CreatedMillis()
	if ms <= 0 {
		return 0
	}
	y := time.UnixMilli(ms).UTC().Year()
	if y < 1990 || y > 2100 {
		return 0
	}
	return y
}

// ForumURL builds the public URL of a forum thread.
func ForumURL(webBase, forumID string) string {
	return strings.TrimSuffix(webBase, "/") + "/forum?id=" + url.QueryEscape(forumID)
}

// SearchURL builds the manual-fallback search page URL for a title. Output is
// byte-identical for identical titles regardless of retrieval strategy.
func SearchURL(webBase, title string) string {
	q := url.Values{}
	q.Set("term", title)
	q.Set("content", "title")
	q.Set("group", "all")
	q.Set("source", "forum")
	q.Set("sort", "cdate:desc")
	return strings.TrimSuffix(webBase, "/") + "/search?" + q.Encode()
}
