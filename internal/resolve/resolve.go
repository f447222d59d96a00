// Package resolve turns candidate submission records into a deduplicated,
// labeled list of distinct forum threads for one paper.
package resolve

import (
	"context"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hmoravej/orlink/internal/source"
	"github.com/hmoravej/orlink/internal/title"
	"github.com/hmoravej/orlink/models"
)

// PlaceholderLabel substitutes for a version whose metadata yields no label.
const PlaceholderLabel = "This version"

// maxLabelRunes treats anything longer as index noise, not a venue name.
const maxLabelRunes = 140

// Reasons for resolution failure, surfaced verbatim to callers.
const (
	ReasonNoExactMatch = "No exact title matches"
	ReasonNoVersions   = "No forum versions found"
)

// Resolver derives version lists. The Source is only consulted for the
// single-version relabel refetch.
type Resolver struct {
	Source       source.Source
	WebBase      string
	ForumTimeout time.Duration
	Logger       *log.Logger
}

// New creates a Resolver.
func New(src source.Source, webBase string, forumTimeout time.Duration, logger *log.Logger) *Resolver {
	if webBase == "" {
		webBase = source.DefaultWebBase
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[RESOLVE] ", log.LstdFlags)
	}
	return &Resolver{Source: src, WebBase: webBase, ForumTimeout: forumTimeout, Logger: logger}
}

// Resolve filters candidates to exact normalized-title matches, orders them
// most-recent-first, dedups by forum id keeping the first occurrence and
// labels each surviving thread. The returned reason is empty on success and
// human-readable on failure. Output is deterministic for a fixed input.
func (r *Resolver) Resolve(ctx context.Context, candidates []source.Note, targetTitle string) ([]models.VersionEntry, string) {
	target := title.Normalize(targetTitle)

	var exact []source.Note
	for _, n := range candidates {
		if title.Normalize(n.Title()) == target {
			exact = append(exact, n)
		}
	}
	if len(exact) == 0 {
		return nil, ReasonNoExactMatch
	}

	// Recency is judged on cdate alone; the tcdate/tmdate chain only backs
	// the year derivation. Stable sort keeps the upstream order for equal
	// timestamps, so ties break the same way on every call.
	sort.SliceStable(exact, func(i, j int) bool {
		return exact[i].CDate > exact[j].CDate
	})

	seen := make(map[string]bool, len(exact))
	var versions []models.VersionEntry
	for _, n := range exact {
		id := n.ForumID()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		label := versionLabel(n)
		if label == "" {
			label = PlaceholderLabel
		}
		versions = append(versions, models.VersionEntry{
			ForumID:  id,
			ForumURL: source.ForumURL(r.WebBase, id),
			Label:    label,
		})
	}
	if len(versions) == 0 {
		return nil, ReasonNoVersions
	}

	// A lone survivor often carries an under-informative label from the
	// search index; the full record and the index can disagree on which
	// fields are populated, so recompute from the authoritative note.
	if len(versions) == 1 {
		versions[0].Label = r.relabelSingle(ctx, versions[0])
	}
	return versions, ""
}

// relabelSingle refetches the thread's full record and recomputes its label,
// keeping the previously computed label when the refetch yields nothing.
func (r *Resolver) relabelSingle(ctx context.Context, entry models.VersionEntry) string {
	fctx := ctx
	if r.ForumTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, r.ForumTimeout)
		defer cancel()
	}
	note, err := r.Source.FetchByID(fctx, entry.ForumID)
	if err != nil {
		r.Logger.Printf("relabel refetch for %s failed: %v", entry.ForumID, err)
		return entry.Label
	}
	if note == nil {
		return entry.Label
	}
	if label := venueLabel(*note); label != "" {
		return label
	}
	if entry.Label != "" {
		return entry.Label
	}
	return PlaceholderLabel
}

// versionLabel derives a thread label: venue name, venue id, decision, then
// a "Submitted <year>" fallback when only the creation year is known.
func versionLabel(n source.Note) string {
	if label := venueLabel(n); label != "" {
		return label
	}
	if y := n.Year(); y != 0 {
		return "Submitted " + strconv.Itoa(y)
	}
	return ""
}

// venueLabel derives a label from venue metadata only (no year fallback).
// Only the first populated field is considered; sanitization rejecting it
// does not fall through to the next field.
func venueLabel(n source.Note) string {
	for _, key := range []string{"venue", "venueid", "decision"} {
		if raw := n.ContentText(key); raw != "" {
			return sanitizeLabel(raw)
		}
	}
	return ""
}

// sanitizeLabel collapses whitespace and discards oversized values outright.
func sanitizeLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || len([]rune(s)) > maxLabelRunes {
		return ""
	}
	return s
}
