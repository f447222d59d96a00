// Package citation produces BibTeX text for a forum thread, preferring the
// upstream's own citation field and synthesizing a deterministic record when
// the upstream omits one.
package citation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hmoravej/orlink/internal/source"
)

// embeddedPattern recognizes upstream citation text: optional leading lines,
// then a line starting a BibTeX entry.
var embeddedPattern = regexp.MustCompile(`(^|\n)\s*@\w+\s*\{`)

// ForNote returns citation text for a thread: the embedded upstream BibTeX
// verbatim (trimmed) when present, otherwise a synthesized record.
// Byte-identical across calls for fixed note content.
func ForNote(n source.Note, forumID, webBase string) string {
	if txt := embedded(n); txt != "" {
		return txt
	}
	return generate(n, forumID, webBase, time.Now().UTC().Year())
}

func embedded(n source.Note) string {
	for _, key := range []string{"_bibtex", "bibtex"} {
		if txt := n.ContentText(key); txt != "" && embeddedPattern.MatchString(txt) {
			return strings.TrimSpace(txt)
		}
	}
	return ""
}

// generate builds a generic inproceedings record from note metadata.
// fallbackYear is used only when the note carries no plausible year.
func generate(n source.Note, forumID, webBase string, fallbackYear int) string {
	noteTitle := n.Title()
	if noteTitle == "" {
		noteTitle = "Untitled"
	}
	authors := authorList(n)
	year := n.Year()
	if year == 0 {
		year = fallbackYear
	}
	venue := n.ContentText("venue")
	if venue == "" {
		venue = n.ContentText("venueid")
	}
	forumURL := source.ForumURL(webBase, forumID)

	venueLine := "  note={OpenReview},"
	if venue != "" {
		venueLine = "  booktitle={" + escape(venue) + "},"
	}

	lines := []string{
		"@inproceedings{" + key(authors, year, noteTitle, forumID) + ",",
		"  title={" + escape(noteTitle) + "},",
		"  author={" + escape(authors) + "},",
		"  year={" + strconv.Itoa(year) + "},",
		venueLine,
		"  url={" + escape(forumURL) + "}",
		"}",
	}
	return strings.Join(lines, "\n")
}

func authorList(n source.Note) string {
	names := n.ContentList("authors")
	if len(names) == 0 {
		return "Unknown"
	}
	return strings.Join(names, " and ")
}

// key builds {surname}{year}{firstTitleWord}{first6OfForumID}, each component
// lower-cased and restricted to alphanumerics, with fixed fallbacks when a
// component cannot be derived.
func key(authors string, year int, noteTitle, forumID string) string {
	surname := alnum(strings.ToLower(lastNameOfFirstAuthor(authors)))
	if surname == "" {
		surname = "openreview"
	}
	word := firstTitleWord(noteTitle)
	if word == "" {
		word = "paper"
	}
	suffix := alnum(truncateRunes(forumID, 6))
	if suffix == "" {
		suffix = "id"
	}
	return surname + strconv.Itoa(year) + word + suffix
}

func lastNameOfFirstAuthor(authors string) string {
	first := authors
	if i := strings.IndexAny(authors, ","); i >= 0 {
		first = authors[:i]
	}
	if fields := strings.Fields(first); len(fields) > 0 {
		if i := indexOfAnd(fields); i > 0 {
			fields = fields[:i]
		}
		return fields[len(fields)-1]
	}
	return ""
}

func indexOfAnd(fields []string) int {
	for i, f := range fields {
		if strings.EqualFold(f, "and") {
			return i
		}
	}
	return -1
}

func firstTitleWord(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	for _, f := range strings.Fields(b.String()) {
		return f
	}
	return ""
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

// escape protects BibTeX syntax characters in field values.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "{", `\{`)
	s = strings.ReplaceAll(s, "}", `\}`)
	return s
}
