package browser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hmoravej/orlink/internal/source"
)

// parseSearchNotes extracts candidate notes from a rendered search page.
// Rendered rows carry no creation timestamp, so CDate stays zero and the
// upstream's own recency ordering is preserved by the resolver's stable sort.
func parseSearchNotes(html string) ([]source.Note, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var notes []source.Note
	doc.Find(".note").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find(`h4 a[href*="forum"]`).First()
		if link.Length() == 0 {
			link = sel.Find(`a[href*="forum"]`).First()
		}
		href, _ := link.Attr("href")
		id := forumIDFromHref(href)
		if id == "" {
			return
		}
		content := map[string]any{
			"title": strings.TrimSpace(link.Text()),
		}
		if venue := strings.TrimSpace(sel.Find(".note-venue, .venue").First().Text()); venue != "" {
			content["venue"] = venue
		}
		notes = append(notes, source.Note{ID: id, Forum: id, Content: content})
	})
	return notes, nil
}

// parseForumNote extracts a thread's metadata from its rendered forum page,
// preferring the citation meta tags the site emits for indexers.
func parseForumNote(html, id string) *source.Note {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	content := map[string]any{}
	if title := metaContent(doc, "citation_title"); title != "" {
		content["title"] = title
	} else if title := strings.TrimSpace(doc.Find(".forum-title h2, .note_content_title").First().Text()); title != "" {
		content["title"] = title
	}

	var authors []any
	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, sel *goquery.Selection) {
		if name, ok := sel.Attr("content"); ok && strings.TrimSpace(name) != "" {
			authors = append(authors, strings.TrimSpace(name))
		}
	})
	if len(authors) > 0 {
		content["authors"] = authors
	}

	if venue := strings.TrimSpace(doc.Find(".forum-meta .venue, .note-venue").First().Text()); venue != "" {
		content["venue"] = venue
	}

	if content["title"] == nil {
		return nil
	}
	return &source.Note{ID: id, Forum: id, Content: content}
}

func metaContent(doc *goquery.Document, name string) string {
	v, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(v)
}

func forumIDFromHref(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("id"))
}
