// Package browser implements the rendered-page retrieval strategy: it drives
// a headless browser against the public OpenReview site and extracts records
// from the hydrated DOM. Used where the structured API is not reachable.
package browser

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/hmoravej/orlink/internal/source"
)

const (
	// DefaultPollInterval is how often the hydration check runs.
	DefaultPollInterval = 250 * time.Millisecond

	// DefaultPollCeiling bounds the hydration wait; past it the page is
	// treated as having no results.
	DefaultPollCeiling = 15 * time.Second
)

// hydratedExpr is true once the search page either rendered result rows or
// showed its explicit empty state.
const hydratedExpr = `(function () {
	if (document.querySelector('.note, .search-results .note')) return true;
	var txt = (document.body && document.body.innerText) || '';
	return /no (results|papers|notes) (found|matched)/i.test(txt);
})()`

// Browser renders OpenReview pages in an isolated headless context per call.
type Browser struct {
	WebBase      string
	PollInterval time.Duration
	PollCeiling  time.Duration
	Logger       *log.Logger
}

// New creates a rendered-page source rooted at webBase.
func New(webBase string, pollInterval, pollCeiling time.Duration, logger *log.Logger) *Browser {
	if webBase == "" {
		webBase = source.DefaultWebBase
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if pollCeiling <= 0 {
		pollCeiling = DefaultPollCeiling
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SOURCE] ", log.LstdFlags)
	}
	return &Browser{WebBase: webBase, PollInterval: pollInterval, PollCeiling: pollCeiling, Logger: logger}
}

// SearchByTitle renders the search page for the title and extracts result
// rows. Hydration-ceiling expiry yields an empty result set, not an error.
func (b *Browser) SearchByTitle(ctx context.Context, titleQuery string) ([]source.Note, error) {
	html, err := b.render(ctx, source.SearchURL(b.WebBase, titleQuery))
	if err != nil {
		return nil, err
	}
	notes, err := parseSearchNotes(html)
	if err != nil {
		return nil, err
	}
	var usable []source.Note
	for _, n := range notes {
		if n.ForumID() == "" || n.Title() == "" {
			continue
		}
		usable = append(usable, n)
	}
	return usable, nil
}

// FetchByID renders the forum page and extracts the thread's metadata.
// A page without a recognizable title is reported as a missing thread.
func (b *Browser) FetchByID(ctx context.Context, id string) (*source.Note, error) {
	html, err := b.render(ctx, source.ForumURL(b.WebBase, id))
	if err != nil {
		return nil, err
	}
	return parseForumNote(html, id), nil
}

// render opens a fresh browsing context, waits for hydration and returns the
// page HTML. The context is torn down on every path.
func (b *Browser) render(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("orlink/1.0 (+https://github.com/hmoravej/orlink)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	if err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", err
	}

	var hydrated bool
	err := chromedp.Run(bctx, chromedp.Poll(hydratedExpr, &hydrated,
		chromedp.WithPollingInterval(b.PollInterval),
		chromedp.WithPollingTimeout(b.PollCeiling),
	))
	if err != nil {
		if !errors.Is(err, chromedp.ErrPollingTimeout) {
			return "", err
		}
		// Ceiling reached: extract whatever rendered and let the caller
		// see an empty result set.
		b.Logger.Printf("hydration ceiling reached for %s", pageURL)
	}

	var html string
	if err := chromedp.Run(bctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}
