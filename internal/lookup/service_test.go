package lookup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hmoravej/orlink/internal/cache"
	"github.com/hmoravej/orlink/internal/source"
	"github.com/hmoravej/orlink/models"
)

// stubSource is a controllable source.Source for orchestrator tests.
type stubSource struct {
	searchNotes []source.Note
	searchErr   error
	searchDelay time.Duration
	searches    atomic.Int32

	fetchNote *source.Note
	fetchErr  error
	fetches   atomic.Int32

	started chan struct{} // receives one token per search start, if set
	proceed chan struct{} // blocks searches until closed, if set
}

func (f *stubSource) SearchByTitle(ctx context.Context, q string) ([]source.Note, error) {
	f.searches.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.proceed != nil {
		<-f.proceed
	}
	if f.searchDelay > 0 {
		time.Sleep(f.searchDelay)
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchNotes, nil
}

func (f *stubSource) FetchByID(ctx context.Context, id string) (*source.Note, error) {
	f.fetches.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fetchNote, nil
}

func matchingNotes() []source.Note {
	return []source.Note{
		{ID: "a", Forum: "a", CDate: 200, Content: map[string]any{"title": "A Paper", "venue": "ICLR 2024"}},
		{ID: "b", Forum: "b", CDate: 100, Content: map[string]any{"title": "A Paper", "venue": "NeurIPS 2023"}},
	}
}

func newTestService(src source.Source, store cache.Store) *Service {
	return NewService(src, store, Config{}, nil)
}

func TestLookupFound(t *testing.T) {
	t.Parallel()
	src := &stubSource{searchNotes: matchingNotes()}
	svc := newTestService(src, cache.NewMemory())

	res, cached, err := svc.Lookup(context.Background(), "A Paper", "2401.00001", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if cached {
		t.Fatal("first lookup reported as cached")
	}
	if !res.Found || len(res.Versions) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ForumID != "a" || res.ForumID != res.Versions[0].ForumID || res.ForumURL != res.Versions[0].ForumURL {
		t.Fatalf("primary does not match versions[0]: %+v", res)
	}
	if res.SearchURL == "" {
		t.Fatal("missing search url")
	}

	// Second call is served from cache without touching the source.
	res2, cached, err := svc.Lookup(context.Background(), "A Paper", "2401.00001", false)
	if err != nil || !cached {
		t.Fatalf("cached lookup = %v, cached=%v", err, cached)
	}
	if res2.ForumID != res.ForumID || len(res2.Versions) != len(res.Versions) {
		t.Fatalf("cached result differs: %+v vs %+v", res2, res)
	}
	if got := src.searches.Load(); got != 1 {
		t.Fatalf("expected 1 search, got %d", got)
	}
}

func TestLookupEmptyTitle(t *testing.T) {
	t.Parallel()
	src := &stubSource{}
	svc := newTestService(src, cache.NewMemory())

	res, _, err := svc.Lookup(context.Background(), "   ", "", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Found || res.Reason != ReasonNoTitle {
		t.Fatalf("unexpected result: %+v", res)
	}
	if src.searches.Load() != 0 {
		t.Fatal("empty title reached the source")
	}
}

func TestLookupNoExactMatch(t *testing.T) {
	t.Parallel()
	src := &stubSource{searchNotes: []source.Note{
		{ID: "x", Forum: "x", CDate: 1, Content: map[string]any{"title": "Another Paper"}},
	}}
	svc := newTestService(src, cache.NewMemory())

	res, _, err := svc.Lookup(context.Background(), "A Paper", "", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Found || res.Reason != "No exact title matches" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLookupSourceUnavailable(t *testing.T) {
	t.Parallel()
	src := &stubSource{searchErr: source.ErrUnavailable}
	svc := newTestService(src, cache.NewMemory())

	_, _, err := svc.Lookup(context.Background(), "A Paper", "", false)
	if !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLookupCacheTTLBoundary(t *testing.T) {
	t.Parallel()
	src := &stubSource{searchNotes: matchingNotes()}
	store := cache.NewMemory()
	svc := NewService(src, store, Config{LookupTTL: time.Minute}, nil)

	base := time.UnixMilli(1_700_000_000_000)
	now := base
	var mu sync.Mutex
	svc.now = func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	setNow := func(t time.Time) { mu.Lock(); now = t; mu.Unlock() }

	if _, _, err := svc.Lookup(context.Background(), "A Paper", "id", false); err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	// One millisecond before expiry the entry is still fresh.
	setNow(base.Add(time.Minute - time.Millisecond))
	if _, cached, _ := svc.Lookup(context.Background(), "A Paper", "id", false); !cached {
		t.Fatal("entry stale before TTL elapsed")
	}
	// At exactly TTL it is stale and the pipeline runs again.
	setNow(base.Add(time.Minute))
	if _, cached, _ := svc.Lookup(context.Background(), "A Paper", "id", false); cached {
		t.Fatal("entry still fresh at TTL")
	}
	if got := src.searches.Load(); got != 2 {
		t.Fatalf("expected 2 searches, got %d", got)
	}
}

func TestLookupSharedInflight(t *testing.T) {
	t.Parallel()
	src := &stubSource{
		searchNotes: matchingNotes(),
		started:     make(chan struct{}, 4),
		proceed:     make(chan struct{}),
	}
	svc := newTestService(src, cache.NewMemory())

	type out struct {
		res models.LookupResult
		err error
	}
	results := make(chan out, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, _, err := svc.Lookup(context.Background(), "A Paper", "id", false)
			results <- out{res, err}
		}()
	}

	// Exactly one retrieval starts for the two concurrent callers.
	<-src.started
	select {
	case <-src.started:
		t.Fatal("second retrieval started for a shared key")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.proceed)
	for i := 0; i < 2; i++ {
		o := <-results
		if o.err != nil || !o.res.Found {
			t.Fatalf("caller %d got %+v / %v", i, o.res, o.err)
		}
	}
	if got := src.searches.Load(); got != 1 {
		t.Fatalf("expected 1 search, got %d", got)
	}
}

func TestLookupForceRefreshStartsNewComputation(t *testing.T) {
	t.Parallel()
	src := &stubSource{
		searchNotes: matchingNotes(),
		started:     make(chan struct{}, 4),
		proceed:     make(chan struct{}),
	}
	svc := newTestService(src, cache.NewMemory())

	done := make(chan error, 2)
	go func() {
		_, _, err := svc.Lookup(context.Background(), "A Paper", "id", false)
		done <- err
	}()
	<-src.started

	// A refresh while the first computation is pending starts a second,
	// independent run instead of attaching to the inflight one.
	go func() {
		_, _, err := svc.Lookup(context.Background(), "A Paper", "id", true)
		done <- err
	}()
	select {
	case <-src.started:
	case <-time.After(time.Second):
		t.Fatal("force refresh did not start a new computation")
	}

	close(src.proceed)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	if got := src.searches.Load(); got != 2 {
		t.Fatalf("expected 2 searches, got %d", got)
	}
}

func TestLookupTimeoutFallbackIsCached(t *testing.T) {
	t.Parallel()
	src := &stubSource{searchDelay: 300 * time.Millisecond, searchNotes: matchingNotes()}
	store := cache.NewMemory()
	svc := NewService(src, store, Config{
		SearchTimeout: 20 * time.Millisecond,
		ForumTimeout:  20 * time.Millisecond,
	}, nil)

	res, cached, err := svc.Lookup(context.Background(), "A Paper", "id", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if cached || res.Found || res.Reason != ReasonTimedOut {
		t.Fatalf("unexpected result: %+v", res)
	}

	// The timeout outcome was written to the cache like any other.
	res2, cached, err := svc.Lookup(context.Background(), "A Paper", "id", false)
	if err != nil || !cached || res2.Reason != ReasonTimedOut {
		t.Fatalf("cached timeout result = %+v, cached=%v, err=%v", res2, cached, err)
	}
}

func TestFetchCitation(t *testing.T) {
	t.Parallel()
	src := &stubSource{fetchNote: &source.Note{
		ID: "abc123xyz", Forum: "abc123xyz", CDate: 1_700_000_000_000,
		Content: map[string]any{
			"title":   "A Paper",
			"authors": []any{"Jane Q. Smith"},
			"venue":   "ICLR 2024",
		},
	}}
	svc := newTestService(src, cache.NewMemory())

	txt, cached, err := svc.FetchCitation(context.Background(), "abc123xyz")
	if err != nil {
		t.Fatalf("FetchCitation: %v", err)
	}
	if cached {
		t.Fatal("first citation fetch reported as cached")
	}
	if !strings.HasPrefix(txt, "@inproceedings{smith2023a") {
		t.Fatalf("unexpected citation: %q", txt)
	}

	txt2, cached, err := svc.FetchCitation(context.Background(), "abc123xyz")
	if err != nil || !cached || txt2 != txt {
		t.Fatalf("cached citation = %q, cached=%v, err=%v", txt2, cached, err)
	}
	if got := src.fetches.Load(); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}
}

func TestFetchCitationErrors(t *testing.T) {
	t.Parallel()
	svc := newTestService(&stubSource{}, cache.NewMemory())

	if _, _, err := svc.FetchCitation(context.Background(), "  "); !errors.Is(err, ErrMissingForumID) {
		t.Fatalf("expected ErrMissingForumID, got %v", err)
	}
	// stubSource returns a nil note: the thread does not exist upstream.
	if _, _, err := svc.FetchCitation(context.Background(), "ghost"); !errors.Is(err, models.ErrForumNotFound) {
		t.Fatalf("expected ErrForumNotFound, got %v", err)
	}
}
