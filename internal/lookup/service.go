// Package lookup coordinates normalization, retrieval, version resolution,
// request deduplication and result caching behind one request/response
// surface.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hmoravej/orlink/internal/cache"
	"github.com/hmoravej/orlink/internal/citation"
	"github.com/hmoravej/orlink/internal/resolve"
	"github.com/hmoravej/orlink/internal/source"
	"github.com/hmoravej/orlink/models"
)

const (
	// DefaultSearchTimeout bounds the candidate search stage.
	DefaultSearchTimeout = 24 * time.Second

	// DefaultForumTimeout bounds a single full-record fetch.
	DefaultForumTimeout = 20 * time.Second

	// DefaultLookupTTL expires lookup results; venue metadata changes more
	// often than a thread's fixed content.
	DefaultLookupTTL = 7 * 24 * time.Hour

	// DefaultCitationTTL expires cached citation text.
	DefaultCitationTTL = 30 * 24 * time.Hour

	// keyTitleRunes caps how much of the title participates in cache keys.
	keyTitleRunes = 220

	// persistTimeout bounds the post-settle cache write.
	persistTimeout = 2 * time.Second
)

// Failure reasons carried by settled not-found results.
const (
	ReasonNoTitle   = "No title available"
	ReasonNoResults = "No results from OpenReview"
	ReasonTimedOut  = "Timed out"
)

// ErrTimeout reports that a citation fetch exceeded its bound. Lookups never
// surface it; they degrade to a found:false result instead.
var ErrTimeout = errors.New("timed out")

// ErrMissingForumID reports a citation request without a thread identifier.
var ErrMissingForumID = errors.New("missing forum id")

// Config carries the orchestrator's tunables. Zero values take defaults.
type Config struct {
	WebBase       string
	SearchTimeout time.Duration
	ForumTimeout  time.Duration
	LookupTTL     time.Duration
	CitationTTL   time.Duration
}

// Service is the lookup orchestrator. The two singleflight groups are the
// only inflight registries; they are owned here, never package state.
type Service struct {
	src      source.Source
	store    cache.Store
	resolver *resolve.Resolver
	cfg      Config
	logger   *log.Logger
	now      func() time.Time

	lookupFlight   singleflight.Group
	citationFlight singleflight.Group
}

// NewService wires the orchestrator.
func NewService(src source.Source, store cache.Store, cfg Config, logger *log.Logger) *Service {
	if cfg.WebBase == "" {
		cfg.WebBase = source.DefaultWebBase
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.ForumTimeout <= 0 {
		cfg.ForumTimeout = DefaultForumTimeout
	}
	if cfg.LookupTTL <= 0 {
		cfg.LookupTTL = DefaultLookupTTL
	}
	if cfg.CitationTTL <= 0 {
		cfg.CitationTTL = DefaultCitationTTL
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[LOOKUP] ", log.LstdFlags)
	}
	return &Service{
		src:      src,
		store:    store,
		resolver: resolve.New(src, cfg.WebBase, cfg.ForumTimeout, logger),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Lookup resolves a title to its forum versions. It always settles: retrieval
// failures below total-outage severity become found:false results. The bool
// reports whether the result came from a fresh cache entry.
func (s *Service) Lookup(ctx context.Context, rawTitle, arxivID string, forceRefresh bool) (models.LookupResult, bool, error) {
	paperTitle := strings.TrimSpace(rawTitle)
	key := lookupKey(strings.TrimSpace(arxivID), paperTitle)

	if !forceRefresh {
		if res, ok := s.cachedLookup(ctx, key); ok {
			cacheEvents.WithLabelValues("lookup", "hit").Inc()
			return res, true, nil
		}
		cacheEvents.WithLabelValues("lookup", "miss").Inc()
	}

	// A refresh evicts the inflight handle so this caller gets a new run;
	// an already-running computation still settles and writes the cache
	// for the callers attached to it.
	if forceRefresh {
		s.lookupFlight.Forget(key)
	}
	v, err, _ := s.lookupFlight.Do(key, func() (any, error) {
		res, err := s.computeLookup(paperTitle)
		if err != nil {
			return nil, err
		}
		s.persist(key, res, s.cfg.LookupTTL, "lookup")
		return res, nil
	})
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		return models.LookupResult{}, false, err
	}
	res := v.(models.LookupResult)
	lookupsTotal.WithLabelValues(lookupOutcome(res)).Inc()
	return res, false, nil
}

// FetchCitation returns BibTeX text for a thread. Unlike lookups, failures
// here are errors: a citation either exists or the operation fails.
func (s *Service) FetchCitation(ctx context.Context, forumID string) (string, bool, error) {
	id := strings.TrimSpace(forumID)
	if id == "" {
		return "", false, ErrMissingForumID
	}
	key := citationKey(id)

	if txt, ok := s.cachedCitation(ctx, key); ok {
		cacheEvents.WithLabelValues("citation", "hit").Inc()
		return txt, true, nil
	}
	cacheEvents.WithLabelValues("citation", "miss").Inc()

	v, err, _ := s.citationFlight.Do(key, func() (any, error) {
		txt, err := s.computeCitation(id)
		if err != nil {
			return nil, err
		}
		s.persist(key, txt, s.cfg.CitationTTL, "citation")
		return txt, nil
	})
	if err != nil {
		citationsTotal.WithLabelValues("error").Inc()
		return "", false, err
	}
	citationsTotal.WithLabelValues("ok").Inc()
	return v.(string), false, nil
}

// computeLookup runs the retrieval+resolution pipeline under the outer
// deadline. The deadline is rooted in the background, not the caller: a
// departing or refreshing caller must not cancel a computation whose result
// still populates the cache for others.
func (s *Service) computeLookup(paperTitle string) (models.LookupResult, error) {
	searchURL := source.SearchURL(s.cfg.WebBase, paperTitle)
	if paperTitle == "" {
		return models.LookupResult{Reason: ReasonNoTitle, SearchURL: searchURL}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SearchTimeout+s.cfg.ForumTimeout)
	defer cancel()

	type outcome struct {
		res models.LookupResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := s.runPipeline(ctx, paperTitle, searchURL)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return models.LookupResult{Reason: ReasonTimedOut, SearchURL: searchURL}, nil
	}
}

func (s *Service) runPipeline(ctx context.Context, paperTitle, searchURL string) (models.LookupResult, error) {
	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	notes, err := s.src.SearchByTitle(searchCtx, paperTitle)
	cancel()
	if err != nil {
		// A search that merely ran out of time degrades to "no results";
		// a total outage propagates to the caller.
		if searchCtx.Err() != nil && ctx.Err() == nil {
			s.logger.Printf("search timed out for %q", paperTitle)
			notes = nil
		} else {
			return models.LookupResult{}, err
		}
	}
	if len(notes) == 0 {
		return models.LookupResult{Reason: ReasonNoResults, SearchURL: searchURL}, nil
	}

	versions, reason := s.resolver.Resolve(ctx, notes, paperTitle)
	if reason != "" {
		return models.LookupResult{Reason: reason, SearchURL: searchURL}, nil
	}

	primary := versions[0]
	return models.LookupResult{
		Found:     true,
		SearchURL: searchURL,
		ForumID:   primary.ForumID,
		ForumURL:  primary.ForumURL,
		Versions:  versions,
	}, nil
}

func (s *Service) computeCitation(id string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ForumTimeout)
	defer cancel()

	note, err := s.src.FetchByID(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: citation fetch for %s", ErrTimeout, id)
		}
		return "", err
	}
	if note == nil {
		return "", fmt.Errorf("%w: %s", models.ErrForumNotFound, id)
	}
	return citation.ForNote(*note, id, s.cfg.WebBase), nil
}

func (s *Service) cachedLookup(ctx context.Context, key string) (models.LookupResult, bool) {
	entry, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Printf("cache read for %s failed: %v", key, err)
		return models.LookupResult{}, false
	}
	if !ok || !s.fresh(entry.SavedAt, s.cfg.LookupTTL) {
		return models.LookupResult{}, false
	}
	var res models.LookupResult
	if err := json.Unmarshal(entry.Payload, &res); err != nil {
		s.logger.Printf("cache entry for %s is corrupt: %v", key, err)
		return models.LookupResult{}, false
	}
	return res, true
}

func (s *Service) cachedCitation(ctx context.Context, key string) (string, bool) {
	entry, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Printf("cache read for %s failed: %v", key, err)
		return "", false
	}
	if !ok || !s.fresh(entry.SavedAt, s.cfg.CitationTTL) {
		return "", false
	}
	var txt string
	if err := json.Unmarshal(entry.Payload, &txt); err != nil || txt == "" {
		return "", false
	}
	return txt, true
}

// persist writes a settled outcome with a fresh timestamp, on its own
// context so a caller's cancellation cannot lose the write.
func (s *Service) persist(key string, payload any, ttl time.Duration, kind string) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("marshal cache payload for %s: %v", key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	entry := cache.Entry{SavedAt: s.now().UnixMilli(), Payload: data}
	if err := s.store.Set(ctx, key, entry, ttl); err != nil {
		s.logger.Printf("cache write for %s failed: %v", key, err)
		return
	}
	cacheEvents.WithLabelValues(kind, "write").Inc()
}

// fresh reports whether an entry written at savedAt (unix millis) is still
// inside its TTL: fresh strictly before savedAt+ttl, stale from then on.
func (s *Service) fresh(savedAt int64, ttl time.Duration) bool {
	return s.now().UnixMilli()-savedAt < ttl.Milliseconds()
}

func lookupKey(arxivID, paperTitle string) string {
	if arxivID == "" {
		arxivID = "unknown"
	}
	runes := []rune(paperTitle)
	if len(runes) > keyTitleRunes {
		runes = runes[:keyTitleRunes]
	}
	return "orlink:arxiv:" + arxivID + ":title:" + string(runes)
}

func citationKey(forumID string) string {
	return "orlink:bibtex:" + forumID
}

func lookupOutcome(res models.LookupResult) string {
	switch {
	case res.Found:
		return "found"
	case res.Reason == ReasonTimedOut:
		return "timeout"
	default:
		return "not_found"
	}
}
