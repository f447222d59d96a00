package lookup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orlink_lookups_total",
		Help: "Settled lookups by outcome (found, not_found, timeout, error).",
	}, []string{"outcome"})

	citationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orlink_citations_total",
		Help: "Citation fetches by outcome (ok, error).",
	}, []string{"outcome"})

	cacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orlink_cache_events_total",
		Help: "Cache events by kind (lookup, citation) and event (hit, miss, write).",
	}, []string{"kind", "event"})
)
