// Package server exposes the lookup orchestrator over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hmoravej/orlink/config"
	"github.com/hmoravej/orlink/internal/cache"
	"github.com/hmoravej/orlink/internal/lookup"
	"github.com/hmoravej/orlink/internal/source"
	"github.com/hmoravej/orlink/internal/source/api"
	"github.com/hmoravej/orlink/internal/source/browser"
)

// Run wires config into a store, a retrieval source and the lookup service,
// then serves the API until the listener fails.
func Run(cfg *config.Config, addr string) error {
	ctx := context.Background()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	src := newSource(cfg.OpenReview)

	svc := lookup.NewService(src, store, lookup.Config{
		WebBase:       cfg.OpenReview.WebBase,
		SearchTimeout: cfg.OpenReview.SearchTimeout,
		ForumTimeout:  cfg.OpenReview.ForumTimeout,
		LookupTTL:     cfg.OpenReview.LookupTTL,
		CitationTTL:   cfg.OpenReview.CitationTTL,
	}, nil)

	e := newEcho()
	lh := &LookupHandler{Service: svc}
	lh.Register(e.Group("/api"))

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// newEcho builds the echo instance with the shared middleware stack and the
// operational endpoints. Split out so handler tests run against the same
// error handling the binary uses.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"ok": false, "error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

func newStore(ctx context.Context, cfg config.StorageConfig) (cache.Store, error) {
	switch cfg.Cache {
	case "redis":
		client, err := cache.Conn(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
		if err != nil {
			return nil, err
		}
		return cache.NewRedis(client), nil
	default:
		return cache.NewMemory(), nil
	}
}

// newSource instantiates exactly one retrieval strategy.
func newSource(cfg config.OpenReviewConfig) source.Source {
	if cfg.Strategy == "browser" {
		return browser.New(cfg.WebBase, cfg.PollInterval, cfg.PollCeiling, nil)
	}
	return api.NewClient(
		api.WithBases(cfg.APIBases),
		api.WithSearchLimit(cfg.SearchLimit),
		api.WithRateLimit(cfg.RateLimit),
	)
}
