package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hmoravej/orlink/internal/lookup"
	"github.com/hmoravej/orlink/internal/source"
	"github.com/hmoravej/orlink/models"
)

// LookupService is the part of lookup.Service the handlers need.
type LookupService interface {
	Lookup(ctx context.Context, title, arxivID string, forceRefresh bool) (models.LookupResult, bool, error)
	FetchCitation(ctx context.Context, forumID string) (string, bool, error)
}

type LookupHandler struct {
	Service LookupService
}

func (h *LookupHandler) Register(g *echo.Group) {
	g.POST("/lookup", h.lookup)
	g.GET("/citation/:forumId", h.citation)
}

func (h *LookupHandler) lookup(c echo.Context) error {
	var req struct {
		Title        string `json:"title"`
		ArxivID      string `json:"arxiv_id"`
		ForceRefresh bool   `json:"force_refresh"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, cached, err := h.Service.Lookup(c.Request().Context(), req.Title, req.ArxivID, req.ForceRefresh)
	if err != nil {
		if errors.Is(err, source.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"result": res,
		"cached": cached,
	})
}

func (h *LookupHandler) citation(c echo.Context) error {
	forumID := strings.TrimSpace(c.Param("forumId"))
	bibtex, cached, err := h.Service.FetchCitation(c.Request().Context(), forumID)
	if err != nil {
		switch {
		case errors.Is(err, lookup.ErrMissingForumID):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, models.ErrForumNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, lookup.ErrTimeout):
			return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
		case errors.Is(err, source.ErrUnavailable):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"bibtex": bibtex,
		"cached": cached,
	})
}
