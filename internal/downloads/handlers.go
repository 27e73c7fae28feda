package downloads

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bindery/bindery/internal/downloader/types"
)

// Handlers provides HTTP handlers for download operations.
type Handlers struct {
	orchestrator *Orchestrator
}

// NewHandlers creates a new download handlers instance.
func NewHandlers(orchestrator *Orchestrator) *Handlers {
	return &Handlers{orchestrator: orchestrator}
}

// RegisterRoutes registers download item routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/active", h.ListActive)
	g.GET("/history", h.ListHistory)
	g.POST("/track", h.TrackAll)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Cancel)
	g.POST("/:id/track", h.Track)
}

// RegisterBookRoutes registers per-book download routes on an Echo group.
func (h *Handlers) RegisterBookRoutes(g *echo.Group) {
	g.GET("/:id/downloads", h.ListForBook)
	g.POST("/:id/downloads", h.Initiate)
}

// RegisterClientRoutes registers download client routes on an Echo group.
func (h *Handlers) RegisterClientRoutes(g *echo.Group) {
	g.GET("", h.ListClients)
	g.POST("/:id/test", h.TestClient)
	g.POST("/:id/resync", h.Resync)
}

// ListActive returns all non-terminal downloads.
// GET /api/v1/downloads/active
func (h *Handlers) ListActive(c echo.Context) error {
	items, err := h.orchestrator.ListActive(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListHistory returns terminal downloads.
// GET /api/v1/downloads/history?limit=50&offset=0
func (h *Handlers) ListHistory(c echo.Context) error {
	limit := queryInt(c, "limit", defaultHistoryLimit)
	offset := queryInt(c, "offset", 0)

	items, err := h.orchestrator.ListHistory(c.Request().Context(), limit, offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// TrackAll runs one poll cycle immediately.
// POST /api/v1/downloads/track
func (h *Handlers) TrackAll(c echo.Context) error {
	report, err := h.orchestrator.TrackAll(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

// Get returns one download.
// GET /api/v1/downloads/:id
func (h *Handlers) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	item, err := h.orchestrator.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

// Cancel removes a download.
// DELETE /api/v1/downloads/:id
func (h *Handlers) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	item, err := h.orchestrator.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

// Track polls the owning client for one download.
// POST /api/v1/downloads/:id/track
func (h *Handlers) Track(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	item, err := h.orchestrator.TrackByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

// ListForBook returns every download of a tracked book.
// GET /api/v1/books/:id/downloads
func (h *Handlers) ListForBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	items, err := h.orchestrator.ListByTrackedBook(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// InitiateRequest is the body of a download request.
type InitiateRequest struct {
	Release          Release `json:"release"`
	DownloadClientID *int64  `json:"downloadClientId,omitempty"`
}

// Initiate starts downloading a release for a tracked book.
// POST /api/v1/books/:id/downloads
func (h *Handlers) Initiate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req InitiateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	item, err := h.orchestrator.Initiate(c.Request().Context(), &req.Release, id, req.DownloadClientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

// ListClients returns configured download clients.
// GET /api/v1/downloadclients
func (h *Handlers) ListClients(c echo.Context) error {
	clients, err := h.orchestrator.ListClients(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, clients)
}

// TestClientResponse reports the outcome of a connection test.
type TestClientResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Client  *DownloadClient `json:"client,omitempty"`
}

// TestClient checks connectivity to a download client and records its health.
// POST /api/v1/downloadclients/:id/test
func (h *Handlers) TestClient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	client, err := h.orchestrator.CheckClient(c.Request().Context(), id)
	if client == nil {
		return httpError(err)
	}
	if err != nil {
		return c.JSON(http.StatusOK, TestClientResponse{Success: false, Message: err.Error(), Client: client})
	}
	return c.JSON(http.StatusOK, TestClientResponse{Success: true, Message: "Connection successful", Client: client})
}

// Resync reconciles a client's downloads against its full listing.
// POST /api/v1/downloadclients/:id/resync
func (h *Handlers) Resync(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	report, err := h.orchestrator.Resync(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// httpError maps the download error taxonomy onto HTTP status codes.
func httpError(err error) error {
	var pe *types.ProviderError
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &pe):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
