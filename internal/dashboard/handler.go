package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"advodash/internal/dataset"
	"advodash/internal/export"
	"advodash/internal/query"
	"advodash/internal/stats"
	"advodash/pkg/models"
)

// Source is the part of the dataset cache the handlers need.
type Source interface {
	Get(ctx context.Context) (*models.Dataset, error)
	Invalidate()
	Stats() dataset.Stats
}

type Handler struct {
	Source Source
	Limits query.Limits

	CrossTabRows int
	CrossTabCols int
}

func NewHandler(src Source, limits query.Limits) *Handler {
	return &Handler{Source: src, Limits: limits, CrossTabRows: 15, CrossTabCols: 10}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	api := rg.Group("/api")
	api.GET("/dataset", h.datasetInfo)
	api.POST("/reload", h.reload)
	api.GET("/summary", h.summary)
	api.GET("/duplicates", h.duplicates)

	// generic: ?field=, ?rows=&cols=
	api.GET("/top", h.top)
	api.GET("/treemap", h.treemap)
	api.GET("/crosstab", h.crosstab)

	// chart endpoints with fixed fields
	api.GET("/top-states", h.topStates)
	api.GET("/top-cities", h.topCities)
	api.GET("/phones-by-state", h.phones)
	api.GET("/treemap-states", h.treemap)
	api.GET("/state-city-heatmap", h.heatmap)

	api.GET("/query", h.query)
	api.GET("/table", h.table) // DataTables server-side protocol

	rg.GET("/download/:format", h.download)
}

// dataset loads the current snapshot or writes the error response.
func (h *Handler) dataset(c *gin.Context) (*models.Dataset, bool) {
	ds, err := h.Source.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	c.Header("X-Dataset-Load-ID", ds.Meta().LoadID)
	return ds, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dataset.ErrDatasetUnavailable):
		log.Printf("[dashboard] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dataset unavailable"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	default:
		log.Printf("[dashboard] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) datasetInfo(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta":        ds.Meta(),
		"records":     ds.Len(),
		"diagnostics": ds.Diagnostics(),
		"cache":       h.Source.Stats(),
	})
}

func (h *Handler) reload(c *gin.Context) {
	h.Source.Invalidate()
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta":        ds.Meta(),
		"records":     ds.Len(),
		"diagnostics": ds.Diagnostics(),
	})
}

func (h *Handler) summary(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stats.Summarize(ds))
}

func (h *Handler) top(c *gin.Context) {
	field, err := fieldParam(c, "field", "")
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := limitParam(c, "limit", 10)
	if err != nil {
		writeError(c, err)
		return
	}
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stats.TopBy(ds, field, limit))
}

func (h *Handler) topStates(c *gin.Context) {
	limit, err := limitParam(c, "limit", 12)
	if err != nil {
		writeError(c, err)
		return
	}
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stats.TopBy(ds, models.FieldState, limit))
}

func (h *Handler) topCities(c *gin.Context) {
	limit, err := limitParam(c, "limit", 20)
	if err != nil {
		writeError(c, err)
		return
	}
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	pairs := stats.TopPairs(ds, models.FieldState, models.FieldCity, limit)
	out := make([]gin.H, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, gin.H{"state": p.Outer, "city": p.Inner, "count": p.Count})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) phones(c *gin.Context) {
	field, err := fieldParam(c, "field", models.FieldState)
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := limitParam(c, "limit", 12)
	if err != nil {
		writeError(c, err)
		return
	}
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	m := stats.PhoneCompletenessBy(ds, field)
	c.JSON(http.StatusOK, stats.RankCompleteness(m, limit))
}

func (h *Handler) treemap(c *gin.Context) {
	field, err := fieldParam(c, "field", models.FieldState)
	if err != nil {
		writeError(c, err)
		return
	}
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stats.Treemap(ds, field))
}

func (h *Handler) crosstab(c *gin.Context) {
	rowField, err := fieldParam(c, "rows", models.FieldCity)
	if err != nil {
		writeError(c, err)
		return
	}
	colField, err := fieldParam(c, "cols", models.FieldState)
	if err != nil {
		writeError(c, err)
		return
	}
	rowLimit, err := limitParam(c, "row_limit", h.CrossTabRows)
	if err != nil {
		writeError(c, err)
		return
	}
	colLimit, err := limitParam(c, "col_limit", h.CrossTabCols)
	if err != nil {
		writeError(c, err)
		return
	}
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stats.CrossTabulate(ds, rowField, colField, rowLimit, colLimit))
}

// heatmap is the chart payload: cities down, states across.
func (h *Handler) heatmap(c *gin.Context) {
	cities, err := limitParam(c, "cities", h.CrossTabRows)
	if err != nil {
		writeError(c, err)
		return
	}
	states, err := limitParam(c, "states", h.CrossTabCols)
	if err != nil {
		writeError(c, err)
		return
	}
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	x := stats.CrossTabulate(ds, models.FieldCity, models.FieldState, cities, states)
	c.JSON(http.StatusOK, gin.H{"states": x.Cols, "cities": x.Rows, "z": x.Matrix})
}

func (h *Handler) duplicates(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	rep := stats.Duplicates(ds)
	groups := make([]gin.H, 0, len(rep.Groups))
	for _, g := range rep.Groups {
		recs := make([]models.Record, 0, len(g.Indices))
		for _, i := range g.Indices {
			recs = append(recs, ds.At(i))
		}
		groups = append(groups, gin.H{"key": g.Key, "rows": g.Indices, "records": recs})
	}
	c.JSON(http.StatusOK, gin.H{"members": rep.Members, "groups": groups})
}

func (h *Handler) download(c *gin.Context) {
	format, err := export.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ds, ok := h.dataset(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+format.FileName()+`"`)
	c.Header("Content-Type", format.ContentType())
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, ds, format); err != nil {
		// headers are gone already; all we can do is log and cut the body
		log.Printf("[dashboard] export %s: %v", format, err)
		_ = c.Error(err)
	}
}

func fieldParam(c *gin.Context, key string, def models.Field) (models.Field, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		if def == "" {
			return "", fieldError(key, errors.New("required"))
		}
		return def, nil
	}
	f, err := models.ParseField(raw)
	if err != nil {
		return "", fieldError(key, err)
	}
	return f, nil
}

// limitParam reads a non-negative result limit; a missing value is def.
func limitParam(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", query.ErrInvalidQuery, key, raw)
	}
	return n, nil
}

func fieldError(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", query.ErrInvalidQuery, key, err)
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
