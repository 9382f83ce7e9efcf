package dashboard

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"advodash/internal/query"
	"advodash/pkg/models"
)

// query serves GET /api/query
//
//	?q=acme&page=2&page_size=50&sort=-city&filter[state]=tx&eq[city]=Austin
func (h *Handler) query(c *gin.Context) {
	req := query.Request{
		Filter: query.Filter{Search: c.Query("q")},
		Page:   parseInt(c.Query("page"), 1),
	}
	req.PageSize = parseInt(c.Query("page_size"), 0)

	var err error
	if req.Filter.Fields, err = fieldFilters(c); err != nil {
		writeError(c, err)
		return
	}
	if s := strings.TrimSpace(c.Query("sort")); s != "" {
		desc := strings.HasPrefix(s, "-")
		f, err := models.ParseField(strings.TrimPrefix(s, "-"))
		if err != nil {
			writeError(c, fmt.Errorf("%w: sort: %v", query.ErrInvalidQuery, err))
			return
		}
		req.Sort = &query.Sort{Field: f, Desc: desc}
	}
	if err := req.Validate(); err != nil {
		writeError(c, err)
		return
	}

	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	res, err := query.Run(ds, req, h.Limits)
	if err != nil {
		writeError(c, err)
		return
	}

	pages := 0
	if res.PageSize > 0 {
		pages = (res.TotalMatching + res.PageSize - 1) / res.PageSize
	}
	c.JSON(http.StatusOK, gin.H{
		"total_matching": res.TotalMatching,
		"page":           res.Page,
		"page_size":      res.PageSize,
		"pages":          pages,
		"rows":           rowsJSON(res.Rows),
	})
}

func fieldFilters(c *gin.Context) ([]query.FieldFilter, error) {
	var out []query.FieldFilter
	add := func(m map[string]string, exact bool) error {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			f, err := models.ParseField(k)
			if err != nil {
				return fmt.Errorf("%w: filter: %v", query.ErrInvalidQuery, err)
			}
			out = append(out, query.FieldFilter{Field: f, Value: m[k], Exact: exact})
		}
		return nil
	}
	if err := add(c.QueryMap("filter"), false); err != nil {
		return nil, err
	}
	if err := add(c.QueryMap("eq"), true); err != nil {
		return nil, err
	}
	return out, nil
}

// table speaks the DataTables server-side protocol: draw, start, length,
// search[value], order[0][column], order[0][dir]. Rows are sliced at the
// exact start offset.
func (h *Handler) table(c *gin.Context) {
	length := parseInt(c.Query("length"), h.Limits.DefaultPageSize)
	if length < 0 {
		// DataTables "All"
		length = h.Limits.MaxPageSize
	}
	length = h.Limits.ClampPageSize(length)
	start := parseInt(c.Query("start"), 0)
	if start < 0 {
		start = 0
	}

	req := query.Request{
		Filter:   query.Filter{Search: c.Query("search[value]")},
		PageSize: length,
	}
	if col := c.Query("order[0][column]"); col != "" {
		idx := parseInt(col, -1)
		if idx < 0 || idx >= len(models.Fields) {
			writeError(c, fmt.Errorf("%w: order column %q", query.ErrInvalidQuery, col))
			return
		}
		req.Sort = &query.Sort{
			Field: models.Fields[idx],
			Desc:  strings.EqualFold(c.Query("order[0][dir]"), "desc"),
		}
	}

	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	res, err := query.RunOffset(ds, req, start, h.Limits)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"draw":            parseInt(c.Query("draw"), 0),
		"recordsTotal":    ds.Len(),
		"recordsFiltered": res.TotalMatching,
		"data":            rowsJSON(res.Rows),
	})
}

// rowsJSON always emits every column; table widgets choke on missing keys.
func rowsJSON(rows []models.Record) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"name":  r.Name,
			"owner": r.Owner,
			"city":  r.City,
			"state": r.State,
			"phone": r.Phone,
		})
	}
	return out
}
