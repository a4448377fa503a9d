// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"airbnb_insights/internal/app"
	"airbnb_insights/internal/domain"
)

type Handlers struct{ Q *app.QueryService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

var errBadParam = errors.New("bad parameter")

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/facets", h.facets)
	s.mux.Get("/v1/listings", h.listings)
	s.mux.Get("/v1/aggregate", h.aggregate)
	s.mux.Get("/v1/overview", h.dashboard(app.PageOverview))
	s.mux.Get("/v1/explore", h.dashboard(app.PageExplore))
	s.mux.Get("/v1/stats", h.stats)
	s.mux.Get("/v1/histogram", h.histogram)
	s.mux.Get("/v1/box", h.box)
	s.mux.Post("/v1/admin/reload", h.reload)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadParam):
		writeProblem(w, http.StatusBadRequest, "Invalid parameter", err.Error())
	case errors.Is(err, domain.ErrInvalidRange):
		writeProblem(w, http.StatusBadRequest, "Invalid price range", err.Error())
	case errors.Is(err, domain.ErrUnknownColumn):
		writeProblem(w, http.StatusBadRequest, "Unknown column", err.Error())
	case errors.Is(err, domain.ErrInvalidBins):
		writeProblem(w, http.StatusBadRequest, "Invalid bins", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("listing source unavailable")
		writeProblem(w, http.StatusServiceUnavailable, "Source unavailable", "listing data could not be loaded")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "encode response")
		return
	}
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

/********** parameter parsing **********/

// selection returns nil when the parameter is absent, meaning "all values".
// A present but empty value selects the missing-value category.
func selection(q url.Values, name string) []string {
	vals, ok := q[name]
	if !ok {
		return nil
	}
	return vals
}

func floatParam(q url.Values, name string, def float64) (float64, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadParam, name)
	}
	return f, nil
}

func intParam(q url.Values, name string, def, lo, hi int) (int, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be an integer between %d and %d", errBadParam, name, lo, hi)
	}
	return n, nil
}

func parseFilter(q url.Values) (domain.FilterSpec, error) {
	lo, err := floatParam(q, "price_min", 0)
	if err != nil {
		return domain.FilterSpec{}, err
	}
	hi, err := floatParam(q, "price_max", math.Inf(1))
	if err != nil {
		return domain.FilterSpec{}, err
	}
	return domain.NewFilterSpec(
		selection(q, "country"),
		selection(q, "property_type"),
		selection(q, "room_type"),
		lo, hi,
	)
}

func parseAggregation(q url.Values) (domain.AggregationRequest, error) {
	req := domain.AggregationRequest{GroupBy: domain.Column(q.Get("group_by"))}
	if req.GroupBy == "" {
		return req, fmt.Errorf("%w: group_by is required", errBadParam)
	}
	switch q.Get("op") {
	case "", string(domain.OpCount):
		req.Op = domain.Count()
	case string(domain.OpMean):
		req.Op = domain.MeanOf(domain.Column(q.Get("column")))
	default:
		return req, fmt.Errorf("%w: op must be count or mean", errBadParam)
	}
	top, err := intParam(q, "top", 0, 0, math.MaxInt32)
	if err != nil {
		return req, err
	}
	req.TopN = top
	switch q.Get("order") {
	case "", "desc":
		req.Order = domain.Descending
	case "asc":
		req.Order = domain.Ascending
	default:
		return req, fmt.Errorf("%w: order must be asc or desc", errBadParam)
	}
	return req, nil
}

/********** handlers **********/

func (h *Handlers) facets(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Facets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) listings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, err := parseFilter(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intParam(q, "limit", 50, 1, 1000)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intParam(q, "offset", 0, 0, math.MaxInt32)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Q.Listings(r.Context(), spec, domain.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) aggregate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, err := parseFilter(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := parseAggregation(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Q.Aggregate(r.Context(), spec, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) dashboard(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec, err := parseFilter(r.URL.Query())
		if err != nil {
			writeError(w, r, err)
			return
		}
		out, err := h.Q.Dashboard(r.Context(), page, spec)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, out)
	}
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	spec, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Q.Stats(r.Context(), spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) histogram(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, err := parseFilter(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	col := domain.Column(q.Get("column"))
	if col == "" {
		col = domain.ColPrice
	}
	bins := 10
	if s := q.Get("bins"); s != "" {
		// bins < 1 is left to the query layer
		if bins, err = strconv.Atoi(s); err != nil || bins > 1000 {
			writeError(w, r, fmt.Errorf("%w: bins must be an integer up to 1000", errBadParam))
			return
		}
	}
	var out app.HistogramResult
	if by := domain.Column(q.Get("group_by")); by != "" {
		out, err = h.Q.HistogramByGroup(r.Context(), spec, by, col, bins)
	} else {
		out, err = h.Q.Histogram(r.Context(), spec, col, bins)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) box(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, err := parseFilter(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	by := domain.Column(q.Get("group_by"))
	if by == "" {
		writeError(w, r, fmt.Errorf("%w: group_by is required", errBadParam))
		return
	}
	col := domain.Column(q.Get("column"))
	if col == "" {
		col = domain.ColPrice
	}
	out, err := h.Q.Box(r.Context(), spec, by, col)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, out)
}

type reloadResult struct {
	Source  string `json:"source"`
	Version string `json:"version"`
	Rows    int    `json:"rows"`
}

func (h *Handlers) reload(w http.ResponseWriter, r *http.Request) {
	t, err := h.Q.Reload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, reloadResult{Source: t.Source, Version: t.Version, Rows: len(t.Records)})
}
