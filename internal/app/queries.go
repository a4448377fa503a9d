package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"airbnb_insights/internal/adapters/observability"
	"airbnb_insights/internal/domain"
	"airbnb_insights/internal/query"
)

type QueryService struct {
	src      domain.ListingSource
	cache    domain.Cache
	cacheTTL time.Duration
	snapTTL  time.Duration
	panels   Panels
	now      func() time.Time
	cooldown time.Duration
	loadMax  time.Duration

	mu       sync.RWMutex
	snap     *domain.Table
	failedAt time.Time
	loads    singleflight.Group
}

type QueryOption func(*QueryService)

// WithSnapshotTTL reloads the table once it is older than d. Zero keeps the
// first load forever.
func WithSnapshotTTL(d time.Duration) QueryOption { return func(s *QueryService) { s.snapTTL = d } }
func WithPanels(p Panels) QueryOption             { return func(s *QueryService) { s.panels = p } }
func WithClock(now func() time.Time) QueryOption  { return func(s *QueryService) { s.now = now } }

// WithReloadCooldown spaces out reload attempts after a failure while a stale
// table is being served.
func WithReloadCooldown(d time.Duration) QueryOption { return func(s *QueryService) { s.cooldown = d } }

// WithLoadTimeout bounds a single load from the source.
func WithLoadTimeout(d time.Duration) QueryOption { return func(s *QueryService) { s.loadMax = d } }

func NewQueryService(src domain.ListingSource, c domain.Cache, ttl time.Duration, opts ...QueryOption) *QueryService {
	if c == nil {
		c = nopCache{}
	}
	s := &QueryService{
		src:      src,
		cache:    c,
		cacheTTL: ttl,
		panels:   DefaultPanels(),
		now:      time.Now,
		cooldown: 30 * time.Second,
		loadMax:  2 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

/********** snapshot **********/

// Snapshot returns the current table, loading it on first use and after the
// snapshot TTL. A failed reload keeps serving the previous table, and no
// new attempt is made until the reload cooldown has passed.
func (s *QueryService) Snapshot(ctx context.Context) (*domain.Table, error) {
	s.mu.RLock()
	t, failedAt := s.snap, s.failedAt
	s.mu.RUnlock()
	if t != nil {
		now := s.now()
		if s.snapTTL <= 0 || now.Sub(t.LoadedAt) < s.snapTTL {
			return t, nil
		}
		if !failedAt.IsZero() && now.Sub(failedAt) < s.cooldown {
			return t, nil
		}
	}
	fresh, err := s.Reload(ctx)
	if err != nil {
		if t != nil {
			log.Warn().Err(err).Str("version", t.Version).Msg("snapshot reload failed; serving stale table")
			return t, nil
		}
		return nil, err
	}
	return fresh, nil
}

// Reload forces a load from the source. Concurrent callers share one load,
// which runs detached from any single caller: a caller that gives up returns
// its own context error while the load carries on for the others.
func (s *QueryService) Reload(ctx context.Context) (*domain.Table, error) {
	ch := s.loads.DoChan("snapshot", func() (any, error) {
		lctx := context.WithoutCancel(ctx)
		if s.loadMax > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(lctx, s.loadMax)
			defer cancel()
		}
		return s.load(lctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Table), nil
	}
}

func (s *QueryService) load(ctx context.Context) (*domain.Table, error) {
	start := time.Now()
	recs, err := s.src.LoadListings(ctx)
	observability.ObserveSnapshot(s.src.Name(), len(recs), err)
	if err != nil {
		s.mu.Lock()
		s.failedAt = s.now()
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrUnavailable, s.src.Name(), err)
	}

	valid := make([]domain.ListingRecord, 0, len(recs))
	dropped := 0
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			dropped++
			continue
		}
		valid = append(valid, r)
	}

	t := domain.NewTable(valid, s.src.Name(), s.now())
	s.mu.Lock()
	s.snap, s.failedAt = t, time.Time{}
	s.mu.Unlock()

	log.Info().
		Str("source", t.Source).
		Str("version", t.Version).
		Int("rows", len(valid)).
		Int("dropped", dropped).
		Dur("took", time.Since(start)).
		Msg("snapshot loaded")
	return t, nil
}

/********** queries **********/

func (s *QueryService) Listings(ctx context.Context, spec domain.FilterSpec, pg domain.PageQuery) (domain.ListingsPage, error) {
	defer observe("listings", time.Now())
	t, err := s.Snapshot(ctx)
	if err != nil {
		return domain.ListingsPage{}, err
	}
	rows, err := query.Filter(t.Records, spec)
	if err != nil {
		return domain.ListingsPage{}, err
	}
	out := domain.ListingsPage{Items: []domain.ListingRecord{}, Total: len(rows), Version: t.Version}
	if pg.Offset < len(rows) {
		end := len(rows)
		if pg.Limit > 0 && pg.Offset+pg.Limit < end {
			end = pg.Offset + pg.Limit
		}
		out.Items = rows[pg.Offset:end]
	}
	return out, nil
}

// Aggregate filters then groups, caching the result per table version.
func (s *QueryService) Aggregate(ctx context.Context, spec domain.FilterSpec, req domain.AggregationRequest) (domain.AggregationResult, error) {
	defer observe("aggregate", time.Now())
	t, err := s.Snapshot(ctx)
	if err != nil {
		return domain.AggregationResult{}, err
	}

	key := cacheKey("agg", t.Version, spec.Key(), req.Key())
	var out domain.AggregationResult
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	rows, err := query.Filter(t.Records, spec)
	if err != nil {
		return domain.AggregationResult{}, err
	}
	groups, err := query.Aggregate(rows, req)
	if err != nil {
		return domain.AggregationResult{}, err
	}
	out = domain.AggregationResult{Request: req.Key(), Groups: groups, Version: t.Version}
	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

type PanelResult struct {
	ID     string              `json:"id"`
	Title  string              `json:"title"`
	Kind   PanelKind           `json:"kind"`
	Op     string              `json:"op,omitempty"`
	Groups []domain.GroupValue `json:"groups,omitempty"`
	Boxes  []query.BoxSummary  `json:"boxes,omitempty"`
}

type Dashboard struct {
	Page    string        `json:"page"`
	Rows    int           `json:"rows"`
	Version string        `json:"version"`
	Panels  []PanelResult `json:"panels"`
}

func (s *QueryService) Overview(ctx context.Context, spec domain.FilterSpec) (Dashboard, error) {
	return s.Dashboard(ctx, PageOverview, spec)
}

func (s *QueryService) Explore(ctx context.Context, spec domain.FilterSpec) (Dashboard, error) {
	return s.Dashboard(ctx, PageExplore, spec)
}

// Dashboard evaluates every panel of page over one filtered view.
func (s *QueryService) Dashboard(ctx context.Context, page string, spec domain.FilterSpec) (Dashboard, error) {
	defer observe("dashboard:"+page, time.Now())
	panels, ok := s.panels[page]
	if !ok {
		return Dashboard{}, fmt.Errorf("page %q: %w", page, domain.ErrNotFound)
	}
	t, err := s.Snapshot(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	key := cacheKey("dash", t.Version, page, spec.Key())
	var out Dashboard
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	rows, err := query.Filter(t.Records, spec)
	if err != nil {
		return Dashboard{}, err
	}
	out = Dashboard{Page: page, Rows: len(rows), Version: t.Version, Panels: make([]PanelResult, 0, len(panels))}
	for _, p := range panels {
		pr := PanelResult{ID: p.ID, Title: p.Title, Kind: p.Kind}
		switch p.Kind {
		case KindBox:
			if pr.Boxes, err = query.BoxByGroup(rows, p.GroupBy, p.Column); err != nil {
				return Dashboard{}, fmt.Errorf("panel %s: %w", p.ID, err)
			}
		default:
			pr.Op = p.Op.String()
			if pr.Groups, err = query.Aggregate(rows, p.request()); err != nil {
				return Dashboard{}, fmt.Errorf("panel %s: %w", p.ID, err)
			}
			if p.Truncate {
				for i := range pr.Groups {
					pr.Groups[i].Value = math.Trunc(pr.Groups[i].Value)
				}
			}
		}
		out.Panels = append(out.Panels, pr)
	}
	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

type StatsResult struct {
	Rows     int                   `json:"rows"`
	Version  string                `json:"version"`
	Columns  []query.ColumnSummary `json:"columns"`
	Outliers map[domain.Column]int `json:"outliers"`
}

func (s *QueryService) Stats(ctx context.Context, spec domain.FilterSpec) (StatsResult, error) {
	defer observe("stats", time.Now())
	t, err := s.Snapshot(ctx)
	if err != nil {
		return StatsResult{}, err
	}
	rows, err := query.Filter(t.Records, spec)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{
		Rows:     len(rows),
		Version:  t.Version,
		Columns:  query.Describe(rows),
		Outliers: query.Outliers(rows),
	}, nil
}

type HistogramResult struct {
	Column  domain.Column     `json:"column"`
	GroupBy domain.Column     `json:"group_by,omitempty"`
	Version string            `json:"version"`
	Bins    []query.Bin       `json:"bins,omitempty"`
	Groups  []query.GroupBins `json:"groups,omitempty"`
}

func (s *QueryService) Histogram(ctx context.Context, spec domain.FilterSpec, col domain.Column, bins int) (HistogramResult, error) {
	defer observe("histogram", time.Now())
	t, err := s.Snapshot(ctx)
	if err != nil {
		return HistogramResult{}, err
	}
	rows, err := query.Filter(t.Records, spec)
	if err != nil {
		return HistogramResult{}, err
	}
	bs, err := query.Histogram(rows, col, bins)
	if err != nil {
		return HistogramResult{}, err
	}
	return HistogramResult{Column: col, Version: t.Version, Bins: bs}, nil
}

// HistogramByGroup bins col once over the filtered rows and splits the counts
// per category of by, so every group shares the same edges.
func (s *QueryService) HistogramByGroup(ctx context.Context, spec domain.FilterSpec, by, col domain.Column, bins int) (HistogramResult, error) {
	defer observe("histogram_by_group", time.Now())
	t, err := s.Snapshot(ctx)
	if err != nil {
		return HistogramResult{}, err
	}
	rows, err := query.Filter(t.Records, spec)
	if err != nil {
		return HistogramResult{}, err
	}
	gs, err := query.HistogramByGroup(rows, by, col, bins)
	if err != nil {
		return HistogramResult{}, err
	}
	return HistogramResult{Column: col, GroupBy: by, Version: t.Version, Groups: gs}, nil
}

type BoxResult struct {
	GroupBy domain.Column      `json:"group_by"`
	Column  domain.Column      `json:"column"`
	Version string             `json:"version"`
	Boxes   []query.BoxSummary `json:"boxes"`
}

// Box summarizes col per category of by over the filtered rows.
func (s *QueryService) Box(ctx context.Context, spec domain.FilterSpec, by, col domain.Column) (BoxResult, error) {
	defer observe("box", time.Now())
	t, err := s.Snapshot(ctx)
	if err != nil {
		return BoxResult{}, err
	}

	key := cacheKey("box", t.Version, spec.Key(), string(by), string(col))
	var out BoxResult
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	rows, err := query.Filter(t.Records, spec)
	if err != nil {
		return BoxResult{}, err
	}
	boxes, err := query.BoxByGroup(rows, by, col)
	if err != nil {
		return BoxResult{}, err
	}
	out = BoxResult{GroupBy: by, Column: col, Version: t.Version, Boxes: boxes}
	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

type FacetsResult struct {
	query.Facets
	Version string `json:"version"`
}

// Facets lists the filter choices of the whole table.
func (s *QueryService) Facets(ctx context.Context) (FacetsResult, error) {
	defer observe("facets", time.Now())
	t, err := s.Snapshot(ctx)
	if err != nil {
		return FacetsResult{}, err
	}
	return FacetsResult{Facets: query.ComputeFacets(t.Records), Version: t.Version}, nil
}

func observe(op string, start time.Time) { observability.ObserveQuery(op, time.Since(start)) }

func cacheKey(kind, version string, parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'|'})
	}
	return kind + ":" + version + ":" + hex.EncodeToString(h.Sum(nil))
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (nopCache) Set(context.Context, string, any, int) error    { return nil }
func (nopCache) Del(context.Context, string) error              { return nil }
