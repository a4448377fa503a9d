package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"airbnb_insights/internal/app"
	"airbnb_insights/internal/domain"
)

// ---- fakes ----

type fakeSource struct {
	mu    sync.Mutex
	rows  []domain.ListingRecord
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) LoadListings(ctx context.Context) ([]domain.ListingRecord, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.ListingRecord, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeSource) set(rows []domain.ListingRecord, err error) {
	f.mu.Lock()
	f.rows, f.err = rows, err
	f.mu.Unlock()
}

// fakeCache round-trips through JSON like the Redis adapter does.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	hits  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dst)
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	c.store[key] = b
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
	return nil
}

// gateSource blocks every load until release is closed or ctx is done.
type gateSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateSource() *gateSource {
	return &gateSource{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateSource) Name() string { return "gate" }
func (g *gateSource) LoadListings(ctx context.Context) ([]domain.ListingRecord, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return listings(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func listings() []domain.ListingRecord {
	return []domain.ListingRecord{
		{Country: "US", PropertyType: "Apartment", RoomType: "Entire home/apt", Price: 100, Availability365: 10, HostName: "Ana", Name: "Loft"},
		{Country: "US", PropertyType: "House", RoomType: "Private room", Price: 200, Availability365: 301, HostName: "Bob", Name: "Villa"},
		{Country: "FR", PropertyType: "Apartment", RoomType: "Entire home/apt", Price: 50, Availability365: 0, HostName: "Ana", Name: "Studio"},
		{Country: "FR", PropertyType: "Apartment", RoomType: "Private room", Price: 40, Availability365: 100, HostName: "Cy", Name: "Chambre"},
	}
}

// ---- tests ----

func TestSnapshot_LoadsOnceWithinTTL(t *testing.T) {
	src := &fakeSource{rows: listings()}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := app.NewQueryService(src, nil, time.Minute,
		app.WithSnapshotTTL(time.Minute),
		app.WithClock(func() time.Time { return now }))

	t1, err := q.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t2, _ := q.Snapshot(context.Background())
	if t1 != t2 || src.calls.Load() != 1 {
		t.Fatalf("expected one load, got %d", src.calls.Load())
	}

	now = now.Add(2 * time.Minute)
	t3, _ := q.Snapshot(context.Background())
	if src.calls.Load() != 2 {
		t.Fatalf("expected reload after TTL, got %d loads", src.calls.Load())
	}
	if t3.Version != t1.Version {
		t.Fatalf("same rows must keep the same version: %s vs %s", t1.Version, t3.Version)
	}
}

func TestSnapshot_ServesStaleOnReloadFailure(t *testing.T) {
	src := &fakeSource{rows: listings()}
	now := time.Now()
	q := app.NewQueryService(src, nil, time.Minute,
		app.WithSnapshotTTL(time.Second),
		app.WithClock(func() time.Time { return now }))

	first, err := q.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	src.set(nil, errors.New("connection refused"))
	now = now.Add(time.Hour)

	got, err := q.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("stale table expected, got err %v", err)
	}
	if got != first {
		t.Fatalf("expected the previous table")
	}
}

func TestSnapshot_FirstLoadFailureIsUnavailable(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	q := app.NewQueryService(src, nil, time.Minute)

	_, err := q.Aggregate(context.Background(), domain.MatchAll(), domain.AggregationRequest{GroupBy: domain.ColCountry, Op: domain.Count()})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestSnapshot_ConcurrentCallersShareOneLoad(t *testing.T) {
	src := &fakeSource{rows: listings(), delay: 50 * time.Millisecond}
	q := app.NewQueryService(src, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Snapshot(context.Background()); err != nil {
				t.Errorf("err: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("expected 1 load, got %d", n)
	}
}

func TestSnapshot_CancelledCallerDoesNotFailOthers(t *testing.T) {
	src := newGateSource()
	q := app.NewQueryService(src, nil, time.Minute)

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := q.Snapshot(ctx1)
		first <- err
	}()
	<-src.started

	second := make(chan error, 1)
	go func() {
		_, err := q.Snapshot(context.Background())
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel1()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: want context.Canceled, got %v", err)
	}
	close(src.release)
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("live caller failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("live caller never returned")
	}
}

func TestSnapshot_ReloadCooldownAfterFailure(t *testing.T) {
	src := &fakeSource{rows: listings()}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := app.NewQueryService(src, nil, time.Minute,
		app.WithSnapshotTTL(time.Minute),
		app.WithReloadCooldown(30*time.Second),
		app.WithClock(func() time.Time { return now }))

	if _, err := q.Snapshot(context.Background()); err != nil {
		t.Fatalf("err: %v", err)
	}
	src.set(nil, errors.New("connection refused"))
	now = now.Add(2 * time.Minute)

	for i := 0; i < 5; i++ {
		if _, err := q.Snapshot(context.Background()); err != nil {
			t.Fatalf("stale table expected, got %v", err)
		}
	}
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("expected one failed reload, got %d loads", n)
	}

	now = now.Add(31 * time.Second)
	src.set(listings()[:2], nil)
	tbl, err := q.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if src.calls.Load() != 3 || len(tbl.Records) != 2 {
		t.Fatalf("expected a reload after the cooldown, loads=%d rows=%d", src.calls.Load(), len(tbl.Records))
	}
}

func TestBoxAndGroupedHistogram(t *testing.T) {
	q := app.NewQueryService(&fakeSource{rows: listings()}, &fakeCache{}, time.Minute)
	ctx := context.Background()

	b, err := q.Box(ctx, domain.MatchAll(), domain.ColCountry, domain.ColAvailability365)
	if err != nil {
		t.Fatalf("box: %v", err)
	}
	if len(b.Boxes) != 2 || b.Boxes[0].Key != "US" || b.Boxes[0].Max != 301 || b.Boxes[1].Min != 0 {
		t.Fatalf("unexpected boxes: %+v", b.Boxes)
	}

	h, err := q.HistogramByGroup(ctx, domain.MatchAll(), domain.ColCountry, domain.ColPrice, 4)
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	if h.GroupBy != domain.ColCountry || len(h.Groups) != 2 {
		t.Fatalf("unexpected histogram: %+v", h)
	}
	total := 0
	for _, g := range h.Groups {
		for _, bin := range g.Bins {
			total += bin.Count
		}
	}
	if total != 4 {
		t.Fatalf("bins must cover every row, got %d", total)
	}
}

func TestSnapshot_DropsInvalidRows(t *testing.T) {
	rows := append(listings(), domain.ListingRecord{Country: "BR", Price: -1}, domain.ListingRecord{Country: "BR", Price: 10, Availability365: 400})
	q := app.NewQueryService(&fakeSource{rows: rows}, nil, time.Minute)

	tbl, err := q.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(tbl.Records) != 4 {
		t.Fatalf("want 4 valid rows, got %d", len(tbl.Records))
	}
}

func TestAggregate_CacheMissThenHit(t *testing.T) {
	src := &fakeSource{rows: listings()}
	cache := &fakeCache{}
	q := app.NewQueryService(src, cache, 10*time.Minute)
	req := domain.AggregationRequest{GroupBy: domain.ColCountry, Op: domain.MeanOf(domain.ColPrice)}

	// Miss (first time, populates cache)
	out, err := q.Aggregate(context.Background(), domain.MatchAll(), req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(out.Groups) != 2 || out.Groups[0].Key != "US" || out.Groups[0].Value != 150 || out.Groups[1].Value != 45 {
		t.Fatalf("unexpected groups: %+v", out.Groups)
	}

	// Hit (served from cache)
	out2, err := q.Aggregate(context.Background(), domain.MatchAll(), req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if cache.hits != 1 || len(out2.Groups) != 2 || out2.Version != out.Version {
		t.Fatalf("expected cached result, hits=%d out=%+v", cache.hits, out2)
	}
}

func TestAggregate_NewVersionMissesCache(t *testing.T) {
	src := &fakeSource{rows: listings()}
	cache := &fakeCache{}
	q := app.NewQueryService(src, cache, 10*time.Minute)
	req := domain.AggregationRequest{GroupBy: domain.ColCountry, Op: domain.Count()}

	if _, err := q.Aggregate(context.Background(), domain.MatchAll(), req); err != nil {
		t.Fatalf("err: %v", err)
	}
	src.set(listings()[:1], nil)
	if _, err := q.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	out, err := q.Aggregate(context.Background(), domain.MatchAll(), req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if cache.hits != 0 || len(out.Groups) != 1 || out.Groups[0].Count != 1 {
		t.Fatalf("expected fresh result, hits=%d out=%+v", cache.hits, out)
	}
}

func TestAggregate_UnknownColumn(t *testing.T) {
	q := app.NewQueryService(&fakeSource{rows: listings()}, nil, time.Minute)
	_, err := q.Aggregate(context.Background(), domain.MatchAll(), domain.AggregationRequest{GroupBy: domain.ColPrice, Op: domain.Count()})
	if !errors.Is(err, domain.ErrUnknownColumn) {
		t.Fatalf("want ErrUnknownColumn, got %v", err)
	}
}

func TestListings_Paging(t *testing.T) {
	q := app.NewQueryService(&fakeSource{rows: listings()}, nil, time.Minute)
	spec, _ := domain.NewFilterSpec(nil, []string{"Apartment"}, nil, 0, 1000)

	page, err := q.Listings(context.Background(), spec, domain.PageQuery{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || page.Items[0].Name != "Studio" {
		t.Fatalf("unexpected page: %+v", page)
	}

	past, _ := q.Listings(context.Background(), spec, domain.PageQuery{Limit: 2, Offset: 10})
	if past.Total != 3 || past.Items == nil || len(past.Items) != 0 {
		t.Fatalf("expected empty page, got %+v", past)
	}
}

func TestOverview_DefaultPanels(t *testing.T) {
	q := app.NewQueryService(&fakeSource{rows: listings()}, nil, time.Minute)
	d, err := q.Overview(context.Background(), domain.MatchAll())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if d.Rows != 4 || len(d.Panels) != 4 {
		t.Fatalf("unexpected dashboard: %+v", d)
	}
	top := d.Panels[0]
	if top.ID != "top_property_types" || top.Groups[0].Key != "Apartment" || top.Groups[0].Value != 3 {
		t.Fatalf("unexpected property panel: %+v", top)
	}
}

func TestExplore_AscendingPriceAndTruncatedAvailability(t *testing.T) {
	q := app.NewQueryService(&fakeSource{rows: listings()}, nil, time.Minute)
	d, err := q.Explore(context.Background(), domain.MatchAll())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	byID := map[string]app.PanelResult{}
	for _, p := range d.Panels {
		byID[p.ID] = p
	}

	price := byID["price_by_room_type"].Groups
	if len(price) != 2 || price[0].Key != "Entire home/apt" || price[0].Value != 75 || price[1].Value != 120 {
		t.Fatalf("unexpected price panel: %+v", price)
	}

	// US: (10+301)/2 = 155.5 -> 155
	avail := byID["availability_by_country"].Groups
	if avail[0].Key != "US" || avail[0].Value != 155 {
		t.Fatalf("unexpected availability panel: %+v", avail)
	}

	box := byID["availability_by_room_type"].Boxes
	if len(box) != 2 || box[0].Key != "Entire home/apt" || box[0].Max != 10 {
		t.Fatalf("unexpected box panel: %+v", box)
	}
}

func TestDashboard_UnknownPage(t *testing.T) {
	q := app.NewQueryService(&fakeSource{rows: listings()}, nil, time.Minute)
	if _, err := q.Dashboard(context.Background(), "nope", domain.MatchAll()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestStatsHistogramFacets(t *testing.T) {
	q := app.NewQueryService(&fakeSource{rows: listings()}, nil, time.Minute)
	ctx := context.Background()

	st, err := q.Stats(ctx, domain.MatchAll())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Rows != 4 || len(st.Columns) != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	h, err := q.Histogram(ctx, domain.MatchAll(), domain.ColPrice, 4)
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	total := 0
	for _, b := range h.Bins {
		total += b.Count
	}
	if total != 4 {
		t.Fatalf("bins must cover every row, got %d", total)
	}
	if _, err := q.Histogram(ctx, domain.MatchAll(), domain.ColPrice, 0); !errors.Is(err, domain.ErrInvalidBins) {
		t.Fatalf("want ErrInvalidBins, got %v", err)
	}

	f, err := q.Facets(ctx)
	if err != nil {
		t.Fatalf("facets: %v", err)
	}
	if len(f.Countries) != 2 || f.Countries[0] != "FR" || f.PriceMax != 200 {
		t.Fatalf("unexpected facets: %+v", f)
	}
}
