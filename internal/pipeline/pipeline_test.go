package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sighting-density-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/sighting-density-etl/internal/domain"
	"github.com/couchcryptid/sighting-density-etl/internal/observability"
	"github.com/couchcryptid/sighting-density-etl/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	tables []domain.RawTable
	err    error
	clock  *clockwork.FakeClock
	took   time.Duration
}

func (m *mockSource) FetchTables(_ context.Context) ([]domain.RawTable, error) {
	if m.clock != nil {
		m.clock.Advance(m.took)
	}
	return m.tables, m.err
}

type mockBuilder struct {
	table *domain.PopulationTable
	err   error
	got   []domain.RawTable
}

func (m *mockBuilder) Build(tables []domain.RawTable) (*domain.PopulationTable, error) {
	m.got = tables
	return m.table, m.err
}

type mockStore struct {
	saved  *domain.PopulationTable
	loaded *domain.PopulationTable
	err    error
}

func (m *mockStore) SavePopulation(_ context.Context, t *domain.PopulationTable) error {
	if m.err != nil {
		return m.err
	}
	m.saved = t
	return nil
}

func (m *mockStore) LoadPopulation(_ context.Context) (*domain.PopulationTable, error) {
	return m.loaded, m.err
}

type mockExtractor struct {
	raw domain.RawTable
	err error
}

func (m *mockExtractor) ExtractSightings(_ context.Context) (domain.RawTable, error) {
	return m.raw, m.err
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.SightingTable
	err    error
}

func (m *mockLoader) LoadSightings(_ context.Context, t domain.SightingTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, t)
	return nil
}

func testPopulation(t *testing.T) *domain.PopulationTable {
	t.Helper()
	table, err := domain.NewPopulationTable([]int{1990, 2000}, []domain.PopulationRow{
		{State: domain.StateRecord{Name: "California", Abbreviation: "CA"}, Counts: map[int]int64{1990: 29760021, 2000: 33871648}},
		{State: domain.StateRecord{Name: "Washington", Abbreviation: "WA"}, Counts: map[int]int64{1990: 4866692}},
	})
	require.NoError(t, err)
	return table
}

func newTestPipeline(t *testing.T, clock clockwork.Clock) (*pipeline.Pipeline, *observability.Metrics) {
	t.Helper()
	// A fresh registry avoids "already registered" panics across tests.
	metrics, _ := observability.NewMetricsForTesting()
	return pipeline.New(slog.Default(), metrics, clock), metrics
}

// --- population ---

func TestPipeline_BuildPopulation_HappyPath(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p, metrics := newTestPipeline(t, clock)
	table := testPopulation(t)

	raw := []domain.RawTable{{Header: []string{"Name"}}, {Header: []string{"Name"}}}
	src := &mockSource{tables: raw, clock: clock, took: 3 * time.Second}
	b := &mockBuilder{table: table}
	first, second := &mockStore{}, &mockStore{}

	require.Error(t, p.CheckReadiness(context.Background()))

	got, err := p.BuildPopulation(context.Background(), src, b, first, second)
	require.NoError(t, err)
	assert.Same(t, table, got)
	assert.Same(t, table, first.saved)
	assert.Same(t, table, second.saved)
	assert.Equal(t, raw, b.got)
	require.NoError(t, p.CheckReadiness(context.Background()))

	want := []pipeline.StepStatus{{Name: "population", State: pipeline.StateSucceeded, Rows: 2, Duration: 3 * time.Second}}
	if diff := cmp.Diff(want, p.Status()); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.PopulationTables), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.PopulationStates), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.StepDuration))
}

func TestPipeline_BuildPopulation_Failures(t *testing.T) {
	table := testPopulation(t)

	tests := []struct {
		name    string
		src     *mockSource
		builder *mockBuilder
		store   *mockStore
		wantErr error
	}{
		{
			name:    "fetch fails",
			src:     &mockSource{err: domain.ErrUpstreamFetch},
			builder: &mockBuilder{table: table},
			store:   &mockStore{},
			wantErr: domain.ErrUpstreamFetch,
		},
		{
			name:    "build fails",
			src:     &mockSource{},
			builder: &mockBuilder{err: domain.ErrSchemaMismatch},
			store:   &mockStore{},
			wantErr: domain.ErrSchemaMismatch,
		},
		{
			name:    "save fails",
			src:     &mockSource{},
			builder: &mockBuilder{table: table},
			store:   &mockStore{err: errors.New("disk full")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPipeline(t, clockwork.NewFakeClock())

			got, err := p.BuildPopulation(context.Background(), tt.src, tt.builder, tt.store)
			require.Error(t, err)
			assert.Nil(t, got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Error(t, p.CheckReadiness(context.Background()))

			status := p.Status()
			require.Len(t, status, 1)
			assert.Equal(t, pipeline.StateFailed, status[0].State)
			assert.Equal(t, err.Error(), status[0].Error)
		})
	}
}

func TestPipeline_LoadPopulation(t *testing.T) {
	p, metrics := newTestPipeline(t, nil)
	table := testPopulation(t)

	got, err := p.LoadPopulation(context.Background(), &mockStore{loaded: table})
	require.NoError(t, err)
	assert.Same(t, table, got)
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.PopulationStates), 0)

	p2, _ := newTestPipeline(t, nil)
	_, err = p2.LoadPopulation(context.Background(), &mockStore{err: errors.New("missing artifact")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load population table")
	assert.Error(t, p2.CheckReadiness(context.Background()))
}

// --- sightings ---

func ufoRaw(rows ...[]string) domain.RawTable {
	return domain.RawTable{
		Header: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10"},
		Rows:   rows,
	}
}

func ufoRow(date, state, country string) []string {
	return []string{date, "somewhere", state, country, "disk", "60", "1 min", "text", "1/1/2000", "1.0", "2.0"}
}

func newUFOCleaner(t *testing.T, policy domain.ParseErrorPolicy) *domain.SightingCleaner {
	t.Helper()
	c, err := domain.NewSightingCleaner(domain.UFOSource(), testPopulation(t), policy)
	require.NoError(t, err)
	return c
}

func TestPipeline_CleanSightings_HappyPath(t *testing.T) {
	p, metrics := newTestPipeline(t, clockwork.NewFakeClock())

	ext := &mockExtractor{raw: ufoRaw(
		ufoRow("6/1/1995 20:00", "ca", "us"),
		ufoRow("6/1/1995 20:00", "on", "ca"),
		ufoRow("2/2/1992 10:00", "wa", "us"),
		ufoRow("garbage", "ca", "us"),
	)}
	csvSink, dbSink := &mockLoader{}, &mockLoader{}

	out, err := p.CleanSightings(context.Background(), "ufo", ext, newUFOCleaner(t, domain.PolicyDrop),
		pipeline.Sink{Name: "csv", Loader: csvSink},
		pipeline.Sink{Name: "sqlite", Loader: dbSink},
	)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	require.Len(t, csvSink.loaded, 1)
	require.Len(t, dbSink.loaded, 1)
	assert.Len(t, csvSink.loaded[0].Rows, 2)

	assert.InDelta(t, 4, testutil.ToFloat64(metrics.RowsRead.WithLabelValues("ufo")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RowsWritten.WithLabelValues("ufo")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RowsFiltered.WithLabelValues("ufo", "country")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ParseErrors.WithLabelValues("ufo")), 0)

	status := p.Status()
	require.Len(t, status, 1)
	assert.Equal(t, pipeline.StepStatus{Name: "ufo", State: pipeline.StateSucceeded, Rows: 2}, status[0])
}

func TestPipeline_CleanSightings_AbortPolicyStopsBeforeSinks(t *testing.T) {
	p, metrics := newTestPipeline(t, nil)

	ext := &mockExtractor{raw: ufoRaw(ufoRow("not a date", "ca", "us"))}
	sink := &mockLoader{}

	_, err := p.CleanSightings(context.Background(), "ufo", ext, newUFOCleaner(t, domain.PolicyAbort),
		pipeline.Sink{Name: "csv", Loader: sink})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRowParse)

	var rowErr *domain.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 1, rowErr.Row)

	assert.Empty(t, sink.loaded)
	assert.Equal(t, 0, testutil.CollectAndCount(metrics.RowsWritten))
	assert.Equal(t, pipeline.StateFailed, p.Status()[0].State)
}

func TestPipeline_CleanSightings_ExtractError(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	_, err := p.CleanSightings(context.Background(), "bigfoot",
		&mockExtractor{err: errors.New("no such file")}, newUFOCleaner(t, domain.PolicyAbort))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract bigfoot sightings")
}

func TestPipeline_CleanSightings_SinkFailure(t *testing.T) {
	p, metrics := newTestPipeline(t, nil)

	ext := &mockExtractor{raw: ufoRaw(ufoRow("6/1/1995 20:00", "ca", "us"))}
	broken := &mockLoader{err: errors.New("broker unavailable")}
	after := &mockLoader{}

	_, err := p.CleanSightings(context.Background(), "ufo", ext, newUFOCleaner(t, domain.PolicyAbort),
		pipeline.Sink{Name: "kafka", Loader: broken},
		pipeline.Sink{Name: "csv", Loader: after},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load ufo sightings into kafka")
	assert.Empty(t, after.loaded)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LoadErrors.WithLabelValues("ufo", "kafka")), 0)
}

func TestPipeline_CleanSightings_Cancelled(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &mockLoader{}
	_, err := p.CleanSightings(ctx, "ufo",
		&mockExtractor{raw: ufoRaw(ufoRow("6/1/1995 20:00", "ca", "us"))},
		newUFOCleaner(t, domain.PolicyAbort),
		pipeline.Sink{Name: "csv", Loader: sink})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.loaded)
}

func TestPipeline_CleanSightings_Concurrent(t *testing.T) {
	p, metrics := newTestPipeline(t, nil)
	sink := &mockLoader{}

	cleaner := newUFOCleaner(t, domain.PolicyAbort)

	var wg sync.WaitGroup
	for _, name := range []string{"ufo", "ufo-archive"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.CleanSightings(context.Background(), name,
				&mockExtractor{raw: ufoRaw(ufoRow("6/1/1995 20:00", "ca", "us"))},
				cleaner,
				pipeline.Sink{Name: "csv", Loader: sink})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, sink.loaded, 2)
	assert.Len(t, p.Status(), 2)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_CleanSightings_ConcurrentSharedSQLite(t *testing.T) {
	p, metrics := newTestPipeline(t, nil)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sightings.db"), "run-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rows := make([][]string, 0, 2000)
	for range 2000 {
		rows = append(rows, ufoRow("6/1/1995 20:00", "ca", "us"))
	}
	cleaner := newUFOCleaner(t, domain.PolicyAbort)
	names := []string{"ufo", "ufo-archive"}

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = p.CleanSightings(context.Background(), name,
				&mockExtractor{raw: ufoRaw(rows...)},
				cleaner,
				pipeline.Sink{Name: "sqlite", Loader: store})
		}()
	}
	wg.Wait()

	for i, name := range names {
		require.NoError(t, errs[i], name)
		n, err := store.CountSightings(context.Background(), name)
		require.NoError(t, err)
		assert.Equal(t, 2000, n, name)
		assert.InDelta(t, 0, testutil.ToFloat64(metrics.LoadErrors.WithLabelValues(name, "sqlite")), 0)
	}
}
