package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
	"github.com/couchcryptid/sighting-density-etl/internal/observability"
)

// PopulationSource fetches the raw population tables.
type PopulationSource interface {
	FetchTables(ctx context.Context) ([]domain.RawTable, error)
}

// PopulationBuilder merges raw tables into the canonical population table.
type PopulationBuilder interface {
	Build(tables []domain.RawTable) (*domain.PopulationTable, error)
}

// PopulationStore persists a built population table.
type PopulationStore interface {
	SavePopulation(ctx context.Context, t *domain.PopulationTable) error
}

// PopulationLoader reads a previously persisted population table.
type PopulationLoader interface {
	LoadPopulation(ctx context.Context) (*domain.PopulationTable, error)
}

// SightingExtractor reads one source's raw rows.
type SightingExtractor interface {
	ExtractSightings(ctx context.Context) (domain.RawTable, error)
}

// Cleaner turns raw rows into a cleaned, annotated table.
type Cleaner interface {
	Clean(raw domain.RawTable) (domain.SightingTable, error)
}

// SightingLoader writes a cleaned table to a destination.
type SightingLoader interface {
	LoadSightings(ctx context.Context, t domain.SightingTable) error
}

// Sink is a named SightingLoader; the name labels logs and metrics.
type Sink struct {
	Name   string
	Loader SightingLoader
}

// Step states reported by Status.
const (
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// StepStatus describes the latest execution of one step.
type StepStatus struct {
	Name     string        `json:"name"`
	State    string        `json:"state"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Pipeline runs the population and sighting steps and records their progress.
// Steps for different sources may run concurrently.
type Pipeline struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	ready   atomic.Bool

	mu     sync.Mutex
	order  []string
	status map[string]StepStatus
}

// New creates a Pipeline. A nil clock uses real time.
func New(logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		logger:  logger,
		metrics: metrics,
		clock:   clock,
		status:  make(map[string]StepStatus),
	}
}

// CheckReadiness returns nil once a population table is available, or an
// error describing why the run is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("population table not available yet")
	}
	return nil
}

// Status returns the steps in the order they started.
func (p *Pipeline) Status() []StepStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]StepStatus, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.status[name])
	}
	return out
}

// step marks name as running and returns a function that records its outcome.
func (p *Pipeline) step(name string) func(rows int, err error) {
	start := p.clock.Now()
	p.metrics.PipelineRunning.Set(1)

	p.mu.Lock()
	if _, seen := p.status[name]; !seen {
		p.order = append(p.order, name)
	}
	p.status[name] = StepStatus{Name: name, State: StateRunning}
	p.mu.Unlock()

	return func(rows int, err error) {
		elapsed := p.clock.Since(start)
		st := StepStatus{Name: name, State: StateSucceeded, Rows: rows, Duration: elapsed}
		outcome := "success"
		if err != nil {
			st.State = StateFailed
			st.Error = err.Error()
			outcome = "error"
		}
		p.metrics.StepDuration.WithLabelValues(name, outcome).Observe(elapsed.Seconds())

		p.mu.Lock()
		p.status[name] = st
		running := false
		for _, s := range p.status {
			if s.State == StateRunning {
				running = true
				break
			}
		}
		p.mu.Unlock()
		if !running {
			p.metrics.PipelineRunning.Set(0)
		}
	}
}
