package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

const stepPopulation = "population"

// BuildPopulation fetches the raw tables, builds the population table, and
// saves it to every store in order. Any failure aborts the step; nothing is
// retried.
func (p *Pipeline) BuildPopulation(ctx context.Context, src PopulationSource, b PopulationBuilder, stores ...PopulationStore) (table *domain.PopulationTable, err error) {
	done := p.step(stepPopulation)
	defer func() {
		rows := 0
		if table != nil {
			rows = table.Len()
		}
		done(rows, err)
	}()

	raw, err := src.FetchTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch population tables: %w", err)
	}
	p.metrics.PopulationTables.Set(float64(len(raw)))

	table, err = b.Build(raw)
	if err != nil {
		return nil, err
	}
	p.metrics.PopulationStates.Set(float64(table.Len()))

	for _, s := range stores {
		if err := s.SavePopulation(ctx, table); err != nil {
			return nil, fmt.Errorf("save population table: %w", err)
		}
	}

	p.ready.Store(true)
	p.logger.Info("population step complete", "states", table.Len(), "decades", len(table.Decades()))
	return table, nil
}

// LoadPopulation reads a persisted population table for runs that skip the
// build step.
func (p *Pipeline) LoadPopulation(ctx context.Context, l PopulationLoader) (*domain.PopulationTable, error) {
	table, err := l.LoadPopulation(ctx)
	if err != nil {
		return nil, fmt.Errorf("load population table: %w", err)
	}
	p.metrics.PopulationStates.Set(float64(table.Len()))
	p.ready.Store(true)
	p.logger.Info("population table loaded", "states", table.Len(), "decades", len(table.Decades()))
	return table, nil
}
