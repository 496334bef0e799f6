package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// CleanSightings extracts one source, cleans it, and loads the result into
// every sink in order. Rows dropped under the drop policy are logged one by
// one; any other failure aborts the step.
func (p *Pipeline) CleanSightings(ctx context.Context, name string, ext SightingExtractor, c Cleaner, sinks ...Sink) (out domain.SightingTable, err error) {
	done := p.step(name)
	defer func() { done(len(out.Rows), err) }()

	raw, err := ext.ExtractSightings(ctx)
	if err != nil {
		return domain.SightingTable{}, fmt.Errorf("extract %s sightings: %w", name, err)
	}

	out, err = c.Clean(raw)
	if err != nil {
		return domain.SightingTable{}, fmt.Errorf("clean %s sightings: %w", name, err)
	}
	p.recordStats(name, out)

	for _, s := range sinks {
		if err := ctx.Err(); err != nil {
			return domain.SightingTable{}, err
		}
		if err := s.Loader.LoadSightings(ctx, out); err != nil {
			p.metrics.LoadErrors.WithLabelValues(name, s.Name).Inc()
			return domain.SightingTable{}, fmt.Errorf("load %s sightings into %s: %w", name, s.Name, err)
		}
	}

	p.logger.Info("sightings step complete",
		"source", name,
		"rows_read", out.Stats.RowsRead,
		"rows_written", len(out.Rows),
		"filtered_country", out.Stats.FilteredCountry,
		"filtered_missing_date", out.Stats.FilteredMissingDate,
		"dropped", len(out.Stats.Dropped),
		"no_data", out.Stats.NoData,
	)
	return out, nil
}

func (p *Pipeline) recordStats(name string, t domain.SightingTable) {
	st := t.Stats
	p.metrics.RowsRead.WithLabelValues(name).Add(float64(st.RowsRead))
	p.metrics.RowsWritten.WithLabelValues(name).Add(float64(len(t.Rows)))
	p.metrics.RowsFiltered.WithLabelValues(name, "country").Add(float64(st.FilteredCountry))
	p.metrics.RowsFiltered.WithLabelValues(name, "missing_date").Add(float64(st.FilteredMissingDate))
	p.metrics.ParseErrors.WithLabelValues(name).Add(float64(len(st.Dropped)))
	p.metrics.NoDataRows.WithLabelValues(name).Add(float64(st.NoData))

	for _, rowErr := range st.Dropped {
		p.logger.Warn("dropping unparsable row",
			"source", rowErr.Source,
			"row", rowErr.Row,
			"error", rowErr.Err,
		)
	}
}
