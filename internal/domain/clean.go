package domain

import (
	"fmt"
	"strings"
	"time"
)

// SightingCleaner filters, reshapes, and annotates one source's raw rows.
type SightingCleaner struct {
	source SourceConfig
	table  *PopulationTable
	policy ParseErrorPolicy
}

// NewSightingCleaner validates the source configuration and binds it to a
// population table.
func NewSightingCleaner(source SourceConfig, table *PopulationTable, policy ParseErrorPolicy) (*SightingCleaner, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("source %s: population table is required", source.Name)
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown parse error policy %q", policy)
	}
	return &SightingCleaner{source: source, table: table, policy: policy}, nil
}

// Source returns the cleaner's configuration.
func (c *SightingCleaner) Source() SourceConfig { return c.source }

// Clean runs every raw row through projection, filtering, date parsing, decade
// bucketing, and normalization. Rows come out in input order.
//
// A wanted column missing from the raw header and a state or decade absent
// from the population table both fail with ErrSchemaMismatch. A malformed date
// fails with a *RowError under PolicyAbort and is recorded and skipped under
// PolicyDrop.
func (c *SightingCleaner) Clean(raw RawTable) (SightingTable, error) {
	idx, err := c.project(raw.Header)
	if err != nil {
		return SightingTable{}, err
	}

	out := SightingTable{
		Source:  c.source.Name,
		Columns: c.source.RetainedColumns(),
		Rows:    make([]Sighting, 0, len(raw.Rows)),
	}
	stats := &out.Stats

	for i := range raw.Rows {
		stats.RowsRead++
		rowNum := i + 1

		fields := make(map[string]string, len(c.source.Columns))
		for j, m := range c.source.Columns {
			fields[m.To] = raw.Cell(i, idx[j])
		}

		if c.source.CountryColumn != "" && fields[c.source.CountryColumn] != c.source.Country {
			stats.FilteredCountry++
			continue
		}
		dateText := fields[c.source.DateColumn]
		if c.source.DropMissingDate && strings.TrimSpace(dateText) == "" {
			stats.FilteredMissingDate++
			continue
		}

		date, err := c.parseDate(dateText)
		if err != nil {
			rowErr := &RowError{Source: c.source.Name, Row: rowNum, Err: err}
			if c.policy == PolicyAbort {
				return SightingTable{}, rowErr
			}
			stats.Dropped = append(stats.Dropped, rowErr)
			continue
		}

		s := Sighting{
			Source: c.source.Name,
			Row:    rowNum,
			State:  fields[c.source.StateColumn],
			Date:   date,
			Year:   date.Year(),
			Month:  int(date.Month()),
			Day:    date.Day(),
		}
		s.Decade = Decade(s.Year)
		delete(fields, c.source.DateColumn)
		s.Fields = fields

		s.NormPopulation, err = Normalize(c.table, s.State, c.source.KeyKind, s.Decade)
		if err != nil {
			return SightingTable{}, &RowError{Source: c.source.Name, Row: rowNum, Err: err}
		}
		if s.NormPopulation == nil {
			stats.NoData++
		}
		out.Rows = append(out.Rows, s)
	}
	return out, nil
}

// project maps each wanted column to its position in the raw header.
func (c *SightingCleaner) project(header []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimPrefix(h, "\ufeff")] = i
	}
	idx := make([]int, len(c.source.Columns))
	for j, m := range c.source.Columns {
		i, ok := pos[m.From]
		if !ok {
			return nil, fmt.Errorf("%w: source %s has no column %q", ErrSchemaMismatch, c.source.Name, m.From)
		}
		idx[j] = i
	}
	return idx, nil
}

func (c *SightingCleaner) parseDate(value string) (time.Time, error) {
	if c.source.DateFirstToken {
		tokens := strings.Fields(value)
		if len(tokens) == 0 {
			return time.Time{}, fmt.Errorf("%w: empty date", ErrRowParse)
		}
		value = tokens[0]
	}
	t, err := time.Parse(c.source.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrRowParse, value, err)
	}
	return t, nil
}
