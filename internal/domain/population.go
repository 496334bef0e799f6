package domain

import (
	"fmt"
	"slices"
	"strings"
)

// KeyKind says how a sighting source encodes its state field.
type KeyKind string

const (
	// KeyAbbreviation keys are two-letter codes in arbitrary case (UFO reports).
	KeyAbbreviation KeyKind = "abbreviation"
	// KeyName keys are canonical full state names (Bigfoot reports).
	KeyName KeyKind = "name"
)

// Valid reports whether k is one of the known key kinds.
func (k KeyKind) Valid() bool {
	return k == KeyAbbreviation || k == KeyName
}

// PopulationRow holds one state's population series. A count of 0 means the
// source has no data for that decade.
type PopulationRow struct {
	State  StateRecord
	Counts map[int]int64
}

// PopulationTable is the canonical state by decade population table. It is
// read-only once constructed and safe for concurrent lookups.
type PopulationTable struct {
	decades []int
	rows    []PopulationRow
	byName  map[string]int
	byAbbr  map[string]int
}

// NewPopulationTable validates and indexes a set of rows. Decades must be
// multiples of 10 and each state may appear only once.
func NewPopulationTable(decades []int, rows []PopulationRow) (*PopulationTable, error) {
	ds := slices.Clone(decades)
	slices.Sort(ds)
	for i, d := range ds {
		if d%10 != 0 {
			return nil, fmt.Errorf("%w: %d is not a decade", ErrSchemaMismatch, d)
		}
		if i > 0 && ds[i-1] == d {
			return nil, fmt.Errorf("%w: duplicate decade %d", ErrSchemaMismatch, d)
		}
	}

	t := &PopulationTable{
		decades: ds,
		rows:    make([]PopulationRow, 0, len(rows)),
		byName:  make(map[string]int, len(rows)),
		byAbbr:  make(map[string]int, len(rows)),
	}
	for _, r := range rows {
		canonical, err := StateByName(r.State.Name)
		if err != nil {
			return nil, err
		}
		if canonical.Abbreviation != r.State.Abbreviation {
			return nil, fmt.Errorf("%w: %q has abbreviation %q, want %q",
				ErrSchemaMismatch, r.State.Name, r.State.Abbreviation, canonical.Abbreviation)
		}
		if _, dup := t.byName[canonical.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate population row for %q", ErrSchemaMismatch, canonical.Name)
		}

		counts := make(map[int]int64, len(ds))
		for _, d := range ds {
			n := r.Counts[d]
			if n < 0 {
				return nil, fmt.Errorf("%w: negative population %d for %s in %d", ErrSchemaMismatch, n, canonical.Name, d)
			}
			counts[d] = n
		}
		for d := range r.Counts {
			if _, ok := counts[d]; !ok {
				return nil, fmt.Errorf("%w: %s has a count for undeclared decade %d", ErrSchemaMismatch, canonical.Name, d)
			}
		}

		t.byName[canonical.Name] = len(t.rows)
		t.byAbbr[canonical.Abbreviation] = len(t.rows)
		t.rows = append(t.rows, PopulationRow{State: canonical, Counts: counts})
	}
	return t, nil
}

// Decades returns the table's decades in ascending order.
func (t *PopulationTable) Decades() []int {
	return slices.Clone(t.decades)
}

// Rows returns the rows in insertion order. Callers must not modify the
// returned count maps.
func (t *PopulationTable) Rows() []PopulationRow {
	return slices.Clone(t.rows)
}

// Len returns the number of state rows.
func (t *PopulationTable) Len() int { return len(t.rows) }

// Population returns the stored count for a state key and decade. Abbreviation
// keys are upper-cased first; name keys are used as given. A key or decade that
// has no entry in the table is a schema mismatch, distinct from a stored 0.
func (t *PopulationTable) Population(key string, kind KeyKind, decade int) (int64, error) {
	var (
		idx int
		ok  bool
	)
	switch kind {
	case KeyAbbreviation:
		idx, ok = t.byAbbr[strings.ToUpper(key)]
	case KeyName:
		idx, ok = t.byName[key]
	default:
		return 0, fmt.Errorf("%w: unsupported key kind %q", ErrSchemaMismatch, kind)
	}
	if !ok {
		return 0, fmt.Errorf("%w: state %q (%s) not in population table", ErrSchemaMismatch, key, kind)
	}

	n, ok := t.rows[idx].Counts[decade]
	if !ok {
		return 0, fmt.Errorf("%w: decade %d not in population table", ErrSchemaMismatch, decade)
	}
	return n, nil
}

// Decade rounds a year down to the start of its ten-year bucket.
func Decade(year int) int {
	return year - year%10
}
