// Package population builds the canonical state by decade population table
// from the raw tables of the population source page.
package population

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// citationRe matches bracketed citation markers such as "[12]" or "[note 3]".
var citationRe = regexp.MustCompile(`\[(.*?)\]`)

// Options configures a Builder.
type Options struct {
	// KeyColumn names the column holding the full state name in every table.
	KeyColumn string
	// ExcludeTrailing is the number of tables at the end of the input that are
	// not part of the population series and are left out of the merge.
	ExcludeTrailing int
}

// Builder merges raw population tables into a domain.PopulationTable.
type Builder struct {
	opts   Options
	logger *slog.Logger
}

// NewBuilder creates a Builder. An empty KeyColumn defaults to "Name".
func NewBuilder(opts Options, logger *slog.Logger) (*Builder, error) {
	if opts.KeyColumn == "" {
		opts.KeyColumn = "Name"
	}
	if opts.ExcludeTrailing < 0 {
		return nil, fmt.Errorf("exclude trailing tables must be >= 0, got %d", opts.ExcludeTrailing)
	}
	return &Builder{opts: opts, logger: logger}, nil
}

// Build strips citation markers, right-merges the population tables on the key
// column, resolves every row's abbreviation, drops columns that are empty in
// every row, and parses the decade columns into counts.
func (b *Builder) Build(tables []domain.RawTable) (*domain.PopulationTable, error) {
	if len(tables) == 0 {
		return nil, errors.New("build population table: no source tables")
	}

	cleaned := make([]domain.RawTable, len(tables))
	for i, t := range tables {
		cleaned[i] = stripCitations(t)
	}

	merged, err := b.merge(cleaned)
	if err != nil {
		return nil, fmt.Errorf("build population table: %w", err)
	}
	merged = dropEmptyColumns(merged, b.logger)

	table, err := b.toPopulationTable(merged)
	if err != nil {
		return nil, fmt.Errorf("build population table: %w", err)
	}
	b.logger.Info("population table built",
		"tables", len(tables),
		"merged_tables", mergedCount(len(tables), b.opts.ExcludeTrailing),
		"states", table.Len(),
		"decades", len(table.Decades()),
	)
	return table, nil
}

// mergedCount is how many leading tables take part in the merge. The first
// table always does.
func mergedCount(total, exclude int) int {
	n := total - exclude
	if n < 1 {
		return 1
	}
	return n
}

func (b *Builder) merge(tables []domain.RawTable) (domain.RawTable, error) {
	n := mergedCount(len(tables), b.opts.ExcludeTrailing)
	merged := tables[0]
	if merged.ColumnIndex(b.opts.KeyColumn) < 0 {
		return domain.RawTable{}, fmt.Errorf("%w: table 0 has no %q column", domain.ErrSchemaMismatch, b.opts.KeyColumn)
	}
	for i := 1; i < n; i++ {
		if tables[i].ColumnIndex(b.opts.KeyColumn) < 0 {
			return domain.RawTable{}, fmt.Errorf("%w: table %d has no %q column", domain.ErrSchemaMismatch, i, b.opts.KeyColumn)
		}
		merged = mergeRight(merged, tables[i], b.opts.KeyColumn)
	}
	return merged, nil
}

// mergeRight joins left and right on key, keeping exactly the rows of right in
// right's order. Columns are left's followed by right's new ones; a column
// present in both takes right's value unless it is empty.
func mergeRight(left, right domain.RawTable, key string) domain.RawTable {
	header := append([]string(nil), left.Header...)
	rightPos := make([]int, len(right.Header))
	for j, h := range right.Header {
		pos := indexOf(header, h)
		if pos < 0 {
			pos = len(header)
			header = append(header, h)
		}
		rightPos[j] = pos
	}

	lk := left.ColumnIndex(key)
	leftByKey := make(map[string]int, len(left.Rows))
	for i := range left.Rows {
		k := left.Cell(i, lk)
		if _, seen := leftByKey[k]; !seen {
			leftByKey[k] = i
		}
	}

	rk := right.ColumnIndex(key)
	rows := make([][]string, 0, len(right.Rows))
	for i := range right.Rows {
		row := make([]string, len(header))
		if li, ok := leftByKey[right.Cell(i, rk)]; ok {
			for c := range left.Header {
				row[c] = left.Cell(li, c)
			}
		}
		for j, pos := range rightPos {
			if v := right.Cell(i, j); v != "" || row[pos] == "" {
				row[pos] = v
			}
		}
		rows = append(rows, row)
	}
	return domain.RawTable{Header: header, Rows: rows}
}

func (b *Builder) toPopulationTable(t domain.RawTable) (*domain.PopulationTable, error) {
	keyIdx := t.ColumnIndex(b.opts.KeyColumn)

	decadeCols := make(map[int]int)
	var decades []int
	for c, h := range t.Header {
		if c == keyIdx {
			continue
		}
		year, err := strconv.Atoi(h)
		if err != nil {
			b.logger.Warn("omitting non-population column", "column", h)
			continue
		}
		if year%10 != 0 {
			return nil, fmt.Errorf("%w: column %q is not a decade", domain.ErrSchemaMismatch, h)
		}
		if _, dup := decadeCols[year]; dup {
			return nil, fmt.Errorf("%w: duplicate decade column %d", domain.ErrSchemaMismatch, year)
		}
		decadeCols[year] = c
		decades = append(decades, year)
	}

	rows := make([]domain.PopulationRow, 0, len(t.Rows))
	for i := range t.Rows {
		state, err := domain.StateByName(t.Cell(i, keyIdx))
		if err != nil {
			return nil, err
		}
		counts := make(map[int]int64, len(decades))
		for d, c := range decadeCols {
			n, err := ParseCount(t.Cell(i, c))
			if err != nil {
				return nil, fmt.Errorf("%s %d: %w", state.Name, d, err)
			}
			counts[d] = n
		}
		rows = append(rows, domain.PopulationRow{State: state, Counts: counts})
	}
	return domain.NewPopulationTable(decades, rows)
}

// ParseCount parses a population cell. Thousands separators are ignored, and
// empty or dash-like cells yield the missing-data sentinel 0.
func ParseCount(cell string) (int64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
	switch s {
	case "", "-", "–", "—", "N/A", "n/a":
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid population %q", domain.ErrSchemaMismatch, cell)
	}
	return n, nil
}

func stripCitations(t domain.RawTable) domain.RawTable {
	out := domain.RawTable{
		Header: make([]string, len(t.Header)),
		Rows:   make([][]string, len(t.Rows)),
	}
	for i, h := range t.Header {
		out.Header[i] = stripCell(h)
	}
	for i, r := range t.Rows {
		row := make([]string, len(r))
		for j, v := range r {
			row[j] = stripCell(v)
		}
		out.Rows[i] = row
	}
	return out
}

func stripCell(s string) string {
	return strings.TrimSpace(citationRe.ReplaceAllString(s, ""))
}

// dropEmptyColumns removes every column whose cells are all empty.
func dropEmptyColumns(t domain.RawTable, logger *slog.Logger) domain.RawTable {
	keep := make([]int, 0, len(t.Header))
	for c, h := range t.Header {
		empty := true
		for i := range t.Rows {
			if t.Cell(i, c) != "" {
				empty = false
				break
			}
		}
		if empty {
			logger.Debug("dropping empty column", "column", h)
			continue
		}
		keep = append(keep, c)
	}
	if len(keep) == len(t.Header) {
		return t
	}

	out := domain.RawTable{Header: make([]string, len(keep)), Rows: make([][]string, len(t.Rows))}
	for j, c := range keep {
		out.Header[j] = t.Header[c]
	}
	for i := range t.Rows {
		row := make([]string, len(keep))
		for j, c := range keep {
			row[j] = t.Cell(i, c)
		}
		out.Rows[i] = row
	}
	return out
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
