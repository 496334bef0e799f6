package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

const (
	nameColumn  = "Name"
	stateColumn = "State"
)

// PopulationFile persists the population table as the CSV artifact
// "Name,State,<decade>...". It implements pipeline.PopulationStore.
type PopulationFile struct {
	path string
}

// NewPopulationFile creates a store backed by the CSV file at path.
func NewPopulationFile(path string) *PopulationFile {
	return &PopulationFile{path: path}
}

// Path returns the artifact location.
func (p *PopulationFile) Path() string { return p.path }

// SavePopulation writes the table, replacing any previous artifact.
func (p *PopulationFile) SavePopulation(_ context.Context, t *domain.PopulationTable) error {
	return writeFile(p.path, func(w io.Writer) error {
		return EncodePopulation(w, t)
	})
}

// LoadPopulation reads and re-validates the artifact.
func (p *PopulationFile) LoadPopulation(_ context.Context) (*domain.PopulationTable, error) {
	raw, err := ReadTable(p.path)
	if err != nil {
		return nil, err
	}
	t, err := DecodePopulation(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}
	return t, nil
}

// EncodePopulation writes the table as CSV, one row per state in table order
// and decades ascending.
func EncodePopulation(w io.Writer, t *domain.PopulationTable) error {
	decades := t.Decades()
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(decades)+2)
	header = append(header, nameColumn, stateColumn)
	for _, d := range decades {
		header = append(header, strconv.Itoa(d))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range t.Rows() {
		rec := make([]string, 0, len(header))
		rec = append(rec, r.State.Name, r.State.Abbreviation)
		for _, d := range decades {
			rec = append(rec, strconv.FormatInt(r.Counts[d], 10))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodePopulation converts a raw artifact table into a PopulationTable. The
// State column must agree with the enumeration's abbreviation for Name, and
// every other column must be a decade.
func DecodePopulation(raw domain.RawTable) (*domain.PopulationTable, error) {
	nameIdx := raw.ColumnIndex(nameColumn)
	stateIdx := raw.ColumnIndex(stateColumn)
	if nameIdx < 0 || stateIdx < 0 {
		return nil, fmt.Errorf("%w: population artifact needs %s and %s columns", domain.ErrSchemaMismatch, nameColumn, stateColumn)
	}

	decadeCols := make(map[int]int)
	decades := make([]int, 0, len(raw.Header))
	for c, h := range raw.Header {
		if c == nameIdx || c == stateIdx {
			continue
		}
		d, err := strconv.Atoi(h)
		if err != nil {
			return nil, fmt.Errorf("%w: unexpected column %q", domain.ErrSchemaMismatch, h)
		}
		decadeCols[d] = c
		decades = append(decades, d)
	}

	rows := make([]domain.PopulationRow, 0, len(raw.Rows))
	for i := range raw.Rows {
		state := domain.StateRecord{Name: raw.Cell(i, nameIdx), Abbreviation: raw.Cell(i, stateIdx)}
		counts := make(map[int]int64, len(decades))
		for d, c := range decadeCols {
			cell := raw.Cell(i, c)
			if cell == "" {
				continue
			}
			n, err := parseCount(cell)
			if err != nil {
				return nil, fmt.Errorf("%w: %s %d: invalid population %q", domain.ErrSchemaMismatch, state.Name, d, cell)
			}
			counts[d] = n
		}
		rows = append(rows, domain.PopulationRow{State: state, Counts: counts})
	}
	return domain.NewPopulationTable(decades, rows)
}

// maxExactCount is the largest count a float64 cell holds exactly.
const maxExactCount = 1 << 53

// parseCount reads an artifact cell. Integral float text such as
// "29760021.0", written by tools that store a column holding blanks as
// floats, is accepted alongside plain integers.
func parseCount(cell string) (int64, error) {
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactCount {
		return 0, errors.New("not an integral count")
	}
	return int64(f), nil
}
