package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// SightingFile reads one source's raw CSV and writes its cleaned output.
// It implements pipeline.SightingExtractor and pipeline.SightingLoader.
type SightingFile struct {
	input  string
	output string
}

// NewSightingFile binds a raw input path to a cleaned output path.
func NewSightingFile(input, output string) *SightingFile {
	return &SightingFile{input: input, output: output}
}

// ExtractSightings reads the raw input.
func (f *SightingFile) ExtractSightings(_ context.Context) (domain.RawTable, error) {
	return ReadTable(f.input)
}

// LoadSightings writes the cleaned table, replacing any previous output.
func (f *SightingFile) LoadSightings(_ context.Context, t domain.SightingTable) error {
	if err := writeFile(f.output, func(w io.Writer) error {
		return EncodeSightings(w, t)
	}); err != nil {
		return fmt.Errorf("load %s sightings: %w", t.Source, err)
	}
	return nil
}

// EncodeSightings writes the cleaned table as CSV with the retained columns
// followed by domain.DerivedColumns. Output depends only on t.
func EncodeSightings(w io.Writer, t domain.SightingTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	for _, s := range t.Rows {
		if err := cw.Write(s.Record(t.Columns)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
