package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// DateOutputLayout is the layout of the date column in cleaned outputs.
const DateOutputLayout = "2006-01-02"

// DerivedColumns are appended, in order, after a source's retained columns.
var DerivedColumns = []string{"date", "year", "month", "day", "decade", "norm_population"}

// Sighting is one cleaned report annotated with its population density.
type Sighting struct {
	Source string
	Row    int // 1-based data row in the raw input

	// Fields holds the retained, renamed source columns except the date.
	Fields map[string]string

	State  string
	Date   time.Time
	Year   int
	Month  int
	Day    int
	Decade int

	// NormPopulation is 1/population for (State, Decade), or nil when the
	// population table has no data for that cell.
	NormPopulation *big.Rat
}

// SightingTable is the cleaned output of one source.
type SightingTable struct {
	Source string
	// Columns lists the retained columns in output order, excluding the date.
	Columns []string
	Rows    []Sighting
	Stats   CleanStats
}

// CleanStats counts what happened to each raw row during cleaning.
type CleanStats struct {
	RowsRead            int
	FilteredCountry     int
	FilteredMissingDate int
	Dropped             []*RowError
	NoData              int
}

// Header returns the full output header: retained columns, then DerivedColumns.
func (t SightingTable) Header() []string {
	h := make([]string, 0, len(t.Columns)+len(DerivedColumns))
	h = append(h, t.Columns...)
	return append(h, DerivedColumns...)
}

// Record renders the sighting as an output row for the given retained columns.
func (s Sighting) Record(columns []string) []string {
	rec := make([]string, 0, len(columns)+len(DerivedColumns))
	for _, c := range columns {
		rec = append(rec, s.Fields[c])
	}
	return append(rec,
		s.Date.Format(DateOutputLayout),
		strconv.Itoa(s.Year),
		strconv.Itoa(s.Month),
		strconv.Itoa(s.Day),
		strconv.Itoa(s.Decade),
		FormatNormPopulation(s.NormPopulation),
	)
}

// NormPopulationFloat returns the density as a float64 and whether it is set.
func (s Sighting) NormPopulationFloat() (float64, bool) {
	if s.NormPopulation == nil {
		return 0, false
	}
	f, _ := s.NormPopulation.Float64()
	return f, true
}

// ID is a deterministic key for the sighting, stable across reruns on the same input.
func (s Sighting) ID() string {
	input := fmt.Sprintf("%s|%d|%s|%s|%s|%s",
		s.Source, s.Row, s.State, s.Date.Format(DateOutputLayout), s.Fields["latitude"], s.Fields["longitude"])
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if s.Source == "" {
		return short
	}
	return s.Source + "-" + short
}

// FormatNormPopulation renders a density as the shortest float64 text that
// round-trips, or "" for a null density.
func FormatNormPopulation(r *big.Rat) string {
	if r == nil {
		return ""
	}
	f, _ := r.Float64()
	return strconv.FormatFloat(f, 'g', -1, 64)
}
