package domain

import (
	"errors"
	"fmt"
	"slices"
)

// ParseErrorPolicy decides what a malformed date on a retained row does.
type ParseErrorPolicy string

const (
	// PolicyAbort fails the whole source on the first malformed row.
	PolicyAbort ParseErrorPolicy = "abort"
	// PolicyDrop removes the row and records it in CleanStats.Dropped.
	PolicyDrop ParseErrorPolicy = "drop"
)

// Valid reports whether p is a known policy.
func (p ParseErrorPolicy) Valid() bool {
	return p == PolicyAbort || p == PolicyDrop
}

// ColumnMapping retains source column From under the output name To.
type ColumnMapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SourceConfig declares how one sighting source is cleaned. Column names other
// than Columns[].From refer to the renamed (output) names.
type SourceConfig struct {
	Name    string          `yaml:"name"`
	Columns []ColumnMapping `yaml:"columns"`

	DateColumn string `yaml:"date_column"`
	DateLayout string `yaml:"date_layout"`
	// DateFirstToken parses only the first whitespace-separated token, for
	// composite "date time" fields.
	DateFirstToken  bool `yaml:"date_first_token"`
	DropMissingDate bool `yaml:"drop_missing_date"`

	StateColumn string  `yaml:"state_column"`
	KeyKind     KeyKind `yaml:"key_kind"`

	// CountryColumn and Country filter rows by exact, case-sensitive match.
	// An empty CountryColumn disables the filter.
	CountryColumn string `yaml:"country_column"`
	Country       string `yaml:"country"`
}

// UFOSource is the built-in configuration for the UFO report export, whose
// columns are positional and named "0", "1", ...
func UFOSource() SourceConfig {
	return SourceConfig{
		Name: "ufo",
		Columns: []ColumnMapping{
			{From: "0", To: "date"},
			{From: "1", To: "city"},
			{From: "2", To: "state"},
			{From: "3", To: "country"},
			{From: "8", To: "report"},
			{From: "9", To: "latitude"},
			{From: "10", To: "longitude"},
		},
		DateColumn:     "date",
		DateLayout:     "1/2/2006",
		DateFirstToken: true,
		StateColumn:    "state",
		KeyKind:        KeyAbbreviation,
		CountryColumn:  "country",
		Country:        "us",
	}
}

// BigfootSource is the built-in configuration for the Bigfoot report export.
func BigfootSource() SourceConfig {
	return SourceConfig{
		Name: "bigfoot",
		Columns: []ColumnMapping{
			{From: "county", To: "county"},
			{From: "state", To: "state"},
			{From: "latitude", To: "latitude"},
			{From: "longitude", To: "longitude"},
			{From: "date", To: "date"},
		},
		DateColumn:      "date",
		DateLayout:      "2006-1-2",
		DropMissingDate: true,
		StateColumn:     "state",
		KeyKind:         KeyName,
	}
}

// Validate checks that the configuration is internally consistent.
func (c SourceConfig) Validate() error {
	if c.Name == "" {
		return errors.New("source name is required")
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("source %s: at least one column is required", c.Name)
	}
	seen := make(map[string]bool, len(c.Columns))
	for _, m := range c.Columns {
		if m.From == "" || m.To == "" {
			return fmt.Errorf("source %s: column mappings need both from and to", c.Name)
		}
		if seen[m.To] {
			return fmt.Errorf("source %s: duplicate output column %q", c.Name, m.To)
		}
		seen[m.To] = true
	}
	if slices.Contains(DerivedColumns[1:], c.DateColumn) {
		return fmt.Errorf("source %s: date column %q collides with a derived column", c.Name, c.DateColumn)
	}
	for _, col := range []struct{ field, name string }{
		{"date_column", c.DateColumn},
		{"state_column", c.StateColumn},
	} {
		if !seen[col.name] {
			return fmt.Errorf("source %s: %s %q is not a retained column", c.Name, col.field, col.name)
		}
	}
	for name := range seen {
		if name != c.DateColumn && slices.Contains(DerivedColumns, name) {
			return fmt.Errorf("source %s: retained column %q collides with a derived column", c.Name, name)
		}
	}
	if c.CountryColumn != "" && !seen[c.CountryColumn] {
		return fmt.Errorf("source %s: country_column %q is not a retained column", c.Name, c.CountryColumn)
	}
	if c.DateLayout == "" {
		return fmt.Errorf("source %s: date_layout is required", c.Name)
	}
	if !c.KeyKind.Valid() {
		return fmt.Errorf("source %s: key_kind must be %q or %q", c.Name, KeyAbbreviation, KeyName)
	}
	return nil
}

// RetainedColumns returns the output names of the retained columns, in
// declaration order, without the date column.
func (c SourceConfig) RetainedColumns() []string {
	out := make([]string, 0, len(c.Columns))
	for _, m := range c.Columns {
		if m.To != c.DateColumn {
			out = append(out, m.To)
		}
	}
	return out
}
