// Command validate checks a finished run's artifacts: the population CSV and
// the cleaned sighting outputs. It verifies decade bucketing, density values
// against the population table, the UFO country filter, and, when the raw
// inputs are given, that re-cleaning them reproduces the outputs byte for byte.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -population state_pop_decade.csv \
//	  -ufo-out ufo_mod.csv -ufo-in ufo.csv \
//	  -bigfoot-out bigfoot_mod.csv -bigfoot-in bigfoot.csv
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/sighting-density-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/sighting-density-etl/internal/config"
	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

// maxErrors caps the detail kept per phase; large outputs can fail on every row.
const maxErrors = 50

func (p *phase) errorf(format string, args ...any) {
	if len(p.errors) < maxErrors {
		p.errors = append(p.errors, fmt.Sprintf(format, args...))
	}
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// output names one cleaned file and, optionally, the raw input it came from.
type output struct {
	source domain.SourceConfig
	out    string
	in     string
}

func main() {
	popPath := flag.String("population", "state_pop_decade.csv", "population artifact CSV")
	ufoOut := flag.String("ufo-out", "", "cleaned UFO CSV")
	ufoIn := flag.String("ufo-in", "", "raw UFO CSV (enables the idempotence check)")
	bigfootOut := flag.String("bigfoot-out", "", "cleaned Bigfoot CSV")
	bigfootIn := flag.String("bigfoot-in", "", "raw Bigfoot CSV (enables the idempotence check)")
	sourcesFile := flag.String("sources", "", "optional YAML source definitions")
	flag.Parse()

	if *ufoOut == "" && *bigfootOut == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg := &config.Config{SourcesFile: *sourcesFile}
	sources, err := cfg.Sources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	var outputs []output
	if *ufoOut != "" {
		outputs = append(outputs, output{source: sources[config.StepUFO], out: *ufoOut, in: *ufoIn})
	}
	if *bigfootOut != "" {
		outputs = append(outputs, output{source: sources[config.StepBigfoot], out: *bigfootOut, in: *bigfootIn})
	}

	os.Exit(run(*popPath, outputs))
}

func run(popPath string, outputs []output) int {
	fmt.Println("=== Sighting Density Validation ===")
	fmt.Println()

	table, err := csvfile.NewPopulationFile(popPath).LoadPopulation(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load population artifact: %v\n", err)
		return 1
	}

	phases := []*phase{validatePopulation(table)}
	rows := 0
	for _, o := range outputs {
		cleaned, err := csvfile.ReadTable(o.out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s output: %v\n", o.source.Name, err)
			return 1
		}
		rows += len(cleaned.Rows)
		phases = append(phases, validateOutput(o.source, table, cleaned))
		if o.in != "" {
			phases = append(phases, validateIdempotence(o, table))
		}
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d population rows, %d cleaned sighting rows\n", table.Len(), rows)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validatePopulation(table *domain.PopulationTable) *phase {
	p := &phase{name: "Population artifact"}
	for _, d := range table.Decades() {
		if d%10 != 0 {
			p.errorf("decade %d is not a multiple of 10", d)
		}
	}
	for _, r := range table.Rows() {
		back, err := domain.StateByAbbreviation(r.State.Abbreviation)
		if err != nil || back.Name != r.State.Name {
			p.errorf("%s does not round-trip through %s", r.State.Name, r.State.Abbreviation)
		}
	}
	return p
}

func validateOutput(src domain.SourceConfig, table *domain.PopulationTable, cleaned domain.RawTable) *phase {
	p := &phase{name: fmt.Sprintf("Cleaned %s output", src.Name)}

	want := domain.SightingTable{Columns: src.RetainedColumns()}.Header()
	if !slices.Equal(cleaned.Header, want) {
		p.errorf("header %v, want %v", cleaned.Header, want)
		return p
	}

	col := func(name string) int { return cleaned.ColumnIndex(name) }
	for i := range cleaned.Rows {
		line := i + 2
		get := func(name string) string { return cleaned.Cell(i, col(name)) }

		if src.CountryColumn != "" && get(src.CountryColumn) != src.Country {
			p.errorf("line %d: %s %q survived the filter", line, src.CountryColumn, get(src.CountryColumn))
		}

		year, errY := strconv.Atoi(get("year"))
		month, errM := strconv.Atoi(get("month"))
		day, errD := strconv.Atoi(get("day"))
		decade, errDec := strconv.Atoi(get("decade"))
		if errY != nil || errM != nil || errD != nil || errDec != nil {
			p.errorf("line %d: non-integer date parts", line)
			continue
		}
		if decade != year-year%10 {
			p.errorf("line %d: decade %d for year %d", line, decade, year)
		}
		date, err := time.Parse(domain.DateOutputLayout, get("date"))
		if err != nil || date.Year() != year || int(date.Month()) != month || date.Day() != day {
			p.errorf("line %d: date %q disagrees with %d-%d-%d", line, get("date"), year, month, day)
		}

		density, err := domain.Normalize(table, get(src.StateColumn), src.KeyKind, decade)
		if err != nil {
			p.errorf("line %d: %v", line, err)
			continue
		}
		if got, want := get("norm_population"), domain.FormatNormPopulation(density); got != want {
			p.errorf("line %d: norm_population %q, want %q", line, got, want)
		}
	}
	return p
}

func validateIdempotence(o output, table *domain.PopulationTable) *phase {
	p := &phase{name: fmt.Sprintf("Re-clean %s is byte-identical", o.source.Name)}

	raw, err := csvfile.ReadTable(o.in)
	if err != nil {
		p.errorf("read raw input: %v", err)
		return p
	}
	cleaner, err := domain.NewSightingCleaner(o.source, table, domain.PolicyDrop)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	cleaned, err := cleaner.Clean(raw)
	if err != nil {
		p.errorf("clean: %v", err)
		return p
	}

	var buf bytes.Buffer
	if err := csvfile.EncodeSightings(&buf, cleaned); err != nil {
		p.errorf("encode: %v", err)
		return p
	}
	existing, err := os.ReadFile(o.out)
	if err != nil {
		p.errorf("read output: %v", err)
		return p
	}
	if !bytes.Equal(buf.Bytes(), existing) {
		p.errorf("re-cleaned output (%d bytes) differs from %s (%d bytes)", buf.Len(), o.out, len(existing))
	}
	return p
}
