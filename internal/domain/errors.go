package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch marks input that does not fit the fixed state enumeration
	// or the population table's key scheme. It always aborts the run.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrRowParse marks a malformed value on a single sighting row.
	ErrRowParse = errors.New("row parse error")

	// ErrUpstreamFetch marks a failed retrieval of the population source document.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
)

// RowError locates a row-scoped failure within a source file. Row is the
// 1-based data row number, not counting the header.
type RowError struct {
	Source string
	Row    int
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Source, e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
