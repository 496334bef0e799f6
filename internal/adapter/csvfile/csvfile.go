// Package csvfile reads raw source CSVs and writes the population artifact and
// cleaned sighting outputs.
package csvfile

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// ReadTable reads a CSV file whose first record is the header. Rows may be
// ragged and quotes are parsed leniently, since report text in the sighting
// exports is free-form.
func ReadTable(path string) (domain.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := DecodeTable(bufio.NewReader(f))
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// DecodeTable parses CSV from r. The first record is the header.
func DecodeTable(r io.Reader) (domain.RawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.RawTable{}, errors.New("csv has no header row")
	}
	if err != nil {
		return domain.RawTable{}, err
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := domain.RawTable{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawTable{}, err
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// writeFile writes through a temporary file in the destination directory and
// renames it into place, so a failed run never leaves a truncated output.
func writeFile(path string, encode func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = encode(bw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
