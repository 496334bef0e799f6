// Package wikipedia fetches the historical population page and extracts its
// data tables.
package wikipedia

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// DefaultURL is the page listing US state populations by census decade.
const DefaultURL = "https://en.wikipedia.org/wiki/List_of_U.S._states_and_territories_by_historical_population"

// tableSelector picks the data tables on the page.
const tableSelector = "table.wikitable"

const userAgent = "sighting-density-etl/1.0 (+https://github.com/couchcryptid/sighting-density-etl)"

// Client retrieves raw population tables. It implements pipeline.PopulationSource.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the page at url.
func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchTables downloads the page and returns its wikitable tables in document
// order. Transport failures, non-2xx responses, and pages without tables are
// reported as domain.ErrUpstreamFetch.
func (c *Client) FetchTables(ctx context.Context) ([]domain.RawTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamFetch, resp.StatusCode, body)
	}

	tables, err := ParseTables(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("population page fetched", "url", c.url, "tables", len(tables))
	return tables, nil
}

// ParseTables extracts every wikitable from an HTML document. The first row of
// each table is its header; header and data cells are both read as text. A
// cell spanning several columns is repeated across them, and a cell spanning
// several rows is repeated in the same column of the rows below.
func ParseTables(r io.Reader) ([]domain.RawTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", domain.ErrUpstreamFetch, err)
	}

	var tables []domain.RawTable
	doc.Find(tableSelector).Each(func(_ int, table *goquery.Selection) {
		var t domain.RawTable
		carried := make(map[int]*spannedCell)
		table.Find("tr").Each(func(i int, tr *goquery.Selection) {
			// Skip rows of tables nested inside this one.
			if tr.ParentsFiltered("table").First().Get(0) != table.Get(0) {
				return
			}
			row := rowCells(tr, carried)
			if t.Header == nil {
				t.Header = row
				return
			}
			t.Rows = append(t.Rows, row)
		})
		tables = append(tables, t)
	})

	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no %s tables found", domain.ErrUpstreamFetch, tableSelector)
	}
	return tables, nil
}

// maxSpan caps colspan and rowspan values.
const maxSpan = 1000

// spannedCell is a rowspan cell still owed to the rows below it.
type spannedCell struct {
	text string
	rows int
}

// rowCells reads one row. carried maps column positions to rowspan cells from
// earlier rows; it is updated in place.
func rowCells(tr *goquery.Selection, carried map[int]*spannedCell) []string {
	var cells []string
	fill := func() {
		for {
			sc, ok := carried[len(cells)]
			if !ok {
				return
			}
			cells = append(cells, sc.text)
			if sc.rows--; sc.rows == 0 {
				delete(carried, len(cells)-1)
			}
		}
	}

	tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
		fill()
		text := cellText(cell)
		rowspan := spanAttr(cell, "rowspan")
		for range spanAttr(cell, "colspan") {
			if rowspan > 1 {
				carried[len(cells)] = &spannedCell{text: text, rows: rowspan - 1}
			}
			cells = append(cells, text)
		}
	})
	fill()
	return cells
}

func spanAttr(cell *goquery.Selection, name string) int {
	v, ok := cell.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxSpan)
}

// cellText returns the cell's visible text in NFC form with runs of whitespace,
// including non-breaking spaces, collapsed.
func cellText(cell *goquery.Selection) string {
	return strings.Join(strings.Fields(norm.NFC.String(cell.Text())), " ")
}
