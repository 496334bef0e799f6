package domain

// RawTable is a header-addressed table of untyped cells, as read from a CSV
// file or extracted from an HTML page. Rows may be ragged; missing trailing
// cells read as empty.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// ColumnIndex returns the position of the named column, or -1.
func (t RawTable) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, col), or "" when the row is short.
func (t RawTable) Cell(row, col int) string {
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}
