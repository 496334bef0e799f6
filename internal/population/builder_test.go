package population

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

func newTestBuilder(t *testing.T, exclude int) *Builder {
	t.Helper()
	b, err := NewBuilder(Options{ExcludeTrailing: exclude}, slog.Default())
	require.NoError(t, err)
	return b
}

func TestBuild_MergesAndStripsCitations(t *testing.T) {
	tables := []domain.RawTable{
		{
			Header: []string{"Name", "Admitted", "1950", "1960[3]"},
			Rows: [][]string{
				{"California", "", "10,586,223", "15,717,204"},
				{"Guam[a]", "", "59,498", "67,044"},
				{"Wyoming", "", "290,529", "330,066"},
			},
		},
		{
			Header: []string{"Name", "1970", "1980"},
			Rows: [][]string{
				{"Wyoming", "332,416", "469,557"},
				{"California", "19,953,134[7]", "23,667,902"},
			},
		},
		{
			Header: []string{"Name", "Rank"},
			Rows:   [][]string{{"California", "1"}},
		},
	}

	table, err := newTestBuilder(t, 1).Build(tables)
	require.NoError(t, err)

	assert.Equal(t, []int{1950, 1960, 1970, 1980}, table.Decades())

	// Only the right table's rows survive, in its order.
	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, domain.StateRecord{Name: "Wyoming", Abbreviation: "WY"}, rows[0].State)
	assert.Equal(t, domain.StateRecord{Name: "California", Abbreviation: "CA"}, rows[1].State)

	want := map[int]int64{1950: 10586223, 1960: 15717204, 1970: 19953134, 1980: 23667902}
	if diff := cmp.Diff(want, rows[1].Counts); diff != "" {
		t.Errorf("California counts mismatch (-want +got):\n%s", diff)
	}

	n, err := table.Population("wy", domain.KeyAbbreviation, 1970)
	require.NoError(t, err)
	assert.Equal(t, int64(332416), n)

	_, err = table.Population("GU", domain.KeyAbbreviation, 1950)
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestBuild_SingleTable(t *testing.T) {
	tables := []domain.RawTable{{
		Header: []string{"Name", "1790", "1800"},
		Rows: [][]string{
			{"Virginia", "691,737", "807,557"},
			{"District of Columbia", "—", "8,144"},
		},
	}}

	table, err := newTestBuilder(t, 4).Build(tables)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	n, err := table.Population("DC", domain.KeyAbbreviation, 1790)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuild_SharedColumnPrefersRightValue(t *testing.T) {
	tables := []domain.RawTable{
		{
			Header: []string{"Name", "1950", "1960"},
			Rows:   [][]string{{"Ohio", "7,946,627", "1"}},
		},
		{
			Header: []string{"Name", "1960", "1970"},
			Rows: [][]string{
				{"Ohio", "9,706,397", ""},
				{"Texas", "9,579,677", "11,196,730"},
			},
		},
	}

	table, err := newTestBuilder(t, 0).Build(tables)
	require.NoError(t, err)

	for decade, want := range map[int]int64{1950: 7946627, 1960: 9706397, 1970: 0} {
		n, err := table.Population("Ohio", domain.KeyName, decade)
		require.NoError(t, err)
		assert.Equal(t, want, n, "decade %d", decade)
	}
}

func TestBuild_OmitsNonPopulationColumns(t *testing.T) {
	tables := []domain.RawTable{{
		Header: []string{"Name", "Capital", "2000"},
		Rows:   [][]string{{"Texas", "Austin", "20,851,820"}},
	}}

	table, err := newTestBuilder(t, 0).Build(tables)
	require.NoError(t, err)
	assert.Equal(t, []int{2000}, table.Decades())
}

func TestBuild_EmptyTablesPropagate(t *testing.T) {
	tables := []domain.RawTable{
		{Header: []string{"Name", "1950"}, Rows: [][]string{{"Ohio", "7,946,627"}}},
		{Header: []string{"Name", "1960"}},
	}

	table, err := newTestBuilder(t, 0).Build(tables)
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		tables []domain.RawTable
		schema bool
	}{
		{
			name:   "no tables",
			tables: nil,
		},
		{
			name: "unknown state name",
			tables: []domain.RawTable{{
				Header: []string{"Name", "1950"},
				Rows:   [][]string{{"Dakota Territory", "1"}},
			}},
			schema: true,
		},
		{
			name: "missing key column",
			tables: []domain.RawTable{{
				Header: []string{"State", "1950"},
				Rows:   [][]string{{"Ohio", "1"}},
			}},
			schema: true,
		},
		{
			name: "year that is not a decade",
			tables: []domain.RawTable{{
				Header: []string{"Name", "1955"},
				Rows:   [][]string{{"Ohio", "1"}},
			}},
			schema: true,
		},
		{
			name: "unparsable count",
			tables: []domain.RawTable{{
				Header: []string{"Name", "1950"},
				Rows:   [][]string{{"Ohio", "about eight million"}},
			}},
			schema: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestBuilder(t, 0).Build(tt.tables)
			require.Error(t, err)
			if tt.schema {
				assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
			}
		})
	}
}

func TestNewBuilder(t *testing.T) {
	b, err := NewBuilder(Options{}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "Name", b.opts.KeyColumn)

	_, err = NewBuilder(Options{ExcludeTrailing: -1}, slog.Default())
	require.Error(t, err)
}

func TestMergedCount(t *testing.T) {
	assert.Equal(t, 3, mergedCount(7, 4))
	assert.Equal(t, 1, mergedCount(4, 4))
	assert.Equal(t, 1, mergedCount(2, 4))
	assert.Equal(t, 2, mergedCount(2, 0))
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		cell    string
		want    int64
		wantErr bool
	}{
		{"39,538,223", 39538223, false},
		{"576851", 576851, false},
		{" 1,000 ", 1000, false},
		{"", 0, false},
		{"—", 0, false},
		{"–", 0, false},
		{"-", 0, false},
		{"N/A", 0, false},
		{"n/a", 0, false},
		{"12.5", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			got, err := ParseCount(tt.cell)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripCell(t *testing.T) {
	assert.Equal(t, "1,234", stripCell("1,234[5]"))
	assert.Equal(t, "Guam", stripCell("Guam[note 2][b]"))
	assert.Equal(t, "1960", stripCell(" 1960[3] "))
}
