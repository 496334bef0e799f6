package domain

import "math/big"

// Normalize resolves the sighting density for a state and decade: the exact
// reciprocal of the stored population. It returns nil when the stored count is
// the missing-data sentinel 0. Lookup misses are returned as ErrSchemaMismatch
// rather than folded into the nil case.
func Normalize(table *PopulationTable, key string, kind KeyKind, decade int) (*big.Rat, error) {
	n, err := table.Population(key, kind, decade)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return big.NewRat(1, n), nil
}
