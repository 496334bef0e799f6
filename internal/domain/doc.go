// Package domain models US sighting reports and the state population series
// used to weight them.
//
// # Population Data
//
// State populations come from the Wikipedia list of U.S. states and territories
// by historical population. The page splits the census series over several
// "wikitable" tables keyed by a Name column, each covering a span of decades,
// followed by auxiliary tables that are not part of the series.
//
//	Name        | 1960       | 1970       | ...
//	California  | 15,717,204 | 19,953,134 | ...
//
// A stored count of 0 is the missing-data sentinel (for example a territory
// before its first census), not a true zero population.
//
// # State Keys
//
// Names and two-letter codes come from a closed enumeration of 58 entries: the
// 50 states, the District of Columbia, six territories, and the aggregate
// "United States". Names outside it are rejected with [ErrSchemaMismatch].
//
// Sources disagree on how they encode the reporting state:
//
//	UFO reports:     two-letter code, usually lower case ("ca")  -> [KeyAbbreviation]
//	Bigfoot reports: full canonical name ("Washington")         -> [KeyName]
//
// # Dates and Decades
//
// UFO report dates are "M/D/YYYY HH:MM"; only the date token is used. Bigfoot
// dates are "YYYY-MM-DD" and may be empty, in which case the row is dropped.
// A decade bucket is the year rounded down to a multiple of ten: see [Decade].
//
// # Density
//
// The normalized density of a sighting is exactly 1/population for its state
// and decade, held as a [math/big.Rat] and rendered as the shortest float64
// text in outputs. See [Normalize].
package domain
