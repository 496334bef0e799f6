package domain

import (
	"fmt"
	"strings"
)

// StateRecord is one US state, territory, or the national aggregate.
type StateRecord struct {
	Name         string
	Abbreviation string
}

// states is the closed enumeration of names the population source may use.
// It is never mutated after package initialization.
var states = []StateRecord{
	{"Alabama", "AL"},
	{"Alaska", "AK"},
	{"Arizona", "AZ"},
	{"Arkansas", "AR"},
	{"California", "CA"},
	{"Colorado", "CO"},
	{"Connecticut", "CT"},
	{"Delaware", "DE"},
	{"Florida", "FL"},
	{"Georgia", "GA"},
	{"Hawaii", "HI"},
	{"Idaho", "ID"},
	{"Illinois", "IL"},
	{"Indiana", "IN"},
	{"Iowa", "IA"},
	{"Kansas", "KS"},
	{"Kentucky", "KY"},
	{"Louisiana", "LA"},
	{"Maine", "ME"},
	{"Maryland", "MD"},
	{"Massachusetts", "MA"},
	{"Michigan", "MI"},
	{"Minnesota", "MN"},
	{"Mississippi", "MS"},
	{"Missouri", "MO"},
	{"Montana", "MT"},
	{"Nebraska", "NE"},
	{"Nevada", "NV"},
	{"New Hampshire", "NH"},
	{"New Jersey", "NJ"},
	{"New Mexico", "NM"},
	{"New York", "NY"},
	{"North Carolina", "NC"},
	{"North Dakota", "ND"},
	{"Ohio", "OH"},
	{"Oklahoma", "OK"},
	{"Oregon", "OR"},
	{"Pennsylvania", "PA"},
	{"Rhode Island", "RI"},
	{"South Carolina", "SC"},
	{"South Dakota", "SD"},
	{"Tennessee", "TN"},
	{"Texas", "TX"},
	{"Utah", "UT"},
	{"Vermont", "VT"},
	{"Virginia", "VA"},
	{"Washington", "WA"},
	{"West Virginia", "WV"},
	{"Wisconsin", "WI"},
	{"Wyoming", "WY"},
	{"District of Columbia", "DC"},
	{"American Samoa", "AS"},
	{"Guam", "GU"},
	{"Northern Mariana Islands", "MP"},
	{"Puerto Rico", "PR"},
	{"United States Minor Outlying Islands", "UM"},
	{"U.S. Virgin Islands", "VI"},
	{"United States", "US"},
}

var (
	stateByName = make(map[string]StateRecord, len(states))
	stateByAbbr = make(map[string]StateRecord, len(states))
)

func init() {
	for _, s := range states {
		if _, dup := stateByName[s.Name]; dup {
			panic("domain: duplicate state name " + s.Name)
		}
		if _, dup := stateByAbbr[s.Abbreviation]; dup {
			panic("domain: duplicate state abbreviation " + s.Abbreviation)
		}
		stateByName[s.Name] = s
		stateByAbbr[s.Abbreviation] = s
	}
}

// States returns a copy of the fixed enumeration in canonical order.
func States() []StateRecord {
	out := make([]StateRecord, len(states))
	copy(out, states)
	return out
}

// StateByName resolves a full state name. The match is exact.
func StateByName(name string) (StateRecord, error) {
	s, ok := stateByName[name]
	if !ok {
		return StateRecord{}, fmt.Errorf("%w: unknown state name %q", ErrSchemaMismatch, name)
	}
	return s, nil
}

// StateByAbbreviation resolves a two-letter code, ignoring case.
func StateByAbbreviation(abbr string) (StateRecord, error) {
	s, ok := stateByAbbr[strings.ToUpper(abbr)]
	if !ok {
		return StateRecord{}, fmt.Errorf("%w: unknown state abbreviation %q", ErrSchemaMismatch, abbr)
	}
	return s, nil
}

// AbbreviationFor returns the two-letter code for a full state name.
func AbbreviationFor(name string) (string, error) {
	s, err := StateByName(name)
	if err != nil {
		return "", err
	}
	return s.Abbreviation, nil
}
