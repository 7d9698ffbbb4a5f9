package fhir

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// SearchParamType selects how a search parameter becomes a SQL predicate.
type SearchParamType int

const (
	SearchParamToken     SearchParamType = iota // exact match on a scalar column
	SearchParamDate                             // exact calendar date
	SearchParamDateTime                         // exact instant, not a range
	SearchParamReference                        // "Type/id" or bare id, exact match on the id column
	SearchParamContains                         // JSONB containment on a structured column
)

// CapabilityType is the FHIR search parameter type advertised for t.
func (t SearchParamType) CapabilityType() string {
	switch t {
	case SearchParamDate, SearchParamDateTime:
		return "date"
	case SearchParamReference:
		return "reference"
	default:
		return "token"
	}
}

// SearchParamConfig maps a query parameter to its column and predicate.
type SearchParamConfig struct {
	Type   SearchParamType
	Column string
	// Target is the referenced resource type for SearchParamReference.
	Target string
	// Pattern builds the JSONB shape a row must contain for SearchParamContains.
	Pattern func(value string) interface{}
	// CapabilityType overrides the advertised type, e.g. "string" for names.
	CapabilityType string
}

// SearchQuery builds SQL WHERE clauses with positional arguments.
type SearchQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery creates a new SearchQuery for the given table and columns.
func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{
		table: table,
		cols:  cols,
		idx:   1,
	}
}

// Add appends a raw WHERE clause fragment (without leading "AND") whose
// placeholders start at the next free index.
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddEq adds an exact equality predicate.
func (q *SearchQuery) AddEq(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// AddContains adds a JSONB containment predicate: the row matches when column
// contains the shape of pattern. This is structural, never a substring test.
func (q *SearchQuery) AddContains(column string, pattern interface{}) {
	q.Add(fmt.Sprintf("%s @> $%d::jsonb", column, q.idx), string(MarshalRaw(pattern)))
}

// ApplyParam applies a single search parameter. Malformed date values are
// reported as validation errors.
func (q *SearchQuery) ApplyParam(name string, config SearchParamConfig, value string) error {
	switch config.Type {
	case SearchParamToken:
		q.AddEq(config.Column, value)
	case SearchParamDate:
		d, err := ParseDate(value)
		if err != nil {
			return Invalid(name, "%s must be a date (YYYY-MM-DD), got %q", name, value)
		}
		q.AddEq(config.Column, d)
	case SearchParamDateTime:
		t, err := ParseDateTime(value)
		if err != nil {
			return Invalid(name, "%s must be a dateTime, got %q", name, value)
		}
		q.AddEq(config.Column, t)
	case SearchParamReference:
		q.AddEq(config.Column, StripReference(config.Target, value))
	case SearchParamContains:
		q.AddContains(config.Column, config.Pattern(value))
	default:
		return fmt.Errorf("search parameter %s has unsupported type %d", name, config.Type)
	}
	return nil
}

// ApplyParams applies every parameter in params that has a config, in name
// order so the generated SQL is stable. Only the first value of a repeated
// parameter is used; unknown parameters are ignored.
func (q *SearchQuery) ApplyParams(params url.Values, configs map[string]SearchParamConfig) error {
	names := make([]string, 0, len(params))
	for name := range params {
		if _, ok := configs[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		value := strings.TrimSpace(params.Get(name))
		if value == "" {
			continue
		}
		if err := q.ApplyParam(name, configs[name], value); err != nil {
			return err
		}
	}
	return nil
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// CountSQL returns the count query SQL.
func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *SearchQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query (search args + limit + offset).
func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// CapabilityParams lists configs as CapabilityStatement search parameters.
// Aliases sharing a column and type are advertised once, under the first
// name in alphabetical order unless one of them is listed in preferred.
func CapabilityParams(configs map[string]SearchParamConfig, preferred ...string) []SearchParam {
	prefer := make(map[string]bool, len(preferred))
	for _, p := range preferred {
		prefer[p] = true
	}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if prefer[names[i]] != prefer[names[j]] {
			return prefer[names[i]]
		}
		return names[i] < names[j]
	})

	seen := make(map[string]bool)
	var out []SearchParam
	for _, name := range names {
		cfg := configs[name]
		key := fmt.Sprintf("%s|%d", cfg.Column, cfg.Type)
		if cfg.Pattern != nil {
			key += "|" + name
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		typ := cfg.CapabilityType
		if typ == "" {
			typ = cfg.Type.CapabilityType()
		}
		out = append(out, SearchParam{Name: name, Type: typ})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SplitToken splits a "system|code" token value. ok is false when no
// system is given; "|code" yields the bare code.
func SplitToken(v string) (system, code string, ok bool) {
	system, code, found := strings.Cut(v, "|")
	switch {
	case !found:
		return "", v, false
	case system == "":
		return "", code, false
	case code == "":
		return "", system, false
	}
	return system, code, true
}
