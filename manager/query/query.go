package query

import (
	"dataset_manager/manager/schema"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFilter = errors.New("invalid filter value")

// Query is a statement over one dataset table. Values are bound through Args
// as $1..$n, identifiers are interpolated only after registry validation.
type Query struct {
	Text string
	Args []any
}

// Filter is one search term. Filters are applied in slice order.
type Filter struct {
	Field string
	Value string
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}

func selectClause(dataset string, fetchAll bool) string {
	if fetchAll {
		return fmt.Sprintf("SELECT * FROM %v", quote(dataset))
	}
	return fmt.Sprintf("SELECT *, count(*) OVER() AS %v FROM %v", quote(schema.TotalCountAlias), quote(dataset))
}

func pageClause(fetchAll bool, offset, limit int) string {
	if fetchAll {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

func currentClause() string {
	return fmt.Sprintf("%v = 1", quote(schema.IsCurrentColumn))
}

// BuildListQuery selects a page of rows ordered by the first column. Unless
// fetchAll is set, every row carries the total row count under _total_count.
func BuildListQuery(dataset string, offset, limit int, fetchAll, currentOnly bool) Query {
	text := selectClause(dataset, fetchAll)
	if currentOnly {
		text += " WHERE " + currentClause()
	}
	text += " ORDER BY 1" + pageClause(fetchAll, offset, limit)
	return Query{Text: text, Args: []any{}}
}

// whereClauses turns filters into ANDed predicates. Filters on undeclared
// fields, with empty values, or on datatypes other than VARCHAR and INTEGER
// are skipped.
func whereClauses(filters []Filter, fields []schema.Field, versioned bool) ([]string, []any, error) {
	declared := make(map[string]schema.Datatype, len(fields))
	for _, f := range fields {
		declared[f.Name] = f.Datatype
	}

	clauses := []string{}
	args := []any{}

	for _, filter := range filters {
		datatype, ok := declared[filter.Field]
		if !ok || filter.Value == "" {
			continue
		}

		switch datatype {
		case schema.Varchar:
			args = append(args, "%"+filter.Value+"%")
			clauses = append(clauses, fmt.Sprintf("LOWER(%v) LIKE LOWER($%d)", quote(filter.Field), len(args)))
		case schema.Integer:
			value, err := strconv.ParseInt(strings.TrimSpace(filter.Value), 10, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: field '%v' expects an integer, got '%v'", ErrInvalidFilter, filter.Field, filter.Value)
			}
			args = append(args, value)
			clauses = append(clauses, fmt.Sprintf("%v = $%d", quote(filter.Field), len(args)))
		}
	}

	if versioned {
		clauses = append(clauses, currentClause())
	}

	return clauses, args, nil
}

func BuildSearchQuery(dataset string, filters []Filter, fields []schema.Field, fetchAll bool, offset, limit int, versioned bool) (Query, error) {
	clauses, args, err := whereClauses(filters, fields, versioned)
	if err != nil {
		return Query{}, err
	}

	text := selectClause(dataset, fetchAll)
	if len(clauses) > 0 {
		text += " WHERE " + strings.Join(clauses, " AND ")
	}
	text += " ORDER BY 1" + pageClause(fetchAll, offset, limit)

	return Query{Text: text, Args: args}, nil
}

// BuildCountQuery counts the rows a search over the same filters would match.
// It backs pagination when the requested page is past the last row.
func BuildCountQuery(dataset string, filters []Filter, fields []schema.Field, versioned bool) (Query, error) {
	clauses, args, err := whereClauses(filters, fields, versioned)
	if err != nil {
		return Query{}, err
	}

	text := fmt.Sprintf("SELECT count(*) FROM %v", quote(dataset))
	if len(clauses) > 0 {
		text += " WHERE " + strings.Join(clauses, " AND ")
	}

	return Query{Text: text, Args: args}, nil
}

// BuildHistoryQuery selects every revision of one logical record, oldest first.
func BuildHistoryQuery(dataset string, versionId int64) Query {
	return Query{
		Text: fmt.Sprintf(
			"SELECT * FROM %v WHERE %v = $1 ORDER BY %v",
			quote(dataset), quote(schema.VersionIdColumn), quote(schema.VersionColumn),
		),
		Args: []any{versionId},
	}
}
