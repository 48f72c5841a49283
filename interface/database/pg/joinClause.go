package pg

import (
	"fmt"
	"strings"
)

func limitOffsetClause(page, limit int) string {
	switch {
	case limit <= 0:
		return ""
	case page > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, page*limit)
	default:
		return fmt.Sprintf(" LIMIT %d", limit)
	}
}

// parseLike returns the value to be used with the returned operator (=, LIKE or ILIKE).
// "*" and "?" are wildcards and the "(?i)" suffix makes the pattern case-insensitive
func parseLike(value string) (string, string) {
	operator := "LIKE"
	if strings.HasSuffix(value, "(?i)") {
		value, operator = strings.TrimSuffix(value, "(?i)"), "ILIKE"
	} else if !strings.ContainsAny(value, "*?") {
		return value, "="
	}
	value = strings.NewReplacer("_", "\\_", "%", "\\%", "*", "%", "?", "_").Replace(value)
	return value, operator
}

// joinClause accumulates conditions and their positional parameters
type joinClause struct {
	Parameters []interface{}
	clause     []string
}

// append a condition whose "%d" verbs are replaced by the positions of the parameters
func (wc *joinClause) append(clause string, parameters ...interface{}) {
	positions := make([]interface{}, len(parameters))
	for i := range parameters {
		positions[i] = len(wc.Parameters) + i + 1
	}
	wc.Parameters = append(wc.Parameters, parameters...)
	wc.clause = append(wc.clause, fmt.Sprintf(clause, positions...))
}

func (wc joinClause) WhereClause() string {
	if len(wc.clause) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(wc.clause, " AND ")
}
