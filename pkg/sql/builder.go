package sql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
)

// DefaultOrderColumn is used for ordering when a limit is given without an
// explicit order column.
const DefaultOrderColumn = "Date"

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a table or column name.
func ValidIdentifier(name string) bool {
	return identifierRegex.MatchString(name)
}

type operatorKind int

const (
	opCompare operatorKind = iota
	opList
	opIs
)

var operators = map[string]operatorKind{
	"=":        opCompare,
	"!=":       opCompare,
	"<>":       opCompare,
	"<":        opCompare,
	">":        opCompare,
	"<=":       opCompare,
	">=":       opCompare,
	"LIKE":     opCompare,
	"NOT LIKE": opCompare,
	"IN":       opList,
	"NOT IN":   opList,
	"IS":       opIs,
	"IS NOT":   opIs,
}

// Literals allowed after IS / IS NOT. They are inlined, so nothing else is accepted.
var isLiterals = map[string]bool{
	"NULL":    true,
	"TRUE":    true,
	"FALSE":   true,
	"UNKNOWN": true,
}

// Filter is one parsed "<column> <operator> <value...>" expression.
type Filter struct {
	Column   string
	Operator string
	Value    string
}

// ParseFilter splits a filter expression into column, operator and value.
// Two-word operators (NOT LIKE, NOT IN, IS NOT) are recognised when at least
// four tokens are present.
func ParseFilter(expr string) (Filter, error) {
	tokens := strings.Fields(expr)
	if len(tokens) < 3 {
		return Filter{}, apperrors.Invalid(apperrors.ErrInvalidFilter, expr,
			"expected '<column> <operator> <value>'")
	}

	f := Filter{Column: tokens[0]}
	valueStart := 2
	if len(tokens) >= 4 {
		pair := strings.ToUpper(tokens[1] + " " + tokens[2])
		if _, ok := operators[pair]; ok {
			f.Operator = pair
			valueStart = 3
		}
	}
	if f.Operator == "" {
		f.Operator = strings.ToUpper(tokens[1])
	}
	f.Value = strings.Join(tokens[valueStart:], " ")

	if !ValidIdentifier(f.Column) {
		return Filter{}, apperrors.Invalid(apperrors.ErrInvalidFilter, expr,
			fmt.Sprintf("invalid column name %q", f.Column))
	}
	if _, ok := operators[f.Operator]; !ok {
		return Filter{}, apperrors.Invalid(apperrors.ErrInvalidFilter, expr,
			fmt.Sprintf("operator %q is not allowed", f.Operator))
	}
	return f, nil
}

type condition struct {
	column   string
	operator string
	kind     operatorKind
	params   []string // names in emission order; empty for IS
	literal  string   // IS / IS NOT only
}

// Query is a parameterized SELECT. It keeps its structured form so each
// driver can render native placeholders and quoting.
type Query struct {
	table      string
	conditions []condition
	params     map[string]any
	order      []string // parameter names in emission order
	limit      int
	orderBy    string
}

// BuildQuery turns filter expressions and an optional limit into a
// parameterized query against table. A nil limit selects every row. All
// validation happens before any text is produced.
func BuildQuery(table string, filters []string, limit *int, orderColumn string) (*Query, error) {
	if !ValidIdentifier(table) {
		return nil, apperrors.Invalid(apperrors.ErrInvalidIdentifier, table, "invalid table name")
	}
	if orderColumn == "" {
		orderColumn = DefaultOrderColumn
	}
	if !ValidIdentifier(orderColumn) {
		return nil, apperrors.Invalid(apperrors.ErrInvalidIdentifier, orderColumn, "invalid order column")
	}

	q := &Query{
		table:   table,
		params:  make(map[string]any),
		orderBy: orderColumn,
	}

	for _, expr := range filters {
		f, err := ParseFilter(expr)
		if err != nil {
			return nil, err
		}
		c := condition{column: f.Column, operator: f.Operator, kind: operators[f.Operator]}

		switch c.kind {
		case opCompare:
			c.params = []string{q.bind(f.Value)}
		case opList:
			for _, item := range strings.Split(f.Value, ",") {
				item = strings.TrimSpace(item)
				if item == "" {
					continue
				}
				c.params = append(c.params, q.bind(item))
			}
			if len(c.params) == 0 {
				return nil, apperrors.Invalid(apperrors.ErrInvalidFilter, expr, "empty value list")
			}
		case opIs:
			lit := strings.ToUpper(f.Value)
			if !isLiterals[lit] {
				return nil, apperrors.Invalid(apperrors.ErrInvalidFilter, expr,
					"IS accepts only NULL, TRUE, FALSE or UNKNOWN")
			}
			c.literal = lit
		}
		q.conditions = append(q.conditions, c)
	}

	if limit != nil {
		if *limit <= 0 {
			return nil, apperrors.Invalid(apperrors.ErrInvalidLimit, strconv.Itoa(*limit), "limit must be positive")
		}
		q.limit = *limit
	}

	if hits := CheckAllParameters(q.params); len(hits) > 0 {
		h := hits[0]
		return nil, &InjectionError{
			Hit: h,
			err: apperrors.Invalid(apperrors.ErrInvalidFilter, fmt.Sprint(h.ParamValue),
				fmt.Sprintf("value for %s rejected as SQL injection (fingerprint %s)", h.ParamName, h.Fingerprint)),
		}
	}
	return q, nil
}

// ParseLimit parses a user-supplied limit. Empty input means no limit.
func ParseLimit(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, apperrors.Invalid(apperrors.ErrInvalidLimit, s, "limit must be an integer")
	}
	if n <= 0 {
		return nil, apperrors.Invalid(apperrors.ErrInvalidLimit, s, "limit must be positive")
	}
	return &n, nil
}

// Limit is a convenience for building a limit pointer.
func Limit(n int) *int {
	return &n
}

func (q *Query) bind(v string) string {
	name := "param_" + strconv.Itoa(len(q.order))
	q.params[name] = v
	q.order = append(q.order, name)
	return name
}

// Table returns the queried table name.
func (q *Query) Table() string { return q.table }

// Params returns a copy of the named parameter map.
func (q *Query) Params() map[string]any {
	out := make(map[string]any, len(q.params))
	for k, v := range q.params {
		out[k] = v
	}
	return out
}

// ParamNames lists parameter names in the order they appear in the text.
func (q *Query) ParamNames() []string {
	return append([]string(nil), q.order...)
}

// Text is the canonical form with backtick-quoted identifiers and
// :param_N placeholders.
func (q *Query) Text() string {
	text, _ := q.render(
		func(s string) string { return "`" + s + "`" },
		func(name string, _ int) string { return ":" + name },
		false,
	)
	return text
}

func (q *Query) String() string { return q.Text() }

// Render produces driver-native SQL and its positional arguments.
func (q *Query) Render(d Dialect) (string, []any, error) {
	if !d.valid() {
		return "", nil, fmt.Errorf("unsupported SQL dialect %q", d)
	}
	text, args := q.render(d.QuoteIdentifier, func(_ string, pos int) string { return d.placeholder(pos) },
		d == DialectSQLServer)
	return text, args, nil
}

func (q *Query) render(quote func(string) string, mark func(name string, pos int) string, top bool) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(q.order))

	b.WriteString("SELECT ")
	if top && q.limit > 0 {
		fmt.Fprintf(&b, "TOP (%d) ", q.limit)
	}
	b.WriteString("* FROM ")
	b.WriteString(quote(q.table))

	for i, c := range q.conditions {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(quote(c.column))
		b.WriteString(" ")
		b.WriteString(c.operator)
		b.WriteString(" ")

		switch c.kind {
		case opIs:
			b.WriteString(c.literal)
		case opList:
			b.WriteString("(")
			for j, name := range c.params {
				if j > 0 {
					b.WriteString(",")
				}
				b.WriteString(mark(name, len(args)))
				args = append(args, q.params[name])
			}
			b.WriteString(")")
		default:
			name := c.params[0]
			b.WriteString(mark(name, len(args)))
			args = append(args, q.params[name])
		}
	}

	if q.limit > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(quote(q.orderBy))
		b.WriteString(" DESC")
		if !top {
			fmt.Fprintf(&b, " LIMIT %d", q.limit)
		}
	}
	return b.String(), args
}
