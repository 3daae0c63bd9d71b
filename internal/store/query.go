package store

import (
	"fmt"
	"regexp"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEq     Operator = "eq"
	OpIn     Operator = "in"
	OpIsNull Operator = "is_null"
)

// Condition restricts a query or update to rows whose column satisfies Op.
type Condition struct {
	Column string
	Op     Operator
	Value  any
	Values []any
}

// Eq matches rows where column equals value.
func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEq, Value: value}
}

// In matches rows where column equals any of values.
func In(column string, values ...any) Condition {
	return Condition{Column: column, Op: OpIn, Values: values}
}

// IsNull matches rows where column is NULL.
func IsNull(column string) Condition {
	return Condition{Column: column, Op: OpIsNull}
}

// Order sorts query results by column.
type Order struct {
	Column     string
	Descending bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Descending: true} }

// Query selects rows from a collection. Limit 0 means no limit.
type Query struct {
	Filters []Condition
	Order   []Order
	Limit   int
}

// Where builds a Query from filters.
func Where(filters ...Condition) Query {
	return Query{Filters: filters}
}

// OrderBy returns a copy of q sorted by orders.
func (q Query) OrderBy(orders ...Order) Query {
	q.Order = append(append([]Order(nil), q.Order...), orders...)
	return q
}

// Take returns a copy of q limited to n rows.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier rejects names that cannot be used verbatim as a collection or column.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// Validate checks every identifier and operator in q.
func (q Query) Validate() error {
	if err := ValidateConditions(q.Filters); err != nil {
		return err
	}
	for _, o := range q.Order {
		if err := ValidateIdentifier(o.Column); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

// ValidateConditions checks the columns and operators of filters.
func ValidateConditions(filters []Condition) error {
	for _, c := range filters {
		if err := ValidateIdentifier(c.Column); err != nil {
			return err
		}
		switch c.Op {
		case OpEq, OpIsNull:
		case OpIn:
			if len(c.Values) == 0 {
				return fmt.Errorf("empty IN list for column %q", c.Column)
			}
		default:
			return fmt.Errorf("unsupported operator %q", c.Op)
		}
	}
	return nil
}
