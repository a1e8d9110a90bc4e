// Package repository defines the store-agnostic query options shared by every
// persistence adapter.
package repository

import "fmt"

// Option applies a modification to a Query.
type Option func(Query) Query

// Query holds conditions, ordering, and pagination for store lookups.
type Query struct {
	conditions []Condition
	orders     []Order
	limit      int
	offset     int
	params     map[string]any
}

// Build creates a Query from a set of options.
func Build(options ...Option) Query {
	q := Query{}
	for _, opt := range options {
		q = opt(q)
	}
	return q
}

// Conditions returns the query conditions.
func (q Query) Conditions() []Condition {
	result := make([]Condition, len(q.conditions))
	copy(result, q.conditions)
	return result
}

// Orders returns the query orderings.
func (q Query) Orders() []Order {
	result := make([]Order, len(q.orders))
	copy(result, q.orders)
	return result
}

// LimitValue returns the limit (0 means no limit).
func (q Query) LimitValue() int {
	return q.limit
}

// OffsetValue returns the offset.
func (q Query) OffsetValue() int {
	return q.offset
}

// Operator is the comparison a Condition applies.
type Operator int

// Operator values.
const (
	OpEqual Operator = iota
	OpIn
	OpNotIn
	OpIsNull
	OpIsNotNull
	OpGreaterThan
	OpPrefix
)

// Condition represents a single query condition.
type Condition struct {
	field string
	value any
	op    Operator
}

// Field returns the condition field name.
func (c Condition) Field() string { return c.field }

// Value returns the condition value. Nil for the null checks.
func (c Condition) Value() any { return c.value }

// Operator returns the comparison operator.
func (c Condition) Operator() Operator { return c.op }

// In returns true if this is an IN condition (value is a slice).
func (c Condition) In() bool { return c.op == OpIn }

// String returns a readable representation.
func (c Condition) String() string {
	switch c.op {
	case OpIn:
		return fmt.Sprintf("%s IN %v", c.field, c.value)
	case OpNotIn:
		return fmt.Sprintf("%s NOT IN %v", c.field, c.value)
	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", c.field)
	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", c.field)
	case OpGreaterThan:
		return fmt.Sprintf("%s > %v", c.field, c.value)
	case OpPrefix:
		return fmt.Sprintf("%s LIKE %v%%", c.field, c.value)
	default:
		return fmt.Sprintf("%s = %v", c.field, c.value)
	}
}

// Order represents one sort column and direction.
type Order struct {
	field     string
	ascending bool
}

// Field returns the order field name.
func (o Order) Field() string { return o.field }

// Ascending returns true for ASC, false for DESC.
func (o Order) Ascending() bool { return o.ascending }

// --- Generic options reused across all stores ---

func withOperator(field string, op Operator, value any) Option {
	return func(q Query) Query {
		q.conditions = append(q.conditions, Condition{field: field, value: value, op: op})
		return q
	}
}

// WithCondition adds a field = value equality condition.
// Domain packages use this to define their own typed options.
func WithCondition(field string, value any) Option {
	return withOperator(field, OpEqual, value)
}

// WithConditionIn adds a field IN (values) condition.
func WithConditionIn(field string, values any) Option {
	return withOperator(field, OpIn, values)
}

// WithConditionNotIn adds a field NOT IN (values) condition.
func WithConditionNotIn(field string, values any) Option {
	return withOperator(field, OpNotIn, values)
}

// WithNull adds a field IS NULL condition.
func WithNull(field string) Option {
	return withOperator(field, OpIsNull, nil)
}

// WithNotNull adds a field IS NOT NULL condition.
func WithNotNull(field string) Option {
	return withOperator(field, OpIsNotNull, nil)
}

// WithGreaterThan adds a field > value condition.
func WithGreaterThan(field string, value any) Option {
	return withOperator(field, OpGreaterThan, value)
}

// WithPrefix adds a field LIKE 'value%' condition. LIKE wildcards inside
// value are not escaped, so callers should confirm matches themselves.
func WithPrefix(field string, value string) Option {
	return withOperator(field, OpPrefix, value)
}

// WithID filters by the "id" column.
func WithID(id int64) Option {
	return WithCondition("id", id)
}

// WithIDIn filters by the "id" column using IN.
func WithIDIn(ids []int64) Option {
	return WithConditionIn("id", ids)
}

// WithLimit sets the maximum number of results.
func WithLimit(n int) Option {
	return func(q Query) Query {
		q.limit = n
		return q
	}
}

// WithOffset sets the result offset.
func WithOffset(n int) Option {
	return func(q Query) Query {
		q.offset = n
		return q
	}
}

// WithOrderAsc adds ascending ordering on a field.
func WithOrderAsc(field string) Option {
	return func(q Query) Query {
		q.orders = append(q.orders, Order{field: field, ascending: true})
		return q
	}
}

// WithOrderDesc adds descending ordering on a field.
func WithOrderDesc(field string) Option {
	return func(q Query) Query {
		q.orders = append(q.orders, Order{field: field, ascending: false})
		return q
	}
}

// WithParam stores an arbitrary key-value pair on the query.
// Domain packages define typed option builders on top of this.
func WithParam(key string, value any) Option {
	return func(q Query) Query {
		if q.params == nil {
			q.params = make(map[string]any)
		}
		q.params[key] = value
		return q
	}
}

// Param retrieves a parameter by key.
func (q Query) Param(key string) (any, bool) {
	if q.params == nil {
		return nil, false
	}
	v, ok := q.params[key]
	return v, ok
}
