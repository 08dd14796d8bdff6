package models

// Operator compares a context field against a condition value.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpContains           Operator = "contains"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"
	OpDateBefore         Operator = "date_before"
	OpDateAfter          Operator = "date_after"
	OpDaysAgo            Operator = "days_ago"
	OpHasTag             Operator = "has_tag"
	OpNotHasTag          Operator = "not_has_tag"
)

// Match combines the members of a condition set.
type Match string

const (
	MatchAll Match = "all"
	MatchAny Match = "any"
)

// Condition is a single declarative test against an event context field.
type Condition struct {
	Field    string   `json:"field"           validate:"required"`
	Operator Operator `json:"operator"        validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// ConditionSet groups conditions and nested sets. Members are combined with AND
// unless Match is "any"; nesting makes precedence explicit.
type ConditionSet struct {
	Match      Match          `json:"match,omitempty"      validate:"omitempty,oneof=all any"`
	Conditions []Condition    `json:"conditions,omitempty" validate:"dive"`
	Groups     []ConditionSet `json:"groups,omitempty"     validate:"dive"`
}

// IsEmpty reports whether the set has no members.
func (s ConditionSet) IsEmpty() bool {
	return len(s.Conditions) == 0 && len(s.Groups) == 0
}

// All builds an AND set from conditions.
func All(conditions ...Condition) ConditionSet {
	return ConditionSet{Match: MatchAll, Conditions: conditions}
}

// Any builds an OR set from conditions.
func Any(conditions ...Condition) ConditionSet {
	return ConditionSet{Match: MatchAny, Conditions: conditions}
}
