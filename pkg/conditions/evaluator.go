// Package conditions evaluates declarative workflow conditions against event contexts.
package conditions

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

const day = 24 * time.Hour

// Evaluator applies condition sets to event contexts. It never fails: any
// missing field, type mismatch or panic counts as "not met".
type Evaluator struct {
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewEvaluator creates an evaluator reading the current time from clock.
func NewEvaluator(clock clockwork.Clock, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		clock:  clock,
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate reports whether ctx satisfies set. An empty set always matches.
func (e *Evaluator) Evaluate(set models.ConditionSet, ctx models.EventContext) bool {
	if set.IsEmpty() {
		return true
	}

	results := make([]bool, 0, len(set.Conditions)+len(set.Groups))

	for _, condition := range set.Conditions {
		results = append(results, e.evaluateCondition(condition, ctx))
	}

	for _, group := range set.Groups {
		results = append(results, e.Evaluate(group, ctx))
	}

	if set.Match == models.MatchAny {
		for _, ok := range results {
			if ok {
				return true
			}
		}

		return false
	}

	for _, ok := range results {
		if !ok {
			return false
		}
	}

	return true
}

func (e *Evaluator) evaluateCondition(condition models.Condition, ctx models.EventContext) (met bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Condition evaluation panicked, treating as not met",
				"field", condition.Field,
				"operator", condition.Operator,
				"panic", fmt.Sprint(r))

			met = false
		}
	}()

	value, present := ctx.Lookup(condition.Field)
	if present && value == nil {
		present = false
	}

	switch condition.Operator {
	case models.OpIsEmpty:
		return !present || isEmpty(value)
	case models.OpIsNotEmpty:
		return present && !isEmpty(value)
	}

	if !present {
		return false
	}

	switch condition.Operator {
	case models.OpEquals:
		return equal(value, condition.Value)
	case models.OpNotEquals:
		return !equal(value, condition.Value)
	case models.OpContains:
		return contains(value, condition.Value)
	case models.OpGreaterThan:
		return compareNumbers(value, condition.Value, func(a, b float64) bool { return a > b })
	case models.OpLessThan:
		return compareNumbers(value, condition.Value, func(a, b float64) bool { return a < b })
	case models.OpGreaterThanOrEqual:
		return compareNumbers(value, condition.Value, func(a, b float64) bool { return a >= b })
	case models.OpLessThanOrEqual:
		return compareNumbers(value, condition.Value, func(a, b float64) bool { return a <= b })
	case models.OpDateBefore:
		return compareDates(value, condition.Value, func(a, b time.Time) bool { return a.Before(b) })
	case models.OpDateAfter:
		return compareDates(value, condition.Value, func(a, b time.Time) bool { return a.After(b) })
	case models.OpDaysAgo:
		return e.daysAgo(value, condition.Value)
	case models.OpHasTag:
		return hasTag(value, condition.Value)
	case models.OpNotHasTag:
		return !hasTag(value, condition.Value)
	default:
		e.logger.Debug("Unknown condition operator", "operator", condition.Operator, "field", condition.Field)

		return false
	}
}

// daysAgo matches when at least N whole days have passed since the field's date.
func (e *Evaluator) daysAgo(value, expected any) bool {
	at, ok := toTime(value)
	if !ok {
		return false
	}

	days, ok := toFloat(expected)
	if !ok {
		return false
	}

	elapsed := e.clock.Now().Sub(at)
	if elapsed < 0 {
		return false
	}

	return float64(elapsed/day) >= days
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	default:
		return false
	}
}

func equal(actual, expected any) bool {
	if a, ok := toFloat(actual); ok {
		if b, ok := toFloat(expected); ok {
			return a == b
		}
	}

	if a, ok := actual.(bool); ok {
		if b, ok := toBool(expected); ok {
			return a == b
		}
	}

	return strings.EqualFold(toString(actual), toString(expected))
}

func contains(actual, expected any) bool {
	if items, ok := toSlice(actual); ok {
		for _, item := range items {
			if equal(item, expected) {
				return true
			}
		}

		return false
	}

	needle := strings.ToLower(toString(expected))
	if needle == "" {
		return false
	}

	return strings.Contains(strings.ToLower(toString(actual)), needle)
}

func compareNumbers(actual, expected any, cmp func(a, b float64) bool) bool {
	a, ok := toFloat(actual)
	if !ok {
		return false
	}

	b, ok := toFloat(expected)
	if !ok {
		return false
	}

	return cmp(a, b)
}

func compareDates(actual, expected any, cmp func(a, b time.Time) bool) bool {
	a, ok := toTime(actual)
	if !ok {
		return false
	}

	b, ok := toTime(expected)
	if !ok {
		return false
	}

	return cmp(a, b)
}

func hasTag(actual, tag any) bool {
	want := strings.TrimSpace(toString(tag))
	if want == "" {
		return false
	}

	for _, candidate := range tagsOf(actual) {
		if strings.EqualFold(candidate, want) {
			return true
		}
	}

	return false
}

// tagsOf accepts a list of tags or a comma separated string.
func tagsOf(value any) []string {
	if items, ok := toSlice(value); ok {
		tags := make([]string, 0, len(items))
		for _, item := range items {
			tags = append(tags, strings.TrimSpace(toString(item)))
		}

		return tags
	}

	s, ok := value.(string)
	if !ok {
		return nil
	}

	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts
}
