package conditions

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestEvaluator() *Evaluator {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewEvaluator(clockwork.NewFakeClockAt(testNow), logger)
}

func cond(field string, op models.Operator, value any) models.Condition {
	return models.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluator_EmptySetAlwaysMatches(t *testing.T) {
	evaluator := newTestEvaluator()

	assert.True(t, evaluator.Evaluate(models.ConditionSet{}, nil))
	assert.True(t, evaluator.Evaluate(models.ConditionSet{Match: models.MatchAny}, models.EventContext{}))
}

func TestEvaluator_Operators(t *testing.T) {
	ctx := models.EventContext{
		"first_name":       "Ada",
		"appointment_type": "Botox - Forehead",
		"visits":           4,
		"spend":            "250.50",
		"vip":              true,
		"notes":            "",
		"tags":             []any{"VIP", "returning"},
		"tag_csv":          "lashes, brows",
		"last_visit":       "2026-01-01T09:00:00Z",
		"birthday_ms":      float64(testNow.Add(-10 * 24 * time.Hour).UnixMilli()),
	}

	testCases := []struct {
		name      string
		condition models.Condition
		want      bool
	}{
		{"equals string case-insensitive", cond("first_name", models.OpEquals, "ada"), true},
		{"equals number across types", cond("visits", models.OpEquals, "4"), true},
		{"equals bool", cond("vip", models.OpEquals, "true"), true},
		{"equals mismatch", cond("first_name", models.OpEquals, "Grace"), false},
		{"not equals", cond("first_name", models.OpNotEquals, "Grace"), true},
		{"contains substring", cond("appointment_type", models.OpContains, "botox"), true},
		{"contains list member", cond("tags", models.OpContains, "returning"), true},
		{"contains empty needle", cond("first_name", models.OpContains, ""), false},
		{"greater than", cond("visits", models.OpGreaterThan, 3), true},
		{"greater than string number", cond("spend", models.OpGreaterThan, 250), true},
		{"less than", cond("visits", models.OpLessThan, 4), false},
		{"greater or equal", cond("visits", models.OpGreaterThanOrEqual, 4), true},
		{"less or equal", cond("visits", models.OpLessThanOrEqual, 4), true},
		{"greater than non numeric", cond("first_name", models.OpGreaterThan, 1), false},
		{"is empty on blank string", cond("notes", models.OpIsEmpty, nil), true},
		{"is not empty", cond("first_name", models.OpIsNotEmpty, nil), true},
		{"date before", cond("last_visit", models.OpDateBefore, "2026-02-01"), true},
		{"date after", cond("last_visit", models.OpDateAfter, "2026-02-01"), false},
		{"days ago from RFC3339", cond("last_visit", models.OpDaysAgo, 30), true},
		{"days ago from epoch millis", cond("birthday_ms", models.OpDaysAgo, 10), true},
		{"days ago not yet", cond("birthday_ms", models.OpDaysAgo, 11), false},
		{"has tag case-insensitive", cond("tags", models.OpHasTag, "vip"), true},
		{"has tag from csv", cond("tag_csv", models.OpHasTag, "brows"), true},
		{"not has tag", cond("tags", models.OpNotHasTag, "new"), true},
		{"unknown operator", cond("first_name", "sounds_like", "Ada"), false},
	}

	evaluator := newTestEvaluator()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evaluator.Evaluate(models.All(tc.condition), ctx))
		})
	}
}

func TestEvaluator_MissingFieldFailsClosed(t *testing.T) {
	evaluator := newTestEvaluator()
	ctx := models.EventContext{"first_name": "Ada", "email": nil}

	closed := []models.Operator{
		models.OpEquals, models.OpNotEquals, models.OpContains, models.OpGreaterThan,
		models.OpDateBefore, models.OpDaysAgo, models.OpHasTag, models.OpNotHasTag, models.OpIsNotEmpty,
	}

	for _, op := range closed {
		assert.False(t, evaluator.Evaluate(models.All(cond("phone", op, "x")), ctx), "missing field with %s", op)
		assert.False(t, evaluator.Evaluate(models.All(cond("email", op, "x")), ctx), "nil field with %s", op)
	}

	assert.True(t, evaluator.Evaluate(models.All(cond("phone", models.OpIsEmpty, nil)), ctx))
	assert.True(t, evaluator.Evaluate(models.All(cond("email", models.OpIsEmpty, nil)), ctx))
}

func TestEvaluator_Grouping(t *testing.T) {
	evaluator := newTestEvaluator()
	ctx := models.EventContext{"appointment_category": "filler", "tags": []string{"vip"}}

	// category = filler AND (has vip OR visits > 10)
	set := models.ConditionSet{
		Conditions: []models.Condition{cond("appointment_category", models.OpEquals, "filler")},
		Groups: []models.ConditionSet{
			models.Any(cond("tags", models.OpHasTag, "vip"), cond("visits", models.OpGreaterThan, 10)),
		},
	}
	assert.True(t, evaluator.Evaluate(set, ctx))

	ctx["appointment_category"] = "toxins"
	assert.False(t, evaluator.Evaluate(set, ctx))

	anyOf := models.Any(cond("appointment_category", models.OpEquals, "filler"), cond("tags", models.OpHasTag, "none"))
	assert.False(t, evaluator.Evaluate(anyOf, ctx))
}

type explodingStringer struct{}

func (explodingStringer) String() string { panic("boom") }

func TestEvaluator_PanicIsNotMet(t *testing.T) {
	evaluator := newTestEvaluator()
	ctx := models.EventContext{"weird": explodingStringer{}}

	assert.False(t, evaluator.Evaluate(models.All(cond("weird", models.OpEquals, "x")), ctx))
	assert.True(t, evaluator.Evaluate(models.Any(
		cond("weird", models.OpEquals, "x"),
		cond("weird", models.OpIsNotEmpty, nil),
	), ctx))
}

func TestAppointmentNormalizer(t *testing.T) {
	normalizer := NewAppointmentNormalizer(nil)

	testCases := map[string]string{
		"Morpheus8 Full Face":    CategoryMorpheus8,
		"BOTOX touch-up":         CategoryToxins,
		"Dysport":                CategoryToxins,
		"Lip Filler (Juvederm)":  CategoryFiller,
		"Initial Consultation":   CategoryConsultation,
		"Chemical peel":          CategoryOther,
		"":                       "",
	}

	for label, want := range testCases {
		assert.Equal(t, want, normalizer.Normalize(label), label)
	}
}

func TestAppointmentNormalizer_Enrich(t *testing.T) {
	normalizer := NewAppointmentNormalizer([]CategoryRule{{Category: "laser", Keywords: []string{"ipl"}}})

	in := models.EventContext{"appointment_type": "IPL Photofacial"}
	out := normalizer.Enrich(in)

	assert.Equal(t, "laser", out["appointment_category"])
	assert.NotContains(t, in, "appointment_category")

	untouched := models.EventContext{"first_name": "Ada"}
	assert.Equal(t, untouched, normalizer.Enrich(untouched))
}
