package conditions

import (
	"strings"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

// Canonical appointment categories.
const (
	CategoryMorpheus8    = "morpheus8"
	CategoryToxins       = "toxins"
	CategoryFiller       = "filler"
	CategoryConsultation = "consultation"
	CategoryOther        = "other"
)

// CategoryRule maps a canonical category to the label fragments that select it.
type CategoryRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// DefaultCategoryRules are checked in order; the first matching rule wins.
var DefaultCategoryRules = []CategoryRule{
	{Category: CategoryMorpheus8, Keywords: []string{"morpheus"}},
	{Category: CategoryToxins, Keywords: []string{"botox", "toxin", "dysport", "xeomin", "jeuveau", "daxxify"}},
	{Category: CategoryFiller, Keywords: []string{"filler", "juvederm", "restylane", "radiesse", "sculptra"}},
	{Category: CategoryConsultation, Keywords: []string{"consult"}},
}

// AppointmentNormalizer turns free-form appointment labels into canonical categories.
type AppointmentNormalizer struct {
	rules []CategoryRule
}

// NewAppointmentNormalizer uses rules, or DefaultCategoryRules when none are given.
func NewAppointmentNormalizer(rules []CategoryRule) *AppointmentNormalizer {
	if len(rules) == 0 {
		rules = DefaultCategoryRules
	}

	return &AppointmentNormalizer{rules: rules}
}

// Normalize returns the category of a raw label by case-insensitive substring match.
func (n *AppointmentNormalizer) Normalize(label string) string {
	lower := strings.ToLower(label)
	if strings.TrimSpace(lower) == "" {
		return ""
	}

	for _, rule := range n.rules {
		for _, keyword := range rule.Keywords {
			if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
				return rule.Category
			}
		}
	}

	return CategoryOther
}

// Enrich returns a copy of ctx with appointment_category derived from
// appointment_type. Contexts without an appointment type are returned as is.
func (n *AppointmentNormalizer) Enrich(ctx models.EventContext) models.EventContext {
	raw, ok := ctx.Lookup(models.FieldAppointmentType)
	if !ok {
		return ctx
	}

	label, ok := raw.(string)
	if !ok {
		return ctx
	}

	category := n.Normalize(label)
	if category == "" {
		return ctx
	}

	out := make(models.EventContext, len(ctx)+1)
	for k, v := range ctx {
		out[k] = v
	}

	out[models.FieldAppointmentCategory] = category

	return out
}
