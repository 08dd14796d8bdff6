// Package template renders client-facing message text with {{field}} placeholders.
package template

import (
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// Render substitutes {{field}} placeholders from data. Dotted paths reach into
// nested maps. Placeholders with no value render empty and are returned in missing.
func Render(text string, data models.EventContext) (string, []string) {
	if !strings.Contains(text, startTag) {
		return text, nil
	}

	var missing []string

	rendered := fasttemplate.ExecuteFuncString(text, startTag, endTag, func(w io.Writer, tag string) (int, error) {
		field := strings.TrimSpace(tag)

		value, ok := data.Lookup(field)
		if !ok || value == nil {
			missing = append(missing, field)

			return 0, nil
		}

		return io.WriteString(w, format(value))
	})

	return rendered, missing
}

func format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, format(item))
		}

		return strings.Join(parts, ", ")
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}

		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}
