package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidBlockConfig is returned when a raw block config fails its JSON schema.
var ErrInvalidBlockConfig = errors.New("invalid block config")

const delaySchema = `{
	"type": "object",
	"properties": {
		"duration": {"type": "integer", "minimum": 1},
		"unit": {"type": "string", "enum": ["minutes", "hours", "days", "weeks"]}
	},
	"required": ["duration", "unit"]
}`

const conditionSetSchema = `{
	"definitions": {
		"set": {
			"type": "object",
			"properties": {
				"match": {"type": "string", "enum": ["", "all", "any"]},
				"conditions": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"field": {"type": "string", "minLength": 1},
							"operator": {"type": "string", "minLength": 1}
						},
						"required": ["field", "operator"]
					}
				},
				"groups": {"type": "array", "items": {"$ref": "#/definitions/set"}}
			}
		}
	},
	"$ref": "#/definitions/set"
}`

const sendSMSSchema = `{
	"type": "object",
	"properties": {
		"action": {"const": "send_sms"},
		"message": {"type": "string", "minLength": 1}
	},
	"required": ["action", "message"]
}`

const sendEmailSchema = `{
	"type": "object",
	"properties": {
		"action": {"const": "send_email"},
		"subject": {"type": "string", "minLength": 1},
		"body": {"type": "string", "minLength": 1}
	},
	"required": ["action", "subject", "body"]
}`

const addTagSchema = `{
	"type": "object",
	"properties": {
		"action": {"const": "add_tag"},
		"tag": {"type": "string", "minLength": 1}
	},
	"required": ["action", "tag"]
}`

var (
	schemasOnce sync.Once
	schemas     map[string]*gojsonschema.Schema
	schemasErr  error
)

func schemaKey(kind BlockKind, action ActionKind) string {
	if kind == BlockKindAction {
		return string(kind) + ":" + string(action)
	}

	return string(kind)
}

func loadSchemas() {
	sources := map[string]string{
		schemaKey(BlockKindDelay, ""):              delaySchema,
		schemaKey(BlockKindConditional, ""):        conditionSetSchema,
		schemaKey(BlockKindAction, ActionSendSMS):   sendSMSSchema,
		schemaKey(BlockKindAction, ActionSendEmail): sendEmailSchema,
		schemaKey(BlockKindAction, ActionAddTag):    addTagSchema,
	}

	schemas = make(map[string]*gojsonschema.Schema, len(sources))

	for key, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			schemasErr = fmt.Errorf("failed to compile %s schema: %w", key, err)

			return
		}

		schemas[key] = schema
	}
}

// ValidateBlockConfig checks a raw block config against the schema for its kind.
func ValidateBlockConfig(kind BlockKind, action ActionKind, config []byte) error {
	schemasOnce.Do(loadSchemas)

	if schemasErr != nil {
		return schemasErr
	}

	schema, ok := schemas[schemaKey(kind, action)]
	if !ok {
		if kind == BlockKindAction {
			return fmt.Errorf("%w %q", ErrUnknownActionKind, action)
		}

		return fmt.Errorf("%w %q", ErrUnknownBlockKind, kind)
	}

	if len(config) == 0 {
		config = []byte("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(config))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlockConfig, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidBlockConfig, strings.Join(messages, "; "))
}
