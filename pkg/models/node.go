package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// BlockKind is the tag of a workflow graph node.
type BlockKind string

const (
	BlockKindTrigger     BlockKind = "trigger"
	BlockKindAction      BlockKind = "action"
	BlockKindDelay       BlockKind = "delay"
	BlockKindConditional BlockKind = "conditional"
)

// ActionKind is the side effect performed by an action block.
type ActionKind string

const (
	ActionSendSMS   ActionKind = "send_sms"
	ActionSendEmail ActionKind = "send_email"
	ActionAddTag    ActionKind = "add_tag"
)

// DelayUnit is the unit of a delay block's duration.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
	DelayUnitWeeks   DelayUnit = "weeks"
)

// Output ports.
const (
	PortOut   = "out"
	PortTrue  = "true"
	PortFalse = "false"
)

var (
	ErrUnknownBlockKind  = errors.New("unknown block kind")
	ErrUnknownActionKind = errors.New("unknown action kind")
	ErrMissingPayload    = errors.New("block payload does not match its kind")
	ErrDelayTooLong      = errors.New("delay exceeds the longest supported wait")
)

// Block is one node of a workflow graph. Exactly one payload matching Kind is set;
// trigger blocks carry none.
type Block struct {
	ID          string        `validate:"required"`
	Kind        BlockKind     `validate:"required,oneof=trigger action delay conditional"`
	Name        string
	Action      *ActionConfig
	Delay       *DelayConfig
	Conditional *ConditionSet
}

// ActionConfig is the closed set of per-action configurations.
type ActionConfig struct {
	Kind  ActionKind
	SMS   *SendSMSConfig
	Email *SendEmailConfig
	Tag   *AddTagConfig
}

type SendSMSConfig struct {
	Message string `json:"message" validate:"required"`
}

type SendEmailConfig struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body"    validate:"required"`
}

type AddTagConfig struct {
	Tag string `json:"tag" validate:"required"`
}

// DelayConfig holds a delay block's wait.
type DelayConfig struct {
	Duration int       `json:"duration" validate:"min=1"`
	Unit     DelayUnit `json:"unit"     validate:"required,oneof=minutes hours days weeks"`
}

// Wait converts the configured duration to a time.Duration. It is zero for
// unknown units and for durations that do not fit in a time.Duration.
func (d DelayConfig) Wait() time.Duration {
	unit := d.Unit.Length()
	if unit == 0 || d.Duration > int(math.MaxInt64/unit) {
		return 0
	}

	return time.Duration(d.Duration) * unit
}

// Length is the duration of one unit, or zero for unknown units.
func (u DelayUnit) Length() time.Duration {
	switch u {
	case DelayUnitMinutes:
		return time.Minute
	case DelayUnitHours:
		return time.Hour
	case DelayUnitDays:
		return 24 * time.Hour
	case DelayUnitWeeks:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Label names the step in execution logs: the action kind for actions, the block kind otherwise.
func (b *Block) Label() string {
	if b.Kind == BlockKindAction && b.Action != nil {
		return string(b.Action.Kind)
	}

	return string(b.Kind)
}

// Check verifies the payload matches the block kind.
func (b *Block) Check() error {
	switch b.Kind {
	case BlockKindTrigger:
		return nil
	case BlockKindDelay:
		if b.Delay == nil {
			return fmt.Errorf("block %s: %w", b.ID, ErrMissingPayload)
		}

		if unit := b.Delay.Unit.Length(); unit > 0 && b.Delay.Duration > int(math.MaxInt64/unit) {
			return fmt.Errorf("block %s: %w", b.ID, ErrDelayTooLong)
		}

		if b.Delay.Wait() <= 0 {
			return fmt.Errorf("block %s: delay must be positive", b.ID)
		}

		return nil
	case BlockKindConditional:
		if b.Conditional == nil {
			return fmt.Errorf("block %s: %w", b.ID, ErrMissingPayload)
		}

		return nil
	case BlockKindAction:
		return b.checkAction()
	default:
		return fmt.Errorf("block %s: %w %q", b.ID, ErrUnknownBlockKind, b.Kind)
	}
}

func (b *Block) checkAction() error {
	if b.Action == nil {
		return fmt.Errorf("block %s: %w", b.ID, ErrMissingPayload)
	}

	var ok bool

	switch b.Action.Kind {
	case ActionSendSMS:
		ok = b.Action.SMS != nil
	case ActionSendEmail:
		ok = b.Action.Email != nil
	case ActionAddTag:
		ok = b.Action.Tag != nil
	default:
		return fmt.Errorf("block %s: %w %q", b.ID, ErrUnknownActionKind, b.Action.Kind)
	}

	if !ok {
		return fmt.Errorf("block %s: %w", b.ID, ErrMissingPayload)
	}

	return nil
}

type blockJSON struct {
	ID     string          `json:"id"`
	Type   BlockKind       `json:"type"`
	Name   string          `json:"name,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

type actionHeader struct {
	Action ActionKind `json:"action"`
}

// MarshalJSON encodes the block in its {id, type, config} wire form.
func (b *Block) MarshalJSON() ([]byte, error) {
	var (
		config any
		err    error
	)

	switch b.Kind {
	case BlockKindDelay:
		config = b.Delay
	case BlockKindConditional:
		config = b.Conditional
	case BlockKindAction:
		config, err = b.actionWire()
		if err != nil {
			return nil, err
		}
	}

	out := blockJSON{ID: b.ID, Type: b.Kind, Name: b.Name}

	if config != nil {
		out.Config, err = json.Marshal(config)
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}

func (b *Block) actionWire() (map[string]any, error) {
	if b.Action == nil {
		return nil, fmt.Errorf("block %s: %w", b.ID, ErrMissingPayload)
	}

	var payload any

	switch b.Action.Kind {
	case ActionSendSMS:
		payload = b.Action.SMS
	case ActionSendEmail:
		payload = b.Action.Email
	case ActionAddTag:
		payload = b.Action.Tag
	default:
		return nil, fmt.Errorf("block %s: %w %q", b.ID, ErrUnknownActionKind, b.Action.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	wire := map[string]any{}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	wire["action"] = b.Action.Kind

	return wire, nil
}

// UnmarshalJSON decodes the wire form, validating the raw config against the
// kind's JSON schema before decoding it into the typed payload.
func (b *Block) UnmarshalJSON(data []byte) error {
	var in blockJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*b = Block{ID: in.ID, Kind: in.Type, Name: in.Name}

	switch in.Type {
	case BlockKindTrigger:
		return nil
	case BlockKindDelay:
		if err := ValidateBlockConfig(in.Type, "", in.Config); err != nil {
			return fmt.Errorf("block %s: %w", in.ID, err)
		}

		b.Delay = &DelayConfig{}

		return json.Unmarshal(in.Config, b.Delay)
	case BlockKindConditional:
		if err := ValidateBlockConfig(in.Type, "", in.Config); err != nil {
			return fmt.Errorf("block %s: %w", in.ID, err)
		}

		b.Conditional = &ConditionSet{}

		return json.Unmarshal(in.Config, b.Conditional)
	case BlockKindAction:
		return b.unmarshalAction(in.Config)
	default:
		return fmt.Errorf("block %s: %w %q", in.ID, ErrUnknownBlockKind, in.Type)
	}
}

func (b *Block) unmarshalAction(config json.RawMessage) error {
	var header actionHeader
	if len(config) > 0 {
		if err := json.Unmarshal(config, &header); err != nil {
			return fmt.Errorf("block %s: %w", b.ID, err)
		}
	}

	if err := ValidateBlockConfig(BlockKindAction, header.Action, config); err != nil {
		return fmt.Errorf("block %s: %w", b.ID, err)
	}

	b.Action = &ActionConfig{Kind: header.Action}

	switch header.Action {
	case ActionSendSMS:
		b.Action.SMS = &SendSMSConfig{}

		return json.Unmarshal(config, b.Action.SMS)
	case ActionSendEmail:
		b.Action.Email = &SendEmailConfig{}

		return json.Unmarshal(config, b.Action.Email)
	case ActionAddTag:
		b.Action.Tag = &AddTagConfig{}

		return json.Unmarshal(config, b.Action.Tag)
	default:
		return fmt.Errorf("block %s: %w %q", b.ID, ErrUnknownActionKind, header.Action)
	}
}
