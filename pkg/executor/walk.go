package executor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/delivery"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executionlog"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/template"
)

// step is the result of walking one tick: the row to record (nil for none)
// and the counter increment committed with the enrollment.
type step struct {
	entry    *models.ExecutionLog
	counters models.RunCounters
	result   Result
}

// walk mutates a copy of the enrollment until one block has run.
type walk struct {
	executor   *Executor
	workflow   *models.Workflow
	graph      *models.Graph
	enrollment *models.WorkflowEnrollment
	now        time.Time
	logger     *slog.Logger
}

func (w *walk) run(ctx context.Context) step {
	e := w.enrollment

	// Trigger blocks and elapsed delays are passed through without a row, so
	// the loop visits each block at most once.
	for range len(w.workflow.Blocks) + 1 {
		if e.CurrentStep == models.StepStart {
			trigger, ok := w.workflow.TriggerBlock()
			if !ok {
				return w.complete(nil)
			}

			e.CurrentStep = trigger.ID
		}

		block, ok := w.graph.Block(e.CurrentStep)
		if !ok {
			return w.missingBlock()
		}

		switch block.Kind {
		case models.BlockKindTrigger:
			if !w.advance(block, models.PortOut) {
				return w.complete(nil)
			}
		case models.BlockKindDelay:
			if e.NextExecutionAt == nil {
				return w.armDelay(block)
			}

			e.NextExecutionAt = nil

			if !w.advance(block, models.PortOut) {
				return w.complete(w.row(block, models.ExecutionExecuted, "delay elapsed"))
			}
		case models.BlockKindConditional:
			return w.conditional(block)
		case models.BlockKindAction:
			return w.action(ctx, block)
		default:
			return w.fail(w.row(block, models.ExecutionFailed, fmt.Sprintf("unknown block kind %q", block.Kind)))
		}
	}

	return w.fail(w.row(&models.Block{ID: e.CurrentStep}, models.ExecutionFailed, "graph walk did not settle"))
}

// advance moves to the block behind port and reports whether one exists.
func (w *walk) advance(block *models.Block, port string) bool {
	next, ok := w.graph.Next(block.ID, port)
	if !ok {
		return false
	}

	w.enrollment.CurrentStep = next
	w.enrollment.NextExecutionAt = nil
	w.enrollment.Attempts = 0

	return true
}

func (w *walk) armDelay(block *models.Block) step {
	wait := block.Delay.Wait()
	due := w.now.Add(wait)
	w.enrollment.NextExecutionAt = &due

	return step{
		entry:  w.row(block, models.ExecutionWaiting, fmt.Sprintf("waiting %s until %s", wait, due.Format(time.RFC3339))),
		result: ResultWaiting,
	}
}

func (w *walk) conditional(block *models.Block) step {
	port := models.PortFalse
	if w.executor.evaluator.Evaluate(*block.Conditional, models.EventContext(w.enrollment.Context)) {
		port = models.PortTrue
	}

	entry := w.row(block, models.ExecutionExecuted, "condition evaluated "+port)

	if !w.advance(block, port) {
		return w.complete(entry)
	}

	return step{entry: entry, result: ResultAdvanced}
}

func (w *walk) action(ctx context.Context, block *models.Block) step {
	clock := w.executor.clock
	started := clock.Now()

	message, err := w.perform(ctx, block.Action)
	elapsed := clock.Since(started)

	if err != nil {
		return w.actionFailed(block, err, elapsed)
	}

	entry := executionlog.Timed(w.row(block, models.ExecutionExecuted, message), elapsed)

	if !w.advance(block, models.PortOut) {
		return w.complete(entry)
	}

	return step{entry: entry, result: ResultAdvanced}
}

func (w *walk) actionFailed(block *models.Block, cause error, elapsed time.Duration) step {
	e := w.enrollment
	e.Attempts++

	maxAttempts := w.executor.retry.MaxAttempts
	w.logger.Warn("Action failed", "step", block.ID, "attempt", e.Attempts, "max_attempts", maxAttempts, "error", cause)

	if e.Attempts >= maxAttempts {
		message := fmt.Sprintf("attempt %d/%d failed, giving up: %v", e.Attempts, maxAttempts, cause)

		return w.fail(executionlog.Timed(w.row(block, models.ExecutionFailed, message), elapsed))
	}

	retryAt := w.now.Add(w.executor.retryDelay(e.Attempts))
	e.NextExecutionAt = &retryAt

	message := fmt.Sprintf("attempt %d/%d failed, retrying at %s: %v", e.Attempts, maxAttempts, retryAt.Format(time.RFC3339), cause)

	return step{
		entry:  executionlog.Timed(w.row(block, models.ExecutionFailed, message), elapsed),
		result: ResultRetrying,
	}
}

// perform runs the side effect of an action block and describes it.
func (w *walk) perform(ctx context.Context, action *models.ActionConfig) (string, error) {
	if timeout := w.executor.actionTimeout; timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	e := w.enrollment
	data := models.EventContext(e.Context)

	switch action.Kind {
	case models.ActionSendSMS:
		phone, err := recipient(data, models.FieldPhone, events.ChannelSMS)
		if err != nil {
			return "", err
		}

		receipt, err := w.executor.sender.Send(ctx, delivery.Message{
			Channel:      events.ChannelSMS,
			OrgID:        e.OrgID,
			ClientID:     e.ClientID,
			EnrollmentID: e.ID,
			Recipient:    phone,
			Body:         w.render(action.SMS.Message, data),
		})
		if err != nil {
			return "", err
		}

		return "sms sent: " + receipt.MessageID, nil
	case models.ActionSendEmail:
		address, err := recipient(data, models.FieldEmail, events.ChannelEmail)
		if err != nil {
			return "", err
		}

		receipt, err := w.executor.sender.Send(ctx, delivery.Message{
			Channel:      events.ChannelEmail,
			OrgID:        e.OrgID,
			ClientID:     e.ClientID,
			EnrollmentID: e.ID,
			Recipient:    address,
			Subject:      w.render(action.Email.Subject, data),
			Body:         w.render(action.Email.Body, data),
		})
		if err != nil {
			return "", err
		}

		return "email sent: " + receipt.MessageID, nil
	case models.ActionAddTag:
		if err := w.executor.tags.AddTag(ctx, e.OrgID, e.ClientID, action.Tag.Tag); err != nil {
			return "", err
		}

		e.Context = withTag(e.Context, action.Tag.Tag)

		return "tag added: " + action.Tag.Tag, nil
	default:
		return "", fmt.Errorf("%w %q", models.ErrUnknownActionKind, action.Kind)
	}
}

// recipient reads the channel address from the enrollment context.
func recipient(data models.EventContext, field string, channel events.Channel) (string, error) {
	v, ok := data.Lookup(field)
	if !ok {
		return "", fmt.Errorf("%w: %s field %q not set", delivery.ErrMissingRecipient, channel, field)
	}

	address, ok := v.(string)
	if !ok || strings.TrimSpace(address) == "" {
		return "", fmt.Errorf("%w: %s field %q is empty", delivery.ErrMissingRecipient, channel, field)
	}

	return strings.TrimSpace(address), nil
}

func (w *walk) render(text string, data models.EventContext) string {
	rendered, missing := template.Render(text, data)
	if len(missing) > 0 {
		w.logger.Warn("Template fields missing from enrollment context", "fields", missing)
	}

	return rendered
}

func (w *walk) missingBlock() step {
	e := w.enrollment
	entry := executionlog.Step(e, e.CurrentStep, models.LogActionMissingBlock, models.ExecutionFailed,
		fmt.Sprintf("block %q not found in workflow %s", e.CurrentStep, w.workflow.ID))

	return w.fail(entry)
}

func (w *walk) complete(entry *models.ExecutionLog) step {
	w.enrollment.Finish(models.EnrollmentCompleted, w.now)

	return step{
		entry:    entry,
		counters: models.RunCounters{Total: 1, Successful: 1},
		result:   ResultCompleted,
	}
}

func (w *walk) fail(entry *models.ExecutionLog) step {
	w.enrollment.Finish(models.EnrollmentFailed, w.now)

	return step{
		entry:    entry,
		counters: models.RunCounters{Total: 1, Failed: 1},
		result:   ResultFailed,
	}
}

func (w *walk) row(block *models.Block, status models.ExecutionStatus, message string) *models.ExecutionLog {
	return executionlog.Step(w.enrollment, block.ID, block.Label(), status, message)
}

// withTag returns ctx with tag appended to its tags list.
func withTag(ctx map[string]any, tag string) map[string]any {
	if ctx == nil {
		ctx = make(map[string]any)
	}

	var tags []string

	switch existing := ctx[models.FieldTags].(type) {
	case []string:
		tags = slices.Clone(existing)
	case []any:
		for _, v := range existing {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	if !slices.Contains(tags, tag) {
		tags = append(tags, tag)
	}

	ctx[models.FieldTags] = tags

	return ctx
}
