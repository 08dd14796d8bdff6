package enrollment

import "errors"

var (
	// ErrWorkflowNotActive rejects enrollment into a workflow that is not active.
	ErrWorkflowNotActive = errors.New("workflow is not active")

	// ErrInvalidTransition rejects a status change the enrollment state machine forbids.
	ErrInvalidTransition = errors.New("invalid enrollment transition")

	// ErrClientRequired rejects an enrollment request without a client.
	ErrClientRequired = errors.New("client id is required")
)
