package batch

import "fmt"

// NoOpReason tags a successful outcome whose target was already in the requested state.
// The empty reason means the operation changed something.
type NoOpReason string

// Known no-op reasons. Operations may define their own.
const (
	NoOpNone            NoOpReason = ""
	NoOpAlreadyActive   NoOpReason = "already_active"
	NoOpAlreadyInactive NoOpReason = "already_inactive"
)

// Outcome is the per-identifier result of a batch run.
// Error is set if and only if Success is false.
type Outcome struct {
	ID      string     `json:"id"`
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Error   string     `json:"error,omitempty"`
	NoOp    NoOpReason `json:"no_op,omitempty"`

	// Payload carries operation-specific data; callers type-assert it based on the operation run.
	Payload any `json:"payload,omitempty"`
}

// Skipped reports whether the outcome succeeded without changing the target.
func (o Outcome) Skipped() bool {
	return o.Success && o.NoOp != NoOpNone
}

// Succeeded builds a successful outcome.
func Succeeded(id, message string, payload any) Outcome {
	return Outcome{ID: id, Success: true, Message: message, Payload: payload}
}

// AlreadyInState builds a successful no-op outcome.
func AlreadyInState(id string, reason NoOpReason, message string, payload any) Outcome {
	return Outcome{ID: id, Success: true, Message: message, NoOp: reason, Payload: payload}
}

// Failed builds a failed outcome for an operation that settled with an error.
func Failed(id, label string, err error) Outcome {
	return Outcome{
		ID:      id,
		Success: false,
		Message: fmt.Sprintf("Failed to %s '%s': %s", label, id, err.Error()),
		Error:   err.Error(),
	}
}

// normalize fills in fields an operation may leave unset.
func (o Outcome) normalize(id string) Outcome {
	if o.ID == "" {
		o.ID = id
	}
	if !o.Success && o.Error == "" {
		o.Error = o.Message
		if o.Error == "" {
			o.Error = "operation reported failure"
		}
	}
	if o.Success {
		o.Error = ""
	}
	return o
}
