package bridge

import "fmt"

const (
	// CancelledMessage is the failure message when a request is abandoned
	CancelledMessage = "cancelled"
	// TimedOutMessage is the failure message when the wait bound expires
	TimedOutMessage = "timed out"
	// unknownErrorMessage is used when a failed result carries no text
	unknownErrorMessage = "Unknown error"
)

// ToolOutcome is the result of a front-end tool invocation: either a
// structured payload or a failure message.
type ToolOutcome struct {
	Payload interface{} `json:"payload,omitempty"`
	Message string      `json:"message,omitempty"`
	IsError bool        `json:"isError"`
}

// Success wraps a payload
func Success(payload interface{}) ToolOutcome {
	return ToolOutcome{Payload: payload}
}

// Failure wraps a failure message
func Failure(message string) ToolOutcome {
	return ToolOutcome{Message: message, IsError: true}
}

// OutcomeFromSubmission converts a front-end submission into an outcome.
// A failed submission uses its result as the message when it is a string.
func OutcomeFromSubmission(result interface{}, isError bool) ToolOutcome {
	if !isError {
		return Success(result)
	}
	if msg, ok := result.(string); ok {
		return Failure(msg)
	}
	return Failure(unknownErrorMessage)
}

// Cancelled reports whether the outcome is the abandonment failure
func (o ToolOutcome) Cancelled() bool {
	return o.IsError && o.Message == CancelledMessage
}

// Err returns the outcome as an error, or nil on success
func (o ToolOutcome) Err() error {
	if !o.IsError {
		return nil
	}
	return fmt.Errorf("tool failed: %s", o.Message)
}

func (o ToolOutcome) String() string {
	if o.IsError {
		return "Failure(" + o.Message + ")"
	}
	return fmt.Sprintf("Success(%v)", o.Payload)
}
