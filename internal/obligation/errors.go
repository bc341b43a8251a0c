// Typed failure results for the engine's public contract. Validation
// failures carry a stable code, a human-readable reason, and where useful
// a remediation hint. They are returned, never panicked; panics are
// reserved for internal invariant violations.
package obligation

import "fmt"

// Code identifies a class of operation failure.
type Code uint8

const (
	CodeQueueFull Code = iota
	CodePositionOccupied
	CodePositionEmpty
	CodeInvalidPosition
	CodeInsufficientTokens
	CodeObligationNotFound
	CodeWrongLocation
	CodeAlreadyExpired
	CodeBackwardDisplacement
	CodeDuplicateMeeting
	CodeWrongTime
)

var codeNames = [...]string{
	"queue_full",
	"position_occupied",
	"position_empty",
	"invalid_position",
	"insufficient_tokens",
	"obligation_not_found",
	"wrong_location",
	"already_expired",
	"backward_displacement_rejected",
	"duplicate_meeting",
	"wrong_time",
}

// String returns the code's stable name.
func (c Code) String() string {
	if int(c) >= len(codeNames) {
		return "unknown"
	}
	return codeNames[c]
}

// OpError is a failed operation result.
type OpError struct {
	Code   Code
	Reason string
	Hint   string
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Reason, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// IsCode reports whether err is an *OpError with the given code.
func IsCode(err error, c Code) bool {
	oe, ok := err.(*OpError)
	return ok && oe.Code == c
}

func errQueueFull(capacity int) *OpError {
	return &OpError{
		Code:   CodeQueueFull,
		Reason: fmt.Sprintf("all %d queue slots are occupied", capacity),
		Hint:   "deliver or skip an obligation to free a slot",
	}
}

func errInvalidPosition(pos, capacity int) *OpError {
	return &OpError{
		Code:   CodeInvalidPosition,
		Reason: fmt.Sprintf("position %d is outside the queue [1,%d]", pos, capacity),
	}
}

func errPositionEmpty(pos int) *OpError {
	return &OpError{
		Code:   CodePositionEmpty,
		Reason: fmt.Sprintf("no obligation at position %d", pos),
	}
}

func errPositionOccupied(pos int) *OpError {
	return &OpError{
		Code:   CodePositionOccupied,
		Reason: fmt.Sprintf("position %d is already occupied", pos),
	}
}

func errInsufficientTokens(conn fmt.Stringer, need, have int) *OpError {
	return &OpError{
		Code:   CodeInsufficientTokens,
		Reason: fmt.Sprintf("need %d %s tokens, have %d", need, conn, have),
		Hint:   fmt.Sprintf("earn more %s tokens", conn),
	}
}

func errObligationNotFound(id string) *OpError {
	return &OpError{
		Code:   CodeObligationNotFound,
		Reason: fmt.Sprintf("obligation %s is not in the queue", id),
	}
}
