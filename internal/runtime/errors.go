package runtime

import "errors"

var (
	// ErrSkillExists is returned when registering a name twice.
	ErrSkillExists = errors.New("skill already registered")
	// ErrSkillNotFound is returned by Resolve for unknown names.
	ErrSkillNotFound = errors.New("skill not found")
	// ErrMissingToolCallID is returned when a streamed tool call never
	// received an id. Tool results cannot reference such a call.
	ErrMissingToolCallID = errors.New("tool call has no id")
)

// ErrAbandoned marks an exchange whose caller went away. No further events
// are delivered for it.
var ErrAbandoned = errors.New("exchange abandoned")
