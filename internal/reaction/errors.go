package reaction

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engage errors.
type ErrorCode string

const (
	// ErrCodePostNotFound indicates the target post does not exist. Terminal.
	ErrCodePostNotFound ErrorCode = "POST_NOT_FOUND"

	// ErrCodeStoreUnavailable indicates a transient storage failure.
	// The whole React call is idempotent and may be retried.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeCounterDrift indicates the cached counter disagreed with the
	// record store during a recount. Logged and corrected, never returned to users.
	ErrCodeCounterDrift ErrorCode = "COUNTER_DRIFT_DETECTED"

	// ErrCodeInvalidReaction indicates malformed input (unknown kind, empty IDs).
	ErrCodeInvalidReaction ErrorCode = "INVALID_REACTION"
)

// ErrCounterMiss is returned by counters that hold no value for a post yet
// (for example an empty Redis cache). Callers rebuild the value with a recount.
var ErrCounterMiss = errors.New("counter has no value for post")

// Error is the typed result for every engage failure.
type Error struct {
	Code    ErrorCode
	Message string
	PostID  string
	UserID  string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.PostID != "" && e.UserID != "" {
		msg = fmt.Sprintf("%s (post=%s, user=%s)", msg, e.PostID, e.UserID)
	} else if e.PostID != "" {
		msg = fmt.Sprintf("%s (post=%s)", msg, e.PostID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewPostNotFound creates the error returned by the existence gate.
func NewPostNotFound(postID string) *Error {
	return &Error{
		Code:    ErrCodePostNotFound,
		Message: "post does not exist",
		PostID:  postID,
	}
}

// NewStoreUnavailable wraps a storage failure.
func NewStoreUnavailable(postID, op string, err error) *Error {
	return &Error{
		Code:    ErrCodeStoreUnavailable,
		Message: op,
		PostID:  postID,
		Err:     err,
	}
}

// NewCounterDrift records a mismatch between cached and recomputed counts.
func NewCounterDrift(postID string, cached, actual int64) *Error {
	return &Error{
		Code:    ErrCodeCounterDrift,
		Message: fmt.Sprintf("cached count %d, record store has %d", cached, actual),
		PostID:  postID,
	}
}

// NewInvalid reports malformed input.
func NewInvalid(message string) *Error {
	return &Error{Code: ErrCodeInvalidReaction, Message: message}
}

// CodeOf returns the error code of err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsPostNotFound reports whether err is a PostNotFound error.
func IsPostNotFound(err error) bool {
	return CodeOf(err) == ErrCodePostNotFound
}

// IsStoreUnavailable reports whether err is a StoreUnavailable error.
func IsStoreUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeStoreUnavailable
}

// IsCounterDrift reports whether err is a CounterDriftDetected error.
func IsCounterDrift(err error) bool {
	return CodeOf(err) == ErrCodeCounterDrift
}

// IsInvalid reports whether err is an InvalidReaction error.
func IsInvalid(err error) bool {
	return CodeOf(err) == ErrCodeInvalidReaction
}
