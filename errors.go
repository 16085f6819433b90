package cryptonet

import (
	"errors"
	"fmt"

	"github.com/kacy/cryptonet/engine"
)

// Kind classifies a client failure.
type Kind int

// Failure kinds.
const (
	// KindOperationFailed covers precondition failures (bad image, bad
	// config) and engine calls that reported an error.
	KindOperationFailed Kind = iota + 1

	// KindNoJSON means the engine call completed but produced no result text.
	KindNoJSON

	// KindNoSession means the operation needs an active session and there is none.
	KindNoSession
)

func (k Kind) String() string {
	switch k {
	case KindOperationFailed:
		return "operation_failed"
	case KindNoJSON:
		return "no_json"
	case KindNoSession:
		return "no_session"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors for use with errors.Is.
var (
	ErrOperationFailed = errors.New("operation failed")
	ErrNoJSON          = errors.New("engine returned no result")
	ErrNoSession       = errors.New("no active session")
	ErrSessionActive   = errors.New("session already active")
)

// Error is the single error type returned by Client operations.
//
// errors.Is matches the sentinel for Kind. A missing session is also a
// precondition failure, so KindNoSession errors match ErrOperationFailed too.
type Error struct {
	Op   engine.Op
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cryptonet: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("cryptonet: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrOperationFailed:
		return e.Kind == KindOperationFailed || e.Kind == KindNoSession
	case ErrNoJSON:
		return e.Kind == KindNoJSON
	case ErrNoSession:
		return e.Kind == KindNoSession
	}
	return false
}

func failed(op engine.Op, err error) *Error {
	return &Error{Op: op, Kind: KindOperationFailed, Err: err}
}

func noSession(op engine.Op) *Error {
	return &Error{Op: op, Kind: KindNoSession, Err: ErrNoSession}
}

func noJSON(op engine.Op) *Error {
	return &Error{Op: op, Kind: KindNoJSON, Err: ErrNoJSON}
}

// KindOf returns the Kind of err, or 0 when err is not a client error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
