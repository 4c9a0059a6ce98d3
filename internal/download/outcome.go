package download

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork reports request, connect or body stream failures.
	ErrNetwork = errors.New("network error")
	// ErrIO reports failures creating or writing the destination file.
	ErrIO = errors.New("io error")
	// ErrPartialWrite reports a transfer that ended before all bytes were
	// written.
	ErrPartialWrite = errors.New("partial write")
	// ErrCancelled is returned by Handle.Wait for cancelled requests.
	ErrCancelled = errors.New("download cancelled")
	// ErrStopped is returned by Enqueue once the service has been stopped.
	ErrStopped = errors.New("download service stopped")
	// ErrInvalidURL rejects URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid download url")
)

// State is the tag of an Outcome.
type State string

const (
	StateInProgress     State = "in_progress"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
	StateCannotComplete State = "cannot_complete"
)

// Terminal reports whether no further transitions follow this state.
func (s State) Terminal() bool {
	return s != StateInProgress && s != ""
}

// Outcome is the latest published state of a download request.
type Outcome struct {
	State   State  `json:"state"`
	Percent int    `json:"percent"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

func InProgress(percent int) Outcome {
	return Outcome{State: StateInProgress, Percent: percent}
}

func Completed(path string) Outcome {
	return Outcome{State: StateCompleted, Percent: 100, Path: path}
}

func Failed(err error) Outcome {
	return Outcome{State: StateFailed, Message: err.Error(), Err: err}
}

func Cancelled() Outcome {
	return Outcome{State: StateCancelled, Message: ErrCancelled.Error()}
}

func CannotComplete(reason string) Outcome {
	return Outcome{State: StateCannotComplete, Message: reason}
}

func (o Outcome) String() string {
	switch o.State {
	case StateInProgress:
		return fmt.Sprintf("%d%%", o.Percent)
	case StateCompleted:
		return "completed: " + o.Path
	case StateFailed, StateCannotComplete:
		return string(o.State) + ": " + o.Message
	default:
		return string(o.State)
	}
}

// CannotCompleteError is returned by Handle.Wait when the remote refused the
// request, for example because credentials or permissions are missing.
type CannotCompleteError struct {
	Reason string
}

func (e *CannotCompleteError) Error() string {
	return "cannot complete download: " + e.Reason
}

// result converts a terminal outcome into the error Wait reports.
func (o Outcome) result() error {
	switch o.State {
	case StateFailed:
		if o.Err != nil {
			return o.Err
		}
		return errors.New(o.Message)
	case StateCancelled:
		return ErrCancelled
	case StateCannotComplete:
		return &CannotCompleteError{Reason: o.Message}
	default:
		return nil
	}
}
