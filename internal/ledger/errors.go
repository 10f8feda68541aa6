package ledger

import (
	"errors"
	"fmt"
	"time"

	"classattend/internal/schedule"
)

// Rejections are logical conflicts, not system faults. Callers branch with
// errors.Is; anything that does not unwrap to one of these sentinels is a
// collaborator fault and the attempt must be treated as failed outright.
var (
	ErrNoScheduleMatch      = errors.New("no schedule window matches")
	ErrAlreadyOpenElsewhere = errors.New("open session exists in another class")
	ErrAlreadyExists        = errors.New("attendance record already exists")
	ErrNoOpenSession        = errors.New("no open session")
	ErrTooEarly             = errors.New("time-out before session end")
	ErrTooLate              = errors.New("time-out past grace period")
	ErrAlreadyClosed        = errors.New("session already closed")
	ErrNotPending           = errors.New("excuse is not pending")
	ErrExcuseExists         = errors.New("excuse already submitted")
)

// WindowError is a scheduling rejection carrying the window bounds so the
// caller can tell the person at the kiosk exactly which interval applied.
type WindowError struct {
	Err    error // ErrNoScheduleMatch, ErrTooEarly or ErrTooLate
	Window schedule.Window
	At     time.Time
}

func (e *WindowError) Error() string {
	if e.Window == (schedule.Window{}) {
		return fmt.Sprintf("%v at %s", e.Err, e.At.Format("Mon 15:04"))
	}
	return fmt.Sprintf("%v: window %s %s-%s, attempted %s",
		e.Err, e.Window.Day, e.Window.Start, e.Window.End, e.At.Format("Mon 15:04"))
}

func (e *WindowError) Unwrap() error { return e.Err }

// ConflictError is a state rejection that names the record (and for
// cross-class conflicts, the class holding the open session).
type ConflictError struct {
	Err         error
	Key         Key
	OpenClassID string
}

func (e *ConflictError) Error() string {
	if e.OpenClassID != "" {
		return fmt.Sprintf("%v: identity %s open in class %s on %s",
			e.Err, e.Key.IdentityID, e.OpenClassID, e.Key.Date)
	}
	return fmt.Sprintf("%v: %s/%s/%s", e.Err, e.Key.ClassID, e.Key.Date, e.Key.IdentityID)
}

func (e *ConflictError) Unwrap() error { return e.Err }
