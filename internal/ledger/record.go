package ledger

import (
	"strings"
	"time"

	"classattend/internal/schedule"
)

// DateLayout is the calendar-day component of a record key.
const DateLayout = "2006-01-02"

// Class is the scheduling view of a class: identifiers plus its weekly
// windows in declaration order.
type Class struct {
	ID       string
	Subject  string
	JoinCode string
	Windows  []schedule.Window
}

// StorageIdentifier is the class component of the persisted record path:
// the join code when the class has one, otherwise the subject name with
// whitespace collapsed to underscores.
func (c Class) StorageIdentifier() string {
	if c.JoinCode != "" {
		return c.JoinCode
	}
	return strings.Join(strings.Fields(c.Subject), "_")
}

// Key addresses one attendance record: one identity in one class on one
// calendar day.
type Key struct {
	ClassID    string
	Date       string // YYYY-MM-DD
	IdentityID string
}

// KeyFor builds the record key for an instant in local wall clock.
func KeyFor(classID, identityID string, at time.Time) Key {
	return Key{ClassID: classID, Date: at.Format(DateLayout), IdentityID: identityID}
}

// Path renders the persisted three-level record address,
// attendance/{classIdentifier}/{date}/{identityId}. The layout is load-bearing:
// existing deployments address records by it.
func (k Key) Path(classIdentifier string) string {
	return "attendance/" + classIdentifier + "/" + k.Date + "/" + k.IdentityID
}

// ExcuseStatus is the review state of a submitted excuse.
type ExcuseStatus string

const (
	ExcusePending  ExcuseStatus = "pending"
	ExcuseApproved ExcuseStatus = "approved"
	ExcuseDeclined ExcuseStatus = "declined"
)

// Excuse is a justification attached to an absence, resolved at most once.
type Excuse struct {
	Reason      string
	ImageURL    string
	Status      ExcuseStatus
	SubmittedAt time.Time
}

// Record is the per-key attendance state. TimeIn and TimeOut are unset until
// the corresponding transition commits; records are never deleted.
type Record struct {
	Key     Key
	TimeIn  *time.Time
	TimeOut *time.Time
	Method  string
	Excuse  *Excuse
}

// SessionState is the record's position in the NONE -> TIMED_IN -> COMPLETED
// machine. NONE also covers excuse-only records that never saw a time-in.
type SessionState string

const (
	StateNone      SessionState = "NONE"
	StateTimedIn   SessionState = "TIMED_IN"
	StateCompleted SessionState = "COMPLETED"
)

// State derives the session state from the record's timestamps.
func (r Record) State() SessionState {
	switch {
	case r.TimeIn == nil:
		return StateNone
	case r.TimeOut == nil:
		return StateTimedIn
	default:
		return StateCompleted
	}
}

// Open reports whether the record is a live session (timed in, not out).
func (r Record) Open() bool {
	return r.State() == StateTimedIn
}

// Status is the derived attendance label shown to users. It is computed,
// never stored.
type Status string

const (
	StatusPresent        Status = "present"
	StatusTimeInOnly     Status = "time_in_only"
	StatusExcusedAbsence Status = "excused_absence"
	StatusPendingExcuse  Status = "pending_excuse"
	StatusAbsent         Status = "absent"
)

// StatusOf computes the derived attendance status for a record.
func StatusOf(r Record) Status {
	switch {
	case r.TimeIn != nil && r.TimeOut != nil:
		return StatusPresent
	case r.TimeIn != nil:
		return StatusTimeInOnly
	case r.Excuse != nil && r.Excuse.Status == ExcuseApproved:
		return StatusExcusedAbsence
	case r.Excuse != nil && r.Excuse.Status == ExcusePending:
		return StatusPendingExcuse
	default:
		return StatusAbsent
	}
}
