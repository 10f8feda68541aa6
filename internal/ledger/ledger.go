package ledger

import (
	"context"
	"fmt"
	"time"

	"classattend/internal/schedule"
)

// ClassRepo supplies class schedules and memberships.
type ClassRepo interface {
	GetClass(ctx context.Context, classID string) (Class, error)
	// ListClassesForIdentity returns the classes the identity belongs to in a
	// stable order; that order is the tie-break for cross-class scans.
	ListClassesForIdentity(ctx context.Context, identityID string) ([]Class, error)
	ListStudentIDs(ctx context.Context, classID string) ([]string, error)
}

// RecordStore persists attendance records. Every mutation is conditional:
// creates never overwrite and updates check the expected state, so redundant
// kiosk calls fail with a typed conflict instead of corrupting a record.
type RecordStore interface {
	Get(ctx context.Context, key Key) (Record, bool, error)
	// CreateIfAbsent writes a new record, failing with ErrAlreadyExists when
	// the key is taken. Implementations that index open sessions by
	// (identity, date) also fail with ErrAlreadyOpenElsewhere when the write
	// would produce a second open session for the day.
	CreateIfAbsent(ctx context.Context, rec Record) error
	// SetTimeOut closes an open session; ErrNoOpenSession when the record is
	// missing or never timed in, ErrAlreadyClosed when already closed.
	SetTimeOut(ctx context.Context, key Key, at time.Time) error
	// SetExcuse attaches an excuse to the record, creating an excuse-only
	// record when none exists; ErrExcuseExists when one is already attached.
	SetExcuse(ctx context.Context, key Key, excuse Excuse) error
	// ResolveExcuse moves a pending excuse to approved or declined;
	// ErrNotPending otherwise.
	ResolveExcuse(ctx context.Context, key Key, status ExcuseStatus) error
	// ListByClassDate returns the records for one class and day.
	ListByClassDate(ctx context.Context, classID, date string) ([]Record, error)
}

// Action is which transition an attempt performed.
type Action string

const (
	ActionTimeIn  Action = "time_in"
	ActionTimeOut Action = "time_out"
)

// Ledger enforces the attendance state machine and its time-window gates.
type Ledger struct {
	classes ClassRepo
	records RecordStore
	grace   time.Duration
}

// New builds a ledger. grace <= 0 falls back to the default time-out grace.
func New(classes ClassRepo, records RecordStore, grace time.Duration) *Ledger {
	if grace <= 0 {
		grace = schedule.DefaultGrace
	}
	return &Ledger{classes: classes, records: records, grace: grace}
}

// AttemptTimeIn opens a session for the identity in the class if the instant
// falls inside a scheduled window and the identity has no open session in
// any of its classes today. The cross-class scan runs before the write; it
// is best-effort under concurrency and backed up by the store's conditional
// create (see RecordStore.CreateIfAbsent).
func (l *Ledger) AttemptTimeIn(ctx context.Context, identityID, classID string, now time.Time, method string) (Record, error) {
	class, err := l.classes.GetClass(ctx, classID)
	if err != nil {
		return Record{}, fmt.Errorf("load class %s: %w", classID, err)
	}

	if _, ok := schedule.ResolveTimeIn(class.Windows, now); !ok {
		return Record{}, &WindowError{Err: ErrNoScheduleMatch, At: now}
	}

	// An existing record for this key, open or completed, is AlreadyExists;
	// the cross-class conflict is reserved for sessions in other classes.
	key := KeyFor(classID, identityID, now)
	if _, found, err := l.records.Get(ctx, key); err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	} else if found {
		return Record{}, &ConflictError{Err: ErrAlreadyExists, Key: key}
	}

	if openClass, err := l.findOpenSession(ctx, identityID, key.Date); err != nil {
		return Record{}, err
	} else if openClass != "" {
		return Record{}, &ConflictError{Err: ErrAlreadyOpenElsewhere, Key: key, OpenClassID: openClass}
	}

	in := now
	rec := Record{Key: key, TimeIn: &in, Method: method}
	if err := l.records.CreateIfAbsent(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// AttemptTimeOut closes the identity's open session in the class. Valid only
// in the interval (end, end+grace] after a window's end; at or before the
// end it is too early, past the grace too late.
func (l *Ledger) AttemptTimeOut(ctx context.Context, identityID, classID string, now time.Time) (Record, error) {
	key := KeyFor(classID, identityID, now)
	rec, found, err := l.records.Get(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	if !found || rec.TimeIn == nil {
		return Record{}, &ConflictError{Err: ErrNoOpenSession, Key: key}
	}
	if rec.TimeOut != nil {
		return Record{}, &ConflictError{Err: ErrAlreadyClosed, Key: key}
	}

	class, err := l.classes.GetClass(ctx, classID)
	if err != nil {
		return Record{}, fmt.Errorf("load class %s: %w", classID, err)
	}
	window, state, ok := schedule.ResolveTimeOut(class.Windows, now, l.grace)
	if !ok {
		if window == (schedule.Window{}) {
			return Record{}, &WindowError{Err: ErrNoScheduleMatch, At: now}
		}
		reason := ErrTooLate
		if state == schedule.BeforeStart || state == schedule.InWindow {
			reason = ErrTooEarly
		}
		return Record{}, &WindowError{Err: reason, Window: window, At: now}
	}

	if err := l.records.SetTimeOut(ctx, key, now); err != nil {
		return Record{}, err
	}
	out := now
	rec.TimeOut = &out
	return rec, nil
}

// Attempt re-derives which transition applies from the current record state:
// no record means time-in, an open record means time-out, a completed record
// is a conflict. This is the operation kiosks call repeatedly.
func (l *Ledger) Attempt(ctx context.Context, identityID, classID string, now time.Time, method string) (Record, Action, error) {
	key := KeyFor(classID, identityID, now)
	rec, found, err := l.records.Get(ctx, key)
	if err != nil {
		return Record{}, "", fmt.Errorf("load record: %w", err)
	}
	if found && rec.State() == StateCompleted {
		return Record{}, "", &ConflictError{Err: ErrAlreadyClosed, Key: key}
	}
	if found && rec.Open() {
		out, err := l.AttemptTimeOut(ctx, identityID, classID, now)
		return out, ActionTimeOut, err
	}
	in, err := l.AttemptTimeIn(ctx, identityID, classID, now, method)
	return in, ActionTimeIn, err
}

// CloseFirstOpen finds the identity's first open session today, scanning its
// classes in membership order, and attempts a time-out on it. When stale
// open sessions have piled up this resolves exactly one per call; first in
// membership order, not oldest, is the documented tie-break.
func (l *Ledger) CloseFirstOpen(ctx context.Context, identityID string, now time.Time) (Record, error) {
	date := now.Format(DateLayout)
	openClass, err := l.findOpenSession(ctx, identityID, date)
	if err != nil {
		return Record{}, err
	}
	if openClass == "" {
		return Record{}, &ConflictError{Err: ErrNoOpenSession, Key: Key{Date: date, IdentityID: identityID}}
	}
	return l.AttemptTimeOut(ctx, identityID, openClass, now)
}

// StatusFor returns the derived status for a key, Absent when no record
// exists.
func (l *Ledger) StatusFor(ctx context.Context, key Key) (Status, error) {
	rec, found, err := l.records.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load record: %w", err)
	}
	if !found {
		return StatusAbsent, nil
	}
	return StatusOf(rec), nil
}

func (l *Ledger) findOpenSession(ctx context.Context, identityID, date string) (string, error) {
	classes, err := l.classes.ListClassesForIdentity(ctx, identityID)
	if err != nil {
		return "", fmt.Errorf("list classes for %s: %w", identityID, err)
	}
	for _, c := range classes {
		rec, found, err := l.records.Get(ctx, Key{ClassID: c.ID, Date: date, IdentityID: identityID})
		if err != nil {
			return "", fmt.Errorf("scan class %s: %w", c.ID, err)
		}
		if found && rec.Open() {
			return c.ID, nil
		}
	}
	return "", nil
}
