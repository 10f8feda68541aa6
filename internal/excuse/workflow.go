// Package excuse manages the justification lifecycle for absences: a student
// submits a reason (optionally with photo evidence), a reviewer approves or
// declines it exactly once, and the decision flips the record's derived
// attendance status.
package excuse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"classattend/internal/ledger"
)

// Workflow operates on existing ledger records; it never opens or closes
// sessions.
type Workflow struct {
	records ledger.RecordStore
}

func New(records ledger.RecordStore) *Workflow {
	return &Workflow{records: records}
}

// Submit attaches a pending excuse to the record for key. A plain absence
// has no record yet, so the store creates an excuse-only one. One submission
// per record: resubmission after a decline is rejected with ErrExcuseExists
// and needs an administrator to intervene.
func (w *Workflow) Submit(ctx context.Context, key ledger.Key, reason, imageURL string, now time.Time) (ledger.Excuse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ledger.Excuse{}, fmt.Errorf("excuse reason required")
	}
	exc := ledger.Excuse{
		Reason:      reason,
		ImageURL:    imageURL,
		Status:      ledger.ExcusePending,
		SubmittedAt: now,
	}
	if err := w.records.SetExcuse(ctx, key, exc); err != nil {
		return ledger.Excuse{}, err
	}
	return exc, nil
}

// Resolve moves a pending excuse to approved or declined. The store rejects
// the call with ErrNotPending once a decision exists, so a double review is
// a visible conflict rather than a silent overwrite.
func (w *Workflow) Resolve(ctx context.Context, key ledger.Key, approve bool) (ledger.Status, error) {
	status := ledger.ExcuseDeclined
	if approve {
		status = ledger.ExcuseApproved
	}
	if err := w.records.ResolveExcuse(ctx, key, status); err != nil {
		return "", err
	}
	rec, found, err := w.records.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("reload record: %w", err)
	}
	if !found {
		return "", fmt.Errorf("record vanished after resolve: %s/%s/%s", key.ClassID, key.Date, key.IdentityID)
	}
	return ledger.StatusOf(rec), nil
}
