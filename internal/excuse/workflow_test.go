package excuse_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"classattend/internal/excuse"
	"classattend/internal/ledger"
	"classattend/internal/memstore"
)

var testKey = ledger.Key{ClassID: "math", Date: "2024-04-01", IdentityID: "stu-1"}

func TestSubmitOnPlainAbsence(t *testing.T) {
	store := memstore.New()
	wf := excuse.New(store)
	ctx := context.Background()

	exc, err := wf.Submit(ctx, testKey, "  doctor appointment ", "https://img/note.jpg", time.Now())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if exc.Reason != "doctor appointment" {
		t.Fatalf("reason should be trimmed, got %q", exc.Reason)
	}
	if exc.Status != ledger.ExcusePending {
		t.Fatalf("expected pending, got %s", exc.Status)
	}

	rec, found, err := store.Get(ctx, testKey)
	if err != nil || !found {
		t.Fatalf("excuse-only record should exist: found=%v err=%v", found, err)
	}
	if ledger.StatusOf(rec) != ledger.StatusPendingExcuse {
		t.Fatalf("expected pending_excuse, got %s", ledger.StatusOf(rec))
	}
}

func TestSubmitRequiresReason(t *testing.T) {
	wf := excuse.New(memstore.New())
	if _, err := wf.Submit(context.Background(), testKey, "   ", "", time.Now()); err == nil {
		t.Fatal("blank reason should be rejected")
	}
}

func TestApproveFlipsStatus(t *testing.T) {
	store := memstore.New()
	wf := excuse.New(store)
	ctx := context.Background()

	if _, err := wf.Submit(ctx, testKey, "sick", "", time.Now()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	status, err := wf.Resolve(ctx, testKey, true)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if status != ledger.StatusExcusedAbsence {
		t.Fatalf("expected excused_absence, got %s", status)
	}

	_, err = wf.Resolve(ctx, testKey, false)
	if !errors.Is(err, ledger.ErrNotPending) {
		t.Fatalf("second resolve should fail NotPending, got %v", err)
	}
}

func TestDeclineLeavesAbsent(t *testing.T) {
	store := memstore.New()
	wf := excuse.New(store)
	ctx := context.Background()

	if _, err := wf.Submit(ctx, testKey, "overslept", "", time.Now()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	status, err := wf.Resolve(ctx, testKey, false)
	if err != nil {
		t.Fatalf("decline failed: %v", err)
	}
	if status != ledger.StatusAbsent {
		t.Fatalf("declined excuse should derive absent, got %s", status)
	}

	_, err = wf.Submit(ctx, testKey, "second try", "", time.Now())
	if !errors.Is(err, ledger.ErrExcuseExists) {
		t.Fatalf("resubmission should fail ExcuseExists, got %v", err)
	}
}

func TestResolveWithoutSubmission(t *testing.T) {
	wf := excuse.New(memstore.New())
	_, err := wf.Resolve(context.Background(), testKey, true)
	if !errors.Is(err, ledger.ErrNotPending) {
		t.Fatalf("expected NotPending, got %v", err)
	}
}
