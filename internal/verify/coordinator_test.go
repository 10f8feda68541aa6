package verify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"classattend/internal/enroll"
	"classattend/internal/ledger"
	"classattend/internal/match"
	"classattend/internal/memstore"
	"classattend/internal/schedule"
	"classattend/internal/verify"
)

const kioskThreshold = 0.3

// 2024-04-01 was a Monday.
func monday(hour, min int) time.Time {
	return time.Date(2024, 4, 1, hour, min, 0, 0, time.UTC)
}

func newFixture(t *testing.T) (*memstore.Store, *verify.Coordinator) {
	t.Helper()
	store := memstore.New()
	led := ledger.New(store, store, 20*time.Minute)
	coord := verify.New(store, led, kioskThreshold)

	ctx := context.Background()
	class := ledger.Class{
		ID:      "math",
		Subject: "Mathematics",
		Windows: []schedule.Window{{Day: "Monday", Start: "9:00", End: "10:00"}},
	}
	if err := store.CreateClass(ctx, class); err != nil {
		t.Fatalf("create class: %v", err)
	}
	if err := store.AddMember(ctx, "math", "stu-1"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := store.UpsertIdentity(ctx, enroll.Identity{ID: "stu-1", Name: "Ada", Role: enroll.RoleStudent}); err != nil {
		t.Fatalf("register identity: %v", err)
	}
	if err := store.SaveEmbedding(ctx, "stu-1", []float32{1, 0, 0}, monday(8, 0)); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return store, coord
}

func TestVerifyTimeIn(t *testing.T) {
	_, coord := newFixture(t)

	out, err := coord.Verify(context.Background(), "math", []float32{1, 0.1, 0}, monday(9, 30))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !out.Recognized || out.IdentityID != "stu-1" {
		t.Fatalf("expected stu-1 recognized, got %+v", out)
	}
	if out.Action != ledger.ActionTimeIn {
		t.Fatalf("expected time_in, got %s", out.Action)
	}
	if out.Record.State() != ledger.StateTimedIn {
		t.Fatalf("expected open session, got %s", out.Record.State())
	}
}

func TestVerifyUnknownFaceLeavesLedgerUntouched(t *testing.T) {
	store, coord := newFixture(t)
	ctx := context.Background()

	out, err := coord.Verify(ctx, "math", []float32{0, 1, 0}, monday(9, 30))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if out.Recognized {
		t.Fatalf("distance ~1.41 at threshold %.1f should not match", kioskThreshold)
	}
	if out.Distance <= 0 {
		t.Fatal("outcome should report the best distance for a miss")
	}

	recs, err := store.ListByClassDate(ctx, "math", "2024-04-01")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("unrecognized face must not write records, found %d", len(recs))
	}
}

func TestVerifyEmptyGallery(t *testing.T) {
	store := memstore.New()
	led := ledger.New(store, store, 20*time.Minute)
	coord := verify.New(store, led, kioskThreshold)

	_, err := coord.Verify(context.Background(), "math", []float32{1, 0, 0}, monday(9, 30))
	if !errors.Is(err, match.ErrNoEnrolled) {
		t.Fatalf("expected ErrNoEnrolled, got %v", err)
	}
}

func TestVerifyRepeatInsideWindow(t *testing.T) {
	_, coord := newFixture(t)
	ctx := context.Background()

	if _, err := coord.Verify(ctx, "math", []float32{1, 0, 0}, monday(9, 30)); err != nil {
		t.Fatalf("first verify failed: %v", err)
	}

	// The session is open, so the second scan re-derives a time-out attempt,
	// which inside the window is too early.
	out, err := coord.Verify(ctx, "math", []float32{1, 0, 0}, monday(9, 45))
	if !errors.Is(err, ledger.ErrTooEarly) {
		t.Fatalf("expected TooEarly, got %v", err)
	}
	if !out.Recognized || out.IdentityID != "stu-1" {
		t.Fatalf("rejection outcome should still name the identity, got %+v", out)
	}
}

func TestVerifyFullDay(t *testing.T) {
	_, coord := newFixture(t)
	ctx := context.Background()

	if _, err := coord.Verify(ctx, "math", []float32{1, 0, 0}, monday(9, 30)); err != nil {
		t.Fatalf("time-in failed: %v", err)
	}
	out, err := coord.Verify(ctx, "math", []float32{1, 0, 0}, monday(10, 10))
	if err != nil {
		t.Fatalf("time-out failed: %v", err)
	}
	if out.Action != ledger.ActionTimeOut {
		t.Fatalf("expected time_out, got %s", out.Action)
	}
	if ledger.StatusOf(out.Record) != ledger.StatusPresent {
		t.Fatalf("completed session should derive present, got %s", ledger.StatusOf(out.Record))
	}
}
