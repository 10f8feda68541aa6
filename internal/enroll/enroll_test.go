package enroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"classattend/internal/enroll"
	"classattend/internal/memstore"
)

func TestRegisterValidatesRole(t *testing.T) {
	svc := enroll.NewService(memstore.New(), 0.6)
	ctx := context.Background()

	if err := svc.Register(ctx, enroll.Identity{ID: "t-1", Name: "Grace", Role: enroll.RoleTeacher}); err != nil {
		t.Fatalf("register teacher failed: %v", err)
	}
	if err := svc.Register(ctx, enroll.Identity{ID: "x-1", Name: "Ada", Role: "janitor"}); err == nil {
		t.Fatal("unknown role should be rejected")
	}
	if err := svc.Register(ctx, enroll.Identity{Name: "NoID", Role: enroll.RoleStudent}); err == nil {
		t.Fatal("missing id should be rejected")
	}
}

func TestRegisterNeverWritesEmbedding(t *testing.T) {
	store := memstore.New()
	svc := enroll.NewService(store, 0.6)
	ctx := context.Background()

	ident := enroll.Identity{ID: "stu-1", Name: "Ada", Role: enroll.RoleStudent, Embedding: []float32{1, 2, 3}}
	if err := svc.Register(ctx, ident); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	got, _, err := store.GetIdentity(ctx, "stu-1")
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if got.Embedding != nil {
		t.Fatal("metadata registration must not set the embedding")
	}
}

func TestEnrollOnce(t *testing.T) {
	store := memstore.New()
	svc := enroll.NewService(store, 0.6)
	ctx := context.Background()
	now := time.Now()

	if err := svc.Register(ctx, enroll.Identity{ID: "stu-1", Name: "Ada", Role: enroll.RoleStudent}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := svc.Enroll(ctx, "stu-1", []float32{1, 0, 0}, now); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	err := svc.Enroll(ctx, "stu-1", []float32{0, 1, 0}, now)
	if !errors.Is(err, enroll.ErrAlreadyEnrolled) {
		t.Fatalf("second enrollment should fail AlreadyEnrolled, got %v", err)
	}
}

func TestEnrollUnknownIdentity(t *testing.T) {
	svc := enroll.NewService(memstore.New(), 0.6)
	err := svc.Enroll(context.Background(), "ghost", []float32{1, 0, 0}, time.Now())
	if !errors.Is(err, enroll.ErrUnknownIdentity) {
		t.Fatalf("expected ErrUnknownIdentity, got %v", err)
	}
}

func TestEnrollRejectsDuplicateFace(t *testing.T) {
	store := memstore.New()
	svc := enroll.NewService(store, 0.6)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"stu-1", "stu-2"} {
		if err := svc.Register(ctx, enroll.Identity{ID: id, Name: id, Role: enroll.RoleStudent}); err != nil {
			t.Fatalf("register %s failed: %v", id, err)
		}
	}
	if err := svc.Enroll(ctx, "stu-1", []float32{1, 0, 0}, now); err != nil {
		t.Fatalf("enroll stu-1 failed: %v", err)
	}

	err := svc.Enroll(ctx, "stu-2", []float32{1, 0.1, 0}, now)
	var dup *enroll.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.OtherID != "stu-1" {
		t.Fatalf("duplicate should name the colliding identity, got %s", dup.OtherID)
	}

	// A face outside the threshold enrolls fine.
	if err := svc.Enroll(ctx, "stu-2", []float32{0, 1, 0}, now); err != nil {
		t.Fatalf("distinct face should enroll: %v", err)
	}
}

func TestEnrollRejectsEmptyEmbedding(t *testing.T) {
	svc := enroll.NewService(memstore.New(), 0.6)
	if err := svc.Enroll(context.Background(), "stu-1", nil, time.Now()); err == nil {
		t.Fatal("empty embedding should be rejected")
	}
}
