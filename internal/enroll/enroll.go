// Package enroll registers facial embeddings for identities, enforcing the
// one-embedding-per-identity rule and rejecting faces that collide with an
// already-enrolled person.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classattend/internal/match"
)

var (
	// ErrAlreadyEnrolled: an embedding may be written exactly once; re-running
	// enrollment for an enrolled identity is a conflict, not an update.
	ErrAlreadyEnrolled = errors.New("identity already has an embedding")
	ErrUnknownIdentity = errors.New("identity not registered")
)

// Role is the coarse authorization level of an identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Identity is an enrollable person. Embedding stays nil until enrollment.
type Identity struct {
	ID         string
	Name       string
	Role       Role
	Embedding  []float32
	EnrolledAt *time.Time
}

// DuplicateError reports an enrollment rejected because the face is within
// the match threshold of another identity's embedding.
type DuplicateError struct {
	OtherID  string
	Distance float64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("embedding collides with identity %s (distance %.3f)", e.OtherID, e.Distance)
}

// IdentityRepo persists identities and their embeddings.
type IdentityRepo interface {
	ListEnrolled(ctx context.Context) ([]match.Candidate, error)
	GetIdentity(ctx context.Context, id string) (Identity, bool, error)
	UpsertIdentity(ctx context.Context, ident Identity) error
	// SaveEmbedding writes the embedding only when none is set, failing with
	// ErrAlreadyEnrolled otherwise.
	SaveEmbedding(ctx context.Context, id string, embedding []float32, at time.Time) error
}

// Service runs the enrollment checks.
type Service struct {
	repo      IdentityRepo
	threshold float64 // enrollment duplicate-check threshold (looser than kiosk)
}

func NewService(repo IdentityRepo, threshold float64) *Service {
	return &Service{repo: repo, threshold: threshold}
}

// Register creates or updates identity metadata without touching the
// embedding.
func (s *Service) Register(ctx context.Context, ident Identity) error {
	if ident.ID == "" {
		return fmt.Errorf("identity id required")
	}
	switch ident.Role {
	case RoleStudent, RoleTeacher, RoleAdmin:
	default:
		return fmt.Errorf("invalid role %q", ident.Role)
	}
	ident.Embedding = nil // metadata path never writes embeddings
	return s.repo.UpsertIdentity(ctx, ident)
}

// Enroll attaches the embedding to the identity after checking it does not
// lie within the threshold of any other enrolled face.
func (s *Service) Enroll(ctx context.Context, id string, embedding []float32, now time.Time) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding")
	}
	ident, found, err := s.repo.GetIdentity(ctx, id)
	if err != nil {
		return fmt.Errorf("load identity %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	if ident.Embedding != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyEnrolled, id)
	}

	enrolled, err := s.repo.ListEnrolled(ctx)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	if dup, hit, err := match.FindDuplicate(embedding, enrolled, s.threshold, id); err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	} else if hit {
		return &DuplicateError{OtherID: dup.IdentityID, Distance: dup.Distance}
	}

	return s.repo.SaveEmbedding(ctx, id, embedding, now)
}
