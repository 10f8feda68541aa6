package match

import (
	"errors"
	"math"
	"testing"
)

func TestMatchThresholdBoundary(t *testing.T) {
	sample := []float32{0, 0}
	enrolled := []Candidate{{IdentityID: "a", Embedding: []float32{0.59, 0}}}

	res, ok, err := Match(sample, enrolled, 0.6)
	if err != nil {
		t.Fatalf("match error: %v", err)
	}
	if !ok || res.IdentityID != "a" {
		t.Fatalf("distance 0.59 against threshold 0.6 should match, got ok=%v", ok)
	}

	enrolled[0].Embedding = []float32{0.61, 0}
	res, ok, err = Match(sample, enrolled, 0.6)
	if err != nil {
		t.Fatalf("match error: %v", err)
	}
	if ok {
		t.Fatalf("distance 0.61 against threshold 0.6 should be unknown")
	}
	if res.IdentityID != "" {
		t.Fatalf("unknown result must not carry an identity, got %s", res.IdentityID)
	}
	if math.Abs(res.Distance-0.61) > 1e-6 {
		t.Fatalf("unknown result should still report the best distance, got %f", res.Distance)
	}
}

func TestMatchPicksNearest(t *testing.T) {
	sample := []float32{1, 1}
	enrolled := []Candidate{
		{IdentityID: "far", Embedding: []float32{3, 3}},
		{IdentityID: "near", Embedding: []float32{1.1, 1}},
		{IdentityID: "mid", Embedding: []float32{2, 1}},
	}
	res, ok, err := Match(sample, enrolled, 10)
	if err != nil {
		t.Fatalf("match error: %v", err)
	}
	if !ok || res.IdentityID != "near" {
		t.Fatalf("expected nearest candidate, got %s", res.IdentityID)
	}
}

func TestMatchEmptyGallery(t *testing.T) {
	_, _, err := Match([]float32{1}, nil, 0.6)
	if !errors.Is(err, ErrNoEnrolled) {
		t.Fatalf("empty gallery should report ErrNoEnrolled, got %v", err)
	}
}

func TestMatchLengthMismatch(t *testing.T) {
	_, _, err := Match([]float32{1}, []Candidate{{IdentityID: "a", Embedding: []float32{1, 2}}}, 0.6)
	if err == nil {
		t.Fatalf("length mismatch should fail")
	}
}

func TestFindDuplicateExcludesSelf(t *testing.T) {
	enrolled := []Candidate{
		{IdentityID: "self", Embedding: []float32{1, 0}},
		{IdentityID: "other", Embedding: []float32{5, 0}},
	}

	if _, hit, err := FindDuplicate([]float32{1, 0}, enrolled, 0.6, "self"); err != nil || hit {
		t.Fatalf("own embedding must not count as duplicate, hit=%v err=%v", hit, err)
	}

	res, hit, err := FindDuplicate([]float32{4.9, 0}, enrolled, 0.6, "self")
	if err != nil {
		t.Fatalf("duplicate check error: %v", err)
	}
	if !hit || res.IdentityID != "other" {
		t.Fatalf("expected collision with other, got hit=%v id=%s", hit, res.IdentityID)
	}
}

func TestFindDuplicateEmptyGallery(t *testing.T) {
	if _, hit, err := FindDuplicate([]float32{1}, nil, 0.6, "self"); err != nil || hit {
		t.Fatalf("empty gallery has no duplicates, hit=%v err=%v", hit, err)
	}
}

func TestDistance(t *testing.T) {
	d, err := Distance([]float32{0, 3}, []float32{4, 0})
	if err != nil {
		t.Fatalf("distance error: %v", err)
	}
	if math.Abs(d-5) > 1e-9 {
		t.Fatalf("expected 5, got %f", d)
	}
}
