package match

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoEnrolled is returned when matching against an empty gallery. It is a
// distinct condition from an unknown face: the operator needs to enroll
// people, not retry the capture.
var ErrNoEnrolled = errors.New("no enrolled identities")

// Candidate is one enrolled identity in the gallery snapshot handed to Match.
type Candidate struct {
	IdentityID string
	Embedding  []float32
}

// Result is a successful nearest-neighbour match.
type Result struct {
	IdentityID string
	Distance   float64
}

// Match finds the enrolled identity nearest to the sample by Euclidean
// distance. ok is false when the nearest distance exceeds the threshold; the
// returned Result still carries the best distance so callers can report how
// close the miss was. Pure function over the provided snapshot.
func Match(sample []float32, enrolled []Candidate, threshold float64) (Result, bool, error) {
	if len(enrolled) == 0 {
		return Result{}, false, ErrNoEnrolled
	}
	if len(sample) == 0 {
		return Result{}, false, fmt.Errorf("empty sample embedding")
	}

	best := Result{Distance: math.Inf(1)}
	for _, c := range enrolled {
		d, err := Distance(sample, c.Embedding)
		if err != nil {
			return Result{}, false, fmt.Errorf("candidate %s: %w", c.IdentityID, err)
		}
		if d < best.Distance {
			best = Result{IdentityID: c.IdentityID, Distance: d}
		}
	}
	if best.Distance > threshold {
		return Result{Distance: best.Distance}, false, nil
	}
	return best, true, nil
}

// FindDuplicate reports the enrolled identity, other than selfID, whose
// embedding lies within the threshold of the sample. Used at enrollment to
// reject a face that would collide with an existing identity.
func FindDuplicate(sample []float32, enrolled []Candidate, threshold float64, selfID string) (Result, bool, error) {
	others := make([]Candidate, 0, len(enrolled))
	for _, c := range enrolled {
		if c.IdentityID != selfID {
			others = append(others, c)
		}
	}
	if len(others) == 0 {
		return Result{}, false, nil
	}
	res, ok, err := Match(sample, others, threshold)
	if err != nil {
		return Result{}, false, err
	}
	return res, ok, nil
}

// Distance computes the Euclidean distance between two embeddings of equal
// length.
func Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
