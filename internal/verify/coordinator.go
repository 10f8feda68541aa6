// Package verify orchestrates one kiosk verification: resolve the live
// sample to an enrolled identity, then let the ledger decide whether the
// identity times in or out of the class. It adds no invariants of its own.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classattend/internal/ledger"
	"classattend/internal/match"
)

// IdentityRepo is the enrolled-gallery view the coordinator needs.
type IdentityRepo interface {
	ListEnrolled(ctx context.Context) ([]match.Candidate, error)
}

// Outcome is what the kiosk renders after an attempt.
type Outcome struct {
	Recognized bool
	IdentityID string
	Distance   float64
	Action     ledger.Action
	Record     ledger.Record
}

// Coordinator wires the matcher and the ledger behind one entry point.
type Coordinator struct {
	identities IdentityRepo
	ledger     *ledger.Ledger
	threshold  float64 // kiosk threshold, stricter than the enrollment one
	method     string
}

func New(identities IdentityRepo, led *ledger.Ledger, kioskThreshold float64) *Coordinator {
	return &Coordinator{
		identities: identities,
		ledger:     led,
		threshold:  kioskThreshold,
		method:     "face",
	}
}

// Verify matches the sample against a snapshot of enrolled embeddings and,
// on a hit, attempts the applicable ledger transition for the class. An
// unrecognized face never touches the ledger; the outcome reports the best
// distance so the operator sees how close the miss was. Redundant calls are
// safe: the ledger's conflicts are typed and idempotent.
func (c *Coordinator) Verify(ctx context.Context, classID string, sample []float32, now time.Time) (Outcome, error) {
	enrolled, err := c.identities.ListEnrolled(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load enrolled identities: %w", err)
	}

	res, ok, err := match.Match(sample, enrolled, c.threshold)
	if err != nil {
		if errors.Is(err, match.ErrNoEnrolled) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("match sample: %w", err)
	}
	if !ok {
		return Outcome{Recognized: false, Distance: res.Distance}, nil
	}

	rec, action, err := c.ledger.Attempt(ctx, res.IdentityID, classID, now, c.method)
	if err != nil {
		// Identity was still resolved; keep it in the outcome so the
		// rejection message can name the person.
		return Outcome{Recognized: true, IdentityID: res.IdentityID, Distance: res.Distance}, err
	}
	return Outcome{
		Recognized: true,
		IdentityID: res.IdentityID,
		Distance:   res.Distance,
		Action:     action,
		Record:     rec,
	}, nil
}
