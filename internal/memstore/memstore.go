// Package memstore is an in-process implementation of the identity, class
// and record repositories. It backs the "memory" storage mode for local
// development and the engine tests; the Postgres repositories in
// internal/postgres implement the same interfaces for deployments.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"classattend/internal/enroll"
	"classattend/internal/ledger"
	"classattend/internal/match"
)

// Store holds everything behind one mutex. Conditional mutations run under
// the lock, so check-then-act sequences inside a single call are atomic here
// (the cross-class scan in the ledger still spans calls and stays
// best-effort, same as against Postgres).
type Store struct {
	mu         sync.Mutex
	identities map[string]enroll.Identity
	classes    map[string]ledger.Class
	members    map[string][]string // classID -> identity ids, join order
	membership map[string][]string // identityID -> class ids, join order
	records    map[ledger.Key]ledger.Record
	devices    map[string]struct{}
	tokens     map[string]refreshToken
}

type refreshToken struct {
	deviceID  string
	expiresAt time.Time
	revoked   bool
}

func New() *Store {
	return &Store{
		identities: make(map[string]enroll.Identity),
		classes:    make(map[string]ledger.Class),
		members:    make(map[string][]string),
		membership: make(map[string][]string),
		records:    make(map[ledger.Key]ledger.Record),
		devices:    make(map[string]struct{}),
		tokens:     make(map[string]refreshToken),
	}
}

// ListEnrolled returns the identities that have an embedding.
func (s *Store) ListEnrolled(ctx context.Context) ([]match.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []match.Candidate
	for _, ident := range s.identities {
		if ident.Embedding != nil {
			out = append(out, match.Candidate{IdentityID: ident.ID, Embedding: ident.Embedding})
		}
	}
	return out, nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (enroll.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	return ident, ok, nil
}

func (s *Store) UpsertIdentity(ctx context.Context, ident enroll.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.identities[ident.ID]; ok {
		// Metadata update keeps the enrolled embedding.
		ident.Embedding = existing.Embedding
		ident.EnrolledAt = existing.EnrolledAt
	}
	s.identities[ident.ID] = ident
	return nil
}

func (s *Store) SaveEmbedding(ctx context.Context, id string, embedding []float32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return enroll.ErrUnknownIdentity
	}
	if ident.Embedding != nil {
		return enroll.ErrAlreadyEnrolled
	}
	ident.Embedding = append([]float32(nil), embedding...)
	ident.EnrolledAt = &at
	s.identities[id] = ident
	return nil
}

// CreateClass registers or replaces a class definition.
func (s *Store) CreateClass(ctx context.Context, c ledger.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[c.ID] = c
	return nil
}

// AddMember appends the identity to the class roster; join order is the
// order cross-class scans observe.
func (s *Store) AddMember(ctx context.Context, classID, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.members[classID] {
		if id == identityID {
			return nil
		}
	}
	s.members[classID] = append(s.members[classID], identityID)
	s.membership[identityID] = append(s.membership[identityID], classID)
	return nil
}

func (s *Store) GetClass(ctx context.Context, classID string) (ledger.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return ledger.Class{}, fmt.Errorf("class %s not found", classID)
	}
	return c, nil
}

func (s *Store) ListClassesForIdentity(ctx context.Context, identityID string) ([]ledger.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Class
	for _, classID := range s.membership[identityID] {
		if c, ok := s.classes[classID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) ListStudentIDs(ctx context.Context, classID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.members[classID]...), nil
}

func (s *Store) Get(ctx context.Context, key ledger.Key) (ledger.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return ledger.Record{}, false, nil
	}
	return copyRecord(rec), true, nil
}

func (s *Store) CreateIfAbsent(ctx context.Context, rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Key]; ok {
		return &ledger.ConflictError{Err: ledger.ErrAlreadyExists, Key: rec.Key}
	}
	if rec.Open() {
		// Same guarantee the Postgres partial unique index gives: a lost
		// race on the cross-class scan surfaces here instead of producing a
		// second open session.
		for key, other := range s.records {
			if key.IdentityID == rec.Key.IdentityID && key.Date == rec.Key.Date && other.Open() {
				return &ledger.ConflictError{Err: ledger.ErrAlreadyOpenElsewhere, Key: rec.Key, OpenClassID: key.ClassID}
			}
		}
	}
	s.records[rec.Key] = copyRecord(rec)
	return nil
}

func (s *Store) SetTimeOut(ctx context.Context, key ledger.Key, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.TimeIn == nil {
		return &ledger.ConflictError{Err: ledger.ErrNoOpenSession, Key: key}
	}
	if rec.TimeOut != nil {
		return &ledger.ConflictError{Err: ledger.ErrAlreadyClosed, Key: key}
	}
	out := at
	rec.TimeOut = &out
	s.records[key] = rec
	return nil
}

func (s *Store) SetExcuse(ctx context.Context, key ledger.Key, excuse ledger.Excuse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if ok && rec.Excuse != nil {
		return &ledger.ConflictError{Err: ledger.ErrExcuseExists, Key: key}
	}
	if !ok {
		rec = ledger.Record{Key: key}
	}
	exc := excuse
	rec.Excuse = &exc
	s.records[key] = rec
	return nil
}

func (s *Store) ResolveExcuse(ctx context.Context, key ledger.Key, status ledger.ExcuseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.Excuse == nil || rec.Excuse.Status != ledger.ExcusePending {
		return &ledger.ConflictError{Err: ledger.ErrNotPending, Key: key}
	}
	exc := *rec.Excuse
	exc.Status = status
	rec.Excuse = &exc
	s.records[key] = rec
	return nil
}

func (s *Store) ListByClassDate(ctx context.Context, classID, date string) ([]ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Record
	for key, rec := range s.records {
		if key.ClassID == classID && key.Date == date {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.IdentityID < out[j].Key.IdentityID })
	return out, nil
}

// Devices and refresh tokens live in the same maps; everything vanishes on
// restart, same as the rest of the store.

func (s *Store) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[deviceID] = struct{}{}
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = refreshToken{deviceID: deviceID, expiresAt: expiresAt}
	return nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[token]; ok {
		t.revoked = true
		s.tokens[token] = t
	}
	return nil
}

// RefreshTokenActive reports whether the token is stored, unrevoked and
// unexpired.
func (s *Store) RefreshTokenActive(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	return ok && !t.revoked && time.Now().Before(t.expiresAt), nil
}

func copyRecord(rec ledger.Record) ledger.Record {
	out := rec
	if rec.TimeIn != nil {
		in := *rec.TimeIn
		out.TimeIn = &in
	}
	if rec.TimeOut != nil {
		t := *rec.TimeOut
		out.TimeOut = &t
	}
	if rec.Excuse != nil {
		exc := *rec.Excuse
		out.Excuse = &exc
	}
	return out
}
