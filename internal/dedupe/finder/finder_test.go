package finder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/dedupe/keys"
	"leadflow_backend/internal/leads"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

type fakeStore struct {
	byEmail  []StoredKeySet
	byDomain []StoredKeySet
	byName   []StoredKeySet
	err      error
}

func (s *fakeStore) FindKeySetsByEmailHash(_ context.Context, _ uuid.UUID, _ string, _ time.Time) ([]StoredKeySet, error) {
	return s.byEmail, s.err
}

func (s *fakeStore) FindKeySetsByDomain(_ context.Context, _ uuid.UUID, _ string, _ time.Time) ([]StoredKeySet, error) {
	return s.byDomain, s.err
}

func (s *fakeStore) FindKeySetsWithName(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]StoredKeySet, error) {
	return s.byName, s.err
}

func newFinder(store Store) *Finder {
	builder := keys.NewBuilder("pepper", true)
	return New(store, builder, 0, logger.New("development"))
}

func TestFindDuplicateReturnsValidationErrorWithoutKeys(t *testing.T) {
	f := newFinder(&fakeStore{})

	match, ks, err := f.FindDuplicate(context.Background(), leads.IncomingLead{}, uuid.New(), DefaultPolicy())
	if match != nil {
		t.Fatal("expected no match for an empty lead")
	}
	if ks.Valid() {
		t.Fatal("expected an invalid key set for an empty lead")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestFindDuplicateExactEmailOutranksFuzzyName(t *testing.T) {
	builder := keys.NewBuilder("pepper", true)
	existing := builder.Build(keys.Input{Email: "john.doe@acme.com", Name: "John Doe"})

	emailID := uuid.New()
	nameID := uuid.New()
	store := &fakeStore{
		byEmail: []StoredKeySet{{RecordID: emailID, EmailHash: existing.EmailHash, NameKey: existing.NameKey}},
		byName:  []StoredKeySet{{RecordID: nameID, NameKey: existing.NameKey}},
	}

	f := New(store, builder, 0, logger.New("development"))
	match, _, err := f.FindDuplicate(context.Background(), leads.IncomingLead{
		Email: "John.Doe@acme.com",
		Name:  "Doe John",
	}, uuid.New(), DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Type != MatchExactEmail || match.RecordID != emailID {
		t.Fatalf("expected the exact-email candidate to win, got %+v", match)
	}
	if match.Confidence != 1.0 {
		t.Fatalf("exact email matches carry full confidence, got %v", match.Confidence)
	}
}

func TestFindDuplicateDomainNameRespectsThreshold(t *testing.T) {
	builder := keys.NewBuilder("pepper", true)

	similar := uuid.New()
	dissimilar := uuid.New()
	store := &fakeStore{
		byDomain: []StoredKeySet{
			{RecordID: similar, Domain: "acme.com", NameKey: "doe john"},
			{RecordID: dissimilar, Domain: "acme.com", NameKey: "smith anna"},
		},
	}

	f := New(store, builder, 0, logger.New("development"))
	policy := DefaultPolicy()
	policy.EmailExact = false
	policy.NameFuzzy = false

	match, _, err := f.FindDuplicate(context.Background(), leads.IncomingLead{
		Domain: "acme.com",
		Name:   "John Doe",
	}, uuid.New(), policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.RecordID != similar {
		t.Fatalf("expected only the similar name to clear the threshold, got %+v", match)
	}
	if match.Type != MatchDomainName {
		t.Fatalf("expected a domain-plus-name match, got %s", match.Type)
	}
}

func TestFindDuplicateTieBreaksOnSmallestRecordID(t *testing.T) {
	builder := keys.NewBuilder("pepper", true)
	existing := builder.Build(keys.Input{Email: "john@acme.com"})

	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	store := &fakeStore{
		byEmail: []StoredKeySet{
			{RecordID: high, EmailHash: existing.EmailHash},
			{RecordID: low, EmailHash: existing.EmailHash},
		},
	}

	f := New(store, builder, 0, logger.New("development"))
	match, _, err := f.FindDuplicate(context.Background(), leads.IncomingLead{Email: "john@acme.com"}, uuid.New(), DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.RecordID != low {
		t.Fatalf("expected the smallest record ID on a full tie, got %+v", match)
	}
}

func TestFindDuplicateReturnsNilWhenNothingClears(t *testing.T) {
	f := newFinder(&fakeStore{})

	match, ks, err := f.FindDuplicate(context.Background(), leads.IncomingLead{Email: "john@acme.com"}, uuid.New(), DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Fatalf("expected no match on an empty store, got %+v", match)
	}
	if !ks.Valid() {
		t.Fatal("key set should still be returned for persistence")
	}
}

func TestFindDuplicateStoreFailureIsUnavailable(t *testing.T) {
	f := newFinder(&fakeStore{err: errors.New("connection refused")})

	match, ks, err := f.FindDuplicate(context.Background(), leads.IncomingLead{Email: "john@acme.com"}, uuid.New(), DefaultPolicy())
	if match != nil {
		t.Fatal("expected no match on store failure")
	}
	if !ks.Valid() {
		t.Fatal("key set should survive a store failure")
	}
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected an unavailable error, got %v", err)
	}
}
