package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/dedupe/finder"
	"leadflow_backend/internal/dedupe/keys"
	"leadflow_backend/internal/dedupe/merge"
	"leadflow_backend/internal/dedupe/repository"
	"leadflow_backend/internal/leads"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
)

// fakeStore is an in-memory Store covering the full consumer surface.
type fakeStore struct {
	contacts map[uuid.UUID]leads.Lead
	keySets  map[uuid.UUID]keys.KeySet
	events   []repository.TimelineEventParams
	merges   []repository.MergeWriteParams

	searchErr error
	createErr error
	mergeErr  error

	// beforeResolve runs inside ApplyMerge after the unit of work opens and
	// before the records are read, simulating a concurrent write.
	beforeResolve func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts: make(map[uuid.UUID]leads.Lead),
		keySets:  make(map[uuid.UUID]keys.KeySet),
	}
}

func (s *fakeStore) FindKeySetsByEmailHash(_ context.Context, _ uuid.UUID, emailHash string, _ time.Time) ([]finder.StoredKeySet, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var found []finder.StoredKeySet
	for id, ks := range s.keySets {
		if ks.EmailHash == emailHash {
			found = append(found, finder.StoredKeySet{RecordID: id, EmailHash: ks.EmailHash, Domain: ks.Domain, NameKey: ks.NameKey})
		}
	}
	return found, nil
}

func (s *fakeStore) FindKeySetsByDomain(_ context.Context, _ uuid.UUID, domain string, _ time.Time) ([]finder.StoredKeySet, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var found []finder.StoredKeySet
	for id, ks := range s.keySets {
		if ks.Domain == domain {
			found = append(found, finder.StoredKeySet{RecordID: id, EmailHash: ks.EmailHash, Domain: ks.Domain, NameKey: ks.NameKey})
		}
	}
	return found, nil
}

func (s *fakeStore) FindKeySetsWithName(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]finder.StoredKeySet, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var found []finder.StoredKeySet
	for id, ks := range s.keySets {
		if ks.NameKey != "" {
			found = append(found, finder.StoredKeySet{RecordID: id, EmailHash: ks.EmailHash, Domain: ks.Domain, NameKey: ks.NameKey})
		}
	}
	return found, nil
}

func (s *fakeStore) CreateContact(_ context.Context, params repository.CreateContactParams) (leads.Lead, error) {
	if s.createErr != nil {
		return leads.Lead{}, s.createErr
	}
	lead := leads.Lead{
		ID:             uuid.New(),
		OrganizationID: params.OrganizationID,
		Email:          params.Email,
		Name:           params.Name,
		Company:        params.Company,
		Domain:         params.Domain,
		Phone:          params.Phone,
		Source:         params.Source,
		Fields:         params.Fields,
		UTM:            params.UTM,
		Score:          params.Score,
		ScoreBand:      leads.BandForScore(params.Score),
		Status:         params.Status,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	s.contacts[lead.ID] = lead
	return lead, nil
}

func (s *fakeStore) GetContact(_ context.Context, id, organizationID uuid.UUID) (leads.Lead, error) {
	lead, ok := s.contacts[id]
	if !ok || lead.OrganizationID != organizationID {
		return leads.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (s *fakeStore) CreateKeySet(_ context.Context, recordID, _ uuid.UUID, ks keys.KeySet) error {
	s.keySets[recordID] = ks
	return nil
}

func (s *fakeStore) CreateTimelineEvent(_ context.Context, params repository.TimelineEventParams) error {
	s.events = append(s.events, params)
	return nil
}

func (s *fakeStore) ApplyMerge(_ context.Context, primaryID, duplicateID, organizationID uuid.UUID, resolve repository.MergeResolveFunc) (repository.MergeWriteCounts, error) {
	if s.mergeErr != nil {
		return repository.MergeWriteCounts{}, s.mergeErr
	}
	if s.beforeResolve != nil {
		s.beforeResolve()
	}

	primary, ok := s.contacts[primaryID]
	if !ok || primary.OrganizationID != organizationID {
		return repository.MergeWriteCounts{}, repository.ErrNotFound
	}
	duplicate, ok := s.contacts[duplicateID]
	if !ok || duplicate.OrganizationID != organizationID {
		return repository.MergeWriteCounts{}, repository.ErrNotFound
	}

	params, err := resolve(primary, duplicate)
	if err != nil {
		return repository.MergeWriteCounts{}, err
	}
	s.merges = append(s.merges, params)

	primary.Email = params.Merged.Email
	primary.Name = params.Merged.Name
	primary.Company = params.Merged.Company
	primary.Domain = params.Merged.Domain
	primary.Phone = params.Merged.Phone
	primary.Source = params.Merged.Source
	primary.Fields = params.Merged.Fields
	primary.UTM = params.Merged.UTM
	primary.Score = params.Score
	s.contacts[params.PrimaryID] = primary
	delete(s.contacts, params.DuplicateID)
	delete(s.keySets, params.DuplicateID)
	return repository.MergeWriteCounts{}, nil
}

func newService(store *fakeStore) *Service {
	log := logger.New("development")
	builder := keys.NewBuilder("pepper", true)
	f := finder.New(store, builder, 0, log)
	return New(store, builder, f, events.NewInMemoryBus(log), "US", log)
}

func defaultOptions() Options {
	return Options{Policy: finder.DefaultPolicy(), Strategy: merge.DefaultStrategy()}
}

func TestDeduplicateLeadCreatesWhenNoDuplicateExists(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	org := uuid.New()

	outcome, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{
		Email: "john@acme.com",
		Name:  "John Doe",
		Score: 55,
	}, org, defaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Action != ActionCreated {
		t.Fatalf("expected created, got %s", outcome.Action)
	}
	if outcome.Keys.EmailHash == "" || outcome.Keys.Domain != "acme.com" {
		t.Fatalf("expected derived keys to be returned, got %+v", outcome.Keys)
	}
	if _, ok := store.keySets[outcome.LeadID]; !ok {
		t.Fatal("expected the key set to be persisted")
	}
	created := store.contacts[outcome.LeadID]
	if created.Status != "new" || created.ScoreBand != leads.BandMedium {
		t.Fatalf("expected a normalized new contact, got %+v", created)
	}
	if len(store.events) != 1 || store.events[0].Title != "no duplicate found" {
		t.Fatalf("expected one audit entry, got %+v", store.events)
	}
}

func TestDeduplicateLeadCreatesWithoutKeys(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)

	outcome, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{Phone: "+15551234567"}, uuid.New(), defaultOptions())
	if err != nil {
		t.Fatalf("insufficient key data must not be fatal, got %v", err)
	}
	if outcome.Action != ActionCreated {
		t.Fatalf("expected created, got %s", outcome.Action)
	}
	if outcome.Keys.Valid() {
		t.Fatalf("expected no derivable keys, got %+v", outcome.Keys)
	}
	if len(store.events) != 1 || store.events[0].Title != "no dedupe key derived" {
		t.Fatalf("expected the no-key audit entry, got %+v", store.events)
	}
}

func TestDeduplicateLeadFallsBackToCreateOnSearchFailure(t *testing.T) {
	store := newFakeStore()
	store.searchErr = errors.New("connection refused")
	svc := newService(store)

	outcome, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{Email: "john@acme.com"}, uuid.New(), defaultOptions())
	if err != nil {
		t.Fatalf("search failure must degrade, not fail: %v", err)
	}
	if outcome.Action != ActionCreated {
		t.Fatalf("expected created, got %s", outcome.Action)
	}
	if len(store.events) != 1 || store.events[0].Title != "deduplication failed, fallback" {
		t.Fatalf("expected the fallback audit entry, got %+v", store.events)
	}
}

func TestDeduplicateLeadMergesExactEmailDuplicate(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	org := uuid.New()

	first, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{
		Email: "john@acme.com",
		Name:  "John Doe",
		Score: 40,
	}, org, defaultOptions())
	if err != nil {
		t.Fatalf("seed lead failed: %v", err)
	}

	second, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{
		Email: "john@acme.com",
		Name:  "John Doe",
		Phone: "+15551234567",
		Score: 80,
	}, org, defaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Action != ActionMerged {
		t.Fatalf("expected merged, got %s", second.Action)
	}
	if second.Merge == nil {
		t.Fatal("expected merge details")
	}
	if second.Merge.Score != 80 {
		t.Fatalf("highest score should survive, got %d", second.Merge.Score)
	}
	if len(store.contacts) != 1 {
		t.Fatalf("expected a single surviving contact, got %d", len(store.contacts))
	}
	// The incoming lead scored higher, so the original record is the duplicate.
	if second.Merge.DuplicateID != first.LeadID {
		t.Fatalf("expected the lower-scoring original to be folded in, got %+v", second.Merge)
	}

	var matched bool
	for _, e := range store.events {
		if e.Title == "duplicate found and merged" {
			matched = true
			if e.Metadata["matchType"] != "exact-email" {
				t.Fatalf("expected exact-email metadata, got %v", e.Metadata["matchType"])
			}
		}
	}
	if !matched {
		t.Fatal("expected a merge audit entry")
	}
}

func TestDeduplicateLeadSkipMergeReportsDuplicate(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	org := uuid.New()

	first, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{Email: "john@acme.com"}, org, defaultOptions())
	if err != nil {
		t.Fatalf("seed lead failed: %v", err)
	}

	opts := defaultOptions()
	opts.SkipMerge = true
	second, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{Email: "john@acme.com"}, org, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Action != ActionSkipped {
		t.Fatalf("expected skipped, got %s", second.Action)
	}
	if second.DuplicateID == nil || *second.DuplicateID != first.LeadID {
		t.Fatalf("expected the existing record to be reported, got %+v", second)
	}
	if len(store.contacts) != 1 {
		t.Fatal("skip must not create a second contact")
	}
}

func TestMergeRefusesCrossTenantRecords(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)

	orgA := uuid.New()
	orgB := uuid.New()
	a, _ := store.CreateContact(context.Background(), repository.CreateContactParams{OrganizationID: orgA, Email: "a@acme.com"})
	b, _ := store.CreateContact(context.Background(), repository.CreateContactParams{OrganizationID: orgB, Email: "b@acme.com"})

	_, err := svc.Merge(context.Background(), a.ID, b.ID, orgA, merge.DefaultStrategy())
	if !apperr.Is(err, apperr.KindNotFound) && !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected a refused merge, got %v", err)
	}
	if len(store.merges) != 0 {
		t.Fatal("no write may happen for a refused merge")
	}
}

func TestMergeMissingRecordIsNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	org := uuid.New()

	a, _ := store.CreateContact(context.Background(), repository.CreateContactParams{OrganizationID: org, Email: "a@acme.com"})

	_, err := svc.Merge(context.Background(), a.ID, uuid.New(), org, merge.DefaultStrategy())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPreviewMergeWritesNothing(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	org := uuid.New()

	a, _ := store.CreateContact(context.Background(), repository.CreateContactParams{OrganizationID: org, Email: "a@acme.com", Score: 30})
	b, _ := store.CreateContact(context.Background(), repository.CreateContactParams{OrganizationID: org, Name: "John Doe", Score: 70})

	result, err := svc.PreviewMerge(context.Background(), a.ID, b.ID, org, merge.DefaultStrategy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 70 {
		t.Fatalf("expected the highest score in the preview, got %d", result.Score)
	}
	if result.Merged.Name != "John Doe" || result.Merged.Email != "a@acme.com" {
		t.Fatalf("expected merged field preview, got %+v", result.Merged)
	}
	if len(store.merges) != 0 {
		t.Fatal("preview must not write")
	}
	if len(store.contacts) != 2 {
		t.Fatal("preview must not delete records")
	}
}

func TestMergeResolvesFromRecordsReadInsideTheUnitOfWork(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	org := uuid.New()

	a, _ := store.CreateContact(context.Background(), repository.CreateContactParams{OrganizationID: org, Email: "a@acme.com", Score: 40})
	b, _ := store.CreateContact(context.Background(), repository.CreateContactParams{OrganizationID: org, Name: "John Doe", Score: 50})

	// A concurrent write lands after the merge starts but before the records
	// are read; the resolution must be computed against the updated state.
	store.beforeResolve = func() {
		c := store.contacts[b.ID]
		c.Score = 90
		c.Phone = "+14155552671"
		store.contacts[b.ID] = c
	}

	result, err := svc.Merge(context.Background(), a.ID, b.ID, org, merge.DefaultStrategy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 90 {
		t.Fatalf("resolution used stale data, got score %d", result.Score)
	}
	surviving := store.contacts[a.ID]
	if surviving.Phone != "+14155552671" || surviving.Score != 90 {
		t.Fatalf("expected the concurrent update to survive the merge, got %+v", surviving)
	}
}

func TestMergeFailureKeepsTemporaryRecordInsteadOfCreatingAgain(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	org := uuid.New()

	seeded, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{
		Email: "john@acme.com",
		Name:  "John Doe",
		Score: 40,
	}, org, defaultOptions())
	if err != nil {
		t.Fatalf("seed lead failed: %v", err)
	}

	store.mergeErr = errors.New("connection reset")

	outcome, err := svc.DeduplicateLead(context.Background(), leads.IncomingLead{
		Email: "john@acme.com",
		Name:  "John Doe",
		Score: 80,
	}, org, defaultOptions())
	if err != nil {
		t.Fatalf("merge failure must degrade, not fail: %v", err)
	}
	if outcome.Action != ActionCreated {
		t.Fatalf("expected created, got %s", outcome.Action)
	}
	// One ingestion adds exactly one record even when the merge dies midway.
	if len(store.contacts) != 2 {
		t.Fatalf("expected the seed plus one new record, got %d", len(store.contacts))
	}
	if outcome.LeadID == seeded.LeadID {
		t.Fatal("expected the incoming record to be the kept one")
	}
	if _, ok := store.contacts[outcome.LeadID]; !ok {
		t.Fatal("expected the temporary record to survive")
	}
	last := store.events[len(store.events)-1]
	if last.Title != "deduplication failed, fallback" || last.LeadID != outcome.LeadID {
		t.Fatalf("expected a fallback audit entry on the kept record, got %+v", last)
	}
}
