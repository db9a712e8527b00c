// Package service orchestrates deduplication: key building, duplicate search,
// contact creation and transactional merge resolution.
package service

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/dedupe/finder"
	"leadflow_backend/internal/dedupe/keys"
	"leadflow_backend/internal/dedupe/merge"
	"leadflow_backend/internal/dedupe/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

// Action is the outcome tag of one deduplication run.
type Action string

const (
	ActionCreated Action = "created"
	ActionMerged  Action = "merged"
	ActionSkipped Action = "skipped"
)

// Options configures one deduplication call.
type Options struct {
	Policy   finder.Policy
	Strategy merge.Strategy
	// SkipMerge returns the duplicate untouched instead of merging.
	SkipMerge bool
}

// MergeResult is the outcome record of one merge.
type MergeResult struct {
	PrimaryID     uuid.UUID
	DuplicateID   uuid.UUID
	Merged        leads.Lead
	PreviousScore int
	Score         int
	MessagesMoved int
	EventsMoved   int
}

// Outcome is the result of DeduplicateLead.
type Outcome struct {
	Action      Action
	LeadID      uuid.UUID
	DuplicateID *uuid.UUID
	Keys        keys.KeySet
	Merge       *MergeResult
}

// Store is the record-store surface the deduplicator needs, consumer-driven.
type Store interface {
	finder.Store
	CreateContact(ctx context.Context, params repository.CreateContactParams) (leads.Lead, error)
	GetContact(ctx context.Context, id, organizationID uuid.UUID) (leads.Lead, error)
	CreateKeySet(ctx context.Context, recordID, organizationID uuid.UUID, ks keys.KeySet) error
	CreateTimelineEvent(ctx context.Context, params repository.TimelineEventParams) error
	ApplyMerge(ctx context.Context, primaryID, duplicateID, organizationID uuid.UUID, resolve repository.MergeResolveFunc) (repository.MergeWriteCounts, error)
}

// Service is the deduplication orchestrator.
type Service struct {
	store       Store
	builder     *keys.Builder
	finder      *finder.Finder
	bus         events.Bus
	phoneRegion string
	log         *logger.Logger
}

// New creates the deduplication service. phoneRegion is the default region for
// parsing phone numbers that arrive without a country prefix.
func New(store Store, builder *keys.Builder, f *finder.Finder, bus events.Bus, phoneRegion string, log *logger.Logger) *Service {
	return &Service{store: store, builder: builder, finder: f, bus: bus, phoneRegion: phoneRegion, log: log}
}

// BuildKeys derives the dedupe fingerprint for a lead without touching the store.
func (s *Service) BuildKeys(lead leads.IncomingLead) keys.KeySet {
	return s.builder.Build(keys.Input{
		Email:   lead.Email,
		Name:    lead.Name,
		Company: lead.Company,
		Domain:  lead.Domain,
	})
}

// DeduplicateLead runs the full pipeline for one incoming lead: build keys,
// search for a duplicate, then create, merge or skip. Insufficient key data is
// non-fatal (the lead is created without a search), and any unexpected failure
// degrades to plain creation rather than dropping the lead.
func (s *Service) DeduplicateLead(ctx context.Context, lead leads.IncomingLead, organizationID uuid.UUID, opts Options) (Outcome, error) {
	match, ks, err := s.finder.FindDuplicate(ctx, lead, organizationID, opts.Policy)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			// No key could be derived. Insufficient data is not fatal.
			s.log.Warn("insufficient key data, creating without dedup", "org", organizationID)
			return s.createWithAudit(ctx, lead, organizationID, ks, "no dedupe key derived")
		}
		s.log.DedupeFallback("duplicate search failed", err)
		return s.createWithAudit(ctx, lead, organizationID, ks, "deduplication failed, fallback")
	}

	if match == nil {
		outcome, err := s.createWithAudit(ctx, lead, organizationID, ks, "no duplicate found")
		if err != nil {
			return Outcome{}, err
		}
		return outcome, nil
	}

	if opts.SkipMerge {
		s.publishOutcome(ctx, organizationID, match.RecordID, ActionSkipped)
		dup := match.RecordID
		return Outcome{Action: ActionSkipped, LeadID: match.RecordID, DuplicateID: &dup, Keys: ks}, nil
	}

	outcome, temp, err := s.mergeIncoming(ctx, lead, organizationID, ks, match, opts.Strategy)
	if err != nil {
		// Cross-tenant merges are refused outright; anything else (store
		// outage mid-merge, the match target vanishing) degrades to plain
		// creation. When the incoming lead was already persisted as the
		// temporary merge record, that record is kept; creating again would
		// duplicate the submission.
		if apperr.Is(err, apperr.KindConflict) {
			return Outcome{}, err
		}
		s.log.DedupeFallback("merge failed", err)
		if temp != nil {
			return s.keepWithAudit(ctx, *temp, organizationID, ks, "deduplication failed, fallback")
		}
		return s.createWithAudit(ctx, lead, organizationID, ks, "deduplication failed, fallback")
	}
	return outcome, nil
}

// mergeIncoming creates the incoming lead as a temporary record so it is
// normalized through the same path as any other contact, then merges it with
// the matched record. Once the temporary record exists it is also returned on
// failure so the caller can keep it instead of creating the lead again.
func (s *Service) mergeIncoming(ctx context.Context, lead leads.IncomingLead, organizationID uuid.UUID, ks keys.KeySet, match *finder.Match, strategy merge.Strategy) (Outcome, *leads.Lead, error) {
	incoming, err := s.createContact(ctx, lead, organizationID)
	if err != nil {
		return Outcome{}, nil, apperr.Unavailable("create temporary record", err).WithOp("dedupe.mergeIncoming")
	}
	if err := s.store.CreateKeySet(ctx, incoming.ID, organizationID, ks); err != nil {
		// Non-fatal, the backfill sweep repairs missing key sets.
		s.log.StoreError("store key set", err)
	}

	existing, err := s.store.GetContact(ctx, match.RecordID, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Outcome{}, &incoming, apperr.NotFound("merge target missing").WithOp("dedupe.mergeIncoming")
		}
		return Outcome{}, &incoming, apperr.Unavailable("load merge target", err).WithOp("dedupe.mergeIncoming")
	}

	primary, duplicate := merge.ChoosePrimary(existing, incoming)
	result, err := s.Merge(ctx, primary.ID, duplicate.ID, organizationID, strategy)
	if err != nil {
		return Outcome{}, &incoming, err
	}

	if err := s.store.CreateTimelineEvent(ctx, repository.TimelineEventParams{
		LeadID:         result.PrimaryID,
		OrganizationID: organizationID,
		ActorType:      "system",
		EventType:      "dedupe_resolved",
		Title:          "duplicate found and merged",
		Metadata: map[string]any{
			"matchType":     match.Type.String(),
			"confidence":    match.Confidence,
			"matchedFields": match.MatchedFields,
			"previousScore": result.PreviousScore,
			"newScore":      result.Score,
			"messagesMoved": result.MessagesMoved,
			"eventsMoved":   result.EventsMoved,
		},
	}); err != nil {
		s.log.StoreError("dedupe audit entry", err)
	}

	s.publishOutcome(ctx, organizationID, result.PrimaryID, ActionMerged)
	dup := result.DuplicateID
	return Outcome{
		Action:      ActionMerged,
		LeadID:      result.PrimaryID,
		DuplicateID: &dup,
		Keys:        ks,
		Merge:       &result,
	}, nil, nil
}

// Merge folds the duplicate into the primary atomically. Both records are
// read, resolved and written inside one store unit of work, so a concurrent
// update to either record cannot be overwritten by a resolution computed
// against stale data. Missing or cross-tenant records refuse the merge with no
// partial write.
func (s *Service) Merge(ctx context.Context, primaryID, duplicateID, organizationID uuid.UUID, strategy merge.Strategy) (MergeResult, error) {
	var result MergeResult
	counts, err := s.store.ApplyMerge(ctx, primaryID, duplicateID, organizationID,
		func(primary, duplicate leads.Lead) (repository.MergeWriteParams, error) {
			r, params, err := resolvePair(primary, duplicate, strategy)
			if err != nil {
				return repository.MergeWriteParams{}, err
			}
			result = r
			return params, nil
		})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return MergeResult{}, apperr.NotFound("merge target missing").WithOp("dedupe.Merge")
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return MergeResult{}, err
		}
		return MergeResult{}, apperr.Unavailable("apply merge", err).WithOp("dedupe.Merge")
	}
	result.MessagesMoved = counts.MessagesMoved
	result.EventsMoved = counts.EventsMoved

	s.log.MergeEvent(primaryID.String(), duplicateID.String(), result.PreviousScore, result.Score, counts.MessagesMoved, counts.EventsMoved)
	s.bus.Publish(ctx, events.LeadsMerged{
		BaseEvent:     events.NewBaseEvent(),
		PrimaryID:     primaryID,
		DuplicateID:   duplicateID,
		TenantID:      organizationID,
		PreviousScore: result.PreviousScore,
		NewScore:      result.Score,
		MessagesMoved: counts.MessagesMoved,
		EventsMoved:   counts.EventsMoved,
	})
	return result, nil
}

// PreviewMerge computes the resolved fields and score for a merge without
// writing or locking anything. Used by operator confirmation flows.
func (s *Service) PreviewMerge(ctx context.Context, primaryID, duplicateID, organizationID uuid.UUID, strategy merge.Strategy) (MergeResult, error) {
	primary, err := s.loadContact(ctx, primaryID, organizationID)
	if err != nil {
		return MergeResult{}, err
	}
	duplicate, err := s.loadContact(ctx, duplicateID, organizationID)
	if err != nil {
		return MergeResult{}, err
	}
	result, _, err := resolvePair(primary, duplicate, strategy)
	return result, err
}

// resolvePair enforces the merge preconditions and computes the pure
// resolution from the two records as given. Shared by the transactional merge
// callback and the non-locking preview.
func resolvePair(primary, duplicate leads.Lead, strategy merge.Strategy) (MergeResult, repository.MergeWriteParams, error) {
	if primary.OrganizationID != duplicate.OrganizationID {
		return MergeResult{}, repository.MergeWriteParams{}, apperr.Conflict("records belong to different tenants").WithOp("dedupe.resolvePair")
	}

	merged := merge.ResolveFields(primary, duplicate, strategy.Fields)
	score := merge.ResolveScore(primary, duplicate, strategy.Score)

	result := MergeResult{
		PrimaryID:     primary.ID,
		DuplicateID:   duplicate.ID,
		Merged:        merged,
		PreviousScore: primary.Score,
		Score:         score,
	}
	params := repository.MergeWriteParams{
		PrimaryID:           primary.ID,
		DuplicateID:         duplicate.ID,
		OrganizationID:      primary.OrganizationID,
		Merged:              merged,
		Score:               score,
		ConsolidateMessages: strategy.ConsolidateMessages,
		ConsolidateTimeline: strategy.ConsolidateTimeline,
		AuditTitle:          fmt.Sprintf("merged contact %s", duplicate.ID),
		AuditMetadata: map[string]any{
			"previousScore": primary.Score,
			"newScore":      score,
			"duplicateId":   duplicate.ID.String(),
		},
	}
	return result, params, nil
}

func (s *Service) loadContact(ctx context.Context, id, organizationID uuid.UUID) (leads.Lead, error) {
	contact, err := s.store.GetContact(ctx, id, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return leads.Lead{}, apperr.NotFound(fmt.Sprintf("contact %s not found", id)).WithOp("dedupe.loadContact")
		}
		return leads.Lead{}, apperr.Unavailable("load contact", err).WithOp("dedupe.loadContact")
	}
	return contact, nil
}

func (s *Service) createContact(ctx context.Context, lead leads.IncomingLead, organizationID uuid.UUID) (leads.Lead, error) {
	return s.store.CreateContact(ctx, repository.CreateContactParams{
		OrganizationID: organizationID,
		Email:          lead.Email,
		Name:           lead.Name,
		Company:        lead.Company,
		Domain:         lead.Domain,
		Phone:          phone.NormalizeE164Region(lead.Phone, s.phoneRegion),
		Source:         lead.Source,
		Fields:         lead.Fields,
		UTM:            lead.UTM,
		Score:          lead.Score,
		Status:         "new",
	})
}

// createWithAudit creates the lead (with its key set when valid) and appends a
// timeline entry explaining why no merge happened.
func (s *Service) createWithAudit(ctx context.Context, lead leads.IncomingLead, organizationID uuid.UUID, ks keys.KeySet, reason string) (Outcome, error) {
	created, err := s.createContact(ctx, lead, organizationID)
	if err != nil {
		return Outcome{}, apperr.Unavailable("create contact", err).WithOp("dedupe.createWithAudit")
	}

	if ks.Valid() {
		if err := s.store.CreateKeySet(ctx, created.ID, organizationID, ks); err != nil {
			s.log.StoreError("store key set", err)
		}
	}

	if err := s.store.CreateTimelineEvent(ctx, repository.TimelineEventParams{
		LeadID:         created.ID,
		OrganizationID: organizationID,
		ActorType:      "system",
		EventType:      "dedupe_resolved",
		Title:          reason,
	}); err != nil {
		s.log.StoreError("dedupe audit entry", err)
	}

	s.publishOutcome(ctx, organizationID, created.ID, ActionCreated)
	return Outcome{Action: ActionCreated, LeadID: created.ID, Keys: ks}, nil
}

// keepWithAudit finalizes a lead that was already persisted as the temporary
// merge record when the merge itself could not complete. It mirrors
// createWithAudit without creating anything.
func (s *Service) keepWithAudit(ctx context.Context, created leads.Lead, organizationID uuid.UUID, ks keys.KeySet, reason string) (Outcome, error) {
	if err := s.store.CreateTimelineEvent(ctx, repository.TimelineEventParams{
		LeadID:         created.ID,
		OrganizationID: organizationID,
		ActorType:      "system",
		EventType:      "dedupe_resolved",
		Title:          reason,
	}); err != nil {
		s.log.StoreError("dedupe audit entry", err)
	}

	s.publishOutcome(ctx, organizationID, created.ID, ActionCreated)
	return Outcome{Action: ActionCreated, LeadID: created.ID, Keys: ks}, nil
}

func (s *Service) publishOutcome(ctx context.Context, organizationID, leadID uuid.UUID, action Action) {
	s.bus.Publish(ctx, events.LeadDeduplicated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		TenantID:  organizationID,
		Action:    string(action),
	})
}
