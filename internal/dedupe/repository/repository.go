package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"leadflow_backend/internal/leads"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("contact not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a single transaction. Any error (or panic unwinding)
// rolls the whole unit of work back.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type CreateContactParams struct {
	OrganizationID uuid.UUID
	Email          string
	Name           string
	Company        string
	Domain         string
	Phone          string
	Source         string
	Fields         map[string]any
	UTM            map[string]string
	Score          int
	Status         string
	OwnerID        *uuid.UUID
}

const contactSelectCols = `
	id, organization_id, email, name, company, domain, phone, source, fields, utm, score, score_band, status, owner_id, created_at, updated_at`

func (r *Repository) CreateContact(ctx context.Context, params CreateContactParams) (leads.Lead, error) {
	fieldsJSON, err := json.Marshal(params.Fields)
	if err != nil {
		return leads.Lead{}, err
	}
	utmJSON, err := json.Marshal(params.UTM)
	if err != nil {
		return leads.Lead{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO contacts (
			organization_id, email, name, company, domain, phone, source, fields, utm, score, score_band, status, owner_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING`+contactSelectCols+`
	`,
		params.OrganizationID, params.Email, params.Name, params.Company, params.Domain, params.Phone, params.Source,
		fieldsJSON, utmJSON, params.Score, string(leads.BandForScore(params.Score)), params.Status, params.OwnerID,
	)
	return scanContact(row)
}

func (r *Repository) GetContact(ctx context.Context, id, organizationID uuid.UUID) (leads.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+contactSelectCols+`
		FROM contacts WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	lead, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return leads.Lead{}, ErrNotFound
	}
	return lead, err
}

// getContactTx loads a contact inside a transaction and locks its row for the
// remainder of the unit of work.
func getContactTx(ctx context.Context, tx pgx.Tx, id, organizationID uuid.UUID) (leads.Lead, error) {
	row := tx.QueryRow(ctx, `
		SELECT`+contactSelectCols+`
		FROM contacts WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`, id, organizationID)
	lead, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return leads.Lead{}, ErrNotFound
	}
	return lead, err
}

// contactRowScanner is satisfied by pgx.Rows and pgx.Row so scanContact can be
// shared between single-row and multi-row queries.
type contactRowScanner interface {
	Scan(dest ...any) error
}

func scanContact(s contactRowScanner) (leads.Lead, error) {
	var lead leads.Lead
	var band string
	var rawFields, rawUTM []byte
	if err := s.Scan(
		&lead.ID,
		&lead.OrganizationID,
		&lead.Email,
		&lead.Name,
		&lead.Company,
		&lead.Domain,
		&lead.Phone,
		&lead.Source,
		&rawFields,
		&rawUTM,
		&lead.Score,
		&band,
		&lead.Status,
		&lead.OwnerID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return leads.Lead{}, err
	}
	lead.ScoreBand = leads.ScoreBand(band)
	if len(rawFields) > 0 {
		_ = json.Unmarshal(rawFields, &lead.Fields)
	}
	if len(rawUTM) > 0 {
		_ = json.Unmarshal(rawUTM, &lead.UTM)
	}
	return lead, nil
}

type TimelineEventParams struct {
	LeadID         uuid.UUID
	OrganizationID uuid.UUID
	ActorType      string
	EventType      string
	Title          string
	Metadata       map[string]any
}

// CreateTimelineEvent appends an audit entry to a lead's timeline.
func (r *Repository) CreateTimelineEvent(ctx context.Context, params TimelineEventParams) error {
	return createTimelineEventTx(ctx, r.pool, params)
}

// queryExecer is satisfied by *pgxpool.Pool and pgx.Tx.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func createTimelineEventTx(ctx context.Context, q queryExecer, params TimelineEventParams) error {
	metadataJSON, err := json.Marshal(params.Metadata)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO lead_timeline_events (lead_id, organization_id, actor_type, event_type, title, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, params.LeadID, params.OrganizationID, params.ActorType, params.EventType, params.Title, metadataJSON)
	return err
}

// MergeWriteParams is the fully resolved write set for one merge, computed by
// the resolve callback from the locked records.
type MergeWriteParams struct {
	PrimaryID           uuid.UUID
	DuplicateID         uuid.UUID
	OrganizationID      uuid.UUID
	Merged              leads.Lead
	Score               int
	ConsolidateMessages bool
	ConsolidateTimeline bool
	AuditTitle          string
	AuditMetadata       map[string]any
}

// MergeResolveFunc computes the merge write set from the two records as they
// stand inside the transaction. Returning an error aborts the merge with no
// partial write.
type MergeResolveFunc func(primary, duplicate leads.Lead) (MergeWriteParams, error)

// MergeWriteCounts reports how many dependent rows were re-pointed.
type MergeWriteCounts struct {
	MessagesMoved  int
	EventsMoved    int
	TimersMoved    int
	KeySetsMoved   int
	KeySetsDropped int
}

// ApplyMerge executes one merge as a single unit of work: both rows are read
// and locked inside the transaction, resolve computes the write set from those
// locked snapshots, and the writes follow in the same transaction. Updates
// landing after the locks are taken wait and then see the merged record or its
// absence; nothing read before the transaction can leak into the write.
func (r *Repository) ApplyMerge(ctx context.Context, primaryID, duplicateID, organizationID uuid.UUID, resolve MergeResolveFunc) (MergeWriteCounts, error) {
	var counts MergeWriteCounts
	err := r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// Lock the two rows in a stable order so concurrent merges over the
		// same pair cannot deadlock each other.
		firstID, secondID := primaryID, duplicateID
		if strings.Compare(secondID.String(), firstID.String()) < 0 {
			firstID, secondID = secondID, firstID
		}
		first, err := getContactTx(ctx, tx, firstID, organizationID)
		if err != nil {
			return err
		}
		second, err := getContactTx(ctx, tx, secondID, organizationID)
		if err != nil {
			return err
		}
		primary, duplicate := first, second
		if firstID != primaryID {
			primary, duplicate = second, first
		}

		params, err := resolve(primary, duplicate)
		if err != nil {
			return err
		}

		fieldsJSON, err := json.Marshal(params.Merged.Fields)
		if err != nil {
			return err
		}
		utmJSON, err := json.Marshal(params.Merged.UTM)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE contacts
			SET email = $2, name = $3, company = $4, domain = $5, phone = $6, source = $7,
				fields = $8, utm = $9, score = $10, score_band = $11, updated_at = now()
			WHERE id = $1 AND organization_id = $12
		`, params.PrimaryID, params.Merged.Email, params.Merged.Name, params.Merged.Company,
			params.Merged.Domain, params.Merged.Phone, params.Merged.Source, fieldsJSON, utmJSON,
			params.Score, string(leads.BandForScore(params.Score)), params.OrganizationID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if params.ConsolidateMessages {
			tag, err := tx.Exec(ctx, `
				UPDATE messages SET lead_id = $1 WHERE lead_id = $2 AND organization_id = $3
			`, params.PrimaryID, params.DuplicateID, params.OrganizationID)
			if err != nil {
				return err
			}
			counts.MessagesMoved = int(tag.RowsAffected())
		}

		if params.ConsolidateTimeline {
			tag, err := tx.Exec(ctx, `
				UPDATE lead_timeline_events SET lead_id = $1 WHERE lead_id = $2 AND organization_id = $3
			`, params.PrimaryID, params.DuplicateID, params.OrganizationID)
			if err != nil {
				return err
			}
			counts.EventsMoved = int(tag.RowsAffected())
		}

		// SLA timers always follow the surviving record.
		tag, err = tx.Exec(ctx, `
			UPDATE sla_timers SET lead_id = $1 WHERE lead_id = $2 AND organization_id = $3
		`, params.PrimaryID, params.DuplicateID, params.OrganizationID)
		if err != nil {
			return err
		}
		counts.TimersMoved = int(tag.RowsAffected())

		moved, dropped, err := repointKeySetsTx(ctx, tx, params.PrimaryID, params.DuplicateID, params.OrganizationID)
		if err != nil {
			return err
		}
		counts.KeySetsMoved = moved
		counts.KeySetsDropped = dropped

		if err := createTimelineEventTx(ctx, tx, TimelineEventParams{
			LeadID:         params.PrimaryID,
			OrganizationID: params.OrganizationID,
			ActorType:      "system",
			EventType:      "contact_merged",
			Title:          params.AuditTitle,
			Metadata:       params.AuditMetadata,
		}); err != nil {
			return err
		}

		tag, err = tx.Exec(ctx, `
			DELETE FROM contacts WHERE id = $1 AND organization_id = $2
		`, params.DuplicateID, params.OrganizationID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return MergeWriteCounts{}, err
	}
	return counts, nil
}
