package repository

import (
	"context"
	"time"

	"leadflow_backend/internal/dedupe/finder"
	"leadflow_backend/internal/dedupe/keys"
	"leadflow_backend/internal/leads"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateKeySet stores the derived fingerprint row for a contact.
func (r *Repository) CreateKeySet(ctx context.Context, recordID, organizationID uuid.UUID, ks keys.KeySet) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dedupe_key_sets (record_id, organization_id, email_hash, domain, name_key)
		VALUES ($1, $2, $3, $4, $5)
	`, recordID, organizationID, nullable(ks.EmailHash), nullable(ks.Domain), nullable(ks.NameKey))
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const keySetSelectCols = `
	record_id, COALESCE(email_hash, ''), COALESCE(domain, ''), COALESCE(name_key, '')`

// FindKeySetsByEmailHash returns key sets with an exact email-hash match,
// tenant-scoped and bounded by since when non-zero.
func (r *Repository) FindKeySetsByEmailHash(ctx context.Context, organizationID uuid.UUID, emailHash string, since time.Time) ([]finder.StoredKeySet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+keySetSelectCols+`
		FROM dedupe_key_sets
		WHERE organization_id = $1 AND email_hash = $2 AND ($3::timestamptz IS NULL OR created_at >= $3)
	`, organizationID, emailHash, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKeySets(rows)
}

// FindKeySetsByDomain returns key sets sharing the normalized domain.
func (r *Repository) FindKeySetsByDomain(ctx context.Context, organizationID uuid.UUID, domain string, since time.Time) ([]finder.StoredKeySet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+keySetSelectCols+`
		FROM dedupe_key_sets
		WHERE organization_id = $1 AND domain = $2 AND ($3::timestamptz IS NULL OR created_at >= $3)
	`, organizationID, domain, sinceArg(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKeySets(rows)
}

// FindKeySetsWithName returns a bounded sample of key sets carrying a name
// key, newest first. The limit is a performance cap for the full-tenant fuzzy
// scan.
func (r *Repository) FindKeySetsWithName(ctx context.Context, organizationID uuid.UUID, since time.Time, limit int) ([]finder.StoredKeySet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+keySetSelectCols+`
		FROM dedupe_key_sets
		WHERE organization_id = $1 AND name_key IS NOT NULL AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, organizationID, sinceArg(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKeySets(rows)
}

func sinceArg(since time.Time) *time.Time {
	if since.IsZero() {
		return nil
	}
	return &since
}

func collectKeySets(rows pgx.Rows) ([]finder.StoredKeySet, error) {
	items := make([]finder.StoredKeySet, 0)
	for rows.Next() {
		var item finder.StoredKeySet
		if err := rows.Scan(&item.RecordID, &item.EmailHash, &item.Domain, &item.NameKey); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// repointKeySetsTx re-owns the duplicate's key-set rows to the primary. Rows
// identical to one the primary already holds are deleted instead of moved so a
// merge never duplicates fingerprints.
func repointKeySetsTx(ctx context.Context, tx pgx.Tx, primaryID, duplicateID, organizationID uuid.UUID) (moved, dropped int, err error) {
	dropTag, err := tx.Exec(ctx, `
		DELETE FROM dedupe_key_sets d
		WHERE d.record_id = $2 AND d.organization_id = $3
		  AND EXISTS (
			SELECT 1 FROM dedupe_key_sets p
			WHERE p.record_id = $1 AND p.organization_id = $3
			  AND p.email_hash IS NOT DISTINCT FROM d.email_hash
			  AND p.domain IS NOT DISTINCT FROM d.domain
			  AND p.name_key IS NOT DISTINCT FROM d.name_key
		  )
	`, primaryID, duplicateID, organizationID)
	if err != nil {
		return 0, 0, err
	}

	moveTag, err := tx.Exec(ctx, `
		UPDATE dedupe_key_sets SET record_id = $1 WHERE record_id = $2 AND organization_id = $3
	`, primaryID, duplicateID, organizationID)
	if err != nil {
		return 0, 0, err
	}

	return int(moveTag.RowsAffected()), int(dropTag.RowsAffected()), nil
}

// ListContactsWithoutKeySets returns contacts that have no stored fingerprint,
// oldest first. Used by the backfill utility.
func (r *Repository) ListContactsWithoutKeySets(ctx context.Context, organizationID uuid.UUID, limit int) ([]leads.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+contactSelectCols+`
		FROM contacts c
		WHERE c.organization_id = $1
		  AND NOT EXISTS (SELECT 1 FROM dedupe_key_sets k WHERE k.record_id = c.id)
		ORDER BY c.created_at ASC
		LIMIT $2
	`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]leads.Lead, 0)
	for rows.Next() {
		lead, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListOrganizations returns the distinct tenants present in the contacts
// table. Used by the backfill utility when no tenant is specified.
func (r *Repository) ListOrganizations(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT organization_id FROM contacts ORDER BY organization_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
