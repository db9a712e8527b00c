// Package repository provides Postgres access for the routing engine: owner
// rosters with live load counts and per-tenant pool configuration.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/routing/domain"
)

var ErrPoolNotFound = errors.New("pool not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOwners returns the tenant's owner roster with an open-lead count per
// owner. The count is a snapshot; routing treats it as advisory.
func (r *Repository) ListOwners(ctx context.Context, organizationID uuid.UUID) ([]domain.Owner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.name, o.active, o.capacity,
			COUNT(c.id) FILTER (WHERE c.status NOT IN ('closed', 'lost'))
		FROM owners o
		LEFT JOIN contacts c ON c.owner_id = o.id AND c.organization_id = o.organization_id
		WHERE o.organization_id = $1
		GROUP BY o.id, o.name, o.active, o.capacity
		ORDER BY o.created_at, o.id
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []domain.Owner
	for rows.Next() {
		var o domain.Owner
		var open int64
		if err := rows.Scan(&o.ID, &o.Name, &o.Active, &o.Capacity, &open); err != nil {
			return nil, err
		}
		o.OpenLeads = int(open)
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// GetDefaultPool returns the pool the tenant designated as its fallback
// target, or ErrPoolNotFound when no pool is marked default.
func (r *Repository) GetDefaultPool(ctx context.Context, organizationID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT name FROM routing_pools
		WHERE organization_id = $1 AND is_default
		ORDER BY name
		LIMIT 1
	`, organizationID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPoolNotFound
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// GetPoolStrategy returns the tenant's configured strategy for a pool.
// Unconfigured pools default to round robin.
func (r *Repository) GetPoolStrategy(ctx context.Context, organizationID uuid.UUID, pool string) (domain.Strategy, error) {
	var strategy string
	err := r.pool.QueryRow(ctx, `
		SELECT strategy FROM routing_pools
		WHERE organization_id = $1 AND name = $2
	`, organizationID, pool).Scan(&strategy)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StrategyRoundRobin, nil
	}
	if err != nil {
		return "", err
	}
	s := domain.Strategy(strategy)
	if !s.Valid() {
		return domain.StrategyRoundRobin, nil
	}
	return s, nil
}
