// Package dedupe provides the deduplication bounded context module.
// This file defines the module that encapsulates all dedupe setup.
package dedupe

import (
	"leadflow_backend/internal/dedupe/finder"
	"leadflow_backend/internal/dedupe/keys"
	"leadflow_backend/internal/dedupe/repository"
	"leadflow_backend/internal/dedupe/service"
	"leadflow_backend/internal/events"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the dedupe bounded context module.
type Module struct {
	service    *service.Service
	repository *repository.Repository
}

// NewModule creates and initializes the dedupe module with all its dependencies.
func NewModule(pool *pgxpool.Pool, bus events.Bus, cfg config.DedupeConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	builder := keys.NewBuilder(cfg.GetDedupeHashSalt(), cfg.GetCompanyDomainGuess())
	f := finder.New(repo, builder, cfg.GetStoreTimeout(), log)
	svc := service.New(repo, builder, f, bus, cfg.GetDefaultPhoneRegion(), log)

	return &Module{
		service:    svc,
		repository: repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "dedupe"
}

// Service returns the deduplication service.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the record store for maintenance tooling.
func (m *Module) Repository() *repository.Repository {
	return m.repository
}

// DefaultPolicyFrom builds the finder policy from configuration.
func DefaultPolicyFrom(cfg config.DedupeConfig) Policy {
	policy := finder.DefaultPolicy()
	policy.DomainNameThreshold = cfg.GetDomainNameThreshold()
	policy.NameOnlyThreshold = cfg.GetNameOnlyThreshold()
	policy.Lookback = cfg.GetDedupeLookback()
	policy.NameScanLimit = cfg.GetNameScanLimit()
	return policy
}
