// Command lead-dedupe-backfill derives and stores dedupe fingerprints for
// contacts that predate the deduplication engine.
package main

import (
	"context"
	"flag"

	"github.com/google/uuid"

	"leadflow_backend/internal/dedupe/keys"
	"leadflow_backend/internal/dedupe/repository"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
)

func main() {
	var (
		dryRun = flag.Bool("dry-run", false, "compute fingerprints without writing them")
		limit  = flag.Int("limit", 500, "maximum contacts to process per tenant")
		tenant = flag.String("tenant", "", "restrict the backfill to one organization ID")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting dedupe key backfill", "dryRun", *dryRun, "limit", *limit)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	repo := repository.New(pool)
	builder := keys.NewBuilder(cfg.GetDedupeHashSalt(), cfg.GetCompanyDomainGuess())

	organizations, err := resolveTenants(ctx, repo, *tenant)
	if err != nil {
		log.Error("failed to resolve tenants", "error", err)
		return
	}

	var processed, written, skipped int
	for _, organizationID := range organizations {
		contacts, err := repo.ListContactsWithoutKeySets(ctx, organizationID, *limit)
		if err != nil {
			log.Error("failed to list contacts", "tenantId", organizationID, "error", err)
			continue
		}

		for _, contact := range contacts {
			processed++
			ks := builder.Build(keys.Input{
				Email:   contact.Email,
				Name:    contact.Name,
				Company: contact.Company,
				Domain:  contact.Domain,
			})
			if !ks.Valid() {
				skipped++
				log.Debug("no fingerprint derivable", "leadId", contact.ID, "tenantId", organizationID)
				continue
			}
			if *dryRun {
				log.Info("would store fingerprint", "leadId", contact.ID, "tenantId", organizationID,
					"hasEmailHash", ks.EmailHash != "", "domain", ks.Domain, "nameKey", ks.NameKey)
				continue
			}
			if err := repo.CreateKeySet(ctx, contact.ID, organizationID, ks); err != nil {
				log.Error("failed to store fingerprint", "leadId", contact.ID, "tenantId", organizationID, "error", err)
				continue
			}
			written++
		}
	}

	log.Info("dedupe key backfill completed", "processed", processed, "written", written, "skipped", skipped)
}

func resolveTenants(ctx context.Context, repo *repository.Repository, tenant string) ([]uuid.UUID, error) {
	if tenant == "" {
		return repo.ListOrganizations(ctx)
	}
	id, err := uuid.Parse(tenant)
	if err != nil {
		return nil, err
	}
	return []uuid.UUID{id}, nil
}
