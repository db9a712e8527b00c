// Command routing-test dry-runs a rule set against a sample lead without
// touching the database or the task queue. Owners come from a JSON roster file
// and pool cursors live in memory, so repeated runs are reproducible.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/internal/routing/pools"
	"leadflow_backend/internal/routing/repository"
	"leadflow_backend/internal/routing/rules"
	"leadflow_backend/internal/routing/rulesio"
	"leadflow_backend/internal/routing/service"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

type ownerFile struct {
	Strategy domain.Strategy `json:"strategy,omitempty"`
	Owners   []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Active    bool   `json:"active"`
		Capacity  int    `json:"capacity"`
		OpenLeads int    `json:"openLeads"`
	} `json:"owners"`
}

// staticRoster serves the routing service from the roster file.
type staticRoster struct {
	owners   []domain.Owner
	strategy domain.Strategy
}

func (s *staticRoster) ListOwners(_ context.Context, _ uuid.UUID) ([]domain.Owner, error) {
	return s.owners, nil
}

func (s *staticRoster) GetPoolStrategy(_ context.Context, _ uuid.UUID, _ string) (domain.Strategy, error) {
	if s.strategy.Valid() {
		return s.strategy, nil
	}
	return domain.StrategyRoundRobin, nil
}

func (s *staticRoster) GetDefaultPool(_ context.Context, _ uuid.UUID) (string, error) {
	return "", repository.ErrPoolNotFound
}

type testConfig struct{ defaultPool string }

func (c testConfig) GetDefaultPool() string   { return c.defaultPool }
func (c testConfig) GetPoolAMinCapacity() int { return 50 }
func (c testConfig) GetPoolBMinCapacity() int { return 20 }
func (c testConfig) GetAlertQueue() string    { return "routing" }

func main() {
	var (
		rulesPath   = flag.String("rules", "rules.yaml", "rule set file (yaml or json)")
		leadPath    = flag.String("lead", "lead.json", "sample lead file")
		ownersPath  = flag.String("owners", "owners.json", "owner roster file")
		defaultPool = flag.String("default-pool", "POOL_SDR", "fallback pool name")
	)
	flag.Parse()

	log := logger.New("development")

	ruleSet, err := rulesio.LoadFile(*rulesPath)
	if err != nil {
		fatal("load rules: %v", err)
	}

	lead, err := loadLead(*leadPath)
	if err != nil {
		fatal("load lead: %v", err)
	}

	roster, err := loadRoster(*ownersPath)
	if err != nil {
		fatal("load owners: %v", err)
	}

	cfg := testConfig{defaultPool: *defaultPool}
	engine := rules.NewEngine(validator.New(), log)
	assigner := pools.NewAssigner(pools.NewMemoryStateStore(), cfg)
	svc := service.NewRoutingService(engine, assigner, roster, nil, nil, log)

	result, err := svc.Route(context.Background(), lead, ruleSet)
	if err != nil {
		fatal("route: %v", err)
	}

	printResult(result)
}

func loadLead(path string) (leads.Lead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return leads.Lead{}, err
	}
	var incoming leads.IncomingLead
	if err := json.Unmarshal(data, &incoming); err != nil {
		return leads.Lead{}, err
	}
	return leads.Lead{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Email:          incoming.Email,
		Name:           incoming.Name,
		Company:        incoming.Company,
		Domain:         incoming.Domain,
		Phone:          incoming.Phone,
		Fields:         incoming.Fields,
		UTM:            incoming.UTM,
		Score:          incoming.Score,
		ScoreBand:      leads.BandForScore(incoming.Score),
		Status:         "new",
	}, nil
}

func loadRoster(path string) (*staticRoster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc ownerFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	roster := &staticRoster{strategy: doc.Strategy}
	for _, o := range doc.Owners {
		id, err := uuid.Parse(o.ID)
		if err != nil {
			return nil, fmt.Errorf("owner %q: %w", o.Name, err)
		}
		roster.owners = append(roster.owners, domain.Owner{
			ID:        id,
			Name:      o.Name,
			Active:    o.Active,
			Capacity:  o.Capacity,
			OpenLeads: o.OpenLeads,
		})
	}
	return roster, nil
}

func printResult(result *domain.Result) {
	fmt.Println("decision:")
	if result.OwnerID != nil {
		fmt.Printf("  owner: %s\n", result.OwnerID)
	} else {
		fmt.Println("  owner: unassigned")
	}
	if result.Pool != "" {
		fmt.Printf("  pool: %s\n", result.Pool)
	}
	if result.RuleID != "" {
		fmt.Printf("  rule: %s\n", result.RuleID)
	}
	fmt.Printf("  reason: %s\n", result.Reason)
	if result.Priority != nil {
		fmt.Printf("  priority: %d\n", *result.Priority)
	}
	if result.SLAMinutes != nil {
		fmt.Printf("  sla: %dm\n", *result.SLAMinutes)
	}
	for _, alert := range result.Alerts {
		fmt.Printf("  alert: channel=%s message=%q webhook=%s\n", alert.Channel, alert.Message, alert.Webhook)
	}

	fmt.Println("trace:")
	for _, entry := range result.Trace {
		fmt.Printf("  [%s] %s\n", entry.Step, entry.Reason)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
