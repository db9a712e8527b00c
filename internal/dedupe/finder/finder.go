// Package finder searches stored key sets for candidate duplicates of an
// incoming lead and scores them.
package finder

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"leadflow_backend/internal/dedupe/keys"
	"leadflow_backend/internal/leads"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MatchType tags how a candidate was found. Ordering is significant: lower
// values outrank higher ones during candidate selection.
type MatchType int

const (
	// MatchExactEmail is an exact email-hash collision.
	MatchExactEmail MatchType = iota
	// MatchDomainName is a shared domain plus a similar name key.
	MatchDomainName
	// MatchFuzzyName is a name-key similarity match with no other signal.
	MatchFuzzyName
)

// String returns the wire/audit label for the match type.
func (t MatchType) String() string {
	switch t {
	case MatchExactEmail:
		return "exact-email"
	case MatchDomainName:
		return "domain-plus-name"
	case MatchFuzzyName:
		return "fuzzy-name"
	default:
		return "unknown"
	}
}

// Match is a scored candidate pairing. Ephemeral: produced fresh per lookup,
// never persisted.
type Match struct {
	RecordID      uuid.UUID
	Type          MatchType
	Confidence    float64
	MatchedFields []string
}

// Policy controls which searches run and how strict they are.
type Policy struct {
	EmailExact          bool
	DomainFuzzy         bool
	NameFuzzy           bool
	DomainNameThreshold float64
	NameOnlyThreshold   float64
	// Lookback restricts searches to key sets created within the window.
	// Zero means unbounded.
	Lookback time.Duration
	// NameScanLimit caps the number of name-keyed sets fetched for the
	// fuzzy-name search. The scan is a full-tenant comparison otherwise.
	NameScanLimit int
}

// DefaultPolicy enables all three searches with conservative thresholds.
func DefaultPolicy() Policy {
	return Policy{
		EmailExact:          true,
		DomainFuzzy:         true,
		NameFuzzy:           true,
		DomainNameThreshold: 0.5,
		NameOnlyThreshold:   0.85,
		NameScanLimit:       500,
	}
}

// StoredKeySet is a key-set row as returned by the record store.
type StoredKeySet struct {
	RecordID  uuid.UUID
	EmailHash string
	Domain    string
	NameKey   string
}

// Store is the record-store surface the finder needs. All lookups are scoped
// to a tenant and an optional creation-time lower bound (zero time = no bound).
type Store interface {
	FindKeySetsByEmailHash(ctx context.Context, organizationID uuid.UUID, emailHash string, since time.Time) ([]StoredKeySet, error)
	FindKeySetsByDomain(ctx context.Context, organizationID uuid.UUID, domain string, since time.Time) ([]StoredKeySet, error)
	FindKeySetsWithName(ctx context.Context, organizationID uuid.UUID, since time.Time, limit int) ([]StoredKeySet, error)
}

// Finder runs duplicate candidate searches.
type Finder struct {
	store   Store
	builder *keys.Builder
	timeout time.Duration
	log     *logger.Logger
}

// New creates a finder. timeout bounds each store call; zero disables the bound.
func New(store Store, builder *keys.Builder, timeout time.Duration, log *logger.Logger) *Finder {
	return &Finder{store: store, builder: builder, timeout: timeout, log: log}
}

// FindDuplicate builds keys for the lead and runs the enabled searches,
// returning the best-ranked candidate or nil when nothing clears its
// threshold. The returned KeySet is always the one built for the lead, valid
// or not. Store failures surface as apperr.KindUnavailable.
func (f *Finder) FindDuplicate(ctx context.Context, lead leads.IncomingLead, organizationID uuid.UUID, policy Policy) (*Match, keys.KeySet, error) {
	ks := f.builder.Build(keys.Input{
		Email:   lead.Email,
		Name:    lead.Name,
		Company: lead.Company,
		Domain:  lead.Domain,
	})
	if !ks.Valid() {
		return nil, ks, apperr.Validation("no dedupe key could be derived").WithOp("finder.FindDuplicate")
	}

	since := time.Time{}
	if policy.Lookback > 0 {
		since = time.Now().Add(-policy.Lookback)
	}

	var (
		mu      sync.Mutex
		matches []Match
	)
	collect := func(found []Match) {
		mu.Lock()
		matches = append(matches, found...)
		mu.Unlock()
	}

	// The three searches are independent; run them concurrently.
	g, gctx := errgroup.WithContext(ctx)

	if policy.EmailExact && ks.EmailHash != "" {
		g.Go(func() error {
			found, err := f.searchExactEmail(gctx, organizationID, ks, since)
			if err != nil {
				return err
			}
			collect(found)
			return nil
		})
	}

	if policy.DomainFuzzy && ks.Domain != "" && ks.NameKey != "" {
		g.Go(func() error {
			found, err := f.searchDomainName(gctx, organizationID, ks, since, policy.DomainNameThreshold)
			if err != nil {
				return err
			}
			collect(found)
			return nil
		})
	}

	if policy.NameFuzzy && ks.NameKey != "" {
		g.Go(func() error {
			found, err := f.searchFuzzyName(gctx, organizationID, ks, since, policy)
			if err != nil {
				return err
			}
			collect(found)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, ks, apperr.Unavailable("duplicate search failed", err).WithOp("finder.FindDuplicate")
	}

	best := selectCandidate(matches)
	return best, ks, nil
}

func (f *Finder) searchExactEmail(ctx context.Context, organizationID uuid.UUID, ks keys.KeySet, since time.Time) ([]Match, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	rows, err := f.store.FindKeySetsByEmailHash(ctx, organizationID, ks.EmailHash, since)
	if err != nil {
		return nil, err
	}
	found := make([]Match, 0, len(rows))
	for _, row := range rows {
		found = append(found, Match{
			RecordID:      row.RecordID,
			Type:          MatchExactEmail,
			Confidence:    1.0,
			MatchedFields: []string{"emailHash"},
		})
	}
	return found, nil
}

func (f *Finder) searchDomainName(ctx context.Context, organizationID uuid.UUID, ks keys.KeySet, since time.Time, threshold float64) ([]Match, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	rows, err := f.store.FindKeySetsByDomain(ctx, organizationID, ks.Domain, since)
	if err != nil {
		return nil, err
	}
	var found []Match
	for _, row := range rows {
		if row.NameKey == "" {
			continue
		}
		sim := keys.Similarity(ks.NameKey, row.NameKey)
		if sim < threshold {
			continue
		}
		found = append(found, Match{
			RecordID:      row.RecordID,
			Type:          MatchDomainName,
			Confidence:    sim,
			MatchedFields: []string{"domain", "nameKey"},
		})
	}
	return found, nil
}

func (f *Finder) searchFuzzyName(ctx context.Context, organizationID uuid.UUID, ks keys.KeySet, since time.Time, policy Policy) ([]Match, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	limit := policy.NameScanLimit
	if limit <= 0 {
		limit = DefaultPolicy().NameScanLimit
	}
	rows, err := f.store.FindKeySetsWithName(ctx, organizationID, since, limit)
	if err != nil {
		return nil, err
	}
	var found []Match
	for _, row := range rows {
		sim := keys.Similarity(ks.NameKey, row.NameKey)
		if sim < policy.NameOnlyThreshold {
			continue
		}
		found = append(found, Match{
			RecordID:      row.RecordID,
			Type:          MatchFuzzyName,
			Confidence:    sim,
			MatchedFields: []string{"nameKey"},
		})
	}
	return found, nil
}

func (f *Finder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// selectCandidate ranks matches by type priority, then descending confidence,
// then ascending record ID. The ID tie-break keeps selection deterministic
// across store implementations with unstable scan order.
func selectCandidate(matches []Match) *Match {
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Type != matches[j].Type {
			return matches[i].Type < matches[j].Type
		}
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return strings.Compare(matches[i].RecordID.String(), matches[j].RecordID.String()) < 0
	})
	best := matches[0]
	return &best
}
