package merge

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/leads"
)

func TestResolveFieldsKeepPrimaryLeavesPrimaryUntouched(t *testing.T) {
	primary := leads.Lead{Email: "john@acme.com", Name: "John Doe"}
	duplicate := leads.Lead{Email: "jdoe@acme.com", Name: "J. Doe", Phone: "+15551234567"}

	merged := ResolveFields(primary, duplicate, FieldKeepPrimary)
	if merged.Email != "john@acme.com" || merged.Name != "John Doe" || merged.Phone != "" {
		t.Fatalf("expected primary fields to survive untouched, got %+v", merged)
	}
}

func TestResolveFieldsKeepLatestFollowsUpdatedAt(t *testing.T) {
	now := time.Now()
	primary := leads.Lead{Email: "john@acme.com", UpdatedAt: now}
	duplicate := leads.Lead{Email: "jdoe@acme.com", UpdatedAt: now.Add(time.Hour)}

	merged := ResolveFields(primary, duplicate, FieldKeepLatest)
	if merged.Email != "jdoe@acme.com" {
		t.Fatalf("expected the fresher duplicate to win, got %q", merged.Email)
	}

	merged = ResolveFields(duplicate, primary, FieldKeepLatest)
	if merged.Email != "jdoe@acme.com" {
		t.Fatalf("expected the fresher primary to survive, got %q", merged.Email)
	}
}

func TestResolveFieldsMergeNonNullPrefersDuplicate(t *testing.T) {
	primary := leads.Lead{
		Email:  "john@acme.com",
		Phone:  "+15551234567",
		Fields: map[string]any{"industry": "plumbing", "size": 10},
	}
	duplicate := leads.Lead{
		Email:  "john.doe@acme.com",
		Name:   "John Doe",
		Fields: map[string]any{"size": 25},
	}

	merged := ResolveFields(primary, duplicate, FieldMergeNonNull)
	if merged.Email != "john.doe@acme.com" {
		t.Fatalf("non-empty duplicate value should win, got %q", merged.Email)
	}
	if merged.Phone != "+15551234567" {
		t.Fatalf("empty duplicate value should fall back to primary, got %q", merged.Phone)
	}
	if merged.Name != "John Doe" {
		t.Fatalf("expected duplicate name to fill the gap, got %q", merged.Name)
	}
	if merged.Fields["industry"] != "plumbing" || merged.Fields["size"] != 25 {
		t.Fatalf("expected merged structured fields, got %v", merged.Fields)
	}
	if primary.Fields["size"] != 10 {
		t.Fatal("resolving must not mutate the primary's field map")
	}
}

func TestResolveFieldsKeepsPrimaryIdentity(t *testing.T) {
	primary := leads.Lead{ID: uuid.New(), OrganizationID: uuid.New()}
	duplicate := leads.Lead{ID: uuid.New(), OrganizationID: primary.OrganizationID, Email: "x@acme.com"}

	merged := ResolveFields(primary, duplicate, FieldMergeNonNull)
	if merged.ID != primary.ID || merged.OrganizationID != primary.OrganizationID {
		t.Fatal("merge must never change the surviving record's identity")
	}
}

func TestDeepMergeRecursesIntoNestedMaps(t *testing.T) {
	dst := map[string]any{
		"address": map[string]any{"city": "Austin", "zip": "78701"},
		"note":    "old",
	}
	src := map[string]any{
		"address": map[string]any{"zip": "78702"},
		"note":    "new",
	}

	merged := DeepMerge(dst, src)
	address := merged["address"].(map[string]any)
	if address["city"] != "Austin" || address["zip"] != "78702" {
		t.Fatalf("expected nested merge with src winning on leaves, got %v", address)
	}
	if merged["note"] != "new" {
		t.Fatalf("expected src to win on conflicting leaf, got %v", merged["note"])
	}
}

func TestDeepMergeTypeConflictTakesSource(t *testing.T) {
	dst := map[string]any{"meta": map[string]any{"a": 1}}
	src := map[string]any{"meta": "flat"}
	merged := DeepMerge(dst, src)
	if merged["meta"] != "flat" {
		t.Fatalf("expected src to replace on type conflict, got %v", merged["meta"])
	}
}

func TestResolveScoreStrategies(t *testing.T) {
	now := time.Now()
	primary := leads.Lead{Score: 60, UpdatedAt: now}
	duplicate := leads.Lead{Score: 75, UpdatedAt: now.Add(time.Minute)}

	if got := ResolveScore(primary, duplicate, ScoreHighest); got != 75 {
		t.Fatalf("highest: expected 75, got %d", got)
	}
	if got := ResolveScore(primary, duplicate, ScoreLatest); got != 75 {
		t.Fatalf("latest: expected 75, got %d", got)
	}
	if got := ResolveScore(primary, duplicate, ScoreSum); got != 135 {
		t.Fatalf("sum: expected 135, got %d", got)
	}
	if got := ResolveScore(primary, duplicate, ScoreAverage); got != 68 {
		t.Fatalf("average: expected rounded 68, got %d", got)
	}
}

func TestResolveScoreHighestIsSymmetric(t *testing.T) {
	a := leads.Lead{Score: 80}
	b := leads.Lead{Score: 30}
	if ResolveScore(a, b, ScoreHighest) != ResolveScore(b, a, ScoreHighest) {
		t.Fatal("highest score must not depend on argument order")
	}
}

func TestChoosePrimaryPrefersHigherScore(t *testing.T) {
	a := leads.Lead{ID: uuid.New(), Score: 80}
	b := leads.Lead{ID: uuid.New(), Score: 40}

	primary, duplicate := ChoosePrimary(b, a)
	if primary.ID != a.ID || duplicate.ID != b.ID {
		t.Fatal("expected the higher-scoring record to survive")
	}
}

func TestChoosePrimaryFallsBackToCompleteness(t *testing.T) {
	a := leads.Lead{ID: uuid.New(), Score: 50, Email: "a@acme.com", Phone: "+15550001111"}
	b := leads.Lead{ID: uuid.New(), Score: 50, Email: "b@acme.com"}

	primary, _ := ChoosePrimary(b, a)
	if primary.ID != a.ID {
		t.Fatal("expected the more complete record to survive")
	}
}

func TestChoosePrimaryFallsBackToEarliestCreation(t *testing.T) {
	now := time.Now()
	a := leads.Lead{ID: uuid.New(), Score: 50, Email: "a@acme.com", CreatedAt: now.Add(-time.Hour)}
	b := leads.Lead{ID: uuid.New(), Score: 50, Email: "b@acme.com", CreatedAt: now}

	primary, _ := ChoosePrimary(b, a)
	if primary.ID != a.ID {
		t.Fatal("expected the older record to survive")
	}
}

func TestChoosePrimaryIsDeterministicOnFullTie(t *testing.T) {
	created := time.Now()
	a := leads.Lead{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Score: 50, CreatedAt: created}
	b := leads.Lead{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Score: 50, CreatedAt: created}

	p1, _ := ChoosePrimary(a, b)
	p2, _ := ChoosePrimary(b, a)
	if p1.ID != p2.ID || p1.ID != a.ID {
		t.Fatalf("tie-break must be order independent and pick the smaller ID, got %s and %s", p1.ID, p2.ID)
	}
}
