package rules

import (
	"testing"

	"leadflow_backend/internal/routing/domain"
)

func sampleRecord() map[string]any {
	return map[string]any{
		"email":     "john@acme.com",
		"name":      "John Doe",
		"score":     75,
		"scoreBand": "HIGH",
		"source":    "webform",
		"fields": map[string]any{
			"industry": "plumbing",
			"address": map[string]any{
				"state": "TX",
			},
		},
		"utm": map[string]any{
			"campaign": "spring-promo",
		},
	}
}

func TestResolvePathWalksNestedMaps(t *testing.T) {
	record := sampleRecord()
	if got := ResolvePath(record, "fields.address.state"); got != "TX" {
		t.Fatalf("expected TX, got %v", got)
	}
	if got := ResolvePath(record, "utm.campaign"); got != "spring-promo" {
		t.Fatalf("expected campaign value, got %v", got)
	}
}

func TestResolvePathMissingSegmentsReturnNil(t *testing.T) {
	record := sampleRecord()
	for _, path := range []string{"missing", "fields.missing", "fields.address.missing", "email.deeper", "score.deeper"} {
		if got := ResolvePath(record, path); got != nil {
			t.Fatalf("expected nil for %q, got %v", path, got)
		}
	}
}

func TestEvaluateEqualityCoercesNumbers(t *testing.T) {
	record := sampleRecord()

	ok, _ := Evaluate(record, domain.Condition{Field: "score", Op: domain.OpEquals, Value: "75"})
	if !ok {
		t.Fatal("string \"75\" should equal numeric 75")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "score", Op: domain.OpEquals, Value: 75.0})
	if !ok {
		t.Fatal("float 75.0 should equal int 75")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "score", Op: domain.OpNotEquals, Value: 80})
	if !ok {
		t.Fatal("75 should not equal 80")
	}
}

func TestEvaluateNumericComparisons(t *testing.T) {
	record := sampleRecord()
	cases := []struct {
		op    domain.Operator
		value any
		want  bool
	}{
		{domain.OpGreaterThan, 70, true},
		{domain.OpGreaterThan, 75, false},
		{domain.OpGreaterEqual, 75, true},
		{domain.OpLessThan, 80, true},
		{domain.OpLessEqual, 74, false},
	}
	for _, tc := range cases {
		ok, _ := Evaluate(record, domain.Condition{Field: "score", Op: tc.op, Value: tc.value})
		if ok != tc.want {
			t.Fatalf("score %s %v: expected %t", tc.op, tc.value, tc.want)
		}
	}
}

func TestEvaluateNumericComparisonOnNonNumberIsFalse(t *testing.T) {
	ok, _ := Evaluate(sampleRecord(), domain.Condition{Field: "name", Op: domain.OpGreaterThan, Value: 5})
	if ok {
		t.Fatal("comparing a string field numerically must be false, not a panic")
	}
}

func TestEvaluateStringOperatorsAreCaseInsensitive(t *testing.T) {
	record := sampleRecord()

	ok, _ := Evaluate(record, domain.Condition{Field: "email", Op: domain.OpContains, Value: "ACME"})
	if !ok {
		t.Fatal("contains should ignore case")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "email", Op: domain.OpStartsWith, Value: "John"})
	if !ok {
		t.Fatal("starts_with should ignore case")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "email", Op: domain.OpEndsWith, Value: ".com"})
	if !ok {
		t.Fatal("ends_with failed")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "email", Op: domain.OpNotContains, Value: "gmail"})
	if !ok {
		t.Fatal("not_contains failed")
	}
}

func TestEvaluateRegex(t *testing.T) {
	record := sampleRecord()

	ok, _ := Evaluate(record, domain.Condition{Field: "email", Op: domain.OpRegex, Value: `^[a-z.]+@acme\.com$`})
	if !ok {
		t.Fatal("expected the pattern to match")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "email", Op: domain.OpRegex, Value: "([unclosed"})
	if ok {
		t.Fatal("an invalid pattern must evaluate to false, not panic")
	}
}

func TestEvaluateInOperators(t *testing.T) {
	record := sampleRecord()

	ok, _ := Evaluate(record, domain.Condition{Field: "source", Op: domain.OpIn, Value: []any{"webform", "api"}})
	if !ok {
		t.Fatal("expected source in list")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "source", Op: domain.OpIn, Value: []string{"email", "phone"}})
	if ok {
		t.Fatal("expected source not in list")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "source", Op: domain.OpNotIn, Value: []string{"email", "phone"}})
	if !ok {
		t.Fatal("not_in failed")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "source", Op: domain.OpIn, Value: "webform"})
	if ok {
		t.Fatal("a non-list value must evaluate to false")
	}
}

func TestEvaluateExists(t *testing.T) {
	record := sampleRecord()
	record["empty"] = ""

	ok, _ := Evaluate(record, domain.Condition{Field: "fields.industry", Op: domain.OpExists})
	if !ok {
		t.Fatal("populated field should exist")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "fields.budget", Op: domain.OpExists})
	if ok {
		t.Fatal("missing field should not exist")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "empty", Op: domain.OpExists})
	if ok {
		t.Fatal("empty string should not count as existing")
	}
	ok, _ = Evaluate(record, domain.Condition{Field: "fields.budget", Op: domain.OpNotExists})
	if !ok {
		t.Fatal("not_exists failed for a missing field")
	}
}

func TestEvaluateAllShortCircuitsAndTraces(t *testing.T) {
	record := sampleRecord()
	conditions := []domain.Condition{
		{Field: "score", Op: domain.OpGreaterThan, Value: 50},
		{Field: "source", Op: domain.OpEquals, Value: "phone"},
		{Field: "email", Op: domain.OpExists},
	}

	matched, trace := EvaluateAll(record, conditions)
	if matched {
		t.Fatal("expected the second condition to fail the set")
	}
	if len(trace) != 2 {
		t.Fatalf("expected evaluation to stop after the failing condition, got %d entries", len(trace))
	}
	if !trace[0].Result || trace[1].Result {
		t.Fatalf("unexpected trace results: %+v", trace)
	}
}

func TestEvaluateAllEmptyConditionsMatch(t *testing.T) {
	matched, trace := EvaluateAll(sampleRecord(), nil)
	if !matched {
		t.Fatal("a rule with no conditions matches everything")
	}
	if len(trace) != 0 {
		t.Fatalf("expected no trace entries, got %d", len(trace))
	}
}
