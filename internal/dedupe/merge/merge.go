// Package merge contains the pure conflict-resolution logic for folding a
// duplicate contact into a primary. It has no side effects; the service layer
// applies its output inside a transaction.
package merge

import (
	"math"
	"strings"

	"leadflow_backend/internal/leads"
)

// FieldStrategy selects how conflicting contact fields are resolved.
type FieldStrategy int

const (
	// FieldKeepPrimary leaves the primary's fields untouched.
	FieldKeepPrimary FieldStrategy = iota
	// FieldKeepLatest copies the duplicate's fields wholesale when the
	// duplicate was updated more recently.
	FieldKeepLatest
	// FieldMergeNonNull prefers the duplicate's value per field when it is
	// non-empty, deep-merging the structured maps.
	FieldMergeNonNull
)

// ScoreStrategy selects how the two numeric scores are combined.
type ScoreStrategy int

const (
	// ScoreHighest keeps the larger of the two scores.
	ScoreHighest ScoreStrategy = iota
	// ScoreLatest keeps the score of the most recently updated record.
	ScoreLatest
	// ScoreSum adds the scores.
	ScoreSum
	// ScoreAverage takes the rounded mean.
	ScoreAverage
)

// Strategy is the full merge configuration.
type Strategy struct {
	Fields              FieldStrategy
	Score               ScoreStrategy
	ConsolidateMessages bool
	ConsolidateTimeline bool
}

// DefaultStrategy merges non-null fields preferring the duplicate, keeps the
// highest score and consolidates all history.
func DefaultStrategy() Strategy {
	return Strategy{
		Fields:              FieldMergeNonNull,
		Score:               ScoreHighest,
		ConsolidateMessages: true,
		ConsolidateTimeline: true,
	}
}

// ResolveFields computes the post-merge field snapshot for the primary.
// The returned lead keeps the primary's identity (ID, tenant, ownership,
// timestamps); only contact data changes.
func ResolveFields(primary, duplicate leads.Lead, strategy FieldStrategy) leads.Lead {
	merged := primary

	switch strategy {
	case FieldKeepPrimary:
		// no field changes

	case FieldKeepLatest:
		if duplicate.UpdatedAt.After(primary.UpdatedAt) {
			merged.Email = duplicate.Email
			merged.Name = duplicate.Name
			merged.Phone = duplicate.Phone
			merged.Company = duplicate.Company
			merged.Domain = duplicate.Domain
			merged.Source = duplicate.Source
			merged.Fields = cloneFieldMap(duplicate.Fields)
			merged.UTM = cloneUTMMap(duplicate.UTM)
		}

	case FieldMergeNonNull:
		merged.Email = preferNonEmpty(duplicate.Email, primary.Email)
		merged.Name = preferNonEmpty(duplicate.Name, primary.Name)
		merged.Phone = preferNonEmpty(duplicate.Phone, primary.Phone)
		merged.Company = preferNonEmpty(duplicate.Company, primary.Company)
		merged.Domain = preferNonEmpty(duplicate.Domain, primary.Domain)
		merged.Source = preferNonEmpty(duplicate.Source, primary.Source)
		merged.Fields = DeepMerge(cloneFieldMap(primary.Fields), duplicate.Fields)
		merged.UTM = mergeUTM(primary.UTM, duplicate.UTM)
	}

	return merged
}

// ResolveScore combines the two scores per the strategy.
func ResolveScore(primary, duplicate leads.Lead, strategy ScoreStrategy) int {
	switch strategy {
	case ScoreHighest:
		return max(primary.Score, duplicate.Score)
	case ScoreLatest:
		if duplicate.UpdatedAt.After(primary.UpdatedAt) {
			return duplicate.Score
		}
		return primary.Score
	case ScoreSum:
		return primary.Score + duplicate.Score
	case ScoreAverage:
		return int(math.Round(float64(primary.Score+duplicate.Score) / 2))
	default:
		return primary.Score
	}
}

// DeepMerge merges src into dst key by key, src winning on conflicting leaf
// keys and recursing when both sides hold nested maps. dst is mutated and
// returned; pass a clone when the original must survive.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = srcVal
			continue
		}
		dstMap, dstOK := dstVal.(map[string]any)
		srcMap, srcOK := srcVal.(map[string]any)
		if dstOK && srcOK {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}

// ChoosePrimary decides which of two contacts survives a merge: higher score
// wins, then greater data completeness, then earlier creation (first contact),
// then the smaller ID for full determinism.
func ChoosePrimary(a, b leads.Lead) (primary, duplicate leads.Lead) {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return a, b
		}
		return b, a
	}
	ca, cb := completeness(a), completeness(b)
	if ca != cb {
		if ca > cb {
			return a, b
		}
		return b, a
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	}
	if strings.Compare(a.ID.String(), b.ID.String()) <= 0 {
		return a, b
	}
	return b, a
}

// completeness counts populated core fields plus a small bonus per structured
// field key.
func completeness(l leads.Lead) int {
	count := 0
	for _, v := range []string{l.Email, l.Name, l.Phone, l.Company, l.Domain} {
		if strings.TrimSpace(v) != "" {
			count += 10
		}
	}
	count += len(l.Fields) + len(l.UTM)
	return count
}

func preferNonEmpty(preferred, fallback string) string {
	if strings.TrimSpace(preferred) != "" {
		return preferred
	}
	return fallback
}

func mergeUTM(primary, duplicate map[string]string) map[string]string {
	if primary == nil && duplicate == nil {
		return nil
	}
	merged := make(map[string]string, len(primary)+len(duplicate))
	for k, v := range primary {
		merged[k] = v
	}
	for k, v := range duplicate {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

func cloneFieldMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			clone[k] = cloneFieldMap(nested)
			continue
		}
		clone[k] = v
	}
	return clone
}

func cloneUTMMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	clone := make(map[string]string, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}
