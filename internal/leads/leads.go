// Package leads defines the canonical lead/contact types shared by the
// deduplication and routing bounded contexts. Only types defined here should
// be imported across context boundaries.
package leads

import (
	"time"

	"github.com/google/uuid"
)

// ScoreBand is the coarse categorical bucket derived from the numeric score.
type ScoreBand string

const (
	BandLow    ScoreBand = "LOW"
	BandMedium ScoreBand = "MEDIUM"
	BandHigh   ScoreBand = "HIGH"
)

// BandForScore maps a numeric score onto its band.
func BandForScore(score int) ScoreBand {
	switch {
	case score >= 70:
		return BandHigh
	case score >= 40:
		return BandMedium
	default:
		return BandLow
	}
}

// Lead is the canonical contact record. OrganizationID identifies the tenant
// a lead belongs to and is immutable after creation; every store operation is
// scoped by it.
type Lead struct {
	ID             uuid.UUID
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
	ScoreBand      ScoreBand
	Status         string
	OwnerID        *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Record flattens a stored lead into the nested field map consumed by the
// routing condition evaluator.
func (l Lead) Record() map[string]any {
	utm := make(map[string]any, len(l.UTM))
	for k, v := range l.UTM {
		utm[k] = v
	}
	return map[string]any{
		"email":     l.Email,
		"name":      l.Name,
		"company":   l.Company,
		"domain":    l.Domain,
		"phone":     l.Phone,
		"source":    l.Source,
		"score":     l.Score,
		"scoreBand": string(l.ScoreBand),
		"status":    l.Status,
		"fields":    l.Fields,
		"utm":       utm,
	}
}

// IncomingLead is a raw lead submission from any channel. All fields are
// optional; the deduplication engine decides what it can work with.
type IncomingLead struct {
	Email   string            `json:"email,omitempty"`
	Name    string            `json:"name,omitempty"`
	Company string            `json:"company,omitempty"`
	Domain  string            `json:"domain,omitempty"`
	Phone   string            `json:"phone,omitempty"`
	Source  string            `json:"source,omitempty"`
	Score   int               `json:"score,omitempty"`
	Fields  map[string]any    `json:"fields,omitempty"`
	UTM     map[string]string `json:"utm,omitempty"`
}

// Record flattens a lead into the nested field map consumed by the routing
// condition evaluator. Structured fields are reachable via "fields.*" and
// "utm.*" dot paths.
func (l IncomingLead) Record() map[string]any {
	utm := make(map[string]any, len(l.UTM))
	for k, v := range l.UTM {
		utm[k] = v
	}
	return map[string]any{
		"email":     l.Email,
		"name":      l.Name,
		"company":   l.Company,
		"domain":    l.Domain,
		"phone":     l.Phone,
		"source":    l.Source,
		"score":     l.Score,
		"scoreBand": string(BandForScore(l.Score)),
		"fields":    l.Fields,
		"utm":       utm,
	}
}
