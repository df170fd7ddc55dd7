package models

import (
	"slices"
	"time"

	"ehs/internal/domain"
	id "ehs/pkg/domain"
)

// Offender is a resolved real-world subject. Core identity fields are set at
// creation; later sightings only extend Agencies.
type Offender struct {
	ID             id.OffenderID       `json:"id"`
	Name           string              `json:"name"`
	NormalizedName string              `json:"normalized_name"`
	Address        string              `json:"address,omitempty"`
	Town           string              `json:"town,omitempty"`
	Postcode       string              `json:"postcode,omitempty"`
	CompanyNumber  string              `json:"company_number,omitempty"`
	BusinessType   domain.BusinessType `json:"business_type"`
	Agencies       []domain.Agency     `json:"agencies"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// HasAgency reports whether the offender has been observed under agency.
func (o *Offender) HasAgency(agency domain.Agency) bool {
	return slices.Contains(o.Agencies, agency)
}

// Clone returns a copy that shares no slices with o.
func (o *Offender) Clone() *Offender {
	if o == nil {
		return nil
	}
	c := *o
	c.Agencies = slices.Clone(o.Agencies)
	return &c
}

// Tier is the matcher that produced a resolution.
type Tier string

const (
	TierCompanyNumber Tier = "company_number"
	TierNamePostcode  Tier = "name_postcode"
	TierName          Tier = "name"
	TierFuzzy         Tier = "fuzzy"
	TierCreated       Tier = "created"
)

// MatchCandidate is a scored identity surfaced during resolution. Never stored.
type MatchCandidate struct {
	Offender *Offender `json:"offender"`
	Score    float64   `json:"score"`
	Tier     Tier      `json:"tier"`
}

// Resolution is the result of ResolveOrCreate. Candidates is non-empty only
// when a fuzzy match was ambiguous and a new identity was created instead.
type Resolution struct {
	Offender   *Offender        `json:"offender"`
	Tier       Tier             `json:"tier"`
	Created    bool             `json:"created"`
	Score      float64          `json:"score,omitempty"`
	Candidates []MatchCandidate `json:"candidates,omitempty"`
}

// Ambiguous reports whether candidates need manual review.
func (r *Resolution) Ambiguous() bool {
	return r != nil && len(r.Candidates) > 0
}
