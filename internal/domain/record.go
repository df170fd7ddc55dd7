package domain

import (
	"strings"
	"time"
)

// RawRecord is what a source adapter yields: agency-native text plus an
// agency-specific payload. Nothing in it has been validated.
type RawRecord struct {
	Agency        Agency            `json:"agency"`
	Kind          RecordKind        `json:"kind"`
	RegulatorID   string            `json:"regulator_id"`
	SubjectName   string            `json:"subject_name"`
	AddressLines  []string          `json:"address_lines,omitempty"`
	Town          string            `json:"town,omitempty"`
	Postcode      string            `json:"postcode,omitempty"`
	CompanyNumber string            `json:"company_number,omitempty"`
	ActionDate    string            `json:"action_date"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// Field returns a trimmed payload value, or "" when absent.
func (r RawRecord) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[name])
}

// BusinessType is a coarse classification of the offender derived from its
// name. It is a hint for new identities, not a legal fact.
type BusinessType string

const (
	BusinessUnknown        BusinessType = "unknown"
	BusinessLimitedCompany BusinessType = "limited_company"
	BusinessPLC            BusinessType = "plc"
	BusinessLLP            BusinessType = "llp"
	BusinessPartnership    BusinessType = "partnership"
	BusinessIndividual     BusinessType = "individual"
	BusinessPublicBody     BusinessType = "public_body"
)

// Subject is the offender as described by one record.
type Subject struct {
	Name          string       `json:"name"`
	Address       string       `json:"address,omitempty"`
	Town          string       `json:"town,omitempty"`
	Postcode      string       `json:"postcode,omitempty"`
	CompanyNumber string       `json:"company_number,omitempty"`
	BusinessType  BusinessType `json:"business_type"`
}

// NormalizedRecord is the canonical case or notice. It is a value: the
// normalizer builds it once and nothing downstream mutates it.
type NormalizedRecord struct {
	Key  RecordKey  `json:"key"`
	Kind RecordKind `json:"kind"`
	// CaseReference is the upstream reference. Distinct records may share it,
	// so it is informational and never part of the key.
	CaseReference  string     `json:"case_reference,omitempty"`
	Subject        Subject    `json:"subject"`
	OffenceResult  string     `json:"offence_result,omitempty"`
	Fine           Money      `json:"fine"`
	Costs          Money      `json:"costs"`
	ActionDate     time.Time  `json:"action_date"`
	HearingDate    *time.Time `json:"hearing_date,omitempty"`
	ComplianceDate *time.Time `json:"compliance_date,omitempty"`
	NoticeType     string     `json:"notice_type,omitempty"`
	Description    string     `json:"description,omitempty"`
	Legislation    []string   `json:"legislation,omitempty"`
	URL            string     `json:"url,omitempty"`
	RelatedRefs    []string   `json:"related_refs,omitempty"`
}

// Validate checks the fields every stored record needs.
func (r NormalizedRecord) Validate() error {
	if err := r.Key.Validate(); err != nil {
		return err
	}
	if !r.Kind.IsValid() {
		return &ValidationError{Field: "kind", Reason: ReasonInvalid}
	}
	if strings.TrimSpace(r.Subject.Name) == "" {
		return &ValidationError{Field: "subject_name", Reason: ReasonRequired}
	}
	if r.ActionDate.IsZero() {
		return &ValidationError{Field: "action_date", Reason: ReasonRequired}
	}
	if r.Fine < 0 || r.Costs < 0 {
		return &ValidationError{Field: "amount", Reason: ReasonInvalid, Detail: "negative amount"}
	}
	return nil
}
