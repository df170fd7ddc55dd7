package models

import (
	"slices"
	"time"

	"ehs/internal/domain"
	id "ehs/pkg/domain"
)

// KeyConstraint is the unique constraint on (agency, regulator_id). Stores
// report collisions on it as a *dberr.ConstraintViolation.
const KeyConstraint = "enforcement_records_agency_regulator_id_key"

// Outcome is the tri-state result of an upsert.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeExisting Outcome = "existing"
)

// Workflow names the path that changed a record, so consumers can tell a
// first-party ingestion from an operator correction.
type Workflow string

const (
	WorkflowIngestion  Workflow = "ingestion"
	WorkflowCorrection Workflow = "correction"
)

func (w Workflow) IsValid() bool {
	return w == WorkflowIngestion || w == WorkflowCorrection
}

// Workflows lists every workflow, e.g. for topic provisioning.
func Workflows() []Workflow {
	return []Workflow{WorkflowIngestion, WorkflowCorrection}
}

// Record is a persisted case or notice.
type Record struct {
	ID             id.RecordID       `json:"id"`
	Key            domain.RecordKey  `json:"key"`
	Kind           domain.RecordKind `json:"kind"`
	OffenderID     id.OffenderID     `json:"offender_id"`
	CaseReference  string            `json:"case_reference,omitempty"`
	OffenceResult  string            `json:"offence_result,omitempty"`
	Fine           domain.Money      `json:"fine"`
	Costs          domain.Money      `json:"costs"`
	ActionDate     time.Time         `json:"action_date"`
	HearingDate    *time.Time        `json:"hearing_date,omitempty"`
	ComplianceDate *time.Time        `json:"compliance_date,omitempty"`
	NoticeType     string            `json:"notice_type,omitempty"`
	Description    string            `json:"description,omitempty"`
	Legislation    []string          `json:"legislation,omitempty"`
	URL            string            `json:"url,omitempty"`
	RelatedRefs    []string          `json:"related_refs,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewRecord builds the row for a first insert of rec.
func NewRecord(rec domain.NormalizedRecord, offenderID id.OffenderID, now time.Time) *Record {
	return &Record{
		ID:             id.NewRecordID(),
		Key:            rec.Key,
		Kind:           rec.Kind,
		OffenderID:     offenderID,
		CaseReference:  rec.CaseReference,
		OffenceResult:  rec.OffenceResult,
		Fine:           rec.Fine,
		Costs:          rec.Costs,
		ActionDate:     rec.ActionDate,
		HearingDate:    cloneTime(rec.HearingDate),
		ComplianceDate: cloneTime(rec.ComplianceDate),
		NoticeType:     rec.NoticeType,
		Description:    rec.Description,
		Legislation:    slices.Clone(rec.Legislation),
		URL:            rec.URL,
		RelatedRefs:    slices.Clone(rec.RelatedRefs),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.HearingDate = cloneTime(r.HearingDate)
	c.ComplianceDate = cloneTime(r.ComplianceDate)
	c.Legislation = slices.Clone(r.Legislation)
	c.RelatedRefs = slices.Clone(r.RelatedRefs)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Result is what one upsert produced.
type Result struct {
	Record  *Record `json:"record"`
	Outcome Outcome `json:"outcome"`
	Changed []Field `json:"changed,omitempty"`
}
