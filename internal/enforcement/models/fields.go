package models

import (
	"strings"
	"time"

	"ehs/internal/domain"
	strs "ehs/pkg/platform/strings"
)

// Field is a synchronizable column: one a later sighting of the same record
// may change. Identity columns (id, key, offender, created_at) are never
// fields.
type Field string

const (
	FieldOffenceResult  Field = "offence_result"
	FieldFine           Field = "fine_pence"
	FieldCosts          Field = "costs_pence"
	FieldHearingDate    Field = "hearing_date"
	FieldComplianceDate Field = "compliance_date"
	FieldNoticeType     Field = "notice_type"
	FieldURL            Field = "url"
	FieldRelatedRefs    Field = "related_refs"
	FieldCaseReference  Field = "case_reference"
	FieldDescription    Field = "description"
)

var caseFields = []Field{
	FieldOffenceResult, FieldFine, FieldCosts, FieldHearingDate,
	FieldURL, FieldRelatedRefs, FieldCaseReference, FieldDescription,
}

var noticeFields = []Field{
	FieldNoticeType, FieldComplianceDate, FieldOffenceResult,
	FieldURL, FieldRelatedRefs, FieldDescription,
}

// SyncFields returns the fields compared for a record kind.
func SyncFields(kind domain.RecordKind) []Field {
	if kind == domain.KindNotice {
		return noticeFields
	}
	return caseFields
}

// Changes is a restricted update: only Fields are written, taking their
// values from Next.
type Changes struct {
	Fields []Field
	Next   *Record
}

func (c Changes) Empty() bool { return len(c.Fields) == 0 }

// Diff compares the synchronizable fields of current and next after value
// normalization and returns those that differ.
func Diff(current, next *Record) Changes {
	var changed []Field
	for _, f := range SyncFields(current.Kind) {
		if !fieldEqual(f, current, next) {
			changed = append(changed, f)
		}
	}
	return Changes{Fields: changed, Next: next}
}

func fieldEqual(f Field, a, b *Record) bool {
	switch f {
	case FieldOffenceResult:
		return textEqual(a.OffenceResult, b.OffenceResult)
	case FieldFine:
		return a.Fine == b.Fine
	case FieldCosts:
		return a.Costs == b.Costs
	case FieldHearingDate:
		return dateEqual(a.HearingDate, b.HearingDate)
	case FieldComplianceDate:
		return dateEqual(a.ComplianceDate, b.ComplianceDate)
	case FieldNoticeType:
		return textEqual(a.NoticeType, b.NoticeType)
	case FieldURL:
		return textEqual(a.URL, b.URL)
	case FieldRelatedRefs:
		return strs.EqualSets(a.RelatedRefs, b.RelatedRefs)
	case FieldCaseReference:
		return textEqual(a.CaseReference, b.CaseReference)
	case FieldDescription:
		return textEqual(a.Description, b.Description)
	}
	return true
}

func textEqual(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// dateEqual compares calendar dates; nil equals nil only.
func dateEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Apply copies the changed fields from c.Next onto r and stamps UpdatedAt.
func (c Changes) Apply(r *Record, now time.Time) {
	for _, f := range c.Fields {
		switch f {
		case FieldOffenceResult:
			r.OffenceResult = c.Next.OffenceResult
		case FieldFine:
			r.Fine = c.Next.Fine
		case FieldCosts:
			r.Costs = c.Next.Costs
		case FieldHearingDate:
			r.HearingDate = cloneTime(c.Next.HearingDate)
		case FieldComplianceDate:
			r.ComplianceDate = cloneTime(c.Next.ComplianceDate)
		case FieldNoticeType:
			r.NoticeType = c.Next.NoticeType
		case FieldURL:
			r.URL = c.Next.URL
		case FieldRelatedRefs:
			r.RelatedRefs = strs.SortedSet(c.Next.RelatedRefs)
		case FieldCaseReference:
			r.CaseReference = c.Next.CaseReference
		case FieldDescription:
			r.Description = c.Next.Description
		}
	}
	if len(c.Fields) > 0 {
		r.UpdatedAt = now
	}
}
