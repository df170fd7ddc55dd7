// Package normalize maps agency-native raw records into the canonical
// NormalizedRecord. Every derivation is deterministic: the same raw record
// always yields the same normalized value, which the upsert engine relies on
// to report "existing" for unchanged re-ingests.
package normalize

import (
	"fmt"
	"strings"

	"ehs/internal/domain"
	"ehs/internal/offender/names"
	pstrings "ehs/pkg/platform/strings"
)

// mapper turns one agency's raw payload into the agency-independent parts of
// a record. Shared fields (key, subject, action date) are filled by Normalizer.
type mapper interface {
	mapCase(raw domain.RawRecord, rec *domain.NormalizedRecord) error
	mapNotice(raw domain.RawRecord, rec *domain.NormalizedRecord) error
	recordURL(kind domain.RecordKind, regulatorID string) string
}

type Normalizer struct {
	mappers map[domain.Agency]mapper
}

type Option func(*options)

type options struct {
	hseBaseURL string
	eaBaseURL  string
}

// WithBaseURLs overrides the agency base URLs used for canonical links.
func WithBaseURLs(hse, ea string) Option {
	return func(o *options) {
		if hse != "" {
			o.hseBaseURL = hse
		}
		if ea != "" {
			o.eaBaseURL = ea
		}
	}
}

func New(opts ...Option) *Normalizer {
	o := options{
		hseBaseURL: "https://resources.hse.gov.uk",
		eaBaseURL:  "https://environment.data.gov.uk",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Normalizer{
		mappers: map[domain.Agency]mapper{
			domain.AgencyHSE: hseMapper{baseURL: strings.TrimRight(o.hseBaseURL, "/")},
			domain.AgencyEA:  eaMapper{baseURL: strings.TrimRight(o.eaBaseURL, "/")},
		},
	}
}

// Normalize validates and maps a raw record. Errors are *domain.ValidationError.
func (n *Normalizer) Normalize(raw domain.RawRecord) (domain.NormalizedRecord, error) {
	m, ok := n.mappers[raw.Agency]
	if !ok {
		return domain.NormalizedRecord{}, &domain.ValidationError{
			Field: "agency", Reason: domain.ReasonInvalid, Detail: fmt.Sprintf("unknown agency %q", raw.Agency),
		}
	}

	regulatorID := strings.TrimSpace(raw.RegulatorID)
	if regulatorID == "" {
		return domain.NormalizedRecord{}, &domain.ValidationError{Field: "regulator_id", Reason: domain.ReasonRequired}
	}
	name := collapseSpace(raw.SubjectName)
	if name == "" {
		return domain.NormalizedRecord{}, &domain.ValidationError{Field: "subject_name", Reason: domain.ReasonRequired}
	}
	// A name with no letters or digits cannot be matched to an offender.
	if names.Normalize(name) == "" {
		return domain.NormalizedRecord{}, &domain.ValidationError{
			Field: "subject_name", Reason: domain.ReasonInvalid, Detail: "no letters or digits",
		}
	}
	if strings.TrimSpace(raw.ActionDate) == "" {
		return domain.NormalizedRecord{}, &domain.ValidationError{Field: "action_date", Reason: domain.ReasonRequired}
	}
	actionDate, err := ParseDate(raw.ActionDate)
	if err != nil {
		return domain.NormalizedRecord{}, &domain.ValidationError{Field: "action_date", Reason: domain.ReasonFormat, Detail: err.Error()}
	}

	rec := domain.NormalizedRecord{
		Key:        domain.RecordKey{Agency: raw.Agency, RegulatorID: regulatorID},
		Kind:       raw.Kind,
		ActionDate: actionDate,
		Subject: domain.Subject{
			Name:          name,
			Address:       joinAddress(raw.AddressLines),
			Town:          collapseSpace(raw.Town),
			Postcode:      NormalizePostcode(raw.Postcode),
			CompanyNumber: strings.ToUpper(strings.TrimSpace(raw.CompanyNumber)),
			BusinessType:  BusinessTypeHint(name),
		},
		CaseReference: strings.TrimSpace(raw.Field("case_reference")),
	}

	switch raw.Kind {
	case domain.KindCase:
		err = m.mapCase(raw, &rec)
	case domain.KindNotice:
		err = m.mapNotice(raw, &rec)
	default:
		err = &domain.ValidationError{Field: "kind", Reason: domain.ReasonInvalid, Detail: fmt.Sprintf("%q", raw.Kind)}
	}
	if err != nil {
		return domain.NormalizedRecord{}, err
	}

	if rec.URL == "" {
		rec.URL = m.recordURL(rec.Kind, regulatorID)
	}
	rec.RelatedRefs = pstrings.SortedSet(rec.RelatedRefs)
	rec.Description = collapseSpace(rec.Description)
	rec.OffenceResult = collapseSpace(rec.OffenceResult)

	if err := rec.Validate(); err != nil {
		return domain.NormalizedRecord{}, err
	}
	return rec, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinAddress(lines []string) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if c := collapseSpace(strings.Trim(l, " ,")); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ", ")
}

// NormalizePostcode upper-cases a UK postcode and puts exactly one space
// before the inward code. Values too short to be a postcode are returned
// upper-cased without spaces.
func NormalizePostcode(s string) string {
	compact := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(compact) < 5 {
		return compact
	}
	return compact[:len(compact)-3] + " " + compact[len(compact)-3:]
}

func money(raw domain.RawRecord, field string) (domain.Money, error) {
	m, err := domain.ParseMoney(raw.Field(field))
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Reason: domain.ReasonFormat, Detail: err.Error()}
	}
	return m, nil
}
