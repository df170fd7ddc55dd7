package normalize

import (
	"net/url"
	"strings"

	"ehs/internal/domain"
	pstrings "ehs/pkg/platform/strings"
)

// hseMapper reads HSE prosecution and notice payloads. HSE publishes
// court cases and notices from separate registers with separate detail pages.
type hseMapper struct {
	baseURL string
}

func (m hseMapper) mapCase(raw domain.RawRecord, rec *domain.NormalizedRecord) error {
	var err error
	if rec.Fine, err = money(raw, "fine"); err != nil {
		return err
	}
	if rec.Costs, err = money(raw, "costs"); err != nil {
		return err
	}
	if rec.HearingDate, err = optionalDate(raw, "hearing_date"); err != nil {
		return err
	}
	rec.OffenceResult = raw.Field("result")
	rec.Description = raw.Field("breach")
	rec.Legislation = LegislationTags(raw.Field("legislation"), raw.Field("breach"))
	rec.URL = raw.Field("url")
	rec.RelatedRefs = pstrings.SplitList(raw.Field("related_cases"))
	return nil
}

func (m hseMapper) mapNotice(raw domain.RawRecord, rec *domain.NormalizedRecord) error {
	var err error
	field := "compliance_date"
	if raw.Field("revised_compliance_date") != "" {
		field = "revised_compliance_date"
	}
	if rec.ComplianceDate, err = optionalDate(raw, field); err != nil {
		return err
	}
	rec.NoticeType = noticeType(raw.Field("notice_type"))
	rec.OffenceResult = raw.Field("result")
	rec.Description = raw.Field("description")
	rec.Legislation = LegislationTags(raw.Field("legislation"), raw.Field("description"), raw.Field("notice_type"))
	rec.URL = raw.Field("url")
	rec.RelatedRefs = pstrings.SplitList(raw.Field("related_notices"))
	return nil
}

func (m hseMapper) recordURL(kind domain.RecordKind, regulatorID string) string {
	id := url.QueryEscape(regulatorID)
	if kind == domain.KindNotice {
		return m.baseURL + "/notices/notices/notice_details.asp?SF=CN&SV=" + id
	}
	return m.baseURL + "/convictions/case/case_details.asp?SF=CN&SV=" + id
}

// noticeType turns "Improvement Notice" or "improvement-notice" into
// "improvement_notice".
func noticeType(s string) string {
	s = strings.ToLower(collapseSpace(strings.NewReplacer("-", " ", "_", " ").Replace(s)))
	return strings.ReplaceAll(s, " ", "_")
}
