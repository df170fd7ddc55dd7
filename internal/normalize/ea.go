package normalize

import (
	"net/url"

	"ehs/internal/domain"
	pstrings "ehs/pkg/platform/strings"
)

// eaMapper reads Environment Agency enforcement actions. The EA returns one
// result set per date-range query with court outcomes and notices mixed.
type eaMapper struct {
	baseURL string
}

func (m eaMapper) mapCase(raw domain.RawRecord, rec *domain.NormalizedRecord) error {
	var err error
	if rec.Fine, err = money(raw, "fine"); err != nil {
		return err
	}
	if rec.Costs, err = money(raw, "costs"); err != nil {
		return err
	}
	if rec.HearingDate, err = optionalDate(raw, "court_date"); err != nil {
		return err
	}
	rec.OffenceResult = raw.Field("outcome")
	rec.Description = raw.Field("offence_description")
	rec.Legislation = LegislationTags(raw.Field("act"), raw.Field("section"), raw.Field("offence_description"))
	rec.URL = raw.Field("url")
	rec.RelatedRefs = pstrings.SplitList(raw.Field("related_actions"))
	return nil
}

func (m eaMapper) mapNotice(raw domain.RawRecord, rec *domain.NormalizedRecord) error {
	var err error
	if rec.ComplianceDate, err = optionalDate(raw, "compliance_deadline"); err != nil {
		return err
	}
	nt := raw.Field("notice_type")
	if nt == "" {
		nt = raw.Field("action_type")
	}
	rec.NoticeType = noticeType(nt)
	rec.OffenceResult = raw.Field("outcome")
	rec.Description = raw.Field("offence_description")
	rec.Legislation = LegislationTags(raw.Field("act"), raw.Field("offence_description"), nt)
	rec.URL = raw.Field("url")
	rec.RelatedRefs = pstrings.SplitList(raw.Field("related_actions"))
	return nil
}

func (m eaMapper) recordURL(_ domain.RecordKind, regulatorID string) string {
	return m.baseURL + "/public-register/enforcement-action/registration/" + url.PathEscape(regulatorID)
}
