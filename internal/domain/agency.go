// Package domain holds the canonical enforcement record model shared by the
// normalizer, the offender resolver and the upsert engine.
package domain

import (
	"fmt"
	"strings"
)

// Agency is an upstream regulator with its own identifier scheme.
type Agency string

const (
	AgencyHSE Agency = "hse"
	AgencyEA  Agency = "ea"
)

func (a Agency) IsValid() bool {
	return a == AgencyHSE || a == AgencyEA
}

// ParseAgency accepts the short code in any case.
func ParseAgency(s string) (Agency, error) {
	a := Agency(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", &ValidationError{Field: "agency", Reason: ReasonInvalid, Detail: fmt.Sprintf("unknown agency %q", s)}
	}
	return a, nil
}

// RecordKind separates prosecutions from notices; each has its own
// synchronizable field set.
type RecordKind string

const (
	KindCase   RecordKind = "case"
	KindNotice RecordKind = "notice"
)

func (k RecordKind) IsValid() bool {
	return k == KindCase || k == KindNotice
}

func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", &ValidationError{Field: "kind", Reason: ReasonInvalid, Detail: fmt.Sprintf("unknown record kind %q", s)}
	}
	return k, nil
}

// RecordKey is the uniqueness scope of an enforcement record. Regulator IDs
// are only unique within one agency.
type RecordKey struct {
	Agency      Agency `json:"agency"`
	RegulatorID string `json:"regulator_id"`
}

func (k RecordKey) String() string {
	return string(k.Agency) + "/" + k.RegulatorID
}

func (k RecordKey) Validate() error {
	if !k.Agency.IsValid() {
		return &ValidationError{Field: "agency", Reason: ReasonInvalid}
	}
	if strings.TrimSpace(k.RegulatorID) == "" {
		return &ValidationError{Field: "regulator_id", Reason: ReasonRequired}
	}
	return nil
}
