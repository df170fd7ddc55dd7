package normalize

import (
	"slices"
	"strings"

	"ehs/internal/domain"
)

// legislationRules maps lower-cased phrases to classification tags. A text
// may match several rules.
var legislationRules = []struct {
	phrases []string
	tag     string
}{
	{[]string{"health and safety at work", "hswa", "hsw act"}, "hswa_1974"},
	{[]string{"construction (design and management)", "cdm 2015", "cdm regulations"}, "construction"},
	{[]string{"management of health and safety"}, "management_regulations"},
	{[]string{"environmental protection act", "epa 1990"}, "environmental_protection"},
	{[]string{"environmental permitting"}, "environmental_permitting"},
	{[]string{"water resources act", "water industry act"}, "water_resources"},
	{[]string{"waste", "fly-tipping", "fly tipping"}, "waste"},
	{[]string{"pollution", "polluting", "discharge"}, "pollution"},
	{[]string{"improvement notice"}, "improvement_notice"},
	{[]string{"prohibition notice"}, "prohibition_notice"},
	{[]string{"asbestos"}, "asbestos"},
}

// LegislationTags derives sorted, de-duplicated classification tags from
// free-text legislation or offence descriptions.
func LegislationTags(texts ...string) []string {
	var tags []string
	for _, text := range texts {
		lower := strings.ToLower(text)
		if lower == "" {
			continue
		}
		for _, rule := range legislationRules {
			for _, p := range rule.phrases {
				if strings.Contains(lower, p) {
					tags = append(tags, rule.tag)
					break
				}
			}
		}
	}
	if len(tags) == 0 {
		return nil
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}

var publicBodyWords = []string{
	"council", "borough", "nhs", "trust", "authority", "university", "police", "fire and rescue", "ministry",
}

// BusinessTypeHint guesses the legal form from the subject name.
func BusinessTypeHint(name string) domain.BusinessType {
	lower := strings.ToLower(collapseSpace(strings.TrimRight(name, ". ")))
	words := strings.Fields(lower)
	if len(words) == 0 {
		return domain.BusinessUnknown
	}
	last := strings.Trim(words[len(words)-1], ".()")

	switch {
	case last == "plc" || strings.HasSuffix(lower, "public limited company"):
		return domain.BusinessPLC
	case last == "llp" || strings.HasSuffix(lower, "limited liability partnership"):
		return domain.BusinessLLP
	case last == "ltd" || last == "limited" || last == "cyf" || last == "cyfyngedig":
		return domain.BusinessLimitedCompany
	}
	for _, w := range publicBodyWords {
		if strings.Contains(lower, w) {
			return domain.BusinessPublicBody
		}
	}
	if strings.Contains(lower, " & ") || strings.Contains(lower, " and sons") ||
		strings.Contains(lower, "partners") || strings.Contains(lower, "partnership") {
		return domain.BusinessPartnership
	}
	if len(words) >= 2 && len(words) <= 3 && allLetters(words) && !slices.ContainsFunc(words, isTradeWord) {
		return domain.BusinessIndividual
	}
	return domain.BusinessUnknown
}

var tradeWords = map[string]struct{}{
	"co": {}, "company": {}, "group": {}, "holdings": {}, "services": {}, "construction": {},
	"contractors": {}, "builders": {}, "engineering": {}, "industries": {}, "enterprises": {},
	"recycling": {}, "waste": {}, "farms": {}, "farm": {}, "developments": {}, "homes": {},
	"properties": {}, "solutions": {}, "transport": {}, "haulage": {}, "international": {},
	"uk": {}, "motors": {}, "foods": {}, "estates": {}, "water": {}, "utilities": {},
}

func isTradeWord(w string) bool {
	_, ok := tradeWords[w]
	return ok
}

func allLetters(words []string) bool {
	for _, w := range words {
		for _, r := range w {
			if (r < 'a' || r > 'z') && r != '-' && r != '\'' {
				return false
			}
		}
	}
	return true
}
