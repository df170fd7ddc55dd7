package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/xrash/smetrics"

	"ehs/internal/offender/models"
	"ehs/internal/offender/names"
	"ehs/pkg/platform/sentinel"
)

const (
	fuzzyPrefixLen    = 3
	fuzzyCandidateCap = 200
)

// Query is a subject reduced to its comparable form.
type Query struct {
	Name          string
	Postcode      string
	CompanyNumber string
}

// MatchResult is what a matcher found. A zero value means no match and lets
// the chain continue.
type MatchResult struct {
	Offender   *models.Offender
	Tier       models.Tier
	Score      float64
	Candidates []models.MatchCandidate
}

func (m MatchResult) Matched() bool { return m.Offender != nil }

// Matcher is one tier of the resolution chain.
type Matcher func(ctx context.Context, q Query) (MatchResult, error)

// chain runs matchers in order and stops at the first match. Ambiguous fuzzy
// candidates are carried to the end so the caller can surface them.
func chain(matchers ...Matcher) Matcher {
	return func(ctx context.Context, q Query) (MatchResult, error) {
		var pending []models.MatchCandidate
		for _, m := range matchers {
			res, err := m(ctx, q)
			if err != nil {
				return MatchResult{}, err
			}
			if res.Matched() {
				return res, nil
			}
			pending = append(pending, res.Candidates...)
		}
		return MatchResult{Candidates: pending}, nil
	}
}

func found(o *models.Offender, err error) (*models.Offender, error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return o, err
}

// conflicts reports whether two well-formed registration numbers disagree.
func conflicts(q Query, o *models.Offender) bool {
	return q.CompanyNumber != "" && o.CompanyNumber != "" && q.CompanyNumber != o.CompanyNumber
}

func companyNumberMatcher(store Store) Matcher {
	return func(ctx context.Context, q Query) (MatchResult, error) {
		if q.CompanyNumber == "" {
			return MatchResult{}, nil
		}
		o, err := found(store.FindByCompanyNumber(ctx, q.CompanyNumber))
		if err != nil || o == nil {
			return MatchResult{}, err
		}
		return MatchResult{Offender: o, Tier: models.TierCompanyNumber, Score: 1}, nil
	}
}

func namePostcodeMatcher(store Store) Matcher {
	return func(ctx context.Context, q Query) (MatchResult, error) {
		if q.Postcode == "" {
			return MatchResult{}, nil
		}
		o, err := found(store.FindByNameAndPostcode(ctx, q.Name, q.Postcode))
		if err != nil || o == nil || conflicts(q, o) {
			return MatchResult{}, err
		}
		return MatchResult{Offender: o, Tier: models.TierNamePostcode, Score: 1}, nil
	}
}

// nameMatcher picks the oldest identity with the exact normalized name.
func nameMatcher(store Store) Matcher {
	return func(ctx context.Context, q Query) (MatchResult, error) {
		all, err := store.FindByName(ctx, q.Name)
		if err != nil {
			return MatchResult{}, err
		}
		for _, o := range all {
			if !conflicts(q, o) {
				return MatchResult{Offender: o, Tier: models.TierName, Score: 1}, nil
			}
		}
		return MatchResult{}, nil
	}
}

// fuzzyMatcher scores identities that share a name prefix or a distinctive
// token with Jaro-Winkler.
// One hit above threshold matches. Several hits match only when exactly one
// clears autoAccept; otherwise the best are returned as candidates.
func fuzzyMatcher(store Store, th Thresholds) Matcher {
	return func(ctx context.Context, q Query) (MatchResult, error) {
		pool, err := store.FindByNameBlock(ctx, names.BlockFor(q.Name, fuzzyPrefixLen), fuzzyCandidateCap)
		if err != nil {
			return MatchResult{}, err
		}

		var hits []models.MatchCandidate
		for _, o := range pool {
			if conflicts(q, o) {
				continue
			}
			score := smetrics.JaroWinkler(q.Name, o.NormalizedName, 0.7, 4)
			if score >= th.Fuzzy {
				hits = append(hits, models.MatchCandidate{Offender: o, Score: score, Tier: models.TierFuzzy})
			}
		}
		if len(hits) == 0 {
			return MatchResult{}, nil
		}
		slices.SortStableFunc(hits, func(a, b models.MatchCandidate) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			}
			return strings.Compare(a.Offender.NormalizedName, b.Offender.NormalizedName)
		})

		best := hits[0]
		if len(hits) == 1 || (best.Score >= th.AutoAccept && hits[1].Score < th.AutoAccept) {
			return MatchResult{Offender: best.Offender, Tier: models.TierFuzzy, Score: best.Score}, nil
		}
		if len(hits) > th.MaxCandidates {
			hits = hits[:th.MaxCandidates]
		}
		return MatchResult{Candidates: hits}, nil
	}
}
