package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"ehs/internal/domain"
	"ehs/internal/offender/models"
	"ehs/internal/offender/names"
	id "ehs/pkg/domain"
	"ehs/pkg/platform/dberr"
	"ehs/pkg/platform/sentinel"
)

// Constraint names shared with schema.sql so both stores report the same
// violation.
const (
	ConstraintNamePostcode  = "offenders_normalized_name_postcode_key"
	ConstraintCompanyNumber = "offenders_company_number_key"
	table                   = "offenders"
)

// InMemory is a process-local offender store enforcing the same uniqueness
// rules as the Postgres schema: byCompany for numbered identities, byNamePC
// for the rest.
type InMemory struct {
	mu        sync.RWMutex
	byID      map[id.OffenderID]*models.Offender
	byCompany map[string]id.OffenderID
	byNamePC  map[string]id.OffenderID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:      make(map[id.OffenderID]*models.Offender),
		byCompany: make(map[string]id.OffenderID),
		byNamePC:  make(map[string]id.OffenderID),
	}
}

func namePostcodeKey(normalizedName, postcode string) string {
	return normalizedName + "\x00" + postcode
}

func (s *InMemory) Create(_ context.Context, o *models.Offender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.CompanyNumber != "" {
		if _, exists := s.byCompany[o.CompanyNumber]; exists {
			return &dberr.ConstraintViolation{Constraint: ConstraintCompanyNumber, Table: table, Code: dberr.UniqueViolation}
		}
		s.byCompany[o.CompanyNumber] = o.ID
	} else {
		npKey := namePostcodeKey(o.NormalizedName, o.Postcode)
		if _, exists := s.byNamePC[npKey]; exists {
			return &dberr.ConstraintViolation{Constraint: ConstraintNamePostcode, Table: table, Code: dberr.UniqueViolation}
		}
		s.byNamePC[npKey] = o.ID
	}
	s.byID[o.ID] = o.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, offenderID id.OffenderID) (*models.Offender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[offenderID]
	if !ok {
		return nil, fmt.Errorf("offender %s: %w", offenderID, sentinel.ErrNotFound)
	}
	return o.Clone(), nil
}

func (s *InMemory) FindByCompanyNumber(_ context.Context, number string) (*models.Offender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	oid, ok := s.byCompany[number]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", number, sentinel.ErrNotFound)
	}
	return s.byID[oid].Clone(), nil
}

// FindByNameAndPostcode returns the oldest offender with both values.
func (s *InMemory) FindByNameAndPostcode(_ context.Context, normalizedName, postcode string) (*models.Offender, error) {
	all := s.collect(func(o *models.Offender) bool {
		return o.NormalizedName == normalizedName && o.Postcode == postcode
	}, 1)
	if len(all) == 0 {
		return nil, fmt.Errorf("offender %q %q: %w", normalizedName, postcode, sentinel.ErrNotFound)
	}
	return all[0], nil
}

// FindByName returns every offender with the normalized name, oldest first.
func (s *InMemory) FindByName(_ context.Context, normalizedName string) ([]*models.Offender, error) {
	return s.collect(func(o *models.Offender) bool { return o.NormalizedName == normalizedName }, 0), nil
}

// FindByNameBlock returns up to limit offenders whose normalized name falls
// inside block, oldest first.
func (s *InMemory) FindByNameBlock(_ context.Context, block names.Block, limit int) ([]*models.Offender, error) {
	return s.collect(func(o *models.Offender) bool { return block.Contains(o.NormalizedName) }, limit), nil
}

func (s *InMemory) collect(match func(*models.Offender) bool, limit int) []*models.Offender {
	s.mu.RLock()
	var out []*models.Offender
	for _, o := range s.byID {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Offender) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AddAgency unions agency into the offender's agency set. Re-adding is a no-op
// and leaves UpdatedAt untouched.
func (s *InMemory) AddAgency(_ context.Context, offenderID id.OffenderID, agency domain.Agency, now time.Time) (*models.Offender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[offenderID]
	if !ok {
		return nil, fmt.Errorf("offender %s: %w", offenderID, sentinel.ErrNotFound)
	}
	if !o.HasAgency(agency) {
		o.Agencies = append(o.Agencies, agency)
		o.UpdatedAt = now
	}
	return o.Clone(), nil
}

// Count returns the number of stored offenders.
func (s *InMemory) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
