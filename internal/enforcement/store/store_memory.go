package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	id "ehs/pkg/domain"
	"ehs/pkg/platform/dberr"
	"ehs/pkg/platform/sentinel"
)

const table = "enforcement_records"

// InMemory enforces the (agency, regulator_id) key like the Postgres schema.
type InMemory struct {
	mu     sync.RWMutex
	byKey  map[domain.RecordKey]*models.Record
	byID   map[id.RecordID]domain.RecordKey
	writes int
}

func NewInMemory() *InMemory {
	return &InMemory{
		byKey: make(map[domain.RecordKey]*models.Record),
		byID:  make(map[id.RecordID]domain.RecordKey),
	}
}

func (s *InMemory) Insert(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[r.Key]; exists {
		return &dberr.ConstraintViolation{Constraint: models.KeyConstraint, Table: table, Code: dberr.UniqueViolation}
	}
	s.byKey[r.Key] = r.Clone()
	s.byID[r.ID] = r.Key
	s.writes++
	return nil
}

func (s *InMemory) FindByKey(_ context.Context, key domain.RecordKey) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", key, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

// UpdateFields writes only the listed fields, and only those whose stored
// value still differs, so replayed updates converge without extra writes.
func (s *InMemory) UpdateFields(_ context.Context, recordID id.RecordID, changes models.Changes, now time.Time) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[recordID]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	r := s.byKey[key]
	pending := models.Diff(r, changes.Next)
	pending.Fields = slices.DeleteFunc(pending.Fields, func(f models.Field) bool {
		return !slices.Contains(changes.Fields, f)
	})
	if !pending.Empty() {
		pending.Apply(r, now)
		s.writes++
	}
	return r.Clone(), nil
}

// Delete removes a record; used to exercise the vanished-row path.
func (s *InMemory) Delete(_ context.Context, key domain.RecordKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byKey[key]; ok {
		delete(s.byID, r.ID)
		delete(s.byKey, key)
	}
}

// List returns every record ordered by key.
func (s *InMemory) List(_ context.Context) []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0, len(s.byKey))
	for _, r := range s.byKey {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Record) int {
		if a.Key.Agency != b.Key.Agency {
			if a.Key.Agency < b.Key.Agency {
				return -1
			}
			return 1
		}
		switch {
		case a.Key.RegulatorID < b.Key.RegulatorID:
			return -1
		case a.Key.RegulatorID > b.Key.RegulatorID:
			return 1
		}
		return 0
	})
	return out
}

// Writes counts inserts and effective updates.
func (s *InMemory) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
