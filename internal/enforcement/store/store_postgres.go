package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	id "ehs/pkg/domain"
	"ehs/pkg/platform/dberr"
	"ehs/pkg/platform/sentinel"
	strs "ehs/pkg/platform/strings"
)

const recordColumns = `id, agency, regulator_id, kind, offender_id, case_reference, offence_result,
	fine_pence, costs_pence, action_date, hearing_date, compliance_date, notice_type,
	description, legislation, url, related_refs, created_at, updated_at`

// PostgresStore persists records through pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, r *models.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enforcement_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		uuid.UUID(r.ID), string(r.Key.Agency), r.Key.RegulatorID, string(r.Kind), uuid.UUID(r.OffenderID),
		r.CaseReference, r.OffenceResult, int64(r.Fine), int64(r.Costs), dateOrNil(&r.ActionDate),
		dateOrNil(r.HearingDate), dateOrNil(r.ComplianceDate), r.NoticeType, r.Description,
		nonNil(r.Legislation), r.URL, nonNil(strs.SortedSet(r.RelatedRefs)), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", r.Key, dberr.FromPg(err))
	}
	return nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, key domain.RecordKey) (*models.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM enforcement_records
		WHERE agency = $1 AND regulator_id = $2`, string(key.Agency), key.RegulatorID)
	return scanRecord(row)
}

// FindByCaseReference lists records sharing an upstream case reference.
func (s *PostgresStore) FindByCaseReference(ctx context.Context, ref string) ([]*models.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM enforcement_records
		WHERE case_reference = $1
		ORDER BY agency, regulator_id`, ref)
	if err != nil {
		return nil, fmt.Errorf("query records by case reference: %w", err)
	}
	defer rows.Close()
	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateFields sets only the listed columns. Each column is guarded by IS
// DISTINCT FROM so concurrent or replayed updates converge and a no-op
// leaves updated_at alone.
func (s *PostgresStore) UpdateFields(ctx context.Context, recordID id.RecordID, changes models.Changes, now time.Time) (*models.Record, error) {
	if changes.Empty() {
		row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM enforcement_records WHERE id = $1`, uuid.UUID(recordID))
		return scanRecord(row)
	}

	args := []any{uuid.UUID(recordID), now}
	var sets, guards []string
	for _, f := range changes.Fields {
		v, ok := columnValue(f, changes.Next)
		if !ok {
			return nil, fmt.Errorf("update record %s: unknown field %q", recordID, f)
		}
		args = append(args, v)
		p := fmt.Sprintf("$%d", len(args))
		sets = append(sets, fmt.Sprintf("%s = %s", f, p))
		guards = append(guards, fmt.Sprintf("%s IS DISTINCT FROM %s", f, p))
	}
	query := fmt.Sprintf(`
		UPDATE enforcement_records SET %s, updated_at = $2
		WHERE id = $1 AND (%s)
		RETURNING %s`, strings.Join(sets, ", "), strings.Join(guards, " OR "), recordColumns)

	r, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, sentinel.ErrNotFound) {
		// Already converged, or the row is gone.
		row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM enforcement_records WHERE id = $1`, uuid.UUID(recordID))
		return scanRecord(row)
	}
	if err != nil {
		return nil, fmt.Errorf("update record %s: %w", recordID, dberr.FromPg(err))
	}
	return r, nil
}

// columnValue maps a field to its bind value. Field names double as column
// names, so unknown fields are rejected before reaching SQL.
func columnValue(f models.Field, r *models.Record) (any, bool) {
	switch f {
	case models.FieldOffenceResult:
		return r.OffenceResult, true
	case models.FieldFine:
		return int64(r.Fine), true
	case models.FieldCosts:
		return int64(r.Costs), true
	case models.FieldHearingDate:
		return dateOrNil(r.HearingDate), true
	case models.FieldComplianceDate:
		return dateOrNil(r.ComplianceDate), true
	case models.FieldNoticeType:
		return r.NoticeType, true
	case models.FieldURL:
		return r.URL, true
	case models.FieldRelatedRefs:
		return nonNil(strs.SortedSet(r.RelatedRefs)), true
	case models.FieldCaseReference:
		return r.CaseReference, true
	case models.FieldDescription:
		return r.Description, true
	}
	return nil, false
}

func scanRecord(row pgx.Row) (*models.Record, error) {
	var (
		r                         models.Record
		recID, offID              uuid.UUID
		agency, kind              string
		fine, costs               int64
		action, hearing, complies *time.Time
	)
	err := row.Scan(&recID, &agency, &r.Key.RegulatorID, &kind, &offID, &r.CaseReference, &r.OffenceResult,
		&fine, &costs, &action, &hearing, &complies, &r.NoticeType,
		&r.Description, &r.Legislation, &r.URL, &r.RelatedRefs, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	r.ID = id.RecordID(recID)
	r.OffenderID = id.OffenderID(offID)
	r.Key.Agency = domain.Agency(agency)
	r.Kind = domain.RecordKind(kind)
	r.Fine = domain.Money(fine)
	r.Costs = domain.Money(costs)
	if action != nil {
		r.ActionDate = action.UTC()
	}
	r.HearingDate = utc(hearing)
	r.ComplianceDate = utc(complies)
	return &r, nil
}

func dateOrNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
