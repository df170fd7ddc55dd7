package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ehs/internal/domain"
	"ehs/internal/offender/models"
	"ehs/internal/offender/names"
	id "ehs/pkg/domain"
	"ehs/pkg/platform/dberr"
	"ehs/pkg/platform/sentinel"
)

const offenderColumns = `id, name, normalized_name, address, town, postcode, company_number,
	business_type, agencies, created_at, updated_at`

// PostgresStore persists offenders through database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, o *models.Offender) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offenders (`+offenderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(o.ID), o.Name, o.NormalizedName, o.Address, o.Town, o.Postcode,
		nullString(o.CompanyNumber), string(o.BusinessType), pq.Array(agencyStrings(o.Agencies)),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert offender: %w", dberr.FromPq(err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, offenderID id.OffenderID) (*models.Offender, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+offenderColumns+` FROM offenders WHERE id = $1`, uuid.UUID(offenderID))
	return scanOne(row)
}

func (s *PostgresStore) FindByCompanyNumber(ctx context.Context, number string) (*models.Offender, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+offenderColumns+` FROM offenders WHERE company_number = $1`, number)
	return scanOne(row)
}

func (s *PostgresStore) FindByNameAndPostcode(ctx context.Context, normalizedName, postcode string) (*models.Offender, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+offenderColumns+` FROM offenders
		WHERE normalized_name = $1 AND postcode = $2
		ORDER BY created_at, id
		LIMIT 1`, normalizedName, postcode)
	return scanOne(row)
}

func (s *PostgresStore) FindByName(ctx context.Context, normalizedName string) ([]*models.Offender, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+offenderColumns+` FROM offenders
		WHERE normalized_name = $1
		ORDER BY created_at, id`, normalizedName)
	if err != nil {
		return nil, fmt.Errorf("query offenders by name: %w", err)
	}
	return scanAll(rows)
}

func (s *PostgresStore) FindByNameBlock(ctx context.Context, block names.Block, limit int) ([]*models.Offender, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+offenderColumns+` FROM offenders
		WHERE ($1 <> '' AND left(normalized_name, char_length($1)) = $1)
		   OR string_to_array(normalized_name, ' ') && $2::text[]
		ORDER BY created_at, id
		LIMIT $3`, block.Prefix, pq.Array(block.Tokens), limit)
	if err != nil {
		return nil, fmt.Errorf("query offenders by name block: %w", err)
	}
	return scanAll(rows)
}

// AddAgency appends agency only when absent, so concurrent sightings from
// the same agency converge on one tag.
func (s *PostgresStore) AddAgency(ctx context.Context, offenderID id.OffenderID, agency domain.Agency, now time.Time) (*models.Offender, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE offenders
		SET agencies = array_append(agencies, $2), updated_at = $3
		WHERE id = $1 AND NOT ($2 = ANY(agencies))
		RETURNING `+offenderColumns, uuid.UUID(offenderID), string(agency), now)
	o, err := scanOne(row)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Either the tag was already present or the offender does not exist.
		return s.FindByID(ctx, offenderID)
	}
	return o, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (*models.Offender, error) {
	var (
		o        models.Offender
		rawID    uuid.UUID
		company  sql.NullString
		bt       string
		agencies []string
	)
	err := row.Scan(&rawID, &o.Name, &o.NormalizedName, &o.Address, &o.Town, &o.Postcode,
		&company, &bt, pq.Array(&agencies), &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("offender: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan offender: %w", err)
	}
	o.ID = id.OffenderID(rawID)
	o.CompanyNumber = company.String
	o.BusinessType = domain.BusinessType(bt)
	o.Agencies = make([]domain.Agency, 0, len(agencies))
	for _, a := range agencies {
		o.Agencies = append(o.Agencies, domain.Agency(a))
	}
	return &o, nil
}

func scanAll(rows *sql.Rows) ([]*models.Offender, error) {
	defer rows.Close()
	var out []*models.Offender
	for rows.Next() {
		o, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offenders: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func agencyStrings(agencies []domain.Agency) []string {
	out := make([]string, len(agencies))
	for i, a := range agencies {
		out[i] = string(a)
	}
	return out
}
