package dberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPg(t *testing.T) {
	t.Run("unique violation becomes typed", func(t *testing.T) {
		raw := fmt.Errorf("insert: %w", &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "enforcement_records_agency_regulator_id_key",
			TableName:      "enforcement_records",
		})

		err := FromPg(raw)

		var cv *ConstraintViolation
		require.ErrorAs(t, err, &cv)
		assert.Equal(t, "enforcement_records_agency_regulator_id_key", cv.Constraint)
		assert.Equal(t, "enforcement_records", cv.Table)
		assert.ErrorIs(t, err, ErrConstraintViolation)
		assert.True(t, On(err, "enforcement_records_agency_regulator_id_key"))
		assert.False(t, On(err, "other"))
	})

	t.Run("other codes pass through", func(t *testing.T) {
		raw := &pgconn.PgError{Code: "42P01"}
		assert.Same(t, error(raw), FromPg(raw))
	})
}

func TestFromPq(t *testing.T) {
	raw := &pq.Error{Code: "23505", Constraint: "offenders_normalized_name_postcode_key", Table: "offenders"}

	err := FromPq(raw)

	var cv *ConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "offenders", cv.Table)
	assert.Equal(t, UniqueViolation, cv.Code)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, FromPq(plain))
}
