package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
//
// Justification: Pure function enforcing a domain invariant at the HTTP and
// CLI boundaries.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseOffenderID("")
		require.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseOffenderID("not-a-uuid")
		require.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseOffenderID(uuid.Nil.String())
		require.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseOffenderID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, OffenderID(validUUID), id)
		assert.Equal(t, validUUID.String(), id.String())
	})
}

func TestParseID_EdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE enforcement_records;--", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecordID(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidID)
				assert.Less(t, len(err.Error()), 200, "error message does not echo oversized input")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical parsing behavior.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errOffender := ParseOffenderID(validUUID)
		_, errRecord := ParseRecordID(validUUID)
		_, errSession := ParseSessionID(validUUID)
		_, errEvent := ParseEventID(validUUID)

		require.NoError(t, errOffender)
		require.NoError(t, errRecord)
		require.NoError(t, errSession)
		require.NoError(t, errEvent)
	})

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errOffender := ParseOffenderID(input)
			_, errRecord := ParseRecordID(input)
			_, errSession := ParseSessionID(input)
			_, errEvent := ParseEventID(input)

			require.Error(t, errOffender)
			require.Error(t, errRecord)
			require.Error(t, errSession)
			require.Error(t, errEvent)
		})
	}
}

func TestNewIDs(t *testing.T) {
	assert.False(t, NewOffenderID().IsNil())
	assert.False(t, NewRecordID().IsNil())
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}
