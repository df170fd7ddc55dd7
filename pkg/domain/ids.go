// Package domain holds typed identifiers shared across packages. Each ID is a
// distinct named type over uuid.UUID so an offender ID can never be passed
// where a record ID is expected.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidID is returned for empty, malformed or nil identifiers.
var ErrInvalidID = errors.New("invalid identifier")

type (
	OffenderID uuid.UUID
	RecordID   uuid.UUID
	SessionID  uuid.UUID
	EventID    uuid.UUID
)

func NewOffenderID() OffenderID { return OffenderID(uuid.New()) }
func NewRecordID() RecordID     { return RecordID(uuid.New()) }
func NewSessionID() SessionID   { return SessionID(uuid.New()) }
func NewEventID() EventID       { return EventID(uuid.New()) }

func (id OffenderID) String() string { return uuid.UUID(id).String() }
func (id RecordID) String() string   { return uuid.UUID(id).String() }
func (id SessionID) String() string  { return uuid.UUID(id).String() }
func (id EventID) String() string    { return uuid.UUID(id).String() }

func (id OffenderID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func ParseOffenderID(s string) (OffenderID, error) {
	u, err := parseUUID("offender", s)
	return OffenderID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID("record", s)
	return RecordID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID("session", s)
	return SessionID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID("event", s)
	return EventID(u), err
}

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%s ID required: %w", kind, ErrInvalidID)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s ID %q: %w", kind, truncate(s), errors.Join(ErrInvalidID, err))
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s ID cannot be nil: %w", kind, ErrInvalidID)
	}
	return u, nil
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
