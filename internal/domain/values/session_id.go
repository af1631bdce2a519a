// Package values contains domain value objects that encapsulate
// primitive types with validation.
package values

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID uniquely identifies one caller session (one page or tab context).
// Every manifest, neighbor set and socket table is scoped to exactly one SessionID.
type SessionID struct {
	value uuid.UUID
}

// NewSessionID creates a new random session ID
func NewSessionID() SessionID {
	return SessionID{value: uuid.New()}
}

// ParseSessionID parses a string into a SessionID
func ParseSessionID(s string) (SessionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, fmt.Errorf("invalid session ID: %w", err)
	}
	return SessionID{value: id}, nil
}

// MustParseSessionID parses a string or panics (for tests only)
func MustParseSessionID(s string) SessionID {
	id, err := ParseSessionID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string representation
func (s SessionID) String() string {
	return s.value.String()
}

// IsZero returns true if this is the zero value
func (s SessionID) IsZero() bool {
	return s.value == uuid.Nil
}

// Equals checks if two SessionIDs are equal
func (s SessionID) Equals(other SessionID) bool {
	return s.value == other.value
}

// MarshalText implements encoding.TextMarshaler
func (s SessionID) MarshalText() ([]byte, error) {
	return []byte(s.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *SessionID) UnmarshalText(data []byte) error {
	id, err := ParseSessionID(string(data))
	if err != nil {
		return err
	}
	*s = id
	return nil
}
