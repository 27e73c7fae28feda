package types

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// ItemID is a backend-assigned item identity. The zero value is unassigned,
// meaning the backend has not yet confirmed an id for the item.
type ItemID struct {
	value    string
	assigned bool
}

// Unassigned returns the identity of an item the backend has not confirmed yet.
func Unassigned() ItemID {
	return ItemID{}
}

// Assigned returns a confirmed identity. Blank ids are treated as unassigned.
func Assigned(id string) ItemID {
	id = strings.TrimSpace(id)
	if id == "" {
		return ItemID{}
	}
	return ItemID{value: id, assigned: true}
}

// IsAssigned reports whether the backend has confirmed this identity.
func (id ItemID) IsAssigned() bool {
	return id.assigned
}

// Value returns the identity as reported by the backend, or "" when unassigned.
func (id ItemID) Value() string {
	return id.value
}

// Normalized returns the uppercase form used for comparisons.
func (id ItemID) Normalized() string {
	return strings.ToUpper(id.value)
}

// Equal compares two identities case-insensitively. An unassigned identity
// never equals anything, including another unassigned identity.
func (id ItemID) Equal(other ItemID) bool {
	if !id.assigned || !other.assigned {
		return false
	}
	return strings.EqualFold(id.value, other.value)
}

func (id ItemID) String() string {
	if !id.assigned {
		return "<unassigned>"
	}
	return id.value
}

// Scan implements sql.Scanner; NULL and empty strings scan as unassigned.
func (id *ItemID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*id = Unassigned()
	case string:
		*id = Assigned(v)
	case []byte:
		*id = Assigned(string(v))
	default:
		return fmt.Errorf("unsupported item id type %T", src)
	}
	return nil
}

// NullString returns the column form of the identity; unassigned is NULL.
func (id ItemID) NullString() sql.NullString {
	return sql.NullString{String: id.value, Valid: id.assigned}
}

// MarshalJSON encodes unassigned identities as null.
func (id ItemID) MarshalJSON() ([]byte, error) {
	if !id.assigned {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts a string or null.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = Unassigned()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = Assigned(s)
	return nil
}
