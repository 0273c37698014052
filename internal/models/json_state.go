package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONState stores a JSON document as raw bytes. JSONB columns hand back a re-serialised
// form, so anything hashing a state must canonicalise it first.
type JSONState json.RawMessage

// NewJSONState marshals v into a JSONState.
func NewJSONState(v interface{}) (JSONState, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONState(raw), nil
}

// MarshalJSON emits the stored document.
func (s JSONState) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte(s), nil
}

// UnmarshalJSON copies the raw document.
func (s *JSONState) UnmarshalJSON(data []byte) error {
	*s = append((*s)[0:0], data...)
	return nil
}

// Value implements driver.Valuer.
func (s JSONState) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *JSONState) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = append(JSONState(nil), v...)
	case string:
		*s = JSONState(v)
	default:
		return fmt.Errorf("unsupported json state type %T", src)
	}
	return nil
}

// Decode unmarshals the stored document into dest.
func (s JSONState) Decode(dest interface{}) error {
	if len(s) == 0 {
		return nil
	}
	return json.Unmarshal(s, dest)
}
