package task

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/teranos/pulsed/errors"
)

const keyLastCompletedAt = "lastCompletedAt"

// Metadata is the free-form task payload handed to job functions.
// lastCompletedAt is understood by the scheduler; every other key is carried
// through recurrence untouched.
type Metadata struct {
	LastCompletedAt *time.Time
	Extra           map[string]json.RawMessage
}

// MarshalJSON flattens Extra next to lastCompletedAt
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.LastCompletedAt != nil {
		out[keyLastCompletedAt] = m.LastCompletedAt.UTC().Format(time.RFC3339Nano)
	} else {
		out[keyLastCompletedAt] = nil
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts an object or a JSON string containing an object
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if strErr := json.Unmarshal(data, &s); strErr != nil {
			return errors.Wrap(err, "metadata must be a JSON object")
		}
		parsed, perr := ParseMetadata(s)
		if perr != nil {
			return perr
		}
		*m = parsed
		return nil
	}

	m.LastCompletedAt = nil
	m.Extra = nil
	for k, v := range raw {
		if k == keyLastCompletedAt {
			if string(v) == "null" {
				continue
			}
			var ts time.Time
			if err := json.Unmarshal(v, &ts); err != nil {
				return errors.Wrap(err, "invalid metadata.lastCompletedAt")
			}
			m.LastCompletedAt = &ts
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}
	return nil
}

// ParseMetadata decodes the stored metadata string. Empty means no metadata.
func ParseMetadata(s string) (Metadata, error) {
	var m Metadata
	if s == "" {
		return m, nil
	}
	if err := m.UnmarshalJSON([]byte(s)); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// Encode returns the JSON string stored alongside the task
func (m Metadata) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal metadata")
	}
	return string(data), nil
}

// Clone returns a deep copy so recurrence never aliases the predecessor
func (m Metadata) Clone() Metadata {
	c := Metadata{}
	if m.LastCompletedAt != nil {
		ts := *m.LastCompletedAt
		c.LastCompletedAt = &ts
	}
	if m.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// Set stores an arbitrary value under key
func (m *Metadata) Set(key string, value interface{}) error {
	if key == keyLastCompletedAt {
		return errors.NewInvalidRequestError("%s is managed by the scheduler", keyLastCompletedAt)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal metadata.%s", key)
	}
	if m.Extra == nil {
		m.Extra = make(map[string]json.RawMessage)
	}
	m.Extra[key] = data
	return nil
}

// String returns a string-valued key. Numbers are rendered as text.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m.Extra[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// Decode unmarshals a key into dst
func (m Metadata) Decode(key string, dst interface{}) error {
	v, ok := m.Extra[key]
	if !ok {
		return errors.NewNotFoundError("metadata.%s", key)
	}
	return errors.Wrapf(json.Unmarshal(v, dst), "invalid metadata.%s", key)
}
