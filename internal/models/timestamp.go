package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is fixed width so that lexical order equals chronological
// order inside SQLite.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

var lenientTimestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a UTC instant with microsecond precision.
type Timestamp struct {
	time.Time
}

// Epoch is the cursor used before the first successful sync.
var Epoch = Timestamp{time.Unix(0, 0).UTC()}

// NewTimestamp normalizes t to UTC microseconds.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Microsecond)}
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// ParseTimestamp accepts the canonical layout, RFC 3339 with any offset, and
// zone-less ISO strings, which are read as UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range lenientTimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// String formats the timestamp in TimestampLayout, or "" when unset.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

// Add returns the timestamp shifted by d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return NewTimestamp(t.Time.Add(d))
}

// After reports whether t is later than o.
func (t Timestamp) After(o Timestamp) bool {
	return t.Time.After(o.Time)
}

// Before reports whether t is earlier than o.
func (t Timestamp) Before(o Timestamp) bool {
	return t.Time.Before(o.Time)
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.String(), nil
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*t = Timestamp{}
		return nil
	case time.Time:
		*t = NewTimestamp(v)
		return nil
	case string:
		return t.parseInto(v)
	case []byte:
		return t.parseInto(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", value)
	}
}

func (t *Timestamp) parseInto(s string) error {
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.parseInto(s)
}
