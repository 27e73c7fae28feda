package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number is a loosely typed numeric field. Backends report progress as JSON
// numbers or as numeric strings; both decode into a Number and conversion is
// deferred to Float64 so that a malformed value can be dropped on its own.
type Number string

// Float wraps a float64 as a Number.
func Float(f float64) *Number {
	n := Number(strconv.FormatFloat(f, 'f', -1, 64))
	return &n
}

// Text wraps a raw string as a Number without validating it.
func Text(s string) *Number {
	n := Number(s)
	return &n
}

// Float64 parses the value. A trailing "%" marks a percentage and is scaled
// into [0,1].
func (n Number) Float64() (float64, error) {
	s := strings.TrimSpace(string(n))
	percent := strings.HasSuffix(s, "%")
	if percent {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", string(n), err)
	}
	if percent {
		f /= 100
	}
	return f, nil
}

// UnmarshalJSON accepts a JSON number or string.
func (n *Number) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = Number(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = Number(num.String())
	return nil
}

// MarshalJSON emits the value as a number when it parses, otherwise as a string.
func (n Number) MarshalJSON() ([]byte, error) {
	if f, err := n.Float64(); err == nil && !strings.HasSuffix(strings.TrimSpace(string(n)), "%") {
		return json.Marshal(f)
	}
	return json.Marshal(string(n))
}

// Int64 returns a pointer to v, for populating optional snapshot fields.
func Int64(v int64) *int64 {
	return &v
}

// String returns a pointer to s, for populating optional snapshot fields.
func String(s string) *string {
	return &s
}
