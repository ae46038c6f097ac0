package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Time is a point in time with millisecond precision, as used by the
// Mattermost API (unix milliseconds). The zero value means "unset".
type Time int64

// TimeFromMillis builds a Time from a unix-millisecond timestamp.
func TimeFromMillis(ms int64) Time {
	return Time(ms)
}

// ParseTime accepts either a unix-millisecond integer or an ISO-8601
// string. The string form is what configuration files use; the round
// trip back to milliseconds is lossless.
func ParseTime(v any) (Time, error) {
	switch t := v.(type) {
	case int:
		return Time(t), nil
	case int64:
		return Time(t), nil
	case float64:
		return Time(int64(t)), nil
	case string:
		parsed, err := parseISO(t)
		if err != nil {
			return 0, err
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported time value %v (%T)", v, v)
	}
}

func parseISO(s string) (Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return Time(t.UnixMilli()), nil
		}
	}
	return 0, fmt.Errorf("cannot parse time %q", s)
}

// Millis returns the unix-millisecond timestamp.
func (t Time) Millis() int64 { return int64(t) }

// IsZero reports whether the time is unset.
func (t Time) IsZero() bool { return t == 0 }

func (t Time) Before(other Time) bool { return t < other }
func (t Time) After(other Time) bool  { return t > other }

// String renders the time as a local ISO-8601 string with second
// precision, matching the human-facing form used in logs.
func (t Time) String() string {
	return time.UnixMilli(int64(t)).Format("2006-01-02T15:04:05")
}

// MarshalJSON stores the raw millisecond count.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(t))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("time must be a millisecond timestamp: %w", err)
	}
	*t = Time(ms)
	return nil
}
