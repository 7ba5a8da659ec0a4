package utils

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime tries the ISO-8601 variants marketplaces emit and falls back to
// a numeric epoch. Layouts without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return ParseEpoch(f)
	}
	return time.Time{}, false
}

// ParseEpoch converts epoch seconds (or milliseconds, for values above 1e12)
// to UTC. Non-positive and non-finite values are rejected.
func ParseEpoch(v float64) (time.Time, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	if v > epochMillisThreshold {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// ParseTimestamp accepts any decoded timestamp value: strings, JSON numbers,
// Go numeric types and time.Time. Anything else reports false.
func ParseTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if ts.IsZero() {
			return time.Time{}, false
		}
		return ts.UTC(), true
	case string:
		return ParseTime(ts)
	case json.Number:
		f, err := ts.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return ParseEpoch(f)
	case float64:
		return ParseEpoch(ts)
	case float32:
		return ParseEpoch(float64(ts))
	case int:
		return ParseEpoch(float64(ts))
	case int64:
		return ParseEpoch(float64(ts))
	case int32:
		return ParseEpoch(float64(ts))
	case uint64:
		return ParseEpoch(float64(ts))
	default:
		return time.Time{}, false
	}
}
