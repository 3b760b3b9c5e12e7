// Package presence derives online/last-seen status for directory users.
package presence

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tOgg1/sitesync/internal/models"
)

// Field names that carry an explicit "is online" flag.
var onlineFlagFields = []string{
	"is_online",
	"isOnline",
	"online",
	"session_active",
	"sessionActive",
	"active_session",
}

// Timestamp fields, most specific first.
var lastSeenFields = []string{
	"last_seen",
	"lastSeen",
	"last_activity",
	"lastActivity",
	"last_active_at",
	"last_login",
	"lastLogin",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
}

// unix seconds above this are treated as milliseconds (year 5138).
const millisThreshold = 1e11

// NormalizeFields converts the presence hints of a raw directory record
// into a PresenceHint. Malformed values are ignored.
func NormalizeFields(fields map[string]any) models.PresenceHint {
	var lastSeen time.Time
	for _, key := range lastSeenFields {
		if t, ok := ParseTimestamp(fields[key]); ok {
			lastSeen = t
			break
		}
	}

	for _, key := range onlineFlagFields {
		if Truthy(fields[key]) {
			return models.ExplicitOnline(lastSeen)
		}
	}

	return models.SeenAt(lastSeen)
}

// Truthy reports whether a loosely typed flag value is set: true, 1, "1",
// "true" or "on".
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v == 1
	case int:
		return v == 1
	case int64:
		return v == 1
	case json.Number:
		n, err := v.Int64()
		return err == nil && n == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on":
			return true
		}
	}
	return false
}

// ParseTimestamp reads a loosely encoded instant: RFC3339, a few SQL-style
// layouts, or unix seconds/milliseconds as a number or numeric string.
func ParseTimestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v.UTC(), !v.IsZero()
	case float64:
		return fromUnix(v)
	case int64:
		return fromUnix(float64(v))
	case int:
		return fromUnix(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(f)
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return fromUnix(f)
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func fromUnix(f float64) (time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f > millisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}
