package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"carecircle/internal/models"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// first returns the first non-empty string among the given fields
func first(raw models.RawRecord, keys []string) string {
	for _, k := range keys {
		if s := stringValue(raw[k]); s != "" {
			return s
		}
	}
	return ""
}

// firstTime returns the first field that parses as a timestamp
func firstTime(raw models.RawRecord, keys []string) *time.Time {
	for _, k := range keys {
		if t, ok := timeValue(raw[k]); ok {
			return &t
		}
	}
	return nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []byte:
		return strings.TrimSpace(string(val))
	case *string:
		if val == nil {
			return ""
		}
		return strings.TrimSpace(*val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func timeValue(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case string:
		return parseTime(val)
	case []byte:
		return parseTime(string(val))
	case int64:
		return fromUnix(val), val > 0
	case int:
		return fromUnix(int64(val)), val > 0
	case float64:
		return fromUnix(int64(val)), val > 0
	case map[string]any:
		// exported document timestamps look like {"seconds": ..., "nanoseconds": ...}
		secs, ok := val["seconds"]
		if !ok {
			secs, ok = val["_seconds"]
		}
		if !ok {
			return time.Time{}, false
		}
		s, err := strconv.ParseInt(stringValue(secs), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		nanos, _ := strconv.ParseInt(stringValue(val["nanoseconds"]), 10, 64)
		return time.Unix(s, nanos).UTC(), true
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return fromUnix(n), true
	}
	return time.Time{}, false
}

// fromUnix accepts seconds or milliseconds since the epoch
func fromUnix(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
