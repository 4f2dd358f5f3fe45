package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// String returns fields[key] rendered as a string. Link and multi-select
// values are joined with ", ".
func String(fields map[string]any, key string) string {
	return stringify(fields[key])
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, stringify(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

// Int returns fields[key] as an int, or 0 if absent or not numeric.
func Int(fields map[string]any, key string) int {
	switch t := fields[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Float returns fields[key] as a float64, or 0 if absent or not numeric.
func Float(fields map[string]any, key string) float64 {
	switch t := fields[key].(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Bool returns fields[key] as a bool. AITable checkboxes are omitted when
// unchecked, so absent means false.
func Bool(fields map[string]any, key string) bool {
	switch t := fields[key].(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}

// Time parses fields[key] as RFC3339 or a unix-millisecond timestamp.
func Time(fields map[string]any, key string) time.Time {
	switch t := fields[key].(type) {
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}
		}
		return ts
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	case time.Time:
		return t
	default:
		return time.Time{}
	}
}

// Link returns the first record id of a link field, which AITable returns as
// an array of ids. A plain string is accepted as a single id.
func Link(fields map[string]any, key string) string {
	switch t := fields[key].(type) {
	case string:
		return t
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	case []any:
		if len(t) > 0 {
			s, _ := t[0].(string)
			return s
		}
	}
	return ""
}
