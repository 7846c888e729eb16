package geo

import (
	"strconv"
	"strings"
)

// AsString coerces an attribute value to a string.  Numbers are formatted
// without trailing zeros so that "100" and 100.0 compare equal after
// normalization.  Returns ("", false) for nil and unsupported types.
func AsString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// AsFloat coerces an attribute value to a float64.  Numeric strings are
// parsed; everything else returns (0, false).
func AsFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// IsNull reports whether an attribute value is absent-equivalent: nil or an
// all-whitespace string.
func IsNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
