package settings

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Values are stored as JSON and may be a bare scalar, a quoted scalar or a
// {"value": ...} wrapper written by older clients.

// DBConfigString reads a trimmed string setting.
func DBConfigString(key string) string {
	raw, ok := DBConfigValue(key)
	if !ok {
		return ""
	}
	return parseString(raw)
}

// DBConfigStrings reads a list setting. A single string is a one-item list.
func DBConfigStrings(key string) []string {
	raw, ok := DBConfigValue(key)
	if !ok {
		return nil
	}
	return ParseStrings(raw)
}

// DBConfigInt reads an integer setting.
func DBConfigInt(key string) (int, bool) {
	raw, ok := DBConfigValue(key)
	if !ok {
		return 0, false
	}
	return parseInt(raw)
}

// DBConfigDecimal reads a numeric setting without float rounding.
func DBConfigDecimal(key string) (decimal.Decimal, bool) {
	raw, ok := DBConfigValue(key)
	if !ok {
		return decimal.Zero, false
	}
	return parseDecimal(raw)
}

// SiteName returns SITE_NAME or the default.
func SiteName() string {
	if name := DBConfigString(SiteNameKey); name != "" {
		return name
	}
	return DefaultSiteName
}

func unwrap(raw json.RawMessage) (json.RawMessage, bool) {
	var wrapper struct {
		Value json.RawMessage `json:"value"`
	}
	if errUnmarshal := json.Unmarshal(raw, &wrapper); errUnmarshal == nil && len(wrapper.Value) > 0 {
		return wrapper.Value, true
	}
	return nil, false
}

func parseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if errUnmarshal := json.Unmarshal(raw, &s); errUnmarshal == nil {
		return strings.TrimSpace(s)
	}
	if inner, ok := unwrap(raw); ok {
		return parseString(inner)
	}
	return ""
}

// ParseStrings extracts a trimmed, non-empty string list from a setting value.
func ParseStrings(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var values []string
	if errUnmarshal := json.Unmarshal(raw, &values); errUnmarshal == nil {
		out := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	if single := parseString(raw); single != "" {
		return []string{single}
	}
	if inner, ok := unwrap(raw); ok {
		return ParseStrings(inner)
	}
	return nil
}

func parseInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if errUnmarshal := json.Unmarshal(raw, &f); errUnmarshal == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if errUnmarshal := json.Unmarshal(raw, &s); errUnmarshal == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(s))
		return parsed, errParse == nil
	}
	if inner, ok := unwrap(raw); ok {
		return parseInt(inner)
	}
	return 0, false
}

func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return decimal.Zero, false
	}
	if raw[0] == '{' {
		if inner, ok := unwrap(raw); ok {
			return parseDecimal(inner)
		}
		return decimal.Zero, false
	}
	var d decimal.Decimal
	if errUnmarshal := json.Unmarshal(raw, &d); errUnmarshal != nil {
		return decimal.Zero, false
	}
	return d, true
}
