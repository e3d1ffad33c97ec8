package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidDate = errors.New("invalid date")

var unitMultipliers = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
	'X': decimal.NewFromInt(1),
	'%': decimal.NewFromInt(1),
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	ShortDashDateLayout,
	ShortSlashDateLayout,
}

// NormalizeNumber coerces upstream numeric representations ("1.2M", "3.5x", "12%", "1.234,5", 42) into a float64.
// Anything unparseable yields 0, so callers must read 0 as "absent". A single dot is read as the decimal
// point ("1.000" is 1).
func NormalizeNumber(raw any) float64 {
	value, _ := ParseNumber(raw)
	return value
}

// ParseNumber applies the NormalizeNumber rules but reports whether a value was actually present.
func ParseNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case float32:
		return ParseNumber(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		return parseNumberString(v.String())
	case string:
		return parseNumberString(v)
	case *string:
		if v == nil {
			return 0, false
		}
		return parseNumberString(*v)
	default:
		return 0, false
	}
}

func parseNumberString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	multiplier := decimal.NewFromInt(1)
	if m, ok := unitMultipliers[upperASCII(s[len(s)-1])]; ok {
		multiplier = m
		s = s[:len(s)-1]
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' || c == ',' || c == '-' || c == '+' {
			b.WriteByte(c)
		}
	}
	cleaned := b.String()

	negative := false
	if cleaned != "" && (cleaned[0] == '-' || cleaned[0] == '+') {
		negative = cleaned[0] == '-'
		cleaned = cleaned[1:]
	}
	if strings.ContainsAny(cleaned, "+-") {
		return 0, false
	}

	cleaned = normalizeSeparators(cleaned)
	if cleaned == "" {
		return 0, false
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false
	}
	if negative {
		d = d.Neg()
	}
	value, _ := d.Mul(multiplier).Float64()
	return value, true
}

// normalizeSeparators leaves a plain "1234.5" form. The right-most separator is the decimal one
// when both kinds appear; a lone comma followed by exactly three digits is a thousands separator.
// A single dot is always decimal, so "1,000" reads as 1000 but "1.000" reads as 1. Upstream figures
// use US grouping, and a dotted thousands value only parses when it repeats ("1.000.000").
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			if strings.Count(s, ",") > 1 {
				return ""
			}
			return strings.Replace(s, ",", ".", 1)
		}
		s = strings.ReplaceAll(s, ",", "")
		if strings.Count(s, ".") > 1 {
			return ""
		}
		return s
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		if lastComma > 0 && len(s)-lastComma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	}
	return s
}

func upperASCII(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// NormalizeDate parses ISO date strings or epoch milliseconds. Unparseable input returns ErrInvalidDate.
func NormalizeDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		if !v.IsZero() {
			return v.UTC(), nil
		}
	case *time.Time:
		if v != nil && !v.IsZero() {
			return v.UTC(), nil
		}
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return fromEpochMillis(int64(v))
		}
	case int64:
		return fromEpochMillis(v)
	case int:
		return fromEpochMillis(int64(v))
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return fromEpochMillis(ms)
		}
		if f, err := v.Float64(); err == nil {
			return NormalizeDate(f)
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			break
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpochMillis(ms)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, raw)
}

func fromEpochMillis(ms int64) (time.Time, error) {
	if ms <= 0 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidDate, ms)
	}
	return time.UnixMilli(ms).UTC(), nil
}
