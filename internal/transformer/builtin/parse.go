package builtin

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// CellText renders a cell as text. nil is the empty string, whole floats have
// no decimals, and dates without a clock part render as YYYY-MM-DD.
func CellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if !math.IsInf(x, 0) && x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return CellText(float64(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func cellText(v any) string { return CellText(v) }

// ParseNumber converts a cell to float64. Strings may carry currency signs,
// spaces and thousands separators ("$ 1,234.50").
func ParseNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case bool:
		return 0, false
	}
	s := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\u00a0', '\t':
			return -1
		}
		return r
	}, CellText(v))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseInt converts a cell holding a whole number ("5", "5.0", 5.0) to int64.
func ParseInt(v any) (int64, bool) {
	f, ok := ParseNumber(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"01-02-2006",
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02-01-2006",
}

// ParseDate converts a cell to time.Time (UTC). Accepted: time.Time values,
// spreadsheet date serials (numbers or numeric strings) and the layouts above.
// Slash and dash dates read month-first; day-first is tried only when the
// first field cannot be a month ("14/03/2025").
func ParseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	case float64:
		return fromSerial(x)
	case int64:
		return fromSerial(float64(x))
	case int:
		return fromSerial(float64(x))
	}
	s := strings.TrimSpace(CellText(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(f)
	}
	return time.Time{}, false
}

// fromSerial converts a spreadsheet (1900 system) date serial.
func fromSerial(f float64) (time.Time, bool) {
	if f <= 0 || f > 2958465 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC().Round(time.Second), true
}

// DateOnly drops the clock part of t.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsBlank reports whether a cell is nil or whitespace-only text.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// IsPlaceholder reports whether a cell, trimmed, equals one of tokens.
// A nil cell matches the empty-string token.
func IsPlaceholder(v any, tokens []string) bool {
	s := strings.TrimSpace(CellText(v))
	for _, t := range tokens {
		if s == t {
			return true
		}
	}
	return false
}

// DigitsOnly keeps the ASCII digits of s.
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// StripCell trims text cells and turns empty text into nil. Other cells pass through.
func StripCell(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if HasEdgeSpace(s) {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil
	}
	return s
}
