package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Placeholder is rendered for values that cannot be interpreted as numbers.
const Placeholder = "--"

// GroupingThreshold is the magnitude from which Format switches to locale grouping.
const GroupingThreshold = 1000

var (
	printerMu sync.RWMutex
	printer   = message.NewPrinter(language.English)
)

// SetLocale selects the locale used for grouped numbers, e.g. "en" or "pt-BR".
func SetLocale(tag string) error {
	lang, err := language.Parse(tag)
	if err != nil {
		return fmt.Errorf("parse locale %q: %w", tag, err)
	}
	printerMu.Lock()
	printer = message.NewPrinter(lang)
	printerMu.Unlock()
	return nil
}

// ToNumber converts a loosely typed value into a float64. nil, NaN and
// strings that do not parse yield fallback. The empty string is zero.
func ToNumber(v any, fallback float64) float64 {
	n, ok := number64(v)
	if !ok || math.IsNaN(n) {
		return fallback
	}
	return n
}

// ToFinite is ToNumber with infinities also mapped to fallback.
func ToFinite(v any, fallback float64) float64 {
	n := ToNumber(v, fallback)
	if math.IsInf(n, 0) {
		return fallback
	}
	return n
}

func ToBool(v any) bool {
	return ToNumber(v, 0) != 0
}

// Format renders a value for display: "--" when it is not a number, locale
// grouping from 1000 up, integers verbatim and one decimal otherwise.
func Format(v any) string {
	n, ok := number64(v)
	if !ok || math.IsNaN(n) {
		return Placeholder
	}
	if math.Abs(n) >= GroupingThreshold {
		printerMu.RLock()
		defer printerMu.RUnlock()
		return printer.Sprint(number.Decimal(n, number.MaxFractionDigits(3)))
	}
	if n == math.Trunc(n) {
		if n == 0 {
			return "0"
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	s := decimal.NewFromFloat(n).StringFixed(1)
	if n < 0 && s == "0.0" {
		return "-0.0"
	}
	return s
}

// FormatRounded renders n rounded to a whole number with locale grouping.
func FormatRounded(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Placeholder
	}
	// halves round away from zero, the printer alone would round them to even
	r, _ := decimal.NewFromFloat(n).Round(0).Float64()
	printerMu.RLock()
	defer printerMu.RUnlock()
	return printer.Sprint(number.Decimal(r, number.MaxFractionDigits(0)))
}

// MinutesToHHMM renders a minute count as H:MM. Negative input renders as 0:00.
func MinutesToHHMM(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

func number64(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case json.Number:
		return parseString(string(x))
	case string:
		return parseString(x)
	case *float64:
		if x == nil {
			return 0, false
		}
		return *x, true
	default:
		return 0, false
	}
}

func parseString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
