// Package numeric evaluates specification bound expressions ("<0.05",
// "max 10 ppm", "3-5") against observed values with inequality-aware
// semantics instead of string equality.
package numeric

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Op is a bound operator.
type Op int

const (
	OpEq Op = iota
	OpLT
	OpLE
	OpGT
	OpGE
	OpRange
)

// Bound is a parsed expected-value expression.
type Bound struct {
	Op    Op
	Value float64
	Upper float64 // used when Op == OpRange
	Unit  string
}

// Value is a parsed observed value.
type Value struct {
	Number float64
	Unit   string
}

// Result is the outcome of a numeric evaluation.
type Result struct {
	Match        bool
	Reason       string
	UnitsDiffer  bool
	ExpectedUnit string
	ObservedUnit string
}

var numberRe = regexp.MustCompile(`[-+]?\d*\.?\d+`)

var rangeRe = regexp.MustCompile(`^([-+]?\d*\.?\d+)\s*(?:-|to)\s*([-+]?\d*\.?\d+)\s*(.*)$`)

// ParseBound parses an expected-value expression. Returns false when the
// text carries no recognizable numeric bound (e.g. "Yes", "Absent").
func ParseBound(s string) (Bound, bool) {
	s = normalize(s)
	if s == "" {
		return Bound{}, false
	}

	if m := rangeRe.FindStringSubmatch(s); m != nil {
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && lo <= hi {
			return Bound{Op: OpRange, Value: lo, Upper: hi, Unit: cleanUnit(m[3])}, true
		}
	}

	op := OpEq
	rest := s
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(rest, "<="):
		op, rest = OpLE, rest[2:]
	case strings.HasPrefix(rest, ">="):
		op, rest = OpGE, rest[2:]
	case strings.HasPrefix(rest, "<"):
		op, rest = OpLT, rest[1:]
	case strings.HasPrefix(rest, ">"):
		op, rest = OpGT, rest[1:]
	case hasKeywordPrefix(lower, "not more than", "no more than", "maximum", "max", "nmt", "up to"):
		op = OpLE
		rest = trimKeyword(s, "not more than", "no more than", "maximum", "max", "nmt", "up to")
	case hasKeywordPrefix(lower, "not less than", "no less than", "minimum", "min"):
		op = OpGE
		rest = trimKeyword(s, "not less than", "no less than", "minimum", "min")
	}

	loc := numberRe.FindStringIndex(rest)
	if loc == nil {
		return Bound{}, false
	}
	// A non-operator prefix before the number means the text is not a
	// plain bound expression ("detected in 25g" must not parse).
	if strings.TrimSpace(rest[:loc[0]]) != "" {
		return Bound{}, false
	}
	n, err := strconv.ParseFloat(rest[loc[0]:loc[1]], 64)
	if err != nil {
		return Bound{}, false
	}
	return Bound{Op: op, Value: n, Unit: cleanUnit(rest[loc[1]:])}, true
}

// ParseValue parses an observed value: the first number in the text plus
// whatever unit trails it.
func ParseValue(s string) (Value, bool) {
	s = normalize(s)
	loc := numberRe.FindStringIndex(s)
	if loc == nil {
		return Value{}, false
	}
	n, err := strconv.ParseFloat(s[loc[0]:loc[1]], 64)
	if err != nil {
		return Value{}, false
	}
	return Value{Number: n, Unit: cleanUnit(s[loc[1]:])}, true
}

// Contains reports whether x satisfies the bound. Bare < and > are strict.
func (b Bound) Contains(x float64) bool {
	switch b.Op {
	case OpLT:
		return x < b.Value
	case OpLE:
		return x <= b.Value
	case OpGT:
		return x > b.Value
	case OpGE:
		return x >= b.Value
	case OpRange:
		return x >= b.Value && x <= b.Upper
	default:
		return approxEqual(x, b.Value)
	}
}

// Evaluate compares an expected expression against an observed value.
// ok is false when either side does not parse numerically; the caller
// must then rely on the semantic judgment alone.
func Evaluate(expected, observed string) (Result, bool) {
	bound, ok := ParseBound(expected)
	if !ok {
		return Result{}, false
	}
	val, ok := ParseValue(observed)
	if !ok {
		return Result{}, false
	}

	res := Result{
		Match:        bound.Contains(val.Number),
		ExpectedUnit: bound.Unit,
		ObservedUnit: val.Unit,
		UnitsDiffer:  bound.Unit != "" && val.Unit != "" && !strings.EqualFold(bound.Unit, val.Unit),
	}
	res.Reason = explain(bound, val.Number, res.Match)
	return res, true
}

func explain(b Bound, x float64, match bool) string {
	num := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	switch b.Op {
	case OpLT, OpLE:
		if match {
			return fmt.Sprintf("observed %s within limit %s", num(x), num(b.Value))
		}
		return fmt.Sprintf("observed %s exceeds limit %s", num(x), num(b.Value))
	case OpGT, OpGE:
		if match {
			return fmt.Sprintf("observed %s above minimum %s", num(x), num(b.Value))
		}
		return fmt.Sprintf("observed %s below minimum %s", num(x), num(b.Value))
	case OpRange:
		if match {
			return fmt.Sprintf("observed %s within range %s-%s", num(x), num(b.Value), num(b.Upper))
		}
		return fmt.Sprintf("observed %s outside range %s-%s", num(x), num(b.Value), num(b.Upper))
	default:
		if match {
			return fmt.Sprintf("observed %s equals expected %s", num(x), num(b.Value))
		}
		return fmt.Sprintf("observed %s differs from expected %s", num(x), num(b.Value))
	}
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "≤", "<=")
	s = strings.ReplaceAll(s, "≥", ">=")
	s = strings.ReplaceAll(s, ",", "")
	return s
}

func cleanUnit(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".,;:()")
}

func hasKeywordPrefix(lower string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

func trimKeyword(s string, keywords ...string) string {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.HasPrefix(lower, kw) {
			return strings.TrimSpace(s[len(kw):])
		}
	}
	return s
}

func approxEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	scale := b
	if scale < 0 {
		scale = -scale
	}
	if scale < 1 {
		scale = 1
	}
	return diff <= 1e-9*scale
}
