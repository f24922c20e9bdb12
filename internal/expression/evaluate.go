// Package expression validates and evaluates calculator input.
//
// Input passes two whitelists: the raw form, and the form left after
// percent literals are rewritten into divisions. Only then is it handed to a
// fixed-grammar arithmetic parser; nothing is ever executed as code.
package expression

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places finite results are rounded to.
const Places = 12

var (
	rawAllowed       = regexp.MustCompile(`^[0-9+\-*/().% ]*$`)
	rewrittenAllowed = regexp.MustCompile(`^[0-9+\-*/().\s]*$`)
	percentLiteral   = regexp.MustCompile(`(\d+(\.\d+)?)%`)

	glyphs = strings.NewReplacer("×", "*", "÷", "/")
)

// Normalize maps the display glyphs × and ÷ to their ASCII operators.
func Normalize(s string) string {
	return glyphs.Replace(s)
}

// Rewrite runs both whitelist passes and the percent rewrite, returning the
// string the parser will see. "50%" becomes "(50/100)"; a percent sign after
// anything other than a numeric literal is left alone and fails the second
// pass.
func Rewrite(raw string) (string, error) {
	s := Normalize(raw)
	if !rawAllowed.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCharacters, raw)
	}

	s = percentLiteral.ReplaceAllString(s, "($1/100)")

	if !rewrittenAllowed.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeExpression, s)
	}
	return s, nil
}

// Evaluate computes the value of a calculator expression.
//
// Finite results are rounded to Places decimal places. Division by zero is
// not an error: ±Inf and NaN are returned unrounded with a nil error and
// callers decide how to present them (see IsFinite).
func Evaluate(raw string) (float64, error) {
	s, err := Rewrite(raw)
	if err != nil {
		return 0, err
	}

	v, err := parse(s)
	if err != nil {
		return 0, err
	}

	return Round(v), nil
}

// EvaluateFinite is Evaluate for callers that present ±Inf and NaN as
// failures: a non-finite value is reported as ErrNonFinite.
func EvaluateFinite(raw string) (float64, error) {
	v, err := Evaluate(raw)
	if err != nil {
		return 0, err
	}
	if !IsFinite(v) {
		return v, fmt.Errorf("%w: %s", ErrNonFinite, Format(v))
	}
	return v, nil
}

// IsFinite reports whether v is neither infinite nor NaN.
func IsFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Round rounds the exact binary value of v to Places decimal places, ties
// away from zero. Non-finite values are returned unchanged.
func Round(v float64) float64 {
	if !IsFinite(v) {
		return v
	}
	f, _ := decimal.NewFromFloatWithExponent(v, -Places).Float64()
	return f
}

// Format renders v in plain decimal notation. The output never uses an
// exponent, so a formatted finite result is itself a valid expression that
// evaluates back to v.
func Format(v float64) string {
	if !IsFinite(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).String()
}
