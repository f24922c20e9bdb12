package expression

import "errors"

// Sentinel errors for expression evaluation.
var (
	// ErrInvalidCharacters is returned when the raw input contains a character
	// outside the calculator alphabet.
	ErrInvalidCharacters = errors.New("invalid characters")

	// ErrUnsafeExpression is returned when the percent-rewritten input still
	// contains characters the evaluator does not accept.
	ErrUnsafeExpression = errors.New("unsafe expression")

	// ErrEvaluationFailure is returned for malformed expressions: empty
	// operands, unbalanced parentheses, stray operators.
	ErrEvaluationFailure = errors.New("evaluation failure")

	// ErrNonFinite is reported by callers that treat ±Inf and NaN results as
	// failures. Evaluate itself never returns it.
	ErrNonFinite = errors.New("non-finite result")
)

// Kind returns a stable, machine-readable name for an evaluation error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCharacters):
		return "invalid_characters"
	case errors.Is(err, ErrUnsafeExpression):
		return "unsafe_expression"
	case errors.Is(err, ErrNonFinite):
		return "non_finite_result"
	default:
		return "evaluation_failure"
	}
}
