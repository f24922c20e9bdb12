package expression

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{in: "50%", want: 0.5},
		{in: "2+3*4", want: 14},
		{in: "(2+3)*4", want: 20},
		{in: "5%+1", want: 1.05},
		{in: "1/3", want: 0.333333333333},
		{in: "2/3", want: 0.666666666667},
		{in: "0.1+0.2", want: 0.3},
		{in: "-5+2", want: -3},
		{in: "2*-3", want: -6},
		{in: "-(2+3)", want: -5},
		{in: "+4", want: 4},
		{in: " 7 - 2 - 1 ", want: 4},
		{in: "8/2/2", want: 2},
		{in: "12.5%", want: 0.125},
		{in: "200*10%", want: 20},
		{in: ".5+5.", want: 5.5},
		{in: "3×4÷2", want: 6},
		{in: "((((1))))", want: 1},
		{in: "00012", want: 12},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Evaluate(tc.in)
			if err != nil {
				t.Fatalf("Evaluate(%q): unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Evaluate(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestEvaluateDivisionByZeroIsNonFinite(t *testing.T) {
	tests := []struct {
		in    string
		check func(float64) bool
	}{
		{in: "10/0", check: func(v float64) bool { return math.IsInf(v, 1) }},
		{in: "-10/0", check: func(v float64) bool { return math.IsInf(v, -1) }},
		{in: "0/0", check: math.IsNaN},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Evaluate(tc.in)
			if err != nil {
				t.Fatalf("Evaluate(%q): unexpected error: %v", tc.in, err)
			}
			if !tc.check(got) {
				t.Fatalf("Evaluate(%q) = %v, want non-finite", tc.in, got)
			}
			if IsFinite(got) {
				t.Fatalf("IsFinite(%v) = true", got)
			}
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{in: "2+x", want: ErrInvalidCharacters},
		{in: "alert(1)", want: ErrInvalidCharacters},
		{in: "2^3", want: ErrInvalidCharacters},
		{in: "1,5", want: ErrInvalidCharacters},
		{in: "1\t+1", want: ErrInvalidCharacters},
		{in: "(5)%", want: ErrUnsafeExpression},
		{in: "%", want: ErrUnsafeExpression},
		{in: "5%%", want: ErrUnsafeExpression},
		{in: "", want: ErrEvaluationFailure},
		{in: "   ", want: ErrEvaluationFailure},
		{in: "(2+3", want: ErrEvaluationFailure},
		{in: "2+3)", want: ErrEvaluationFailure},
		{in: "2+", want: ErrEvaluationFailure},
		{in: "*2", want: ErrEvaluationFailure},
		{in: "2**3", want: ErrEvaluationFailure},
		{in: "1.2.3", want: ErrEvaluationFailure},
		{in: "2(3)", want: ErrEvaluationFailure},
		{in: "()", want: ErrEvaluationFailure},
		{in: ".", want: ErrEvaluationFailure},
		{in: strings.Repeat("(", maxDepth+1) + "1" + strings.Repeat(")", maxDepth+1), want: ErrEvaluationFailure},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			_, err := Evaluate(tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Evaluate(%q): expected %v, got %v", tc.in, tc.want, err)
			}
		})
	}
}

func TestEvaluateNeverPanicsOnWhitelistedInput(t *testing.T) {
	alphabet := "0123456789+-*/().% "

	// Exhaustive over short strings of a reduced alphabet plus a fixed
	// sweep over the full alphabet.
	reduced := "1+*/(.)%-"
	var walk func(prefix string, depth int)
	walk = func(prefix string, depth int) {
		assertWellDefined(t, prefix)
		if depth == 0 {
			return
		}
		for i := 0; i < len(reduced); i++ {
			walk(prefix+reduced[i:i+1], depth-1)
		}
	}
	walk("", 4)

	for i := 0; i < len(alphabet); i++ {
		for j := 0; j < len(alphabet); j++ {
			assertWellDefined(t, alphabet[i:i+1]+"9"+alphabet[j:j+1])
		}
	}
}

func assertWellDefined(t *testing.T, in string) {
	t.Helper()

	v, err := Evaluate(in)
	if err != nil {
		if !errors.Is(err, ErrUnsafeExpression) && !errors.Is(err, ErrEvaluationFailure) {
			t.Fatalf("Evaluate(%q): unexpected error class %v", in, err)
		}
		return
	}
	if IsFinite(v) && Round(v) != v {
		t.Fatalf("Evaluate(%q) = %v is not rounded", in, v)
	}
}

func TestEvaluateRejectsAnyOutsideCharacter(t *testing.T) {
	for _, ch := range []string{"a", "e", "E", "=", "_", "[", "]", "{", "}", ";", "\n", "'", "\"", "$", "!", "^", "√", "·"} {
		in := "1" + ch + "2"
		if _, err := Evaluate(in); !errors.Is(err, ErrInvalidCharacters) {
			t.Fatalf("Evaluate(%q): expected ErrInvalidCharacters, got %v", in, err)
		}
	}
}

func TestEvaluateFormattedResultIsStable(t *testing.T) {
	for _, in := range []string{"1/3", "2+3*4", "-7/4", "10%", "1/7*1000000", "0.1*3", "999999999*999999999", "1/100000000"} {
		t.Run(in, func(t *testing.T) {
			first, err := Evaluate(in)
			if err != nil {
				t.Fatalf("Evaluate(%q): %v", in, err)
			}

			again, err := Evaluate(Format(first))
			if err != nil {
				t.Fatalf("Evaluate(%q): %v", Format(first), err)
			}
			if again != first {
				t.Fatalf("re-evaluating %q: got %v, want %v", Format(first), again, first)
			}
		})
	}
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "50%", want: "(50/100)"},
		{in: "5%+1", want: "(5/100)+1"},
		{in: "2.5%*4", want: "(2.5/100)*4"},
		{in: "1÷4×2", want: "1/4*2"},
		{in: "1 + 2", want: "1 + 2"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Rewrite(tc.in)
			if err != nil {
				t.Fatalf("Rewrite(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Rewrite(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 14, want: "14"},
		{in: 0.5, want: "0.5"},
		{in: -3, want: "-3"},
		{in: math.Copysign(0, -1), want: "0"},
		{in: 1e21, want: "1000000000000000000000"},
		{in: 1e-7, want: "0.0000001"},
		{in: 0.333333333333, want: "0.333333333333"},
	}

	for _, tc := range tests {
		if got := Format(tc.in); got != tc.want {
			t.Fatalf("Format(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRoundLeavesNonFiniteAlone(t *testing.T) {
	if got := Round(math.Inf(1)); !math.IsInf(got, 1) {
		t.Fatalf("Round(+Inf) = %v", got)
	}
	if got := Round(math.NaN()); !math.IsNaN(got) {
		t.Fatalf("Round(NaN) = %v", got)
	}
	if got := Round(0.1 + 0.2); got != 0.3 {
		t.Fatalf("Round(0.1+0.2) = %v, want 0.3", got)
	}
}

func TestRoundUsesExactBinaryValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		// These literals look like ties but are stored just below or just
		// above the halfway point.
		{in: "1.0000000000015", want: 1.000000000001},
		{in: "-1.0000000000015", want: -1.000000000001},
		{in: "0.0000000000005", want: 0},
		{in: "1.0000000000005", want: 1.000000000001},
		{in: "0.0000000000015", want: 0.000000000002},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Evaluate(tc.in)
			if err != nil {
				t.Fatalf("Evaluate(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Evaluate(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestKind(t *testing.T) {
	_, invalid := Evaluate("a")
	_, unsafe := Evaluate("(1)%")
	_, failure := Evaluate("1+")

	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: invalid, want: "invalid_characters"},
		{err: unsafe, want: "unsafe_expression"},
		{err: failure, want: "evaluation_failure"},
		{err: ErrNonFinite, want: "non_finite_result"},
	}

	for _, tc := range tests {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestEvaluateFinite(t *testing.T) {
	if v, err := EvaluateFinite("1+1"); err != nil || v != 2 {
		t.Fatalf("EvaluateFinite(1+1) = %v, %v", v, err)
	}

	for _, in := range []string{"10/0", "0/0", "1/(2-2)"} {
		if _, err := EvaluateFinite(in); !errors.Is(err, ErrNonFinite) {
			t.Fatalf("EvaluateFinite(%q): expected ErrNonFinite, got %v", in, err)
		}
	}

	if _, err := EvaluateFinite("1+a"); !errors.Is(err, ErrInvalidCharacters) {
		t.Fatalf("expected ErrInvalidCharacters, got %v", err)
	}
}
