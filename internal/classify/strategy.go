// Package classify infers coarse scheduling tags (semester, half-term
// period, degree type, shift category) from noisy portal data. Every
// inference is an ordered list of strategies combined first-match-wins;
// nothing in this package returns an error to its caller.
package classify

// Strategy inspects in and returns a definite result, or false when it has none.
type Strategy[In, Out any] func(in In) (Out, bool)

// FirstMatch runs strategies in order and returns the first definite result.
func FirstMatch[In, Out any](in In, strategies ...Strategy[In, Out]) (Out, bool) {
	for _, s := range strategies {
		if out, ok := s(in); ok {
			return out, true
		}
	}
	var zero Out
	return zero, false
}
