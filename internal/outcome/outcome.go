// Package outcome provides a two-variant result value used to chain fallible
// steps. A failed outcome short-circuits every later step.
package outcome

// Outcome holds either a success value of type T or a failure reason of type E.
type Outcome[T, E any] struct {
	value  T
	reason E
	failed bool
}

// Success wraps v as a successful outcome.
func Success[T, E any](v T) Outcome[T, E] {
	return Outcome[T, E]{value: v}
}

// Failure wraps reason as a failed outcome.
func Failure[T, E any](reason E) Outcome[T, E] {
	return Outcome[T, E]{reason: reason, failed: true}
}

// Then calls step with the success value and returns its outcome.
// On a failed outcome step is not called and the failure is returned unchanged.
func (o Outcome[T, E]) Then(step func(T) Outcome[T, E]) Outcome[T, E] {
	if o.failed {
		return o
	}
	return step(o.value)
}

// Failed reports whether o holds a failure.
func (o Outcome[T, E]) Failed() bool {
	return o.failed
}

// Value returns the success value and true, or the zero value and false.
func (o Outcome[T, E]) Value() (T, bool) {
	if o.failed {
		var zero T
		return zero, false
	}
	return o.value, true
}

// Reason returns the failure reason and true, or the zero value and false.
func (o Outcome[T, E]) Reason() (E, bool) {
	if !o.failed {
		var zero E
		return zero, false
	}
	return o.reason, true
}

// Either invokes exactly one of onFailure or onSuccess and returns its result.
func Either[T, E, R any](o Outcome[T, E], onFailure func(E) R, onSuccess func(T) R) R {
	if o.failed {
		return onFailure(o.reason)
	}
	return onSuccess(o.value)
}
