package holyhook

// Verdict is what a replacement decides about the original: run it, or suppress it and return a result of its own.
type Verdict[R any] struct {
	suppress bool
	result   R
}

// CallOriginal lets the original run and return its result.
func CallOriginal[R any]() Verdict[R] {
	return Verdict[R]{}
}

// Suppress skips the original and returns r instead.
func Suppress[R any](r R) Verdict[R] {
	return Verdict[R]{suppress: true, result: r}
}

func (v Verdict[R]) Suppressed() bool {
	return v.suppress
}

// Resolve applies the verdict: the suppressing result, or the result of calling original.
func (v Verdict[R]) Resolve(original func() R) R {
	if v.suppress {
		return v.result
	}
	return original()
}
