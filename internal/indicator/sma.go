package indicator

import "signal-systemv1/internal/ringbuf"

// mean is the arithmetic mean of the window, accumulated incrementally so a
// window of identical values reduces to exactly that value.
func mean(values, _ *ringbuf.Series) (float64, bool) {
	n := values.Len()
	if n == 0 {
		return 0, false
	}
	m := values.At(0)
	for i := 1; i < n; i++ {
		m += (values.At(i) - m) / float64(i+1)
	}
	return m, true
}

// weightedMean applies linear weights 1..n, oldest weighted least.
func weightedMean(values, _ *ringbuf.Series) (float64, bool) {
	n := values.Len()
	if n == 0 {
		return 0, false
	}
	var num float64
	for i := 0; i < n; i++ {
		num += float64(i+1) * values.At(i)
	}
	return num / (float64(n*(n+1)) / 2), true
}
