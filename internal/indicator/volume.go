package indicator

import "signal-systemv1/internal/ringbuf"

// volumeWeightedPrice is Σ(typical·volume)/Σvolume over the window. A window
// that traded no volume has no price.
func volumeWeightedPrice(values, weights *ringbuf.Series) (float64, bool) {
	var pv, vol float64
	for i := 0; i < values.Len(); i++ {
		w := weights.At(i)
		pv += values.At(i) * w
		vol += w
	}
	if vol == 0 {
		return 0, false
	}
	return pv / vol, true
}

// windowAverage is Σvolume divided by the window length.
func windowAverage(values, _ *ringbuf.Series) (float64, bool) {
	if values.Len() == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < values.Len(); i++ {
		sum += values.At(i)
	}
	return sum / float64(values.Cap()), true
}
