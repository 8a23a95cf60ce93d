package indicator

import "signal-systemv1/internal/ringbuf"

// relativeStrength computes RSI over a window of period+1 prices using the
// simple mean of gains and losses. A window with no losses is 100.
func relativeStrength(values, _ *ringbuf.Series) (float64, bool) {
	n := values.Len()
	if n < 2 {
		return 0, false
	}

	var gain, loss float64
	for i := 1; i < n; i++ {
		d := values.At(i) - values.At(i-1)
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}

	periods := float64(n - 1)
	avgGain, avgLoss := gain/periods, loss/periods
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
