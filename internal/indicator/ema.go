package indicator

// emaState is the EMA accumulator:
//
//	ema[0] = x[0]
//	ema[i] = α·x[i] + (1-α)·ema[i-1],  α = 2/(period+1)
type emaState struct {
	alpha  float64
	value  float64
	seeded bool
}

func newEMAState(period int) emaState {
	return emaState{alpha: 2 / float64(period+1)}
}

func (e *emaState) update(x float64) float64 {
	if !e.seeded {
		e.value = x
		e.seeded = true
		return x
	}
	// The conversions round each product so results do not depend on FMA fusion.
	e.value = float64(e.alpha*x) + float64((1-e.alpha)*e.value)
	return e.value
}

func (e *emaState) reset() {
	e.value = 0
	e.seeded = false
}
