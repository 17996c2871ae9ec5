package indicators

// SMA returns the arithmetic mean of the last period values. A period longer
// than the input shrinks to the input length; empty input yields 0.
func SMA(values []float64, period int) float64 {
	n := effectivePeriod(len(values), period)
	if n == 0 {
		return 0
	}
	return mean(values[len(values)-n:])
}

// EMASeries returns the exponential moving average for every index from
// period-1 onwards. The first value is the SMA of the first period values and
// each following value applies k = 2/(period+1).
func EMASeries(values []float64, period int) []float64 {
	n := effectivePeriod(len(values), period)
	if n == 0 {
		return nil
	}
	k := 2.0 / float64(n+1)
	out := make([]float64, 0, len(values)-n+1)
	ema := mean(values[:n])
	out = append(out, ema)
	for _, v := range values[n:] {
		ema += k * (v - ema)
		out = append(out, ema)
	}
	return out
}

// EMA returns the latest value of EMASeries, or 0 for empty input.
func EMA(values []float64, period int) float64 {
	s := EMASeries(values, period)
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func effectivePeriod(length, period int) int {
	if period <= 0 || length == 0 {
		return 0
	}
	if period > length {
		return length
	}
	return period
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
