package indicators

import (
	"math"

	"ConfluenceCal/internal/domain/models"

	talib "github.com/markcheno/go-talib"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATR is the plain mean of the true range over the last period candles. The
// first candle of the input has no previous close and contributes high-low.
func ATR(candles []models.Candle, period int) float64 {
	n := effectivePeriod(len(candles), period)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := len(candles) - n; i < len(candles); i++ {
		sum += barRange(candles, i)
	}
	return sum / float64(n)
}

// ADXResult is the sum-based trend strength proxy and its directional indexes.
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX sums +DM, -DM and true range over the last period bars instead of
// applying Wilder's recursive smoothing. Every zero denominator yields 0.
func ADX(candles []models.Candle, period int) ADXResult {
	n := effectivePeriod(len(candles)-1, period)
	if n == 0 {
		return ADXResult{}
	}
	var plusDM, minusDM, tr float64
	for i := len(candles) - n; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		if up > down && up > 0 {
			plusDM += up
		}
		if down > up && down > 0 {
			minusDM += down
		}
		tr += TrueRange(cur.High, cur.Low, prev.Close)
	}
	if tr == 0 {
		return ADXResult{}
	}
	res := ADXResult{
		PlusDI:  100 * plusDM / tr,
		MinusDI: 100 * minusDM / tr,
	}
	if sum := res.PlusDI + res.MinusDI; sum > 0 {
		res.ADX = 100 * math.Abs(res.PlusDI-res.MinusDI) / sum
	}
	return res
}

// BollingerResult holds the three Bollinger bands.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes SMA(period) +/- dev standard deviations on the latest
// close. With a single close every band collapses onto it.
func Bollinger(closes []float64, period int, dev float64) BollingerResult {
	n := effectivePeriod(len(closes), period)
	switch n {
	case 0:
		return BollingerResult{}
	case 1:
		c := closes[len(closes)-1]
		return BollingerResult{Upper: c, Middle: c, Lower: c}
	}
	upper, middle, lower := talib.BBands(closes[len(closes)-n:], n, dev, dev, talib.SMA)
	last := n - 1
	return BollingerResult{Upper: upper[last], Middle: middle[last], Lower: lower[last]}
}

func barRange(candles []models.Candle, i int) float64 {
	c := candles[i]
	if i == 0 {
		return c.High - c.Low
	}
	return TrueRange(c.High, c.Low, candles[i-1].Close)
}

func highLow(candles []models.Candle) (hh, ll float64) {
	hh, ll = candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		if c.High > hh {
			hh = c.High
		}
		if c.Low < ll {
			ll = c.Low
		}
	}
	return hh, ll
}
