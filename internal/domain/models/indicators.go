package models

import "time"

// IndicatorBundle is the indicator snapshot at one candle index. It is
// recomputed on demand and never persisted.
type IndicatorBundle struct {
	Timestamp time.Time `json:"timestamp"`
	Bars      int       `json:"bars"` // candles actually used
	Close     float64   `json:"close"`

	SMA20  float64 `json:"sma20"`
	SMA50  float64 `json:"sma50"`
	SMA200 float64 `json:"sma200"`
	EMA12  float64 `json:"ema12"`
	EMA26  float64 `json:"ema26"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`

	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macdSignal"`
	MACDHistogram float64 `json:"macdHistogram"`

	ATR     float64 `json:"atr"`
	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"plusDI"`
	MinusDI float64 `json:"minusDI"`

	StochK float64 `json:"stochK"`
	StochD float64 `json:"stochD"`

	BBUpper  float64 `json:"bbUpper"`
	BBMiddle float64 `json:"bbMiddle"`
	BBLower  float64 `json:"bbLower"`

	Tenkan float64 `json:"tenkan"`
	Kijun  float64 `json:"kijun"`
	SpanA  float64 `json:"spanA"`
	SpanB  float64 `json:"spanB"`

	VWAP float64 `json:"vwap"`

	FibHigh float64 `json:"fibHigh"`
	FibLow  float64 `json:"fibLow"`
	Fib236  float64 `json:"fib236"`
	Fib382  float64 `json:"fib382"`
	Fib500  float64 `json:"fib500"`
	Fib618  float64 `json:"fib618"`

	Support    float64 `json:"support"`    // 0 when no level lies below the close
	Resistance float64 `json:"resistance"` // 0 when no level lies above the close

	SessionAsian   bool `json:"sessionAsian"`
	SessionLondon  bool `json:"sessionLondon"`
	SessionNewYork bool `json:"sessionNewYork"`
	SessionOverlap bool `json:"sessionOverlap"`
}
