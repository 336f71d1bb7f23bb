// Package indicators holds pure technical indicator functions over OHLCV series.
// Every function returns the latest value and false when the series is too short.
package indicators

import (
	"math"

	"TickPilot/internal/domain/models"
)

// Closes extracts close prices in order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA is the simple mean of the last period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA is seeded with the SMA of the first period values and then smoothed
// with k = 2/(period+1) over the remainder.
func EMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	k := 2.0 / float64(period+1)
	ema, _ := SMA(values[:period], period)
	for _, v := range values[period:] {
		ema = (v-ema)*k + ema
	}
	return ema, true
}

// TrueRanges returns len(candles)-1 true ranges.
func TrueRanges(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		out = append(out, trueRange(candles[i], candles[i-1].Close))
	}
	return out
}

func trueRange(c models.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR is the simple mean of the last period true ranges. With fewer true ranges
// than period it falls back to the mean of what is available.
func ATR(candles []models.Candle, period int) (float64, bool) {
	trs := TrueRanges(candles)
	if len(trs) == 0 || period <= 0 {
		return 0, false
	}
	if len(trs) > period {
		trs = trs[len(trs)-period:]
	}
	sum := 0.0
	for _, tr := range trs {
		sum += tr
	}
	return sum / float64(len(trs)), true
}

// RSI uses Wilder smoothing. Needs at least period+1 values.
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	n := float64(period)
	gain /= n
	loss /= n
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		gain = (gain*(n-1) + up) / n
		loss = (loss*(n-1) + down) / n
	}
	if loss == 0 {
		if gain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}

// ADX is Wilder's average directional index. Needs 2*period+1 candles.
func ADX(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < 2*period+1 {
		return 0, false
	}
	n := float64(period)
	var trS, plusS, minusS float64
	dxs := make([]float64, 0, len(candles))
	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		tr := trueRange(cur, prev.Close)
		upMove := cur.High - prev.High
		downMove := prev.Low - cur.Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		if i <= period {
			trS += tr
			plusS += plusDM
			minusS += minusDM
			if i < period {
				continue
			}
		} else {
			trS = trS - trS/n + tr
			plusS = plusS - plusS/n + plusDM
			minusS = minusS - minusS/n + minusDM
		}
		dxs = append(dxs, directionalIndex(plusS, minusS, trS))
	}
	adx := 0.0
	for _, dx := range dxs[:period] {
		adx += dx
	}
	adx /= n
	for _, dx := range dxs[period:] {
		adx = (adx*(n-1) + dx) / n
	}
	return adx, true
}

func directionalIndex(plus, minus, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	plusDI := 100 * plus / tr
	minusDI := 100 * minus / tr
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}

type Bands struct {
	Middle float64
	Upper  float64
	Lower  float64
}

// Bollinger returns SMA(period) ± k population standard deviations.
func Bollinger(values []float64, period int, k float64) (Bands, bool) {
	mid, ok := SMA(values, period)
	if !ok {
		return Bands{}, false
	}
	variance := 0.0
	for _, v := range values[len(values)-period:] {
		variance += (v - mid) * (v - mid)
	}
	sd := math.Sqrt(variance / float64(period))
	return Bands{Middle: mid, Upper: mid + k*sd, Lower: mid - k*sd}, true
}

// Slope is the fractional change of EMA(period) against the same EMA computed
// without the last lookback values.
func Slope(values []float64, period, lookback int) (float64, bool) {
	if lookback <= 0 || len(values) < period+lookback {
		return 0, false
	}
	now, ok := EMA(values, period)
	if !ok {
		return 0, false
	}
	past, ok := EMA(values[:len(values)-lookback], period)
	if !ok || past == 0 {
		return 0, false
	}
	return (now - past) / past, true
}

// SwingRange returns the highest high and lowest low of the last n candles.
func SwingRange(candles []models.Candle, n int) (high, low float64, ok bool) {
	if n <= 0 || len(candles) == 0 {
		return 0, 0, false
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	high, low = candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return high, low, true
}

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
