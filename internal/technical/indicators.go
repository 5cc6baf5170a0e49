// Package technical turns a price history into a short technical-analysis
// digest: moving averages, Bollinger bands, support and resistance levels,
// and double top / double bottom patterns. The digest is plain markdown so it
// can be handed to a model as context.
package technical

import (
	"math"
	"sort"
)

// SMA returns the simple moving average of values over window. The first
// window-1 entries are NaN.
func SMA(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i < window-1 || window <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// RollingStd returns the sample standard deviation (n-1 denominator) over window.
func RollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if window < 2 || i < window-1 {
			out[i] = math.NaN()
			continue
		}
		win := values[i-window+1 : i+1]
		var mean float64
		for _, v := range win {
			mean += v
		}
		mean /= float64(window)
		var ss float64
		for _, v := range win {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// Bands is a Bollinger band series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes bands of k standard deviations around a window-period SMA.
func Bollinger(values []float64, window int, k float64) Bands {
	mid := SMA(values, window)
	std := RollingStd(values, window)
	b := Bands{
		Upper:  make([]float64, len(values)),
		Middle: mid,
		Lower:  make([]float64, len(values)),
	}
	for i := range values {
		b.Upper[i] = mid[i] + k*std[i]
		b.Lower[i] = mid[i] - k*std[i]
	}
	return b
}

// FindPeaks returns the indices of local maxima in x, sorted ascending.
// Flat peaks report their middle sample (rounded down). When distance > 1,
// lower peaks closer than distance samples to a higher one are dropped.
func FindPeaks(x []float64, distance int) []int {
	var peaks []int
	n := len(x)
	for i := 1; i < n-1; i++ {
		if !(x[i-1] < x[i]) {
			continue
		}
		ahead := i + 1
		for ahead < n-1 && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			peaks = append(peaks, (i+ahead-1)/2)
			i = ahead - 1
		}
	}

	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}

	// Visit peaks from highest to lowest; ties go to the later peak.
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ha, hb := x[peaks[order[a]]], x[peaks[order[b]]]
		if ha != hb {
			return ha > hb
		}
		return order[a] > order[b]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for _, p := range order {
		if !keep[p] {
			continue
		}
		for j := p - 1; j >= 0 && peaks[p]-peaks[j] < distance; j-- {
			keep[j] = false
		}
		for j := p + 1; j < len(peaks) && peaks[j]-peaks[p] < distance; j++ {
			keep[j] = false
		}
	}

	out := peaks[:0]
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// FindTroughs returns local minima with the same rules as FindPeaks.
func FindTroughs(x []float64, distance int) []int {
	neg := make([]float64, len(x))
	for i, v := range x {
		neg[i] = -v
	}
	return FindPeaks(neg, distance)
}

// SupportResistance returns the prices of the last n troughs (support) and
// peaks (resistance), found at least distance samples apart.
func SupportResistance(closes []float64, distance, n int) (support, resistance []float64) {
	return lastPrices(closes, FindTroughs(closes, distance), n), lastPrices(closes, FindPeaks(closes, distance), n)
}

func lastPrices(x []float64, idx []int, n int) []float64 {
	if len(idx) > n {
		idx = idx[len(idx)-n:]
	}
	out := make([]float64, 0, len(idx))
	for _, i := range idx {
		out = append(out, x[i])
	}
	return out
}

// Pattern is a detected double top or double bottom.
type Pattern struct {
	Detected bool
	First    int // index of the first top/bottom
	Second   int
	Neckline float64
}

// DoubleTop looks for the two highest peaks being within tolerance (a
// fraction of the first peak) of each other, with a later close breaking
// below the lowest close between them.
func DoubleTop(closes []float64, distance int, tolerance float64) Pattern {
	return doublePattern(closes, FindPeaks(closes, distance), tolerance, true)
}

// DoubleBottom is the mirror image of DoubleTop.
func DoubleBottom(closes []float64, distance int, tolerance float64) Pattern {
	return doublePattern(closes, FindTroughs(closes, distance), tolerance, false)
}

func doublePattern(closes []float64, extrema []int, tolerance float64, top bool) Pattern {
	if len(extrema) < 2 {
		return Pattern{}
	}

	ranked := append([]int(nil), extrema...)
	sort.SliceStable(ranked, func(a, b int) bool {
		if top {
			return closes[ranked[a]] > closes[ranked[b]]
		}
		return closes[ranked[a]] < closes[ranked[b]]
	})
	first, second := ranked[0], ranked[1]
	if first > second {
		first, second = second, first
	}

	if math.Abs(closes[first]-closes[second]) > tolerance*closes[first] {
		return Pattern{}
	}

	neckline := closes[first]
	for _, v := range closes[first:second] {
		if top {
			neckline = math.Min(neckline, v)
		} else {
			neckline = math.Max(neckline, v)
		}
	}

	for _, v := range closes[second:] {
		if (top && v < neckline) || (!top && v > neckline) {
			return Pattern{Detected: true, First: first, Second: second, Neckline: neckline}
		}
	}
	return Pattern{}
}
