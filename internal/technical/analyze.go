package technical

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fleveque/research-analyst/internal/fmp"
)

// Defaults for pattern detection.
const (
	levelDistance    = 10
	levelCount       = 3
	patternDistance  = 4
	patternTolerance = 0.02
	bollingerWindow  = 20
	bollingerK       = 2.0
)

var smaWindows = map[string]int{
	"SMA10":  10,
	"SMA20":  20,
	"SMA50":  50,
	"SMA100": 100,
	"SMA200": 200,
}

// PeriodStart returns the first date covered by a look-back period such as
// "6mo" or "ytd", relative to now.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "1mo":
		return now.AddDate(0, -1, 0), nil
	case "3mo":
		return now.AddDate(0, -3, 0), nil
	case "6mo":
		return now.AddDate(0, -6, 0), nil
	case "1y":
		return now.AddDate(-1, 0, 0), nil
	case "2y":
		return now.AddDate(-2, 0, 0), nil
	case "5y":
		return now.AddDate(-5, 0, 0), nil
	case "ytd":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}

// Resample aggregates daily bars (oldest first) into weekly ("1wk") or
// monthly ("1mo") bars. "1d" returns bars unchanged.
func Resample(bars []fmp.PriceBar, interval string) ([]fmp.PriceBar, error) {
	var key func(time.Time) string
	switch interval {
	case "1d", "":
		return bars, nil
	case "1wk":
		key = func(t time.Time) string {
			y, w := t.ISOWeek()
			return fmt.Sprintf("%d-W%02d", y, w)
		}
	case "1mo":
		key = func(t time.Time) string { return t.Format("2006-01") }
	default:
		return nil, fmt.Errorf("unknown interval %q", interval)
	}

	var (
		out  []fmp.PriceBar
		last string
	)
	for _, b := range bars {
		k := key(b.Date)
		if len(out) == 0 || k != last {
			out = append(out, b)
			last = k
			continue
		}
		cur := &out[len(out)-1]
		cur.High = math.Max(cur.High, b.High)
		cur.Low = math.Min(cur.Low, b.Low)
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	return out, nil
}

// IndicatorValue is the latest reading of one indicator.
type IndicatorValue struct {
	Name  string
	Value float64 // NaN when there isn't enough history
}

// Level is a dated price point.
type Level struct {
	Date  time.Time
	Price float64
}

// PatternReport describes a detected double top or bottom.
type PatternReport struct {
	Detected bool
	First    Level
	Second   Level
	Neckline float64
}

// Report is the technical digest for one symbol.
type Report struct {
	Symbol       string
	Period       string
	Interval     string
	Bars         int
	From, To     time.Time
	LastClose    float64
	Indicators   []IndicatorValue
	Support      []float64
	Resistance   []float64
	DoubleTop    PatternReport
	DoubleBottom PatternReport
}

// Analyze computes the digest for bars (oldest first). indicators holds
// canonical names such as "SMA20" or "Bollinger Bands".
func Analyze(symbol, period, interval string, bars []fmp.PriceBar, indicators []string) Report {
	r := Report{Symbol: symbol, Period: period, Interval: interval, Bars: len(bars)}
	if len(bars) == 0 {
		return r
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	last := len(closes) - 1
	r.From, r.To = bars[0].Date, bars[last].Date
	r.LastClose = closes[last]

	for _, name := range indicators {
		if w, ok := smaWindows[name]; ok {
			r.Indicators = append(r.Indicators, IndicatorValue{Name: name, Value: SMA(closes, w)[last]})
			continue
		}
		if name == "Bollinger Bands" {
			b := Bollinger(closes, bollingerWindow, bollingerK)
			r.Indicators = append(r.Indicators,
				IndicatorValue{Name: "Bollinger Upper", Value: b.Upper[last]},
				IndicatorValue{Name: "Bollinger Middle", Value: b.Middle[last]},
				IndicatorValue{Name: "Bollinger Lower", Value: b.Lower[last]},
			)
		}
	}

	r.Support, r.Resistance = SupportResistance(closes, levelDistance, levelCount)
	r.DoubleTop = patternReport(bars, DoubleTop(closes, patternDistance, patternTolerance))
	r.DoubleBottom = patternReport(bars, DoubleBottom(closes, patternDistance, patternTolerance))
	return r
}

func patternReport(bars []fmp.PriceBar, p Pattern) PatternReport {
	if !p.Detected {
		return PatternReport{}
	}
	return PatternReport{
		Detected: true,
		First:    Level{Date: bars[p.First].Date, Price: bars[p.First].Close},
		Second:   Level{Date: bars[p.Second].Date, Price: bars[p.Second].Close},
		Neckline: p.Neckline,
	}
}

// Markdown renders the report as the context block sent to the model.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s technical data (%s, %s bars)\n\n", r.Symbol, r.Period, r.Interval)
	if r.Bars == 0 {
		b.WriteString("No price data available.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "- Bars analysed: %d (%s to %s)\n", r.Bars, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	fmt.Fprintf(&b, "- Last close: %s\n", price(r.LastClose))
	fmt.Fprintf(&b, "- Support levels: %s\n", prices(r.Support))
	fmt.Fprintf(&b, "- Resistance levels: %s\n", prices(r.Resistance))
	fmt.Fprintf(&b, "- Double top: %s\n", r.DoubleTop.describe())
	fmt.Fprintf(&b, "- Double bottom: %s\n", r.DoubleBottom.describe())

	if len(r.Indicators) > 0 {
		b.WriteString("\n| Indicator | Latest |\n|---|---|\n")
		for _, ind := range r.Indicators {
			fmt.Fprintf(&b, "| %s | %s |\n", ind.Name, price(ind.Value))
		}
	}
	return b.String()
}

func (p PatternReport) describe() string {
	if !p.Detected {
		return "not detected"
	}
	return fmt.Sprintf("detected at %s (%s) and %s (%s), neckline %s",
		p.First.Date.Format(time.DateOnly), price(p.First.Price),
		p.Second.Date.Format(time.DateOnly), price(p.Second.Price),
		price(p.Neckline))
}

func price(v float64) string {
	if math.IsNaN(v) {
		return "n/a (not enough history)"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func prices(vs []float64) string {
	if len(vs) == 0 {
		return "none found"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = price(v)
	}
	return strings.Join(parts, ", ")
}
