package technical

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{math.NaN(), math.NaN(), 2, 3, 4}
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("SMA mismatch (-want +got):\n%s", diff)
	}
}

func TestSMA_WindowLongerThanSeries(t *testing.T) {
	for i, v := range SMA([]float64{1, 2}, 5) {
		if !math.IsNaN(v) {
			t.Errorf("index %d: expected NaN, got %v", i, v)
		}
	}
}

func TestBollinger(t *testing.T) {
	b := Bollinger([]float64{1, 2, 3}, 3, 2)
	if b.Middle[2] != 2 || b.Upper[2] != 4 || b.Lower[2] != 0 {
		t.Errorf("unexpected bands: upper=%v middle=%v lower=%v", b.Upper[2], b.Middle[2], b.Lower[2])
	}
	if !math.IsNaN(b.Upper[1]) {
		t.Errorf("expected NaN before the window fills, got %v", b.Upper[1])
	}
}

func TestRollingStd_Sample(t *testing.T) {
	got := RollingStd([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)[7]
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("RollingStd = %v, want %v", got, want)
	}
}

func TestFindPeaks(t *testing.T) {
	tests := []struct {
		name     string
		x        []float64
		distance int
		want     []int
	}{
		{"simple", []float64{0, 1, 0, 2, 0, 3, 0}, 1, []int{1, 3, 5}},
		{"distance keeps highest", []float64{0, 1, 0, 2, 0, 3, 0}, 3, []int{1, 5}},
		{"plateau takes middle", []float64{0, 2, 2, 2, 0}, 1, []int{2}},
		{"even plateau rounds down", []float64{0, 2, 2, 0}, 1, []int{1}},
		{"edges are not peaks", []float64{3, 1, 2}, 1, nil},
		{"monotonic", []float64{1, 2, 3, 4}, 1, nil},
		{"too short", []float64{1}, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindPeaks(tt.x, tt.distance)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("FindPeaks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindTroughs(t *testing.T) {
	got := FindTroughs([]float64{3, 1, 3, 0, 3}, 1)
	if diff := cmp.Diff([]int{1, 3}, got); diff != "" {
		t.Errorf("FindTroughs mismatch (-want +got):\n%s", diff)
	}
}

func TestSupportResistance(t *testing.T) {
	closes := []float64{0, 5, 0, 6, 0, 7, 0, 8, 0}
	support, resistance := SupportResistance(closes, 1, 3)

	if diff := cmp.Diff([]float64{6, 7, 8}, resistance); diff != "" {
		t.Errorf("resistance mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0, 0}, support); diff != "" {
		t.Errorf("support mismatch (-want +got):\n%s", diff)
	}
}

func TestDoubleTop(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   Pattern
	}{
		{
			name:   "confirmed",
			closes: []float64{10, 12, 20, 12, 11, 13, 19.8, 13, 12, 9},
			want:   Pattern{Detected: true, First: 2, Second: 6, Neckline: 11},
		},
		{
			name:   "no neckline break",
			closes: []float64{10, 12, 20, 12, 11, 13, 19.8, 13, 12, 11.5},
		},
		{
			name:   "tops too far apart in price",
			closes: []float64{10, 12, 20, 12, 11, 13, 18, 13, 12, 9},
		},
		{
			name:   "single peak",
			closes: []float64{1, 2, 3, 2, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DoubleTop(tt.closes, 4, 0.02)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DoubleTop mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDoubleBottom(t *testing.T) {
	closes := []float64{20, 18, 10, 18, 19, 17, 10.1, 17, 18, 21}
	got := DoubleBottom(closes, 4, 0.02)
	want := Pattern{Detected: true, First: 2, Second: 6, Neckline: 19}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DoubleBottom mismatch (-want +got):\n%s", diff)
	}

	closes[len(closes)-1] = 18.5
	if DoubleBottom(closes, 4, 0.02).Detected {
		t.Error("expected no pattern without a break above the neckline")
	}
}
