package metrics

import "testing"

func TestPercentileNearestRank(t *testing.T) {
	sample := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		p    int
		want float64
	}{
		{50, 30}, // idx = floor(5*50/100) = 2
		{90, 50}, // idx = floor(5*90/100) = 4
		{0, 10},
		{100, 50}, // clamped to last index
	}
	for _, tt := range tests {
		if got := Percentile(sample, tt.p); got != tt.want {
			t.Errorf("Percentile(p=%d) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestPercentileEmptySample(t *testing.T) {
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("empty sample = %v, want 0", got)
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	sample := []float64{3, 1, 2}
	Percentile(sample, 50)
	if sample[0] != 3 || sample[1] != 1 || sample[2] != 2 {
		t.Errorf("input mutated: %v", sample)
	}
}

func TestPercentileMonotonic(t *testing.T) {
	samples := [][]float64{
		{1},
		{5, 5, 5},
		{1, 2, 3, 4, 5, 6, 7},
		{100, 1, 50, 2, 99},
	}
	for _, s := range samples {
		p50 := Percentile(s, 50)
		p90 := Percentile(s, 90)
		if p50 > p90 {
			t.Errorf("p50 %v > p90 %v for %v", p50, p90, s)
		}
	}
}

func TestMean(t *testing.T) {
	if m, ok := Mean([]float64{1, 2, 3}); !ok || m != 2 {
		t.Errorf("Mean = %v/%v, want 2/true", m, ok)
	}
	if _, ok := Mean(nil); ok {
		t.Errorf("empty mean should report ok=false")
	}
}
