package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatios(t *testing.T) {
	tests := []struct {
		name                      string
		impressions, clicks       int64
		spend, revenue            float64
		wantCTR, wantCPC, wantROI float64
	}{
		{"reference row", 5000, 150, 500, 2500, 3.0, 3.33, 400.0},
		{"all zero", 0, 0, 0, 0, 0, 0, 0},
		{"no clicks", 1000, 0, 50, 0, 0, 0, -100},
		{"no spend", 1000, 10, 0, 200, 1.0, 0, 0},
		{"loss", 2000, 100, 200, 150, 5.0, 2.0, -25.0},
		{"repeating fraction", 3, 1, 10, 0, 33.33, 10, -100},
		{"two thirds", 3, 2, 1, 0, 66.67, 0.5, -100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCTR, CTR(tt.clicks, tt.impressions))
			assert.Equal(t, tt.wantCPC, CPC(tt.spend, tt.clicks))
			assert.Equal(t, tt.wantROI, ROI(tt.revenue, tt.spend))
		})
	}
}

func TestRound2HalfUp(t *testing.T) {
	assert.Equal(t, 2.68, Round2(2.675))
	assert.Equal(t, 1.01, Round2(1.005))
	assert.Equal(t, -2.68, Round2(-2.675))
	assert.Equal(t, 3.0, Round2(3.0000000000000004))
	assert.Equal(t, 0.0, Round2(0))
}

func TestCPCTieRoundsUp(t *testing.T) {
	// 0.125 is exact in binary and decimal; half-up gives 0.13.
	assert.Equal(t, 0.13, CPC(1, 8))
}

func TestMeanAndSum(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
	assert.Equal(t, 250.0, Mean([]float64{400, 100}))
	assert.Equal(t, 0.3, Sum(0.1, 0.2))
	assert.Equal(t, 0.0, Sum())
}
