package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewImageStatistics(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		missing     int64
		wantMissing int
		wantWith    int64
	}{
		{name: "empty library", total: 0, missing: 0, wantMissing: 0, wantWith: 0},
		{name: "all missing", total: 40, missing: 40, wantMissing: 100, wantWith: 0},
		{name: "none missing", total: 40, missing: 0, wantMissing: 0, wantWith: 40},
		{name: "one third rounds down", total: 3, missing: 1, wantMissing: 33, wantWith: 2},
		{name: "two thirds rounds up", total: 3, missing: 2, wantMissing: 67, wantWith: 1},
		{name: "half rounds up", total: 8, missing: 1, wantMissing: 13, wantWith: 7},
		{name: "missing above total is clamped", total: 5, missing: 9, wantMissing: 100, wantWith: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewImageStatistics(tt.total, tt.missing)
			assert.Equal(t, tt.wantMissing, s.MissingPercentage)
			assert.Equal(t, tt.wantWith, s.WithAltText)
			assert.Equal(t, s.TotalImages, s.MissingAltText+s.WithAltText)
			assert.Equal(t, 100, s.MissingPercentage+s.WithAltPercentage())
		})
	}
}

func TestPercentagesSumToHundred(t *testing.T) {
	for total := int64(1); total <= 250; total++ {
		for missing := int64(0); missing <= total; missing++ {
			s := NewImageStatistics(total, missing)
			if s.MissingPercentage+s.WithAltPercentage() != 100 {
				t.Fatalf("total=%d missing=%d: percentages do not sum to 100", total, missing)
			}
			if s.MissingAltText+s.WithAltText != s.TotalImages {
				t.Fatalf("total=%d missing=%d: counts do not add up", total, missing)
			}
		}
	}
}

func TestFloorPercent(t *testing.T) {
	assert.Equal(t, 0, FloorPercent(5, 0))
	assert.Equal(t, 76, FloorPercent(100, 130))
	assert.Equal(t, 99, FloorPercent(129, 130))
	assert.Equal(t, 100, FloorPercent(130, 130))
}
