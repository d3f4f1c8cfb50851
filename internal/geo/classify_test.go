package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	dist := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		distance *float64
		expected string
	}{
		{"no station", nil, ClassUnknown},
		{"station area: next door", dist(120), ClassStationArea},
		{"station area: at threshold", dist(500), ClassStationArea},
		{"walkable: just past threshold", dist(500.1), ClassWalkable},
		{"walkable: at threshold", dist(1000), ClassWalkable},
		{"nearby", dist(1800), ClassNearby},
		{"nearby: at threshold", dist(2000), ClassNearby},
		{"remote", dist(5200), ClassRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.distance))
		})
	}
}
