package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Thresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value float64
		want  HealthCategory
	}{
		{-1, HealthPoor},
		{0, HealthPoor},
		{0.2999, HealthPoor},
		{0.3, HealthModerate},
		{0.4999, HealthModerate},
		{0.5, HealthGood},
		{0.6999, HealthGood},
		{0.7, HealthExcellent},
		{1, HealthExcellent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.value), "value %v", tt.value)
	}
}

func TestClassify_Total(t *testing.T) {
	t.Parallel()

	// Sweep [-1,1] in small steps; every value must land in exactly one
	// category and categories never decrease as the value grows.
	prev := HealthPoor
	for i := -1000; i <= 1000; i++ {
		v := float64(i) / 1000
		got := Classify(v)
		assert.GreaterOrEqual(t, got, prev, "value %v", v)
		assert.LessOrEqual(t, got, HealthExcellent)
		prev = got
	}

	assert.Equal(t, HealthPoor, Classify(math.NaN()))
	assert.Equal(t, HealthExcellent, Classify(math.Inf(1)))
}

func TestHealthCategory_JSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(HealthGood)
	require.NoError(t, err)
	assert.Equal(t, `"good"`, string(data))

	var h HealthCategory
	require.NoError(t, json.Unmarshal([]byte(`"excellent"`), &h))
	assert.Equal(t, HealthExcellent, h)

	assert.Error(t, json.Unmarshal([]byte(`"lush"`), &h))
}

func TestParseHealthCategory(t *testing.T) {
	t.Parallel()

	h, ok := ParseHealthCategory("moderate")
	assert.True(t, ok)
	assert.Equal(t, HealthModerate, h)

	_, ok = ParseHealthCategory("")
	assert.False(t, ok)
	assert.Equal(t, "unknown", HealthCategory(9).String())
}
