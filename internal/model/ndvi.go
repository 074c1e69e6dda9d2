package model

import (
	"math"
	"time"
)

// DateLayout is the calendar-day format used on the wire and in query strings.
const DateLayout = "2006-01-02"

// NdviPoint is one field's vegetation index on one calendar day.
type NdviPoint struct {
	Date   time.Time      `json:"date"`
	Value  float64        `json:"value"`
	Health HealthCategory `json:"health"`
}

// NewPoint builds a point for the given day, clamping the value to [-1,1]
// and deriving its health category.
func NewPoint(day time.Time, value float64) NdviPoint {
	v := Clamp(value)
	return NdviPoint{Date: Day(day), Value: v, Health: Classify(v)}
}

// Day truncates t to 00:00:00 UTC so every point maps to exactly one calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC calendar day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Clamp bounds v to the NDVI range [-1,1].
func Clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
