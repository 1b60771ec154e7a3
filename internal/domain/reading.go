package domain

import (
	"strings"
	"time"
)

// Reading is a single sensor measurement. Once accepted it is immutable and
// exists as four redundant projections in the column store (by sensor/day,
// by city/day, by country/day, latest-by-sensor).
type Reading struct {
	SensorID    string
	Timestamp   time.Time
	City        string
	Country     string
	Temperature *float64
	Humidity    *float64
	Type        string // "temperature", "humidity", "combined"
}

// Validate checks the acceptance rules: sensor id present and at least one
// of temperature/humidity set. The timestamp is defaulted by the ingestor,
// not rejected here.
func (r *Reading) Validate() error {
	if strings.TrimSpace(r.SensorID) == "" {
		return ErrValidation("sensor id is required")
	}
	if r.Temperature == nil && r.Humidity == nil {
		return ErrValidation("at least one of temperature or humidity is required")
	}
	return nil
}

// Day returns the UTC calendar day the reading belongs to, used as the
// partition-key component of the daily projections.
func (r *Reading) Day() time.Time {
	return r.Timestamp.UTC().Truncate(24 * time.Hour)
}
