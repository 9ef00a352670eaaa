package domain

import "time"

// WeatherSnapshot is one fetch of forecast + observation data for a city.
type WeatherSnapshot struct {
	ID              int64
	CityCode        string
	CapturedAt      time.Time
	ForecastHighF   float64
	ForecastStdDevF float64    // >= 0
	ObservedTempF   *float64   // nil when no observation was available
	ForecastIssued  *time.Time // source timestamp of the forecast
	ObservedAt      *time.Time // source timestamp of the observation
	Stale           bool       // data too old to trade on this cycle
}

// Age returns how long ago the snapshot was captured.
func (w WeatherSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(w.CapturedAt)
}
