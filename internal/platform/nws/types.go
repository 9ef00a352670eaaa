package nws

import "time"

// ForecastPeriod is one half-day window of a gridpoint forecast.
type ForecastPeriod struct {
	Name        string    `json:"name"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	IsDaytime   bool      `json:"isDaytime"`
	Temperature float64   `json:"temperature"` // Fahrenheit
	TempUnit    string    `json:"temperatureUnit"`
}

// Forecast is the parsed gridpoint forecast.
type Forecast struct {
	UpdatedAt time.Time
	Periods   []ForecastPeriod
}

// DaytimeHigh returns the forecast daily high: the temperature of the first
// daytime period. The service lists periods in chronological order, so the
// first daytime entry is today's (or tomorrow's, after sunset).
func (f Forecast) DaytimeHigh() (float64, bool) {
	for _, p := range f.Periods {
		if p.IsDaytime {
			return p.Temperature, true
		}
	}
	return 0, false
}

// Observation is the latest station observation. The service reports
// temperatures in Celsius.
type Observation struct {
	Timestamp time.Time
	TempC     *float64
}

// TempF converts the observed temperature to Fahrenheit.
func (o Observation) TempF() *float64 {
	if o.TempC == nil {
		return nil
	}
	f := *o.TempC*9.0/5.0 + 32.0
	return &f
}
