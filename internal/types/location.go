package types

import "time"

// Location is a GPS fix attached to break reports.
type Location struct {
	Latitude  float64
	Longitude float64
	At        time.Time
}
