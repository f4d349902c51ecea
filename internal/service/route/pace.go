package route

import (
	"math"
	"time"
)

// DefaultPace is 6:00 per kilometer.
const DefaultPace = 6 * time.Minute

// DurationFor returns how long distanceMeters takes at pace (time per km).
func DurationFor(distanceMeters float64, pace time.Duration) time.Duration {
	if distanceMeters <= 0 || pace <= 0 {
		return 0
	}
	return time.Duration(math.Round(distanceMeters / 1000 * float64(pace)))
}

// PaceFor returns time per km for the given distance and duration.
func PaceFor(distanceMeters float64, d time.Duration) time.Duration {
	if distanceMeters <= 0 {
		return 0
	}
	return time.Duration(float64(d) / (distanceMeters / 1000))
}

// SpeedFor returns meters per second.
func SpeedFor(distanceMeters float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return distanceMeters / d.Seconds()
}
