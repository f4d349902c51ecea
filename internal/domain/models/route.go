package models

import (
	"fmt"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
)

// Waypoint is a single fix on a route. Offset is the time since route start.
type Waypoint struct {
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Offset    time.Duration `json:"offset"`
	SpeedHint float64       `json:"speed_hint,omitempty"` // m/s, 0 when unknown
}

// Route is an ordered, validated sequence of waypoints. The zero value is not
// a valid route; build one with NewRoute. The waypoint slice is never exposed
// for mutation.
type Route struct {
	ID            string
	Name          string
	TotalDistance float64 // meters
	TotalDuration time.Duration

	waypoints []Waypoint
}

// NewRoute copies waypoints, computes totals and validates the result.
func NewRoute(id, name string, waypoints []Waypoint) (Route, error) {
	wps := make([]Waypoint, len(waypoints))
	copy(wps, waypoints)

	r := Route{
		ID:            id,
		Name:          name,
		TotalDistance: PathLength(wps),
		waypoints:     wps,
	}
	if len(wps) > 0 {
		r.TotalDuration = wps[len(wps)-1].Offset
	}

	if err := r.Validate(); err != nil {
		return Route{}, err
	}

	return r, nil
}

// Validate checks waypoint count, coordinate ranges and offset monotonicity.
func (r Route) Validate() error {
	if len(r.waypoints) < 2 {
		return fmt.Errorf("%w: need at least 2 waypoints, got %d", types.ErrInvalidRoute, len(r.waypoints))
	}
	if r.waypoints[0].Offset != 0 {
		return fmt.Errorf("%w: first offset must be 0, got %s", types.ErrInvalidRoute, r.waypoints[0].Offset)
	}

	for i, wp := range r.waypoints {
		if !validCoordinate(wp.Latitude, wp.Longitude) {
			return fmt.Errorf("%w: waypoint %d has invalid coordinate (%v, %v)", types.ErrInvalidRoute, i, wp.Latitude, wp.Longitude)
		}
		if i > 0 && wp.Offset <= r.waypoints[i-1].Offset {
			return fmt.Errorf("%w: offsets must be strictly increasing at waypoint %d", types.ErrInvalidRoute, i)
		}
	}

	if last := r.waypoints[len(r.waypoints)-1].Offset; r.TotalDuration != last {
		return fmt.Errorf("%w: total duration %s does not match last offset %s", types.ErrInvalidRoute, r.TotalDuration, last)
	}

	return nil
}

// Len returns the number of waypoints.
func (r Route) Len() int {
	return len(r.waypoints)
}

// At returns the i-th waypoint.
func (r Route) At(i int) Waypoint {
	return r.waypoints[i]
}

// Waypoints returns a copy of the waypoint sequence.
func (r Route) Waypoints() []Waypoint {
	out := make([]Waypoint, len(r.waypoints))
	copy(out, r.waypoints)
	return out
}

func (r Route) Start() Waypoint {
	return r.waypoints[0]
}

func (r Route) Finish() Waypoint {
	return r.waypoints[len(r.waypoints)-1]
}

// PathLength sums haversine distances between consecutive waypoints.
func PathLength(wps []Waypoint) float64 {
	total := 0.0
	for i := 1; i < len(wps); i++ {
		total += Haversine(wps[i-1].Latitude, wps[i-1].Longitude, wps[i].Latitude, wps[i].Longitude)
	}
	return total
}
