package route

import (
	"fmt"
	"math"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/hasher"
)

const loopPoints = 8

// Loop builds a closed circuit of about distance meters that starts and ends
// at start. Offsets follow a constant pace.
func Loop(name string, start models.Location, distance float64, pace time.Duration) (models.Route, error) {
	if err := validateShape(start, distance, pace); err != nil {
		return models.Route{}, err
	}

	// perimeter of the inscribed octagon equals distance
	radius := distance / (2 * loopPoints * math.Sin(math.Pi/loopPoints))
	cLat, cLon := models.Destination(start.Latitude, start.Longitude, 90, radius)

	points := make([]models.Location, 0, loopPoints+1)
	points = append(points, start)
	for i := 1; i < loopPoints; i++ {
		bearing := 270 + float64(i)*360/loopPoints
		lat, lon := models.Destination(cLat, cLon, bearing, radius)
		points = append(points, models.Location{Latitude: lat, Longitude: lon})
	}
	points = append(points, start)

	return FromPoints(shapeID("loop", start, distance, 0), name, points, pace)
}

// OutAndBack builds start -> mid -> turn -> mid -> start where the turn point
// lies distance/2 meters away along bearing (degrees).
func OutAndBack(name string, start models.Location, distance, bearing float64, pace time.Duration) (models.Route, error) {
	if err := validateShape(start, distance, pace); err != nil {
		return models.Route{}, err
	}

	tLat, tLon := models.Destination(start.Latitude, start.Longitude, bearing, distance/2)
	mLat, mLon := models.Destination(start.Latitude, start.Longitude, bearing, distance/4)
	mid := models.Location{Latitude: mLat, Longitude: mLon}

	points := []models.Location{start, mid, {Latitude: tLat, Longitude: tLon}, mid, start}
	return FromPoints(shapeID("oab", start, distance, bearing), name, points, pace)
}

// FromPoints turns untimed points into a route by assigning offsets at a
// constant pace. Consecutive duplicate points are dropped.
func FromPoints(id, name string, points []models.Location, pace time.Duration) (models.Route, error) {
	if pace <= 0 {
		return models.Route{}, fmt.Errorf("%w: pace must be positive", types.ErrInvalidRoute)
	}

	wps := make([]models.Waypoint, 0, len(points))
	var traveled float64
	for i, p := range points {
		if i > 0 {
			prev := points[i-1]
			d := models.Haversine(prev.Latitude, prev.Longitude, p.Latitude, p.Longitude)
			if d == 0 {
				continue
			}
			traveled += d
		}

		wp := models.Waypoint{Latitude: p.Latitude, Longitude: p.Longitude, Offset: DurationFor(traveled, pace)}
		if len(wps) > 0 {
			wp.SpeedHint = 1000 / pace.Seconds()
		}
		wps = append(wps, wp)
	}

	return models.NewRoute(id, name, wps)
}

func validateShape(start models.Location, distance float64, pace time.Duration) error {
	if !start.Valid() {
		return fmt.Errorf("%w: invalid start coordinate", types.ErrInvalidRoute)
	}
	if distance <= 0 || math.IsNaN(distance) {
		return fmt.Errorf("%w: distance must be positive", types.ErrInvalidRoute)
	}
	if pace <= 0 {
		return fmt.Errorf("%w: pace must be positive", types.ErrInvalidRoute)
	}
	return nil
}

func shapeID(prefix string, start models.Location, distance, bearing float64) string {
	key := fmt.Sprintf("%s|%.8f|%.8f|%.3f|%.3f", prefix, start.Latitude, start.Longitude, distance, bearing)
	return prefix + "-" + hasher.Hash(key)[:16]
}
