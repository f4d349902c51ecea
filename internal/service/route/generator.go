package route

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/hasher"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const (
	DefaultStepMeters  = 10.0
	DefaultCoordJitter = 0.000005 // degrees, roughly half a meter
	DefaultTimeJitter  = 0.2      // share of the smaller neighbouring gap

	maxTimeJitter = 0.45
)

type Config struct {
	StepMeters  float64
	CoordJitter float64
	TimeJitter  float64
}

// Generator derives runnable routes from seed routes. It holds no state
// between calls and is safe for concurrent use.
type Generator struct {
	step        float64
	coordJitter float64
	timeJitter  float64
	l           logger.Logger
}

func NewGenerator(cfg Config, l logger.Logger) *Generator {
	g := &Generator{
		step:        cfg.StepMeters,
		coordJitter: math.Abs(cfg.CoordJitter),
		timeJitter:  math.Abs(cfg.TimeJitter),
		l:           l,
	}
	if g.step <= 0 {
		g.step = DefaultStepMeters
	}
	g.timeJitter = min(g.timeJitter, maxTimeJitter)
	return g
}

// Generate resamples seed at equal arc-length steps so that the result has
// one waypoint per step of targetDistance, rescales its timing to end exactly
// at targetDuration and applies jitter seeded by jitterSeed. Endpoints are the
// seed endpoints. Identical inputs give an identical route.
func (g *Generator) Generate(ctx context.Context, seed models.Route, targetDistance float64, targetDuration time.Duration, jitterSeed uint64) (models.Route, error) {
	const op = "Generator.Generate"
	ctx = wrap.WithRouteID(wrap.WithAction(ctx, types.ActionRouteGenerate), seed.ID)

	if err := g.validateInput(seed, targetDistance, targetDuration); err != nil {
		return models.Route{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	seedWps := seed.Waypoints()
	cum := cumulative(seedWps)
	length := cum[len(cum)-1]

	segments := max(1, int(math.Ceil(targetDistance/g.step)))
	scale := float64(targetDuration) / float64(seed.TotalDuration)

	wps := make([]models.Waypoint, segments+1)
	for k := range wps {
		s := length * float64(k) / float64(segments)
		lat, lon, off := interpolate(seedWps, cum, s)
		wps[k] = models.Waypoint{
			Latitude:  lat,
			Longitude: lon,
			Offset:    time.Duration(math.Round(off * scale)),
		}
	}

	first, last := seedWps[0], seedWps[len(seedWps)-1]
	wps[0] = models.Waypoint{Latitude: first.Latitude, Longitude: first.Longitude}
	wps[segments] = models.Waypoint{Latitude: last.Latitude, Longitude: last.Longitude, Offset: targetDuration}

	g.jitter(wps, jitterSeed)
	enforceMonotonic(wps)
	assignSpeedHints(wps)

	id := fingerprint(seed, targetDistance, targetDuration, jitterSeed)
	name := fmt.Sprintf("%s-%.0fm", seed.Name, targetDistance)

	route, err := models.NewRoute(id, name, wps)
	if err != nil {
		return models.Route{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	g.l.Debug(ctx, "route generated",
		"waypoints", route.Len(),
		"distance_m", route.TotalDistance,
		"duration", route.TotalDuration.String(),
	)

	return route, nil
}

func (g *Generator) validateInput(seed models.Route, targetDistance float64, targetDuration time.Duration) error {
	if math.IsNaN(targetDistance) || targetDistance <= 0 {
		return fmt.Errorf("%w: target distance must be positive", types.ErrInvalidRoute)
	}
	if targetDuration <= 0 {
		return fmt.Errorf("%w: target duration must be positive", types.ErrInvalidRoute)
	}
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if seed.TotalDistance <= 0 {
		return fmt.Errorf("%w: seed polyline has zero length", types.ErrInvalidRoute)
	}
	return nil
}

// jitter perturbs interior points only. The RNG is drawn in a fixed order so
// the output depends on jitterSeed alone.
func (g *Generator) jitter(wps []models.Waypoint, jitterSeed uint64) {
	if len(wps) < 3 {
		return
	}

	rng := rand.New(rand.NewPCG(jitterSeed, jitterSeed^0x9e3779b97f4a7c15))

	base := make([]time.Duration, len(wps))
	for i, wp := range wps {
		base[i] = wp.Offset
	}

	for i := 1; i < len(wps)-1; i++ {
		dLat := (rng.Float64()*2 - 1) * g.coordJitter
		dLon := (rng.Float64()*2 - 1) * g.coordJitter
		dT := rng.Float64()*2 - 1

		wps[i].Latitude = clamp(wps[i].Latitude+dLat, -90, 90)
		wps[i].Longitude = clamp(wps[i].Longitude+dLon, -180, 180)

		gap := min(base[i]-base[i-1], base[i+1]-base[i])
		wps[i].Offset = base[i] + time.Duration(dT*g.timeJitter*float64(gap))
	}
}

// enforceMonotonic keeps offsets strictly increasing while the last offset
// stays fixed.
func enforceMonotonic(wps []models.Waypoint) {
	n := len(wps)
	for i := 1; i < n-1; i++ {
		if wps[i].Offset <= wps[i-1].Offset {
			wps[i].Offset = wps[i-1].Offset + 1
		}
	}
	for i := n - 2; i > 0; i-- {
		if wps[i].Offset >= wps[i+1].Offset {
			wps[i].Offset = wps[i+1].Offset - 1
		}
	}
}

func assignSpeedHints(wps []models.Waypoint) {
	for i := 1; i < len(wps); i++ {
		d := models.Haversine(wps[i-1].Latitude, wps[i-1].Longitude, wps[i].Latitude, wps[i].Longitude)
		dt := (wps[i].Offset - wps[i-1].Offset).Seconds()
		if dt > 0 {
			wps[i].SpeedHint = d / dt
		}
	}
}

func cumulative(wps []models.Waypoint) []float64 {
	cum := make([]float64, len(wps))
	for i := 1; i < len(wps); i++ {
		cum[i] = cum[i-1] + models.Haversine(wps[i-1].Latitude, wps[i-1].Longitude, wps[i].Latitude, wps[i].Longitude)
	}
	return cum
}

// interpolate returns the position and seed offset (ns) at arc length s.
func interpolate(wps []models.Waypoint, cum []float64, s float64) (lat, lon, offset float64) {
	j := 0
	for j < len(cum)-2 && cum[j+1] < s {
		j++
	}

	a, b := wps[j], wps[j+1]
	segLen := cum[j+1] - cum[j]
	f := 0.0
	if segLen > 0 {
		f = clamp((s-cum[j])/segLen, 0, 1)
	}

	lat = a.Latitude + (b.Latitude-a.Latitude)*f
	lon = a.Longitude + (b.Longitude-a.Longitude)*f
	offset = float64(a.Offset) + float64(b.Offset-a.Offset)*f
	return lat, lon, offset
}

func fingerprint(seed models.Route, targetDistance float64, targetDuration time.Duration, jitterSeed uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%.6f|%d|%d|", seed.ID, targetDistance, targetDuration, jitterSeed)
	for _, wp := range seed.Waypoints() {
		fmt.Fprintf(&b, "%.8f,%.8f,%d;", wp.Latitude, wp.Longitude, wp.Offset)
	}
	return "gen-" + hasher.Hash(b.String())[:16]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
