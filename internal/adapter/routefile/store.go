package routefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const ext = ".json"

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

type waypointFile struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	OffsetMs  int64   `json:"offset_ms"`
	SpeedHint float64 `json:"speed_hint,omitempty"`
}

type routeFile struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	TotalDistance float64        `json:"total_distance"`
	TotalDuration int64          `json:"total_duration_ms"`
	SavedAt       time.Time      `json:"saved_at"`
	Waypoints     []waypointFile `json:"waypoints"`
}

// Summary describes a stored route without its waypoints.
type Summary struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	TotalDistance float64       `json:"total_distance"`
	TotalDuration time.Duration `json:"total_duration"`
	Waypoints     int           `json:"waypoints"`
}

// Store keeps one JSON file per route under dir.
type Store struct {
	dir string
	l   logger.Logger
}

func NewStore(dir string, l logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create route dir: %w", err)
	}
	return &Store{dir: dir, l: l}, nil
}

// List returns the routes in the directory sorted by id. Unreadable files are
// logged and skipped.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	const op = "Store.List"

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}

		rf, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.l.Warn(ctx, "skipping unreadable route file", "file", e.Name(), "error", err.Error())
			continue
		}
		out = append(out, Summary{
			ID:            rf.ID,
			Name:          rf.Name,
			TotalDistance: rf.TotalDistance,
			TotalDuration: time.Duration(rf.TotalDuration) * time.Millisecond,
			Waypoints:     len(rf.Waypoints),
		})
	}

	slices.SortFunc(out, func(a, b Summary) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Load reads and validates a route.
func (s *Store) Load(ctx context.Context, id string) (models.Route, error) {
	const op = "Store.Load"
	ctx = wrap.WithRouteID(wrap.WithAction(ctx, types.ActionRouteLoad), id)

	path, err := s.path(id)
	if err != nil {
		return models.Route{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	rf, err := s.read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("route %s: %w", id, types.ErrNotFound)
		}
		return models.Route{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	wps := make([]models.Waypoint, len(rf.Waypoints))
	for i, w := range rf.Waypoints {
		wps[i] = models.Waypoint{
			Latitude:  w.Latitude,
			Longitude: w.Longitude,
			Offset:    time.Duration(w.OffsetMs) * time.Millisecond,
			SpeedHint: w.SpeedHint,
		}
	}

	route, err := models.NewRoute(id, rf.Name, wps)
	if err != nil {
		return models.Route{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	s.l.Debug(ctx, "route loaded", "waypoints", route.Len())
	return route, nil
}

// Save writes the route atomically, replacing an existing file with the same id.
func (s *Store) Save(ctx context.Context, route models.Route) error {
	const op = "Store.Save"
	ctx = wrap.WithRouteID(wrap.WithAction(ctx, types.ActionRouteSave), route.ID)

	if err := route.Validate(); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	path, err := s.path(route.ID)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	rf := routeFile{
		ID:            route.ID,
		Name:          route.Name,
		TotalDistance: route.TotalDistance,
		TotalDuration: route.TotalDuration.Milliseconds(),
		SavedAt:       time.Now().UTC(),
	}
	for _, w := range route.Waypoints() {
		rf.Waypoints = append(rf.Waypoints, waypointFile{
			Latitude:  w.Latitude,
			Longitude: w.Longitude,
			OffsetMs:  w.Offset.Milliseconds(),
			SpeedHint: w.SpeedHint,
		})
	}

	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	tmp, err := os.CreateTemp(s.dir, ".route-*")
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if err := tmp.Close(); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	s.l.Info(ctx, "route saved", "file", path, "waypoints", route.Len())
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	const op = "Store.Delete"

	path, err := s.path(id)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("route %s: %w", id, types.ErrNotFound)
		}
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (s *Store) path(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%w: route id %q is not a valid file name", types.ErrInvalidRoute, id)
	}
	return filepath.Join(s.dir, id+ext), nil
}

func (s *Store) read(path string) (routeFile, error) {
	var rf routeFile

	data, err := os.ReadFile(path)
	if err != nil {
		return rf, err
	}
	if err := json.Unmarshal(data, &rf); err != nil {
		return rf, fmt.Errorf("%w: %s: %v", types.ErrInvalidRoute, filepath.Base(path), err)
	}
	return rf, nil
}
