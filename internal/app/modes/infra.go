package modes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Temutjin2k/hust-run/config"
	"github.com/Temutjin2k/hust-run/internal/adapter/adb"
	"github.com/Temutjin2k/hust-run/internal/adapter/locationIQ"
	"github.com/Temutjin2k/hust-run/internal/adapter/memory"
	"github.com/Temutjin2k/hust-run/internal/adapter/postgres"
	"github.com/Temutjin2k/hust-run/internal/adapter/routefile"
	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/internal/service/history"
	"github.com/Temutjin2k/hust-run/internal/service/route"
	"github.com/Temutjin2k/hust-run/internal/service/runner"
	"github.com/Temutjin2k/hust-run/pkg/backoff"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	pgdb "github.com/Temutjin2k/hust-run/pkg/postgres"
)

// historyStore opens the configured backend. The returned close func is never nil.
func historyStore(ctx context.Context, cfg config.Config, log logger.Logger) (runner.HistoryStore, func(), error) {
	switch cfg.History.Backend {
	case types.HistoryPostgres:
		db, err := pgdb.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to setup database: %w", err)
		}

		repo := postgres.NewHistoryRepo(db.Pool)
		if err := repo.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}

		log.Info(ctx, "history stored in postgres", "host", cfg.Database.Host)
		return repo, db.Close, nil
	default:
		log.Warn(ctx, "history kept in memory, records are lost on exit")
		return memory.NewHistoryStore(), func() {}, nil
	}
}

func runnerConfig(cfg config.Config) runner.Config {
	return runner.Config{
		CallTimeout:    cfg.Run.CallTimeout,
		LoginTimeout:   cfg.Run.LoginTimeout,
		WorkoutTimeout: cfg.Run.WorkoutTimeout,
		ProbeInterval:  cfg.Run.ProbeInterval,
		Retry: backoff.Policy{
			MaxAttempts: cfg.Run.RetryMaxAttempts,
			BaseDelay:   cfg.Run.RetryBaseDelay,
			MaxDelay:    cfg.Run.RetryMaxDelay,
			Multiplier:  2,
		},
		FinalFix:       cfg.Run.FinalFix,
		AutoResume:     cfg.Run.AutoResume,
		Recorder: history.RecorderConfig{
			FlushEvery:    cfg.Run.FlushEvery,
			FlushInterval: cfg.Run.FlushInterval,
		},
	}
}

// screenLayouts reads the app's tap points from config.
func screenLayouts(ui config.UIConfig) (adb.Layout, adb.WorkoutLayout, error) {
	var (
		login   adb.Layout
		workout adb.WorkoutLayout
	)
	for _, p := range []struct {
		raw string
		dst *adb.Point
	}{
		{ui.UsernameField, &login.UsernameField},
		{ui.PasswordField, &login.PasswordField},
		{ui.LoginButton, &login.LoginButton},
		{ui.StartButton, &workout.StartButton},
		{ui.ActivityType, &workout.ActivityType},
		{ui.ConfirmStart, &workout.ConfirmStart},
		{ui.FinishButton, &workout.FinishButton},
		{ui.ConfirmFinish, &workout.ConfirmFinish},
		{ui.CloseResults, &workout.CloseResults},
	} {
		pt, err := adb.ParsePoint(p.raw)
		if err != nil {
			return login, workout, err
		}
		*p.dst = pt
	}
	return login, workout, nil
}

func geocoder(cfg config.Config) *locationIQ.LocationIQClient {
	if cfg.ExternalAPIConfig.LocationIQapiKey == "" {
		return nil
	}
	return locationIQ.New(locationIQ.Config{
		BaseURL: cfg.ExternalAPIConfig.LocationIQBaseURL,
		APIKey:  cfg.ExternalAPIConfig.LocationIQapiKey,
		Timeout: cfg.ExternalAPIConfig.LocationIQTimeout,
	})
}

// routeBuilder turns the route settings into a runnable route.
type routeBuilder struct {
	cfg   config.RouteConfig
	files *routefile.Store
	gen   *route.Generator
	geo   *locationIQ.LocationIQClient
	log   logger.Logger
}

func newRouteBuilder(cfg config.Config, log logger.Logger) (*routeBuilder, error) {
	files, err := routefile.NewStore(cfg.Route.Dir, log)
	if err != nil {
		return nil, err
	}

	return &routeBuilder{
		cfg:   cfg.Route,
		files: files,
		gen: route.NewGenerator(route.Config{
			StepMeters:  cfg.Route.StepMeters,
			CoordJitter: cfg.Route.CoordJitter,
			TimeJitter:  cfg.Route.TimeJitter,
		}, log),
		geo: geocoder(cfg),
		log: log,
	}, nil
}

// seed returns the stored route or builds the configured shape.
func (b *routeBuilder) seed(ctx context.Context) (models.Route, error) {
	if b.cfg.Shape == types.ShapeFile {
		return b.files.Load(ctx, b.cfg.ID)
	}

	start, err := b.start(ctx)
	if err != nil {
		return models.Route{}, err
	}

	switch b.cfg.Shape {
	case types.ShapeLoop:
		return route.Loop(b.cfg.Name, start, b.cfg.Distance, b.cfg.Pace)
	case types.ShapeOutAndBack:
		return route.OutAndBack(b.cfg.Name, start, b.cfg.Distance, b.cfg.Bearing, b.cfg.Pace)
	default:
		return models.Route{}, fmt.Errorf("unknown route shape %q", b.cfg.Shape)
	}
}

// start resolves ROUTE_START_ADDRESS when a geocoder is configured.
func (b *routeBuilder) start(ctx context.Context) (models.Location, error) {
	start := models.Location{Latitude: b.cfg.StartLat, Longitude: b.cfg.StartLon}
	if strings.TrimSpace(b.cfg.StartAddress) == "" {
		return start, nil
	}
	if b.geo == nil {
		return start, errors.New("ROUTE_START_ADDRESS needs LOCATIONIQ_API_KEY")
	}

	lon, lat, err := b.geo.GetLocation(ctx, b.cfg.StartAddress)
	if err != nil {
		return start, err
	}
	return models.Location{Latitude: lat, Longitude: lon, Address: b.cfg.StartAddress}, nil
}

// build returns the seed resampled to the target distance and duration.
func (b *routeBuilder) build(ctx context.Context) (models.Route, error) {
	ctx = wrap.WithAction(ctx, types.ActionRouteGenerate)

	seed, err := b.seed(ctx)
	if err != nil {
		return models.Route{}, err
	}
	if !b.cfg.Generate {
		return seed, nil
	}

	jitterSeed := b.cfg.JitterSeed
	if jitterSeed == 0 {
		jitterSeed = uint64(time.Now().UnixNano())
	}

	rt, err := b.gen.Generate(ctx, seed, b.cfg.Distance, b.cfg.Duration, jitterSeed)
	if err != nil {
		return models.Route{}, err
	}

	b.log.Info(wrap.WithRouteID(ctx, rt.ID), "route ready",
		"seed", seed.ID,
		"waypoints", rt.Len(),
		"distance_m", int(rt.TotalDistance),
		"duration", rt.TotalDuration.String(),
		"pace_per_km", route.PaceFor(rt.TotalDistance, rt.TotalDuration).String(),
		"jitter_seed", jitterSeed,
	)
	return rt, nil
}

func historyFilter(cfg config.HistoryConfig, routeID string) (models.HistoryFilter, error) {
	f := models.HistoryFilter{RouteID: routeID, Status: cfg.Status, Limit: cfg.Limit}

	for _, p := range []struct {
		raw string
		dst *time.Time
	}{{cfg.Since, &f.Since}, {cfg.Until, &f.Until}} {
		if p.raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, p.raw)
		if err != nil {
			return f, fmt.Errorf("history filter: %w", err)
		}
		*p.dst = ts
	}

	return f, f.Validate()
}
