package modes

import (
	"context"

	"github.com/Temutjin2k/hust-run/config"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/internal/service/route"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

// Generate builds a route, stores it in the route directory and prints a summary.
type Generate struct {
	routes *routeBuilder
	log    logger.Logger
}

func NewGenerate(_ context.Context, cfg config.Config, log logger.Logger) (*Generate, error) {
	routes, err := newRouteBuilder(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Generate{routes: routes, log: log}, nil
}

type routeSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Waypoints int     `json:"waypoints"`
	Distance  float64 `json:"distance_m"`
	Duration  string  `json:"duration"`
	Pace      string  `json:"pace_per_km"`
}

func (g *Generate) Start(ctx context.Context) error {
	rt, err := g.routes.build(ctx)
	if err != nil {
		return err
	}

	if err := g.routes.files.Save(ctx, rt); err != nil {
		return err
	}
	g.log.Info(wrap.WithRouteID(wrap.WithAction(ctx, types.ActionRouteSave), rt.ID), "route saved", "dir", g.routes.cfg.Dir)

	return printJSON(routeSummary{
		ID:        rt.ID,
		Name:      rt.Name,
		Waypoints: rt.Len(),
		Distance:  rt.TotalDistance,
		Duration:  rt.TotalDuration.String(),
		Pace:      route.PaceFor(rt.TotalDistance, rt.TotalDuration).String(),
	})
}
