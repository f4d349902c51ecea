package modes

import (
	"context"

	"github.com/Temutjin2k/hust-run/config"
	"github.com/Temutjin2k/hust-run/internal/adapter/dryrun"
	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/service/runner"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

// History prints stored sessions matching the filter flags, with totals.
type History struct {
	runner *runner.Service
	filter models.HistoryFilter
	close  func()
}

func NewHistory(ctx context.Context, cfg config.Config, log logger.Logger) (*History, error) {
	filter, err := historyFilter(cfg.History, cfg.Route.ID)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := historyStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// history never touches a device
	svc := runner.New(dryrun.NewBridge(log), store, runnerConfig(cfg), log)
	return &History{runner: svc, filter: filter, close: closeStore}, nil
}

func (h *History) Start(ctx context.Context) error {
	defer h.close()

	records, err := h.runner.History(ctx, h.filter)
	if err != nil {
		return err
	}
	stats, err := h.runner.Stats(ctx, h.filter)
	if err != nil {
		return err
	}

	return printJSON(struct {
		Sessions []models.HistoryRecord `json:"sessions"`
		Stats    models.HistoryStats    `json:"stats"`
	}{records, stats})
}
