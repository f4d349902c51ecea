package modes

import (
	"context"

	"github.com/Temutjin2k/hust-run/config"
	"github.com/Temutjin2k/hust-run/internal/adapter/dryrun"
	"github.com/Temutjin2k/hust-run/internal/service/runner"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

// Recover closes history records left open by a process that died mid-run.
type Recover struct {
	runner *runner.Service
	close  func()
	log    logger.Logger
}

func NewRecover(ctx context.Context, cfg config.Config, log logger.Logger) (*Recover, error) {
	store, closeStore, err := historyStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	svc := runner.New(dryrun.NewBridge(log), store, runnerConfig(cfg), log)
	return &Recover{runner: svc, close: closeStore, log: log}, nil
}

func (r *Recover) Start(ctx context.Context) error {
	defer r.close()

	n, err := r.runner.Recover(ctx)
	if err != nil {
		return err
	}
	r.log.Info(ctx, "recovery finished", "sessions", n)
	return printJSON(map[string]int{"recovered": n})
}
