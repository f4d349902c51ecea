package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Temutjin2k/hust-run/config"
	"github.com/Temutjin2k/hust-run/internal/app/modes"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

var (
	ErrInvalidMode           = errors.New("invalid mode")
	ErrServiceNotInitialized = errors.New("service not initialized")
)

type Service interface {
	Start(ctx context.Context) error
}

type App struct {
	mode    types.ServiceMode
	service Service

	cfg config.Config
	log logger.Logger
}

func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	app := &App{
		mode: cfg.Mode,
		cfg:  cfg,
		log:  log,
	}

	if err := app.initService(ctx, app.mode); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	if a.service == nil {
		return ErrServiceNotInitialized
	}

	return a.service.Start(ctx)
}

func (a *App) initService(ctx context.Context, mode types.ServiceMode) error {
	var (
		service Service
		err     error
	)
	switch mode {
	case types.RunMode:
		service, err = modes.NewRun(ctx, a.cfg, a.log)
	case types.GenerateMode:
		service, err = modes.NewGenerate(ctx, a.cfg, a.log)
	case types.HistoryMode:
		service, err = modes.NewHistory(ctx, a.cfg, a.log)
	case types.RecoverMode:
		service, err = modes.NewRecover(ctx, a.cfg, a.log)
	case types.TokenMode:
		service, err = modes.NewToken(ctx, a.cfg, a.log)
	default:
		return ErrInvalidMode
	}

	if err != nil {
		return fmt.Errorf("failed to init %s: %w", mode, err)
	}

	a.service = service
	return nil
}
