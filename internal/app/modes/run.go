package modes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Temutjin2k/hust-run/config"
	"github.com/Temutjin2k/hust-run/internal/adapter/adb"
	"github.com/Temutjin2k/hust-run/internal/adapter/dryrun"
	"github.com/Temutjin2k/hust-run/internal/adapter/http/middleware"
	"github.com/Temutjin2k/hust-run/internal/adapter/http/server"
	wshandler "github.com/Temutjin2k/hust-run/internal/adapter/http/ws"
	"github.com/Temutjin2k/hust-run/internal/adapter/mqtt"
	rabbitpub "github.com/Temutjin2k/hust-run/internal/adapter/rabbit"
	"github.com/Temutjin2k/hust-run/internal/adapter/redis"
	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/internal/service/auth"
	"github.com/Temutjin2k/hust-run/internal/service/notify"
	"github.com/Temutjin2k/hust-run/internal/service/runner"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	"github.com/Temutjin2k/hust-run/pkg/rabbit"
	ws "github.com/Temutjin2k/hust-run/pkg/wsHub"
)

// Run executes one route on one device and serves the control API meanwhile.
type Run struct {
	runner     *runner.Service
	routes     *routeBuilder
	httpServer *server.API
	dispatcher *notify.Dispatcher
	hub        *ws.ConnectionHub

	closeStore func()
	rabbit     *rabbit.RabbitMQ
	mqtt       paho.Client
	redis      *goredis.Client

	cfg config.Config
	log logger.Logger
}

func NewRun(ctx context.Context, cfg config.Config, log logger.Logger) (*Run, error) {
	s := &Run{cfg: cfg, log: log, closeStore: func() {}}
	if err := s.init(ctx); err != nil {
		s.close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Run) init(ctx context.Context) error {
	var err error
	cfg := s.cfg

	store, closeStore, err := historyStore(ctx, cfg, s.log)
	if err != nil {
		return err
	}
	s.closeStore = closeStore

	if s.routes, err = newRouteBuilder(cfg, s.log); err != nil {
		return err
	}

	bridge, authenticator, workout, err := s.device()
	if err != nil {
		return err
	}

	s.hub = ws.NewConnHub(s.log)
	feed := wshandler.NewFeed(s.hub)
	lifecycle := []notify.Publisher{feed}
	telemetry := []notify.Publisher{feed}

	if cfg.RabbitMQ.Enabled {
		if s.rabbit, err = rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), s.log); err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		pub, err := rabbitpub.NewEventPublisher(ctx, s.rabbit)
		if err != nil {
			return err
		}
		lifecycle = append(lifecycle, pub)
	}

	if cfg.MQTT.Broker != "" {
		if s.mqtt, err = mqtt.Connect(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		}); err != nil {
			return err
		}
		telemetry = append(telemetry, mqtt.NewTelemetry(s.mqtt, cfg.MQTT.QoS))
		s.log.Info(ctx, "publishing telemetry over mqtt", "broker", cfg.MQTT.Broker)
	}

	s.dispatcher = notify.NewDispatcher(notify.DefaultBufferSize, s.log,
		notify.WithLifecycle(lifecycle...),
		notify.WithTelemetry(telemetry...),
	)

	opts := []runner.Option{runner.WithEvents(s.dispatcher)}
	if workout != nil {
		opts = append(opts, runner.WithWorkout(workout))
	}
	if authenticator != nil && !s.credentials().IsZero() {
		opts = append(opts, runner.WithAuthenticator(authenticator))
	}
	if geo := geocoder(cfg); geo != nil {
		opts = append(opts, runner.WithGeoCoder(geo))
	}
	if cfg.Redis.Addr != "" {
		if s.redis, err = redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}); err != nil {
			return err
		}
		opts = append(opts, runner.WithLease(redis.NewDeviceLease(s.redis, cfg.Redis.LeaseTTL)))
	}

	s.runner = runner.New(bridge, store, runnerConfig(cfg), s.log, opts...)

	if cfg.API.Enabled {
		var tokens *auth.TokenService
		if cfg.Auth.JWTSecret != "" {
			if tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, s.log); err != nil {
				return err
			}
		} else {
			s.log.Warn(ctx, "AUTH_JWT_SECRET is empty, control API is unauthenticated")
		}

		var validator middleware.TokenValidator
		if tokens != nil {
			validator = tokens
		}

		if s.httpServer, err = server.New(server.Config{Host: cfg.API.Host, Port: cfg.API.Port}, s.runner, s.hub, validator, s.log); err != nil {
			return fmt.Errorf("failed to setup http server: %w", err)
		}
	}

	return nil
}

// device picks the dry-run bridge or the adb one with its app flows. The
// authenticator and workout are nil when not configured.
func (s *Run) device() (runner.DeviceBridge, runner.Authenticator, runner.Workout, error) {
	if s.cfg.Device.DryRun {
		b := dryrun.NewBridge(s.log)
		var w runner.Workout
		if s.cfg.UI.Workout {
			w = dryrun.NewWorkout(s.log)
		}
		return b, b, w, nil
	}

	loginLayout, workoutLayout, err := screenLayouts(s.cfg.UI)
	if err != nil {
		return nil, nil, nil, err
	}

	cmd := adb.NewExecRunner(s.cfg.Device.ADBPath, s.log)
	bridge := adb.NewBridge(cmd, adb.Config{
		Package:  s.cfg.Device.Package,
		Method:   s.cfg.Device.Method,
		Altitude: s.cfg.Device.Altitude,
	}, s.log)

	var authenticator runner.Authenticator
	if s.cfg.Device.LoginActivity != "" {
		authenticator = adb.NewLogin(cmd, adb.LoginConfig{
			Package:       s.cfg.Device.Package,
			LoginActivity: s.cfg.Device.LoginActivity,
			Layout:        loginLayout,
		}, s.log)
	}

	var workout runner.Workout
	if s.cfg.UI.Workout {
		workout = adb.NewWorkout(cmd, adb.WorkoutConfig{
			Package:      s.cfg.Device.Package,
			MainActivity: s.cfg.Device.MainActivity,
			Layout:       workoutLayout,
			StepDelay:    s.cfg.UI.StepDelay,
			SettleDelay:  s.cfg.UI.SettleDelay,
		}, s.log)
	}

	return bridge, authenticator, workout, nil
}

func (s *Run) credentials() models.Credentials {
	return models.Credentials{Username: s.cfg.Credentials.Username, Password: s.cfg.Credentials.Password}
}

func (s *Run) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.close(ctx)
		s.log.Info(ctx, "run finished")
	}()

	s.dispatcher.Start(runCtx)
	if s.httpServer != nil {
		s.httpServer.Run(runCtx, errCh)
	}

	if n, err := s.runner.Recover(ctx); err != nil {
		s.log.Error(wrap.ErrorCtx(ctx, err), "failed to recover open sessions", err)
	} else if n > 0 {
		s.log.Warn(ctx, "recovered orphaned sessions", "count", n)
	}

	rt, err := s.routes.build(ctx)
	if err != nil {
		return err
	}

	h, err := s.runner.Connect(ctx, s.cfg.Device.Serial)
	if err != nil {
		return err
	}

	if err := s.runner.Login(ctx, h, s.credentials()); err != nil {
		s.release(ctx, h)
		return err
	}

	// once bound, the session releases the device on every terminal path
	id, err := s.runner.CreateSession(ctx, rt, h)
	if err != nil {
		s.release(ctx, h)
		return err
	}
	ctx = wrap.WithSessionID(ctx, id)

	if err := s.runner.Start(runCtx, id); err != nil {
		return err
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	done := make(chan struct{})
	var (
		rec     models.HistoryRecord
		waitErr error
	)
	go func() {
		defer close(done)
		rec, waitErr = s.runner.Wait(ctx, id)
	}()

	s.log.Info(ctx, "session started", "route", rt.ID, "waypoints", rt.Len(), "eta", rt.TotalDuration.String())

	select {
	case <-done:
	case errRun := <-errCh:
		s.log.Error(ctx, "control API failed, stopping session", errRun)
		s.stop(ctx, id, done)
	case sig := <-shutdownCh:
		s.log.Info(ctx, "stopping session", "signal", sig.String())
		s.stop(ctx, id, done)
	}

	if waitErr != nil {
		return waitErr
	}
	return printJSON(rec)
}

// release hands back a device that no session owns.
func (s *Run) release(ctx context.Context, h models.DeviceHandle) {
	if err := s.runner.Disconnect(ctx, h); err != nil {
		s.log.Warn(ctx, "failed to release device", "error", err.Error())
	}
}

func (s *Run) stop(ctx context.Context, id string, done <-chan struct{}) {
	if err := s.runner.Stop(ctx, id); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
		s.log.Error(wrap.ErrorCtx(ctx, err), "failed to stop session", err)
	}
	<-done
}

func (s *Run) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}
	if s.runner != nil {
		s.runner.StopAll(ctx)
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(ctx); err != nil {
			s.log.Warn(ctx, "event dispatcher did not drain", "error", err.Error())
		}
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.rabbit != nil {
		if err := s.rabbit.Close(ctx); err != nil {
			s.log.Warn(ctx, "Failed to close rabbitmq", "error", err.Error())
		}
	}
	if s.mqtt != nil {
		mqtt.Disconnect(s.mqtt)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn(ctx, "Failed to close redis", "error", err.Error())
		}
	}
	s.closeStore()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
