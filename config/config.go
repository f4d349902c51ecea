package config

import (
	"errors"
	"flag"
	"fmt"
	"regexp"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/configparser"
)

// Flags
var (
	modeFlag     = flag.String("mode", "", "application mode: run | generate | history | recover | token")
	routeFlag    = flag.String("route", "", "route id in the route directory")
	deviceFlag   = flag.String("device", "", "adb serial of the target device")
	dryRunFlag   = flag.Bool("dry-run", false, "log fixes instead of sending them to a device")
	shapeFlag    = flag.String("shape", "", "seed shape for generate: file | loop | out_and_back")
	distanceFlag = flag.Float64("distance", 0, "target distance in meters")
	durationFlag = flag.Duration("duration", 0, "target duration")
	seedFlag     = flag.Uint64("seed", 0, "jitter seed, 0 picks one from the clock")
	statusFlag   = flag.String("status", "", "history filter: session status")
	limitFlag    = flag.Int("limit", 0, "history filter: max records")
	operatorFlag = flag.String("operator", "", "token subject for -mode token")
)

// Errors
var (
	ErrModeNotProvided = errors.New("mode flag not provided")
	ErrInvalidMode     = errors.New("invalid mode")
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Mode types.ServiceMode

		Log               LogConfig
		Device            DeviceConfig
		Credentials       CredentialsConfig
		UI                UIConfig
		Run               RunConfig
		Route             RouteConfig
		History           HistoryConfig
		Database          DatabaseConfig
		RabbitMQ          RabbitMQConfig
		MQTT              MQTTConfig
		Redis             RedisConfig
		API               APIConfig
		Auth              Auth
		ExternalAPIConfig ExternalAPIConfig
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"info"`
	}

	DeviceConfig struct {
		ADBPath       string           `env:"ADB_PATH" default:"adb"`
		Serial        string           `env:"DEVICE_SERIAL"`
		Package       string           `env:"APP_PACKAGE"`
		LoginActivity string           `env:"APP_LOGIN_ACTIVITY"`
		MainActivity  string           `env:"APP_MAIN_ACTIVITY"`
		Method        types.MockMethod `env:"MOCK_METHOD" default:"broadcast"`
		Altitude      float64          `env:"MOCK_ALTITUDE" default:"10"`
		DryRun        bool             `env:"DRY_RUN" default:"false"`
	}

	CredentialsConfig struct {
		Username string `env:"APP_USERNAME"`
		Password string `env:"APP_PASSWORD"`
	}

	// UIConfig holds screen coordinates ("x,y") of the app's buttons.
	UIConfig struct {
		UsernameField string        `env:"UI_USERNAME_FIELD" default:"540,800"`
		PasswordField string        `env:"UI_PASSWORD_FIELD" default:"540,1000"`
		LoginButton   string        `env:"UI_LOGIN_BUTTON" default:"540,1300"`
		Workout       bool          `env:"UI_WORKOUT" default:"true"`
		StartButton   string        `env:"UI_START_BUTTON" default:"521,950"`
		ActivityType  string        `env:"UI_ACTIVITY_TYPE" default:"550,1860"`
		ConfirmStart  string        `env:"UI_CONFIRM_START" default:"500,371"`
		FinishButton  string        `env:"UI_FINISH_BUTTON" default:"824,1607"`
		ConfirmFinish string        `env:"UI_CONFIRM_FINISH" default:"548,1455"`
		CloseResults  string        `env:"UI_CLOSE_RESULTS" default:"540,1800"`
		StepDelay     time.Duration `env:"UI_STEP_DELAY" default:"2s"`
		SettleDelay   time.Duration `env:"UI_SETTLE_DELAY" default:"5s"`
	}

	RunConfig struct {
		CallTimeout      time.Duration `env:"RUN_CALL_TIMEOUT" default:"5s"`
		LoginTimeout     time.Duration `env:"RUN_LOGIN_TIMEOUT" default:"60s"`
		WorkoutTimeout   time.Duration `env:"RUN_WORKOUT_TIMEOUT" default:"30s"`
		ProbeInterval    time.Duration `env:"RUN_PROBE_INTERVAL" default:"10s"`
		RetryMaxAttempts int           `env:"RUN_RETRY_MAX_ATTEMPTS" default:"3"`
		RetryBaseDelay   time.Duration `env:"RUN_RETRY_BASE_DELAY" default:"1s"`
		RetryMaxDelay    time.Duration `env:"RUN_RETRY_MAX_DELAY" default:"8s"`
		FinalFix         bool          `env:"RUN_FINAL_FIX" default:"true"`
		AutoResume       bool          `env:"RUN_AUTO_RESUME" default:"true"`
		FlushEvery       int           `env:"HISTORY_FLUSH_EVERY" default:"20"`
		FlushInterval    time.Duration `env:"HISTORY_FLUSH_INTERVAL" default:"5s"`
	}

	RouteConfig struct {
		Dir          string           `env:"ROUTE_DIR" default:"routes"`
		ID           string           `env:"ROUTE_ID"`
		Name         string           `env:"ROUTE_NAME" default:"run"`
		Shape        types.RouteShape `env:"ROUTE_SHAPE" default:"file"`
		Distance     float64          `env:"ROUTE_DISTANCE" default:"2000"`
		Duration     time.Duration    `env:"ROUTE_DURATION" default:"12m"`
		JitterSeed   uint64           `env:"ROUTE_JITTER_SEED" default:"0"`
		StepMeters   float64          `env:"ROUTE_STEP_METERS" default:"10"`
		CoordJitter  float64          `env:"ROUTE_COORD_JITTER" default:"0.000005"`
		TimeJitter   float64          `env:"ROUTE_TIME_JITTER" default:"0.2"`
		StartLat     float64          `env:"ROUTE_START_LAT" default:"30.5131"`
		StartLon     float64          `env:"ROUTE_START_LON" default:"114.4132"`
		StartAddress string           `env:"ROUTE_START_ADDRESS"`
		Bearing      float64          `env:"ROUTE_BEARING" default:"0"`
		Pace         time.Duration    `env:"ROUTE_PACE" default:"6m"`
		Generate     bool             `env:"ROUTE_GENERATE" default:"true"`
	}

	HistoryConfig struct {
		Backend types.HistoryBackend `env:"HISTORY_BACKEND" default:"memory"`
		Status  types.SessionState   `env:"HISTORY_STATUS"`
		Since   string               `env:"HISTORY_SINCE"`
		Until   string               `env:"HISTORY_UNTIL"`
		Limit   int                  `env:"HISTORY_LIMIT" default:"50"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"hustrun"`
		Password string `env:"DATABASE_PASSWORD" default:"hustrun"`
		Database string `env:"DATABASE_DATABASE" default:"hustrun"`
	}

	RabbitMQConfig struct {
		Enabled  bool   `env:"RABBITMQ_ENABLED" default:"false"`
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	MQTTConfig struct {
		Broker   string `env:"MQTT_BROKER"`
		ClientID string `env:"MQTT_CLIENT_ID" default:"hust-run"`
		Username string `env:"MQTT_USERNAME"`
		Password string `env:"MQTT_PASSWORD"`
		QoS      uint8  `env:"MQTT_QOS" default:"0"`
	}

	RedisConfig struct {
		Addr     string        `env:"REDIS_ADDR"`
		Password string        `env:"REDIS_PASSWORD"`
		DB       int           `env:"REDIS_DB" default:"0"`
		LeaseTTL time.Duration `env:"REDIS_LEASE_TTL" default:"6h"`
	}

	APIConfig struct {
		Enabled bool   `env:"API_ENABLED" default:"true"`
		Host    string `env:"API_HOST" default:"127.0.0.1"`
		Port    int    `env:"API_PORT" default:"8090"`
	}

	Auth struct {
		JWTSecret string        `env:"AUTH_JWT_SECRET"`
		TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" default:"24h"`
		Operator  string        `env:"AUTH_OPERATOR" default:"operator"`
	}

	ExternalAPIConfig struct {
		LocationIQapiKey  string        `env:"LOCATIONIQ_API_KEY"`
		LocationIQBaseURL string        `env:"LOCATIONIQ_BASE_URL" default:"https://us1.locationiq.com"`
		LocationIQTimeout time.Duration `env:"LOCATIONIQ_TIMEOUT" default:"5s"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	// Parsing flags
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseFlags applies the mode and every flag given explicitly on the command line.
func parseFlags(cfg *Config) error {
	if modeFlag == nil || *modeFlag == "" {
		return ErrModeNotProvided
	}

	cfg.Mode = types.ServiceMode(*modeFlag)

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "route":
			cfg.Route.ID = *routeFlag
		case "device":
			cfg.Device.Serial = *deviceFlag
		case "dry-run":
			cfg.Device.DryRun = *dryRunFlag
		case "shape":
			cfg.Route.Shape = types.RouteShape(*shapeFlag)
		case "distance":
			cfg.Route.Distance = *distanceFlag
		case "duration":
			cfg.Route.Duration = *durationFlag
		case "seed":
			cfg.Route.JitterSeed = *seedFlag
		case "status":
			cfg.History.Status = types.SessionState(*statusFlag)
		case "limit":
			cfg.History.Limit = *limitFlag
		case "operator":
			cfg.Auth.Operator = *operatorFlag
		}
	})

	return nil
}

var screenPoint = regexp.MustCompile(`^\s*\d+\s*,\s*\d+\s*$`)

func (u UIConfig) points() map[string]string {
	return map[string]string{
		"UI_USERNAME_FIELD": u.UsernameField,
		"UI_PASSWORD_FIELD": u.PasswordField,
		"UI_LOGIN_BUTTON":   u.LoginButton,
		"UI_START_BUTTON":   u.StartButton,
		"UI_ACTIVITY_TYPE":  u.ActivityType,
		"UI_CONFIRM_START":  u.ConfirmStart,
		"UI_FINISH_BUTTON":  u.FinishButton,
		"UI_CONFIRM_FINISH": u.ConfirmFinish,
		"UI_CLOSE_RESULTS":  u.CloseResults,
	}
}

// Validate checks the settings the selected mode depends on.
func (c *Config) Validate() error {
	switch c.Mode {
	case types.RunMode:
		if !c.Device.DryRun && c.Device.Package == "" {
			return errors.New("APP_PACKAGE is required unless running with -dry-run")
		}
		if c.Route.ID == "" && c.Route.Shape == types.ShapeFile {
			return errors.New("a route id is required for file routes (-route or ROUTE_ID)")
		}
	case types.GenerateMode:
		if c.Route.Shape == types.ShapeFile && c.Route.ID == "" {
			return errors.New("a seed route id is required for file shapes (-route or ROUTE_ID)")
		}
	case types.HistoryMode, types.RecoverMode:
	case types.TokenMode:
		if c.Auth.JWTSecret == "" {
			return errors.New("AUTH_JWT_SECRET is required to issue tokens")
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}

	switch c.Route.Shape {
	case types.ShapeFile, types.ShapeLoop, types.ShapeOutAndBack:
	default:
		return fmt.Errorf("unknown route shape %q", c.Route.Shape)
	}
	switch c.History.Backend {
	case types.HistoryMemory, types.HistoryPostgres:
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	switch c.Device.Method {
	case types.MockBroadcast, types.MockGeoFix:
	default:
		return fmt.Errorf("unknown mock method %q", c.Device.Method)
	}
	if c.Run.RetryMaxAttempts < 1 {
		return errors.New("RUN_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.MQTT.QoS > 2 {
		return errors.New("MQTT_QOS must be 0, 1 or 2")
	}
	for name, p := range c.UI.points() {
		if !screenPoint.MatchString(p) {
			return fmt.Errorf("%s must be x,y pixels, got %q", name, p)
		}
	}

	return nil
}
