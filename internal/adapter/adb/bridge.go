package adb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const (
	DefaultAltitude = 10.0

	mockLocationAction = "android.intent.action.MOCK_LOCATION"
	handshake          = "connection_test"
)

var (
	deviceLine = regexp.MustCompile(`(?m)^(\S+)\s+device\b`)
	focusLine  = regexp.MustCompile(`(?m)^\s*(mCurrentFocus|mFocusedApp)=.*$`)
)

type Config struct {
	Package  string
	Method   types.MockMethod
	Altitude float64
}

// Bridge implements the device bridge over the adb CLI.
type Bridge struct {
	adb Runner
	cfg Config
	l   logger.Logger
}

func NewBridge(adb Runner, cfg Config, l logger.Logger) *Bridge {
	if cfg.Method == "" {
		cfg.Method = types.MockBroadcast
	}
	if cfg.Altitude == 0 {
		cfg.Altitude = DefaultAltitude
	}
	return &Bridge{adb: adb, cfg: cfg, l: l}
}

func (b *Bridge) shell(ctx context.Context, serial string, args ...string) (string, error) {
	return b.adb.Run(ctx, append([]string{"-s", serial, "shell"}, args...)...)
}

// Connect picks deviceID (or the first attached device when empty), checks it
// answers a shell command and grants the app the mock location permission.
func (b *Bridge) Connect(ctx context.Context, deviceID string) (models.DeviceHandle, error) {
	const op = "Bridge.Connect"
	ctx = wrap.WithAction(ctx, types.ActionDeviceConnect)

	if _, err := b.adb.Run(ctx, "start-server"); err != nil {
		return models.DeviceHandle{}, wrap.Error(ctx, fmt.Errorf("%s: %w: %w", op, types.ErrDeviceUnavailable, err))
	}

	out, err := b.adb.Run(ctx, "devices", "-l")
	if err != nil {
		return models.DeviceHandle{}, wrap.Error(ctx, fmt.Errorf("%s: %w: %w", op, types.ErrDeviceUnavailable, err))
	}

	serials := parseDevices(out)
	if len(serials) == 0 {
		return models.DeviceHandle{}, wrap.Error(ctx, fmt.Errorf("%s: %w: no attached devices", op, types.ErrDeviceUnavailable))
	}

	serial := deviceID
	switch {
	case serial == "":
		serial = serials[0]
		b.l.Info(ctx, "device selected automatically", "serial", serial)
	case !slices.Contains(serials, serial):
		return models.DeviceHandle{}, wrap.Error(ctx, fmt.Errorf("%s: %w: %s is not attached", op, types.ErrDeviceUnavailable, serial))
	}
	ctx = wrap.WithDeviceID(ctx, serial)

	echo, err := b.shell(ctx, serial, "echo", handshake)
	if err != nil || !strings.Contains(echo, handshake) {
		return models.DeviceHandle{}, wrap.Error(ctx, fmt.Errorf("%s: %w: shell handshake failed: %v", op, types.ErrDeviceUnavailable, err))
	}

	if err := b.setMockPermission(ctx, serial, true); err != nil {
		return models.DeviceHandle{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return models.DeviceHandle{DeviceID: serial, Serial: serial, ConnectedAt: time.Now()}, nil
}

func (b *Bridge) setMockPermission(ctx context.Context, serial string, allow bool) error {
	mode, flag := "default", "0"
	if allow {
		mode, flag = "allow", "1"
	}

	if b.cfg.Package != "" {
		if _, err := b.shell(ctx, serial, "appops", "set", b.cfg.Package, "android:mock_location", mode); err != nil {
			return fmt.Errorf("%w: appops: %w", types.ErrDeviceCommand, err)
		}
	}
	if _, err := b.shell(ctx, serial, "settings", "put", "secure", "mock_location", flag); err != nil {
		return fmt.Errorf("%w: settings: %w", types.ErrDeviceCommand, err)
	}
	return nil
}

// SetMockLocation injects one fix. Latitude and longitude travel in a single
// command.
func (b *Bridge) SetMockLocation(ctx context.Context, h models.DeviceHandle, lat, lon float64) error {
	var (
		out string
		err error
	)

	switch b.cfg.Method {
	case types.MockGeoFix:
		out, err = b.adb.Run(ctx, "-s", h.Serial, "emu", "geo", "fix", ftoa(lon), ftoa(lat), ftoa(b.cfg.Altitude))
	default:
		out, err = b.shell(ctx, h.Serial, "am", "broadcast",
			"-a", mockLocationAction,
			"--ef", "latitude", ftoa(lat),
			"--ef", "longitude", ftoa(lon),
			"--ef", "altitude", ftoa(b.cfg.Altitude),
		)
	}

	if err != nil {
		return classify(ctx, err)
	}
	if strings.Contains(strings.ToLower(out), "error") {
		return fmt.Errorf("%w: %s", types.ErrDeviceCommand, out)
	}
	return nil
}

// ProbeStatus reports whether the device is attached and the app holds focus.
func (b *Bridge) ProbeStatus(ctx context.Context, h models.DeviceHandle) (models.DeviceStatus, error) {
	state, err := b.adb.Run(ctx, "-s", h.Serial, "get-state")
	if err != nil {
		if ctx.Err() != nil {
			return models.DeviceStatus{}, ctx.Err()
		}
		if isGone(err) {
			return models.DeviceStatus{}, nil
		}
		return models.DeviceStatus{}, fmt.Errorf("%w: get-state: %w", types.ErrDeviceCommand, err)
	}
	if state != "device" {
		return models.DeviceStatus{}, nil
	}

	focus, err := b.currentFocus(ctx, h.Serial)
	if err != nil {
		return models.DeviceStatus{Connected: true}, fmt.Errorf("%w: focus: %w", types.ErrDeviceCommand, err)
	}

	return models.DeviceStatus{
		Connected:     true,
		AppForeground: b.cfg.Package == "" || strings.Contains(focus, b.cfg.Package+"/"),
	}, nil
}

func (b *Bridge) currentFocus(ctx context.Context, serial string) (string, error) {
	out, err := b.shell(ctx, serial, "dumpsys", "window", "windows")
	if err != nil {
		return "", err
	}
	return strings.Join(focusLine.FindAllString(out, -1), "\n"), nil
}

// Disconnect revokes the mock permission and drops tcp devices.
func (b *Bridge) Disconnect(ctx context.Context, h models.DeviceHandle) error {
	const op = "Bridge.Disconnect"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionDeviceDisconnect), h.DeviceID)

	var errs []error
	if err := b.setMockPermission(ctx, h.Serial, false); err != nil {
		errs = append(errs, err)
	}
	if strings.Contains(h.Serial, ":") {
		if _, err := b.adb.Run(ctx, "disconnect", h.Serial); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func parseDevices(out string) []string {
	var serials []string
	for _, m := range deviceLine.FindAllStringSubmatch(out, -1) {
		if m[1] == "List" {
			continue
		}
		serials = append(serials, m[1])
	}
	return serials
}

// classify maps an adb failure to the bridge error kinds.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if isGone(err) {
		return fmt.Errorf("%w: %w", types.ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("%w: %w", types.ErrDeviceCommand, err)
}

func isGone(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "offline") || strings.Contains(msg, "no devices")
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
