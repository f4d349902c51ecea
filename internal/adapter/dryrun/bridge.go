package dryrun

import (
	"context"
	"sync"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const defaultDevice = "dry-run"

// Bridge logs fixes instead of sending them. The device is always attached
// and the app always in front.
type Bridge struct {
	l logger.Logger

	mu    sync.Mutex
	fixes map[string]int
}

func NewBridge(l logger.Logger) *Bridge {
	return &Bridge{l: l, fixes: make(map[string]int)}
}

func (b *Bridge) Connect(ctx context.Context, deviceID string) (models.DeviceHandle, error) {
	if deviceID == "" {
		deviceID = defaultDevice
	}
	b.l.Info(wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionDeviceConnect), deviceID), "dry-run device connected")
	return models.DeviceHandle{DeviceID: deviceID, Serial: deviceID, ConnectedAt: time.Now()}, nil
}

func (b *Bridge) SetMockLocation(ctx context.Context, h models.DeviceHandle, lat, lon float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.fixes[h.DeviceID]++
	n := b.fixes[h.DeviceID]
	b.mu.Unlock()

	b.l.Debug(wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionMockLocation), h.DeviceID), "mock location",
		"latitude", lat,
		"longitude", lon,
		"fix", n,
	)
	return nil
}

func (b *Bridge) ProbeStatus(ctx context.Context, _ models.DeviceHandle) (models.DeviceStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.DeviceStatus{}, err
	}
	return models.DeviceStatus{Connected: true, AppForeground: true}, nil
}

func (b *Bridge) Disconnect(ctx context.Context, h models.DeviceHandle) error {
	b.l.Info(wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionDeviceDisconnect), h.DeviceID), "dry-run device released",
		"fixes", b.Fixes(h.DeviceID),
	)
	return nil
}

// Fixes returns how many fixes were sent to the device.
func (b *Bridge) Fixes(deviceID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fixes[deviceID]
}

// Login accepts any non-empty credentials.
func (b *Bridge) Login(ctx context.Context, h models.DeviceHandle, creds models.Credentials) error {
	if creds.IsZero() {
		return types.ErrAuth
	}
	b.l.Info(wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionLogin), h.DeviceID), "dry-run login", "username", creds.Username)
	return nil
}
