package runner

import (
	"context"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
)

/*===================== Device Bridge ============================*/

// DeviceBridge drives the device location provider. Every call must return
// once ctx is done.
type DeviceBridge interface {
	Connect(ctx context.Context, deviceID string) (models.DeviceHandle, error)
	SetMockLocation(ctx context.Context, h models.DeviceHandle, lat, lon float64) error
	ProbeStatus(ctx context.Context, h models.DeviceHandle) (models.DeviceStatus, error)
	Disconnect(ctx context.Context, h models.DeviceHandle) error
}

/*===================== App Login ================================*/

type Authenticator interface {
	Login(ctx context.Context, h models.DeviceHandle, creds models.Credentials) error
}

/*===================== History Store ============================*/

type HistoryStore interface {
	Begin(ctx context.Context, rec models.HistoryRecord) error
	AppendTicks(ctx context.Context, sessionID string, ticks []models.Tick) error
	Finalize(ctx context.Context, rec models.HistoryRecord) error
	Query(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error)
	Ticks(ctx context.Context, sessionID string) ([]models.Tick, error)
	Unfinalized(ctx context.Context) ([]models.HistoryRecord, error)
	Stats(ctx context.Context, filter models.HistoryFilter) (models.HistoryStats, error)
}

/*===================== App Workout ==============================*/

// Workout opens the exercise record in the app before the first fix and
// closes it after the last one.
type Workout interface {
	Start(ctx context.Context, h models.DeviceHandle) error
	Finish(ctx context.Context, h models.DeviceHandle) error
}

/*===================== Device Lease =============================*/

// Lease guarantees a single session per device across processes.
type Lease interface {
	Acquire(ctx context.Context, deviceID, owner string) (bool, error)
	Release(ctx context.Context, deviceID, owner string) error
}

/*===================== Events ===================================*/

// EventSink must not block the caller.
type EventSink interface {
	Notify(event models.SessionEvent)
}

/*===================== Address Geo Coder ========================*/

type GeoCoder interface {
	GetAddress(ctx context.Context, longitude, latitude float64) (string, error)
}
