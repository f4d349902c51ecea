package adb

import (
	"context"
	"errors"
	"testing"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

const devicesOut = `List of devices attached
emulator-5554          device product:sdk_gphone64 model:sdk_gphone64 transport_id:1
192.168.1.7:5555       device product:walleye transport_id:2
R58M123ABC             unauthorized transport_id:3`

const focusApp = `  mCurrentFocus=Window{a1b2 u0 com.hust.sport/com.hust.sport.MainActivity}
  mFocusedApp=ActivityRecord{c3d4 u0 com.hust.sport/.MainActivity t12}`

const focusLauncher = `  mCurrentFocus=Window{a1b2 u0 com.android.launcher3/com.android.launcher3.Launcher}`

func newBridge(r *scriptedRunner, method types.MockMethod) *Bridge {
	return NewBridge(r, Config{Package: "com.hust.sport", Method: method}, logger.NewNop())
}

func TestParseDevices(t *testing.T) {
	got := parseDevices(devicesOut)
	if len(got) != 2 || got[0] != "emulator-5554" || got[1] != "192.168.1.7:5555" {
		t.Fatalf("unexpected devices: %v", got)
	}
}

func TestBridge_Connect(t *testing.T) {
	r := newScripted()
	r.on("devices -l", devicesOut, nil)
	r.on("-s emulator-5554 shell echo connection_test", "connection_test", nil)

	h, err := newBridge(r, "").Connect(context.Background(), "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if h.Serial != "emulator-5554" {
		t.Fatalf("expected first device, got %q", h.Serial)
	}
	if r.called("-s emulator-5554 shell appops set com.hust.sport android:mock_location allow") != 1 {
		t.Fatalf("mock permission not granted: %v", r.calls)
	}
	if r.called("-s emulator-5554 shell settings put secure mock_location 1") != 1 {
		t.Fatalf("mock setting not enabled: %v", r.calls)
	}
}

func TestBridge_ConnectErrors(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		setup    func(r *scriptedRunner)
	}{
		{"no devices", "", func(r *scriptedRunner) { r.on("devices -l", "List of devices attached", nil) }},
		{"unknown device", "emulator-9999", func(r *scriptedRunner) { r.on("devices -l", devicesOut, nil) }},
		{"unauthorized device", "R58M123ABC", func(r *scriptedRunner) { r.on("devices -l", devicesOut, nil) }},
		{"handshake fails", "emulator-5554", func(r *scriptedRunner) {
			r.on("devices -l", devicesOut, nil)
			r.on("-s emulator-5554 shell echo", "", errExit)
		}},
		{"server down", "", func(r *scriptedRunner) { r.on("start-server", "", errExit) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newScripted()
			tt.setup(r)

			_, err := newBridge(r, "").Connect(context.Background(), tt.deviceID)
			if !errors.Is(err, types.ErrDeviceUnavailable) {
				t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
			}
		})
	}
}

func TestBridge_SetMockLocation(t *testing.T) {
	h := models.DeviceHandle{DeviceID: "emulator-5554", Serial: "emulator-5554"}

	r := newScripted()
	if err := newBridge(r, types.MockBroadcast).SetMockLocation(context.Background(), h, 30.51, 114.41); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	want := "-s emulator-5554 shell am broadcast -a android.intent.action.MOCK_LOCATION --ef latitude 30.51 --ef longitude 114.41 --ef altitude 10"
	if r.called(want) != 1 {
		t.Fatalf("unexpected broadcast command: %v", r.calls)
	}

	r = newScripted()
	if err := newBridge(r, types.MockGeoFix).SetMockLocation(context.Background(), h, 30.51, 114.41); err != nil {
		t.Fatalf("geo fix: %v", err)
	}
	if r.called("-s emulator-5554 emu geo fix 114.41 30.51 10") != 1 {
		t.Fatalf("geo fix must pass longitude first: %v", r.calls)
	}
}

func TestBridge_SetMockLocationErrors(t *testing.T) {
	h := models.DeviceHandle{DeviceID: "d", Serial: "d"}

	r := newScripted()
	r.on("-s d shell am broadcast", "", errors.New("exit status 1: Error: Activity not started"))
	if err := newBridge(r, "").SetMockLocation(context.Background(), h, 1, 2); !errors.Is(err, types.ErrDeviceCommand) {
		t.Fatalf("expected ErrDeviceCommand, got %v", err)
	}

	r = newScripted()
	r.on("-s d shell am broadcast", "", errors.New("exit status 1: error: device 'd' not found"))
	if err := newBridge(r, "").SetMockLocation(context.Background(), h, 1, 2); !errors.Is(err, types.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newBridge(newScripted(), "").SetMockLocation(ctx, h, 1, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBridge_ProbeStatus(t *testing.T) {
	h := models.DeviceHandle{DeviceID: "d", Serial: "d"}

	tests := []struct {
		name  string
		setup func(r *scriptedRunner)
		want  models.DeviceStatus
	}{
		{"foreground", func(r *scriptedRunner) {
			r.on("-s d get-state", "device", nil)
			r.on("-s d shell dumpsys window", focusApp, nil)
		}, models.DeviceStatus{Connected: true, AppForeground: true}},
		{"background", func(r *scriptedRunner) {
			r.on("-s d get-state", "device", nil)
			r.on("-s d shell dumpsys window", focusLauncher, nil)
		}, models.DeviceStatus{Connected: true}},
		{"offline", func(r *scriptedRunner) {
			r.on("-s d get-state", "offline", nil)
		}, models.DeviceStatus{}},
		{"gone", func(r *scriptedRunner) {
			r.on("-s d get-state", "", errors.New("error: device 'd' not found"))
		}, models.DeviceStatus{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newScripted()
			tt.setup(r)

			got, err := newBridge(r, "").ProbeStatus(context.Background(), h)
			if err != nil {
				t.Fatalf("probe: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestBridge_Disconnect(t *testing.T) {
	r := newScripted()
	b := newBridge(r, "")

	if err := b.Disconnect(context.Background(), models.DeviceHandle{DeviceID: "emulator-5554", Serial: "emulator-5554"}); err != nil {
		t.Fatal(err)
	}
	if r.called("-s emulator-5554 shell appops set com.hust.sport android:mock_location default") != 1 {
		t.Fatalf("mock permission not restored: %v", r.calls)
	}
	if r.called("disconnect") != 0 {
		t.Fatalf("usb device must not be disconnected")
	}

	if err := b.Disconnect(context.Background(), models.DeviceHandle{DeviceID: "192.168.1.7:5555", Serial: "192.168.1.7:5555"}); err != nil {
		t.Fatal(err)
	}
	if r.called("disconnect 192.168.1.7:5555") != 1 {
		t.Fatalf("tcp device must be disconnected: %v", r.calls)
	}
}
