package models

import (
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
)

// SessionEvent is published on lifecycle transitions and for every sent fix.
type SessionEvent struct {
	Type      types.SessionEvent `json:"type"`
	SessionID string             `json:"session_id"`
	RouteID   string             `json:"route_id"`
	DeviceID  string             `json:"device_id"`
	State     types.SessionState `json:"state"`
	Index     int                `json:"index,omitempty"`
	Latitude  float64            `json:"latitude,omitempty"`
	Longitude float64            `json:"longitude,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (e SessionEvent) ToMap() map[string]any {
	m := map[string]any{
		"type":       e.Type.String(),
		"session_id": e.SessionID,
		"route_id":   e.RouteID,
		"state":      e.State.String(),
		"timestamp":  e.Timestamp.Format(time.RFC3339Nano),
	}
	if e.Type.IsTelemetry() {
		m["index"] = e.Index
		m["latitude"] = e.Latitude
		m["longitude"] = e.Longitude
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}
