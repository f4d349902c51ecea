package models

import (
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
)

// SessionStatus is a point-in-time copy of a run session, safe to share
// between goroutines.
type SessionStatus struct {
	SessionID        string             `json:"session_id"`
	RouteID          string             `json:"route_id"`
	DeviceID         string             `json:"device_id"`
	State            types.SessionState `json:"state"`
	CurrentIndex     int                `json:"current_index"`
	TotalWaypoints   int                `json:"total_waypoints"`
	WaypointsSent    int                `json:"waypoints_sent"`
	WaypointsSkipped int                `json:"waypoints_skipped"`
	DistanceCovered  float64            `json:"distance_covered"`
	ErrorCount       int                `json:"error_count"`
	AutoPaused       bool               `json:"auto_paused,omitempty"`
	StartedAt        time.Time          `json:"started_at,omitzero"`
	LastSentAt       time.Time          `json:"last_sent_at,omitzero"`
	EndedAt          time.Time          `json:"ended_at,omitzero"`
	Error            string             `json:"error,omitempty"`
}

// Progress returns the share of processed waypoints in [0, 1].
func (s SessionStatus) Progress() float64 {
	if s.TotalWaypoints == 0 {
		return 0
	}
	return float64(s.WaypointsSent+s.WaypointsSkipped) / float64(s.TotalWaypoints)
}
