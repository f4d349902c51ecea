package models

import (
	"errors"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
)

// HistoryRecord is the durable summary of one session. It is written once by
// Begin, completed once by Finalize and never changed afterwards.
type HistoryRecord struct {
	SessionID        string             `json:"session_id"`
	RouteID          string             `json:"route_id"`
	RouteName        string             `json:"route_name,omitempty"`
	DeviceID         string             `json:"device_id"`
	StartedAt        time.Time          `json:"started_at"`
	EndedAt          time.Time          `json:"ended_at,omitzero"`
	Status           types.SessionState `json:"status"`
	WaypointsTotal   int                `json:"waypoints_total"`
	WaypointsSent    int                `json:"waypoints_sent"`
	WaypointsSkipped int                `json:"waypoints_skipped"`
	DistanceCovered  float64            `json:"distance_covered"`
	ErrorCount       int                `json:"error_count"`
	Error            string             `json:"error,omitempty"`
	StartAddress     string             `json:"start_address,omitempty"`
	Finalized        bool               `json:"finalized"`
}

// Duration returns EndedAt - StartedAt, or 0 for open records.
func (r HistoryRecord) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Tick is one successfully transmitted waypoint.
type Tick struct {
	SessionID string        `json:"session_id"`
	Index     int           `json:"index"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Offset    time.Duration `json:"offset"`
	SentAt    time.Time     `json:"sent_at"`
}

const MaxHistoryLimit = 1000

// HistoryFilter narrows Query and Stats. Zero fields match everything.
type HistoryFilter struct {
	RouteID string
	Status  types.SessionState
	Since   time.Time
	Until   time.Time
	Limit   int
}

func (f HistoryFilter) Validate() error {
	if f.Limit < 0 || f.Limit > MaxHistoryLimit {
		return errors.New("limit must be between 0 and 1000")
	}
	if f.Status != "" && !f.Status.IsValid() {
		return errors.New("unknown status")
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return errors.New("until must not be before since")
	}
	return nil
}

// Match reports whether a record passes the filter, ignoring Limit.
func (f HistoryFilter) Match(r HistoryRecord) bool {
	if f.RouteID != "" && r.RouteID != f.RouteID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && r.StartedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.StartedAt.After(f.Until) {
		return false
	}
	return true
}

// HistoryStats aggregates finalized records.
type HistoryStats struct {
	Sessions      int                        `json:"sessions"`
	ByStatus      map[types.SessionState]int `json:"by_status"`
	TotalDistance float64                    `json:"total_distance"`
	TotalDuration time.Duration              `json:"total_duration"`
	AverageSpeed  float64                    `json:"average_speed"` // m/s over completed sessions
}

// Aggregate builds stats from records. Open records are ignored.
func Aggregate(records []HistoryRecord) HistoryStats {
	stats := HistoryStats{ByStatus: make(map[types.SessionState]int)}

	var completedDistance float64
	var completedTime time.Duration
	for _, r := range records {
		if !r.Finalized {
			continue
		}
		stats.Sessions++
		stats.ByStatus[r.Status]++
		stats.TotalDistance += r.DistanceCovered
		stats.TotalDuration += r.Duration()
		if r.Status == types.StateCompleted {
			completedDistance += r.DistanceCovered
			completedTime += r.Duration()
		}
	}

	if completedTime > 0 {
		stats.AverageSpeed = completedDistance / completedTime.Seconds()
	}
	return stats
}
