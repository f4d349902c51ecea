package types

type SessionEvent string

func (s SessionEvent) String() string {
	return string(s)
}

const (
	EventSessionCreated   SessionEvent = "SESSION_CREATED"
	EventSessionStarted   SessionEvent = "SESSION_STARTED"
	EventSessionPaused    SessionEvent = "SESSION_PAUSED"
	EventSessionResumed   SessionEvent = "SESSION_RESUMED"
	EventSessionCompleted SessionEvent = "SESSION_COMPLETED"
	EventSessionAborted   SessionEvent = "SESSION_ABORTED"
	EventSessionFailed    SessionEvent = "SESSION_FAILED"
	EventWaypointSent     SessionEvent = "WAYPOINT_SENT"
)

// IsTelemetry reports whether the event carries a location fix rather than a
// lifecycle change.
func (s SessionEvent) IsTelemetry() bool {
	return s == EventWaypointSent
}
