package types

type ServiceMode string

// run      - executes a route on a device and serves the control API
// generate - builds a route from a seed and saves it
// history  - prints recorded sessions and statistics
// recover  - finalizes sessions left open by a crash
// token    - prints a bearer token for the control API
const (
	RunMode      ServiceMode = "run"
	GenerateMode ServiceMode = "generate"
	HistoryMode  ServiceMode = "history"
	RecoverMode  ServiceMode = "recover"
	TokenMode    ServiceMode = "token"
)

// SessionState is the run session lifecycle state.
type SessionState string

func (s SessionState) String() string {
	return string(s)
}

const (
	StatePending   SessionState = "PENDING"
	StateRunning   SessionState = "RUNNING"
	StatePaused    SessionState = "PAUSED"
	StateCompleted SessionState = "COMPLETED"
	StateAborted   SessionState = "ABORTED"
	StateFailed    SessionState = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s SessionState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateAborted, StateFailed:
		return true
	}
	return false
}

// IsValid reports whether s is a known state.
func (s SessionState) IsValid() bool {
	switch s {
	case StatePending, StateRunning, StatePaused, StateCompleted, StateAborted, StateFailed:
		return true
	}
	return false
}

// MockMethod selects how a fix is injected on the device.
type MockMethod string

const (
	MockBroadcast MockMethod = "broadcast"
	MockGeoFix    MockMethod = "geo"
)

// RouteShape selects the seed builder used by generate mode.
type RouteShape string

const (
	ShapeFile       RouteShape = "file"
	ShapeLoop       RouteShape = "loop"
	ShapeOutAndBack RouteShape = "out_and_back"
)

// HistoryBackend selects where session records are kept.
type HistoryBackend string

const (
	HistoryMemory   HistoryBackend = "memory"
	HistoryPostgres HistoryBackend = "postgres"
)
