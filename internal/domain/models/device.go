package models

import "time"

// DeviceHandle identifies a connected device. It is owned by one session at a time.
type DeviceHandle struct {
	DeviceID    string
	Serial      string
	ConnectedAt time.Time
}

func (h DeviceHandle) IsZero() bool {
	return h.DeviceID == ""
}

// DeviceStatus is the result of a device probe.
type DeviceStatus struct {
	Connected     bool
	AppForeground bool
}

// Credentials are replayed by the login capability. They are never persisted.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}
