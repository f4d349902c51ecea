package wshandler

import (
	"context"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
)

type Broadcaster interface {
	Broadcast(topic string, msg map[string]any) int
}

// Feed forwards session events to websocket subscribers of the session.
type Feed struct {
	hub Broadcaster
}

func NewFeed(hub Broadcaster) *Feed {
	return &Feed{hub: hub}
}

// Publish never fails; a session without subscribers is not an error.
func (f *Feed) Publish(_ context.Context, ev models.SessionEvent) error {
	f.hub.Broadcast(ev.SessionID, ev.ToMap())
	return nil
}
