package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
)

// ConnectionHub tracks subscriber connections grouped by topic.
type ConnectionHub struct {
	clients map[uuid.UUID]*Conn
	l       logger.Logger
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: make(map[uuid.UUID]*Conn),
		l:       l,
	}
}

func (h *ConnectionHub) Add(newConn *Conn) error {
	if newConn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[newConn.id] = newConn
	h.wg.Add(1)

	h.l.Debug(wrap.WithAction(context.Background(), "add_ws_connection"), "subscriber added",
		"conn_id", newConn.id.String(),
		"topic", newConn.topic,
	)
	return nil
}

// Delete removes and closes the connection.
func (h *ConnectionHub) Delete(id uuid.UUID) error {
	h.mu.Lock()
	conn, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if !ok {
		return ErrConnIsNotFound
	}
	defer h.wg.Done()

	if err := conn.Close(); err != nil {
		h.l.Warn(wrap.WithAction(context.Background(), "ws_connection_delete"), "failed to close conn",
			"conn_id", id.String(),
			"err", err.Error(),
		)
	}
	return nil
}

// Broadcast sends msg to every subscriber of topic and returns the number of
// successful deliveries. Broken connections are dropped.
func (h *ConnectionHub) Broadcast(topic string, msg map[string]any) int {
	h.mu.Lock()
	targets := make([]*Conn, 0)
	for _, c := range h.clients {
		if c.topic == topic {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Send(msg); err != nil {
			h.l.Debug(wrap.WithAction(context.Background(), "ws_broadcast"), "dropping subscriber",
				"conn_id", c.id.String(),
				"err", err.Error(),
			)
			_ = h.Delete(c.id)
			continue
		}
		delivered++
	}
	return delivered
}

// Count returns the number of subscribers of topic.
func (h *ConnectionHub) Count(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, c := range h.clients {
		if c.topic == topic {
			n++
		}
	}
	return n
}

// Close closes every connection and waits until all are released.
func (h *ConnectionHub) Close() {
	h.mu.Lock()
	ids := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		_ = h.Delete(id)
	}
	h.wg.Wait()

	h.l.Info(wrap.WithAction(context.Background(), "hub_close"), "all websocket connections closed gracefully")
}
