package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	"github.com/Temutjin2k/hust-run/pkg/metrics"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	disconnectWait = 250 // ms
)

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Connect dials the broker and waits for the connection.
func Connect(cfg Config) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect: timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

// Publisher is the part of paho.Client the telemetry publisher needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

type locationMessage struct {
	SessionID string  `json:"session_id"`
	DeviceID  string  `json:"device_id"`
	Index     int     `json:"index"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// Telemetry publishes every sent fix to hustrun/device/<device_id>/location.
type Telemetry struct {
	client Publisher
	qos    byte
}

func NewTelemetry(client Publisher, qos byte) *Telemetry {
	return &Telemetry{client: client, qos: min(qos, 2)}
}

func Topic(deviceID string) string {
	return fmt.Sprintf("hustrun/device/%s/location", deviceID)
}

func (t *Telemetry) Publish(ctx context.Context, ev models.SessionEvent) error {
	const op = "Telemetry.Publish"
	ctx = wrap.WithSessionID(wrap.WithAction(ctx, types.ActionPublishTelemetry), ev.SessionID)

	payload, err := json.Marshal(locationMessage{
		SessionID: ev.SessionID,
		DeviceID:  ev.DeviceID,
		Index:     ev.Index,
		Latitude:  ev.Latitude,
		Longitude: ev.Longitude,
		Timestamp: ev.Timestamp.Unix(),
	})
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: marshal: %w", op, err))
	}

	token := t.client.Publish(Topic(ev.DeviceID), t.qos, false, payload)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		err = token.Error()
	case <-timer.C:
		err = fmt.Errorf("timed out after %s", publishTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	metrics.RecordMQTTPublish(err)

	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// Disconnect closes the client, waiting briefly for in-flight messages.
func Disconnect(client paho.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectWait)
	}
}
