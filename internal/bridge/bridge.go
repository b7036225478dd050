// Package bridge ingests device-side MQTT traffic into the store: heartbeat
// timestamps under status and telemetry under feedback. It is the write path
// the hardware owns; the engine itself only ever reads those fields.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"agropres/internal/logger"
	"agropres/internal/store"
)

const (
	connectTimeout   = 10 * time.Second
	reconnectBackoff = 5 * time.Second
	writeTimeout     = 5 * time.Second
)

// Topic suffixes under agropres/{deviceID}/.
const (
	topicHeartbeat = "heartbeat"
	topicFeedback  = "feedback"
)

// Bridge subscribes to a device's telemetry topics and mirrors them into
// the document store.
type Bridge struct {
	client   paho.Client
	docs     store.Store
	deviceID string
	log      *logger.Logger
}

// New connects to the broker and returns a bridge for one device.
func New(broker, deviceID string, docs store.Store, log *logger.Logger) (*Bridge, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("agropres-bridge-" + deviceID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectBackoff)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &Bridge{client: client, docs: docs, deviceID: deviceID, log: log}, nil
}

// Start subscribes to the device topics. Messages are applied best-effort:
// a store write failure is logged and the next heartbeat supersedes it.
func (b *Bridge) Start() error {
	base := "agropres/" + b.deviceID + "/"

	heartbeat := func(_ paho.Client, msg paho.Message) {
		if err := b.applyHeartbeat(msg.Payload()); err != nil {
			b.log.Warnw("heartbeat not applied", "err", err)
		}
	}
	feedback := func(_ paho.Client, msg paho.Message) {
		if err := b.applyFeedback(msg.Payload()); err != nil {
			b.log.Warnw("feedback not applied", "err", err)
		}
	}

	for topic, handler := range map[string]paho.MessageHandler{
		base + topicHeartbeat: heartbeat,
		base + topicFeedback:  feedback,
	} {
		token := b.client.Subscribe(topic, 1, handler)
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("subscribe %s: timeout", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// applyHeartbeat accepts either a bare unix-seconds payload or a JSON
// status object and mirrors it under devices/{id}/status.
func (b *Bridge) applyHeartbeat(payload []byte) error {
	fields := map[string]any{"is_online": true}

	trimmed := strings.TrimSpace(string(payload))
	if ts, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		fields["last_seen"] = ts
	} else {
		var status struct {
			IsOnline *bool `json:"is_online"`
			LastSeen int64 `json:"last_seen"`
		}
		if err := json.Unmarshal(payload, &status); err != nil {
			return fmt.Errorf("heartbeat payload %q: %w", trimmed, err)
		}
		if status.LastSeen == 0 {
			return fmt.Errorf("heartbeat payload %q: missing last_seen", trimmed)
		}
		fields["last_seen"] = status.LastSeen
		if status.IsOnline != nil {
			fields["is_online"] = *status.IsOnline
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return b.docs.Update(ctx, "devices/"+b.deviceID+"/status", fields)
}

// applyFeedback mirrors a JSON object of numeric telemetry readings under
// devices/{id}/feedback.
func (b *Bridge) applyFeedback(payload []byte) error {
	var readings map[string]float64
	if err := json.Unmarshal(payload, &readings); err != nil {
		return fmt.Errorf("feedback payload: %w", err)
	}
	if len(readings) == 0 {
		return nil
	}

	fields := make(map[string]any, len(readings))
	for k, v := range readings {
		fields[k] = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return b.docs.Update(ctx, "devices/"+b.deviceID+"/feedback", fields)
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(1000)
}
