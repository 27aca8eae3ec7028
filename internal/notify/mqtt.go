package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/model"
)

// MQTTNotifier publishes lifecycle events to an MQTT broker so the
// CRUD/API tier (and anything else) can fan out emails, websockets, or
// task sync without coupling to the pipeline.
type MQTTNotifier struct {
	conn        mqtt.Client
	topicPrefix string
	connected   atomic.Bool
	log         zerolog.Logger
}

// MQTTOptions configures the notifier's broker connection.
type MQTTOptions struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

// ConnectMQTT connects to the broker and returns the notifier.
func ConnectMQTT(opts MQTTOptions) (*MQTTNotifier, error) {
	n := &MQTTNotifier{
		topicPrefix: opts.TopicPrefix,
		log:         opts.Log,
	}
	if n.topicPrefix == "" {
		n.topicPrefix = "call-engine/recordings"
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(n.onConnect).
		SetConnectionLostHandler(n.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	n.conn = mqtt.NewClient(clientOpts)
	token := n.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return n, nil
}

func (n *MQTTNotifier) onConnect(mqtt.Client) {
	n.connected.Store(true)
	n.log.Info().Str("topic_prefix", n.topicPrefix).Msg("mqtt connected")
}

func (n *MQTTNotifier) onConnectionLost(_ mqtt.Client, err error) {
	n.connected.Store(false)
	n.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// IsConnected reports whether the broker connection is up.
func (n *MQTTNotifier) IsConnected() bool {
	return n.connected.Load()
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.log.Info().Msg("disconnecting mqtt notifier")
	n.conn.Disconnect(1000)
}

type completeEvent struct {
	Event       string    `json:"event"`
	RecordingID string    `json:"recording_id"`
	OwnerID     string    `json:"owner_id"`
	SourceType  string    `json:"source_type"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

func (n *MQTTNotifier) publish(event string, rec *model.Recording) error {
	payload, err := json.Marshal(completeEvent{
		Event:       event,
		RecordingID: rec.ID.String(),
		OwnerID:     rec.OwnerID.String(),
		SourceType:  string(rec.SourceType),
		Status:      string(rec.Status),
		Error:       rec.ProcessingError,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/%s", n.topicPrefix, rec.ID, event)
	token := n.conn.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

func (n *MQTTNotifier) ProcessingComplete(_ context.Context, rec *model.Recording) error {
	return n.publish("completed", rec)
}

func (n *MQTTNotifier) ProcessingFailed(_ context.Context, rec *model.Recording) error {
	return n.publish("failed", rec)
}

type actionItemEvent struct {
	Event       string     `json:"event"`
	RecordingID string     `json:"recording_id"`
	OwnerID     string     `json:"owner_id"`
	ActionID    string     `json:"action_id"`
	Title       string     `json:"title"`
	Priority    string     `json:"priority"`
	DueDateHint *time.Time `json:"due_date_hint,omitempty"`
	At          time.Time  `json:"at"`
}

func (n *MQTTNotifier) HighPriorityAction(_ context.Context, rec *model.Recording, item *model.ActionItem) error {
	payload, err := json.Marshal(actionItemEvent{
		Event:       "high_priority_action",
		RecordingID: rec.ID.String(),
		OwnerID:     rec.OwnerID.String(),
		ActionID:    item.ID.String(),
		Title:       item.Title,
		Priority:    string(item.Priority),
		DueDateHint: item.DueDateHint,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/high_priority_action", n.topicPrefix, rec.ID)
	token := n.conn.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}
