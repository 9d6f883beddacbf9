package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/benmeehan/vmdevice-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ErrNotifierNotConnected is returned when publishing before Start.
var ErrNotifierNotConnected = errors.New("notifier is not connected")

const publishTimeout = 5 * time.Second

// Notifier receives device snapshots and operation outcomes for consumers
// outside the process.
type Notifier interface {
	PublishDevices(snapshot models.DeviceSnapshot) error
	PublishEvent(event models.OperationEvent) error
}

// MQTTNotifier publishes snapshots (retained) to <topic>/<host>/devices/<kind>
// and events to <topic>/<host>/events.
type MQTTNotifier struct {
	topic      string
	qos        int
	quiesce    uint
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	connected atomic.Bool
}

// NewMQTTNotifier initializes an MQTTNotifier.
func NewMQTTNotifier(topic string, qos int, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		topic:      topic,
		qos:        qos,
		quiesce:    constants.MQTTDisconnectWait,
		mqttClient: mqttClient,
		logger:     logger,
	}
}

// Start connects to the broker.
func (n *MQTTNotifier) Start() error {
	token := n.mqttClient.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker")
	}
	if err := token.Error(); err != nil {
		n.logger.Error().Err(err).Msg("Failed to connect to MQTT broker")
		return err
	}
	n.connected.Store(true)
	n.logger.Info().Str("topic", n.topic).Msg("MQTT notifier started successfully")
	return nil
}

// Stop disconnects from the broker.
func (n *MQTTNotifier) Stop() error {
	if n.connected.CompareAndSwap(true, false) {
		n.mqttClient.Disconnect(n.quiesce)
		n.logger.Info().Msg("MQTT notifier stopped")
	}
	return nil
}

// PublishDevices publishes the latest list for snapshot.Kind as a retained message.
func (n *MQTTNotifier) PublishDevices(snapshot models.DeviceSnapshot) error {
	topic := fmt.Sprintf("%s/%s/devices/%s", n.topic, snapshot.Host, snapshot.Kind)
	return n.publish(topic, true, snapshot)
}

// PublishEvent publishes the outcome of one device operation.
func (n *MQTTNotifier) PublishEvent(event models.OperationEvent) error {
	topic := fmt.Sprintf("%s/%s/events", n.topic, event.Host)
	return n.publish(topic, false, event)
}

func (n *MQTTNotifier) publish(topic string, retained bool, v any) error {
	if !n.connected.Load() {
		return ErrNotifierNotConnected
	}

	payload, err := json.Marshal(v)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to serialize notification")
		return err
	}

	token := n.mqttClient.Publish(topic, byte(n.qos), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		n.logger.Warn().Str("topic", topic).Msg("Publish timed out")
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		n.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish notification")
		return err
	}

	n.logger.Debug().Str("topic", topic).Msg("Notification published successfully")
	return nil
}
