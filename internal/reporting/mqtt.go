package reporting

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/config"
	"sleepywoodpecker/csi-motion/internal/csi"
)

const connectTimeout = 10 * time.Second

// MQTTPublisher publishes result messages to one topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	retain bool
	logger *zap.Logger
}

func generateClientID(prefix string) string {
	if prefix == "" {
		prefix = "csi_recv"
	}
	return prefix + "_" + uuid.NewString()
}

// NewMQTTPublisher starts connecting to the configured broker. The client
// keeps retrying in the background, so a broker that is down at startup only
// means reports are dropped until it comes up.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID(cfg.ClientPrefix))

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(240 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("[mqtt] MQTT connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("[mqtt] MQTT disconnected", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Info("[mqtt] attempting to reconnect")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(connectTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return NewMQTTPublisherWithClient(client, cfg.Topic, cfg.QoS, cfg.Retain, logger), nil
}

func NewMQTTPublisherWithClient(client mqtt.Client, topic string, qos byte, retain bool, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  topic,
		qos:    qos,
		retain: retain,
		logger: logger,
	}
}

// Publish hands msg to the client and returns without waiting for the broker.
func (p *MQTTPublisher) Publish(msg ResultMessage) error {
	if p == nil || !p.client.IsConnected() {
		return csi.ErrTransportUnavailable
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retain, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.logger.Warn("[mqtt] failed to publish", zap.Error(token.Error()), zap.String("topic", p.topic))
		} else {
			p.logger.Info("[mqtt] MQTT sent", zap.ByteString("payload", payload), zap.String("topic", p.topic))
		}
	}()

	return nil
}

// Disconnect waits up to 250ms for in-flight work before closing.
func (p *MQTTPublisher) Disconnect() {
	if p != nil && p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("[mqtt] disconnected from broker")
	}
}

// LogPublisher stands in when MQTT is disabled and only logs each message.
type LogPublisher struct {
	Logger *zap.Logger
}

func (l LogPublisher) Publish(msg ResultMessage) error {
	l.Logger.Info("[reporter] result", zap.Int("motion", msg.Motion), zap.Int("breathingRate", msg.BreathingRate))
	return nil
}
