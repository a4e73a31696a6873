package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cjeanneret/ScopeGo/internal/debug"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = time.Second
)

// MQTTConfig holds the broker settings.
type MQTTConfig struct {
	Broker      string // e.g., "tcp://localhost:1883"
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // events go to <prefix>/<kind>
}

// MQTT publishes events as JSON, QoS 0, not retained.
type MQTT struct {
	client mqtt.Client
	prefix string
}

// DialMQTT connects to the broker.
func DialMQTT(cfg MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		debug.Warn("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	debug.Info("Connected to MQTT broker %s", cfg.Broker)
	return NewMQTT(client, cfg.TopicPrefix), nil
}

// NewMQTT wraps an already connected client.
func NewMQTT(client mqtt.Client, prefix string) *MQTT {
	return &MQTT{client: client, prefix: strings.TrimSuffix(prefix, "/")}
}

// Topic returns the topic events of kind are published on.
func (m *MQTT) Topic(kind string) string {
	return m.prefix + "/" + kind
}

func (m *MQTT) Publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		debug.Error(fmt.Errorf("marshal %s event: %w", e.Kind, err))
		return
	}
	token := m.client.Publish(m.Topic(e.Kind), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		debug.Warn("MQTT publish %s: timeout", e.Kind)
		return
	}
	if err := token.Error(); err != nil {
		debug.Warn("MQTT publish %s: %v", e.Kind, err)
	}
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
