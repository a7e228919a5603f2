package emitter

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Transport is the slice of an MQTT client the emitter and control handler
// need.
type Transport interface {
	Publish(topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte, handler func(payload []byte)) error
	Unsubscribe(topic string) error
	Connected() bool
	Close()
}

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTTransport is the paho-backed Transport.
type MQTTTransport struct {
	broker    string
	client    mqtt.Client
	connected atomic.Bool
}

// Dial connects to broker (e.g. "tcp://localhost:1883") with automatic
// reconnection.
func Dial(broker, clientID string) (*MQTTTransport, error) {
	t := &MQTTTransport{broker: broker}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		t.connected.Store(true)
		slog.Info("mqtt connection established", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		t.connected.Store(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", broker)
	}

	t.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", broker)
	token := t.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		t.client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	t.connected.Store(true)
	return t, nil
}

func (t *MQTTTransport) Publish(topic string, qos byte, payload []byte) error {
	token := t.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (t *MQTTTransport) Subscribe(topic string, qos byte, handler func([]byte)) error {
	token := t.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscription failed: %w", err)
	}
	return nil
}

func (t *MQTTTransport) Unsubscribe(topic string) error {
	if !t.client.IsConnected() {
		return nil
	}
	token := t.client.Unsubscribe(topic)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("unsubscribe timeout")
	}
	return token.Error()
}

func (t *MQTTTransport) Connected() bool { return t.connected.Load() }

// Close disconnects with a 250ms grace period.
func (t *MQTTTransport) Close() {
	if t.client.IsConnected() {
		t.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	t.connected.Store(false)
}
