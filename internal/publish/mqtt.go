// Package publish mirrors acquisition events and zone summaries to an MQTT
// broker and accepts alarm acknowledgements from it.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"thermo-poller/internal/model"
	"thermo-poller/internal/monitor"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// Config selects the broker and topic layout.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// ValueMessage is published on <prefix>/variables/<id>.
type ValueMessage struct {
	ID    string    `json:"id"`
	Value float64   `json:"value"`
	Raw   uint16    `json:"raw"`
	At    time.Time `json:"at"`
}

// ErrorMessage is published on <prefix>/errors/<id>.
type ErrorMessage struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StatusMessage is published, retained, on <prefix>/status.
type StatusMessage struct {
	Connected bool      `json:"connected"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

func VariableTopic(prefix, id string) string { return prefix + "/variables/" + id }
func ErrorTopic(prefix, id string) string    { return prefix + "/errors/" + id }
func StatusTopic(prefix string) string       { return prefix + "/status" }
func ZoneTopic(prefix, id string) string     { return prefix + "/zones/" + id }
func AckTopic(prefix string) string          { return prefix + "/ack" }

// transport is the subset of a broker client the publisher needs.
type transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Disconnect()
}

// Publisher writes events to the broker. It is safe for concurrent use.
type Publisher struct {
	cfg    Config
	conn   transport
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Connect dials the broker and returns a publisher. The paho client reconnects
// on its own after the first successful connection.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	return newPublisher(cfg, &pahoTransport{client: client}, logger), nil
}

func newPublisher(cfg Config, conn transport, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	return &Publisher{cfg: cfg, conn: conn, logger: logger}
}

// PublishEvent forwards one worker event to its topic.
func (p *Publisher) PublishEvent(ev model.Event) error {
	prefix := p.cfg.TopicPrefix
	switch ev.Kind {
	case model.EventValueUpdated:
		return p.publishJSON(VariableTopic(prefix, ev.VariableID), false,
			ValueMessage{ID: ev.VariableID, Value: ev.Value, Raw: ev.Raw, At: ev.At})
	case model.EventVariableError:
		return p.publishJSON(ErrorTopic(prefix, ev.VariableID), false,
			ErrorMessage{ID: ev.VariableID, Message: ev.Message, At: ev.At})
	case model.EventConnectionState:
		return p.publishJSON(StatusTopic(prefix), true,
			StatusMessage{Connected: ev.Connected, Message: ev.Message, At: ev.At})
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// PublishSummary publishes every zone summary, retained, so late subscribers
// see the current aggregates.
func (p *Publisher) PublishSummary(sum monitor.Summary) error {
	for _, z := range sum.Zones {
		if err := p.publishJSON(ZoneTopic(p.cfg.TopicPrefix, z.ZoneID), true, z); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeAcks delivers alarm IDs received on <prefix>/ack to acks.
// Requests arriving while acks is full are dropped.
func (p *Publisher) SubscribeAcks(acks chan<- string) error {
	topic := AckTopic(p.cfg.TopicPrefix)
	return p.conn.Subscribe(topic, p.cfg.QoS, func(_ string, payload []byte) {
		id := strings.TrimSpace(string(payload))
		if id == "" {
			return
		}
		select {
		case acks <- id:
		default:
			p.logger.Warn("ack request dropped", zap.String("alarm_id", id))
		}
	})
}

// Close disconnects from the broker. Safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.conn.Disconnect()
}

func (p *Publisher) publishJSON(topic string, retained bool, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("publish %s: publisher closed", topic)
	}
	if err := p.conn.Publish(topic, p.cfg.QoS, retained, b); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

type pahoTransport struct {
	client pahomqtt.Client
}

func (t *pahoTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := t.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout after %s", topic, publishTimeout)
	}
	return token.Error()
}

func (t *pahoTransport) Subscribe(topic string, qos byte, handler func(string, []byte)) error {
	token := t.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (t *pahoTransport) Disconnect() {
	t.client.Disconnect(250)
}
