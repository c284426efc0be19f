package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/attendance"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client is not connected")

const commandSuffix = "command"

// Client publishes attendance events to an MQTT broker and listens for
// commands on <topic>/command.
type Client struct {
	config config.MQTTConfig
	client mqtt.Client

	mu       sync.RWMutex
	handlers []CommandHandler

	// publish is replaced in tests.
	publish func(topic string, retain bool, payload []byte) error
}

// Command is a message received on the command topic.
type Command struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// CommandHandler handles commands received over MQTT.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd Command) error
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(ctx context.Context, cmd Command) error

// HandleCommand calls f.
func (f CommandHandlerFunc) HandleCommand(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// NewClient creates a client. Start must be called before events are published.
func NewClient(cfg config.MQTTConfig) *Client {
	c := &Client{config: cfg}
	c.publish = c.brokerPublish
	return c
}

// RegisterHandler adds a command handler.
func (c *Client) RegisterHandler(handler CommandHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
	log.Debug("Registered MQTT command handler")
}

// Start connects to the broker. It is a no-op when MQTT is disabled.
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	log.Info("MQTT client connected successfully")
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		c.client.Disconnect(250)
		log.Info("MQTT client disconnected")
	}
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Enabled reports whether MQTT publishing is configured.
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// CommandTopic is the topic commands are read from.
func (c *Client) CommandTopic() string {
	return c.config.Topic + "/" + commandSuffix
}

// EventTopic maps an event type like "attendance.recorded" to
// <topic>/attendance/recorded.
func (c *Client) EventTopic(eventType string) string {
	return c.config.Topic + "/" + strings.ReplaceAll(eventType, ".", "/")
}

// Notify publishes ev as JSON. It implements attendance.Notifier.
func (c *Client) Notify(ctx context.Context, ev attendance.Event) error {
	if !c.config.Enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := c.EventTopic(ev.Type)
	if err := c.publish(topic, c.config.Retain, payload); err != nil {
		return err
	}
	log.Debugf("Published %s to topic: %s", ev.Type, topic)
	return nil
}

func (c *Client) brokerPublish(topic string, retain bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 1, retain, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	topic := c.CommandTopic()
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
	if token := client.Subscribe(topic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to topic %s: %v", topic, token.Error())
		return
	}
	log.Infof("Subscribed to command topic: %s", topic)
}

func (c *Client) connectionLostHandler(_ mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

func (c *Client) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	c.dispatch(msg.Topic(), msg.Payload())
}

// dispatch decodes a command and hands it to every registered handler.
func (c *Client) dispatch(topic string, payload []byte) {
	log.Debugf("Received MQTT message on topic: %s", topic)

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Errorf("Failed to parse MQTT command: %v", err)
		return
	}
	if cmd.Action == "" {
		log.Warn("Ignoring MQTT command without action")
		return
	}

	c.mu.RLock()
	handlers := append([]CommandHandler(nil), c.handlers...)
	c.mu.RUnlock()

	for _, h := range handlers {
		if err := h.HandleCommand(context.Background(), cmd); err != nil {
			log.WithField("action", cmd.Action).Errorf("MQTT command failed: %v", err)
		}
	}
}
