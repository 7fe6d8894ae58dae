package teaching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of the MQTT client used here.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// LearnRequest asks a controller to capture one command.
type LearnRequest struct {
	Controller  string
	StorageName string
	Command     string
	CodeKind    device.CodeKind
}

// DeleteRequest asks the teaching service to drop stored codes.
type DeleteRequest struct {
	Controller  string
	StorageName string
	Commands    []string
}

// Client sends directives and waits for their acknowledgements.
type Client struct {
	mqtt MQTTClient
	qos  byte

	mu      sync.Mutex
	pending map[string]chan Ack
	started bool

	logger Logger
	now    func() time.Time
}

// New creates a client. Call Start before sending directives.
func New(m MQTTClient, qos byte) *Client {
	return &Client{
		mqtt:    m,
		qos:     qos,
		pending: make(map[string]chan Ack),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger.
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	c.logger = l
}

// Start subscribes to acknowledgements for every controller.
func (c *Client) Start() error {
	if err := c.mqtt.Subscribe(mqtt.Topics{}.AllLearnAcks(), c.qos, c.handleAck); err != nil {
		return fmt.Errorf("subscribing to acks: %w", err)
	}
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

// Stop unsubscribes and abandons outstanding directives.
func (c *Client) Stop() error {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
	return c.mqtt.Unsubscribe(mqtt.Topics{}.AllLearnAcks())
}

// Learn sends a learn directive and blocks until it is acknowledged or ctx
// ends. It returns as soon as the controller accepts; it never waits for the
// code itself.
func (c *Client) Learn(ctx context.Context, req LearnRequest) error {
	return c.send(ctx, Directive{
		Action:     ActionLearn,
		Controller: req.Controller,
		Device:     req.StorageName,
		Command:    req.Command,
		CodeKind:   req.CodeKind,
	})
}

// Delete sends a delete directive and waits for its acknowledgement.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) error {
	return c.send(ctx, Directive{
		Action:     ActionDelete,
		Controller: req.Controller,
		Device:     req.StorageName,
		Commands:   req.Commands,
	})
}

func (c *Client) send(ctx context.Context, d Directive) error {
	d.ID = uuid.NewString()
	d.Timestamp = c.now().UTC()

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding directive: %w", err)
	}

	ch := make(chan Ack, 1)
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.pending[d.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, d.ID)
		c.mu.Unlock()
	}()

	if err := c.mqtt.Publish(mqtt.Topics{}.LearnCommand(d.Controller), payload, c.qos, false); err != nil {
		return fmt.Errorf("publishing %s directive to %s: %w", d.Action, d.Controller, err)
	}
	c.logger.Debug("directive sent", "id", d.ID, "action", d.Action, "controller", d.Controller)

	select {
	case ack := <-ch:
		return ack.err()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s directive to %s", ErrAckTimeout, d.Action, d.Controller)
		}
		return ctx.Err()
	}
}

// handleAck routes an acknowledgement to the waiting sender. Acks for
// unknown or already-abandoned directives are dropped.
func (c *Client) handleAck(topic string, payload []byte) error {
	ack, err := ParseAck(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ch, ok := c.pending[ack.CommandID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("ack for unknown directive", "command_id", ack.CommandID, "controller", mqtt.LastSegment(topic))
		return nil
	}

	select {
	case ch <- ack:
	default:
		c.logger.Warn("duplicate ack ignored", "command_id", ack.CommandID)
	}
	return nil
}
