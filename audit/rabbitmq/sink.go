// Package rabbitmq publishes audit events to a durable RabbitMQ queue.
//
// Events are JSON encoded and published persistent through the default
// exchange, with the queue name as routing key. Publish failures are logged
// and counted; they never reach the sign-in path.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MrEthical07/goSignIn/internal/audit"
)

const (
	DefaultQueue   = "signin.audit"
	DefaultTimeout = 5 * time.Second
)

// Publisher is the subset of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Config configures a Sink.
type Config struct {
	Queue   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Sink implements the engine's audit sink over AMQP.
type Sink struct {
	pub     Publisher
	queue   string
	timeout time.Duration
	logger  *slog.Logger

	published atomic.Uint64
	failed    atomic.Uint64

	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ audit.Sink = (*Sink)(nil)

// New wraps an existing publisher, typically an *amqp.Channel whose queue
// has already been declared.
func New(pub Publisher, cfg Config) *Sink {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sink{pub: pub, queue: cfg.Queue, timeout: cfg.Timeout, logger: cfg.Logger}
}

// Dial connects to url, declares the durable queue, and returns a sink that
// owns the connection. Call Close when done.
func Dial(url string, cfg Config) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	s := New(ch, cfg)
	if _, err := ch.QueueDeclare(
		s.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	s.conn = conn
	s.ch = ch
	return s, nil
}

// Emit publishes event. It gives up after the configured timeout.
func (s *Sink) Emit(ctx context.Context, event audit.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("audit event encode failed", "event_type", event.EventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.pub.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.EventType,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("audit publish failed", "queue", s.queue, "event_id", event.ID, "error", err)
		return
	}
	s.published.Add(1)
}

// Published returns the number of events accepted by the broker client.
func (s *Sink) Published() uint64 { return s.published.Load() }

// Failed returns the number of events that could not be published.
func (s *Sink) Failed() uint64 { return s.failed.Load() }

// Close releases the channel and connection opened by Dial. It is a no-op
// for sinks created with New.
func (s *Sink) Close() error {
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
