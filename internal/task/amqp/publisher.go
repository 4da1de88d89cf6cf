// Package amqp fans task state changes out to a RabbitMQ topic exchange so
// workers and other services can follow background progress.
//
// Every change observed on a [task.Store] subscription is published as a JSON
// document to the "task_updates" exchange with routing key "task.<kind>" for
// unowned tasks and "task.<kind>.<owner>" for per-user ones, so a consumer
// binds "task.discovery.#" to follow every user's discovery.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqplib "github.com/streadway/amqp"

	"github.com/AnsuryX/Autojob-Mvp/internal/task"
)

// DefaultExchange is the topic exchange task updates are published to.
const DefaultExchange = "task_updates"

// Channel is the subset of *amqplib.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqplib.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqplib.Publishing) error
	Close() error
}

var _ Channel = (*amqplib.Channel)(nil)

// Publisher publishes task states to an AMQP exchange. Publish is safe for
// concurrent use; AMQP channels are not, so calls are serialised.
type Publisher struct {
	mu       sync.Mutex
	ch       Channel
	conn     *amqplib.Connection
	exchange string
	logger   *slog.Logger
}

// Option configures a [Publisher].
type Option func(*Publisher)

// WithExchange overrides [DefaultExchange].
func WithExchange(name string) Option {
	return func(p *Publisher) { p.exchange = name }
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// Dial connects to the broker at url, opens a channel and declares the
// exchange.
func Dial(url string, opts ...Option) (*Publisher, error) {
	conn, err := amqplib.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	p, err := New(ch, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// New wraps an open channel and declares the durable topic exchange.
func New(ch Channel, opts ...Option) (*Publisher, error) {
	p := &Publisher{
		ch:       ch,
		exchange: DefaultExchange,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqplib.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("amqp: declare exchange %q: %w", p.exchange, err)
	}
	return p, nil
}

// RoutingKey returns the routing key for a task id.
func RoutingKey(id string) string {
	owner, kind := task.SplitKey(id)
	if owner == "" {
		return "task." + kind
	}
	return "task." + kind + "." + owner
}

// Publish sends one state as a persistent JSON message.
func (p *Publisher) Publish(st task.State) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("amqp: marshal task %s: %w", st.ID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(p.exchange, RoutingKey(st.ID), false, false, amqplib.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqplib.Persistent,
		Timestamp:    st.UpdatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish task %s: %w", st.ID, err)
	}
	return nil
}

// Run subscribes to store and publishes every change until ctx is cancelled.
// Publish failures are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, store *task.Store) error {
	updates, cancel := store.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if err := p.Publish(st); err != nil {
				p.logger.Warn("task update not published", "task", st.ID, "err", err)
			}
		}
	}
}

// Ping reports whether the underlying connection is still open. It is used
// as a readiness check.
func (p *Publisher) Ping(context.Context) error {
	if p.conn != nil && p.conn.IsClosed() {
		return errors.New("amqp: connection closed")
	}
	return nil
}

// Close closes the channel and, when the publisher dialled it, the
// connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if err := p.ch.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
