// Package mailbox provides bounded, timestamped message queues between controller goroutines.
//
// A Mailbox carries Message values stamped by the producer. Capacity-1 mailboxes are used with
// ResetAndSend so that only the latest intent survives; consumers call Fresh to drop messages
// that aged past their staleness threshold before they were dequeued.
package mailbox

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"go.viam.com/hoopbot/logging"
)

// ErrTimeout is returned when a bounded send or receive gives up.
var ErrTimeout = errors.New("mailbox timed out")

// Message is a value stamped with the time its producer created it.
type Message[T any] struct {
	Time  time.Time
	Value T
}

// Age returns how old the message is according to clk.
func (m Message[T]) Age(clk clock.Clock) time.Duration {
	return clk.Since(m.Time)
}

// Mailbox is a bounded queue of timestamped messages.
type Mailbox[T any] struct {
	name   string
	ch     chan Message[T]
	clk    clock.Clock
	logger logging.Logger

	attrs      metric.MeasurementOption
	delivered  metric.Int64Counter
	superseded metric.Int64Counter
	stale      metric.Int64Counter
}

// Option configures a Mailbox.
type Option func(*options)

type options struct {
	meter metric.Meter
}

// WithMeter records the mailbox counters on meter instead of the global provider's.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// New returns a mailbox holding at most capacity messages. Counters are registered with the
// global OpenTelemetry meter, which is a no-op unless a provider is installed.
func New[T any](name string, capacity int, clk clock.Clock, logger logging.Logger, opts ...Option) (*Mailbox[T], error) {
	if capacity < 1 {
		return nil, errors.Errorf("mailbox %q: capacity must be at least 1, got %d", name, capacity)
	}
	o := options{meter: defaultMeter()}
	for _, opt := range opts {
		opt(&o)
	}

	mb := &Mailbox[T]{
		name:   name,
		ch:     make(chan Message[T], capacity),
		clk:    clk,
		logger: logger,
		attrs:  metric.WithAttributes(attribute.String("mailbox", name)),
	}

	var err error
	if mb.delivered, err = o.meter.Int64Counter(
		"mailbox.messages.delivered",
		metric.WithDescription("Messages handed to a consumer"),
	); err != nil {
		return nil, errors.Wrapf(err, "mailbox %q: creating delivered counter", name)
	}
	if mb.superseded, err = o.meter.Int64Counter(
		"mailbox.messages.superseded",
		metric.WithDescription("Messages discarded unread because a newer one replaced them"),
	); err != nil {
		return nil, errors.Wrapf(err, "mailbox %q: creating superseded counter", name)
	}
	if mb.stale, err = o.meter.Int64Counter(
		"mailbox.messages.stale",
		metric.WithDescription("Messages dropped for exceeding their staleness threshold"),
	); err != nil {
		return nil, errors.Wrapf(err, "mailbox %q: creating stale counter", name)
	}
	return mb, nil
}

// Name returns the mailbox name.
func (mb *Mailbox[T]) Name() string {
	return mb.name
}

// Len returns the number of queued messages.
func (mb *Mailbox[T]) Len() int {
	return len(mb.ch)
}

func (mb *Mailbox[T]) stamp(v T) Message[T] {
	return Message[T]{Time: mb.clk.Now(), Value: v}
}

// ResetAndSend discards every queued message and enqueues v. It never blocks.
func (mb *Mailbox[T]) ResetAndSend(v T) {
	mb.ResetAndSendMessage(mb.stamp(v))
}

// ResetAndSendMessage is ResetAndSend with a caller supplied timestamp.
func (mb *Mailbox[T]) ResetAndSendMessage(msg Message[T]) {
	for {
		select {
		case mb.ch <- msg:
			return
		default:
		}
		select {
		case <-mb.ch:
			mb.superseded.Add(context.Background(), 1, mb.attrs)
		default:
		}
	}
}

// TrySend enqueues v if there is room and reports whether it did.
func (mb *Mailbox[T]) TrySend(v T) bool {
	select {
	case mb.ch <- mb.stamp(v):
		return true
	default:
		return false
	}
}

// Send enqueues v, waiting at most timeout for room.
func (mb *Mailbox[T]) Send(ctx context.Context, v T, timeout time.Duration) error {
	msg := mb.stamp(v)
	select {
	case mb.ch <- msg:
		return nil
	default:
	}

	timer := mb.clk.Timer(timeout)
	defer timer.Stop()
	select {
	case mb.ch <- msg:
		return nil
	case <-timer.C:
		return errors.Wrapf(ErrTimeout, "sending to %q", mb.name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available or ctx is done.
func (mb *Mailbox[T]) Receive(ctx context.Context) (Message[T], error) {
	select {
	case msg := <-mb.ch:
		mb.delivered.Add(ctx, 1, mb.attrs)
		return msg, nil
	case <-ctx.Done():
		return Message[T]{}, ctx.Err()
	}
}

// ReceiveTimeout is Receive bounded by timeout. It returns ErrTimeout when nothing arrived.
func (mb *Mailbox[T]) ReceiveTimeout(ctx context.Context, timeout time.Duration) (Message[T], error) {
	select {
	case msg := <-mb.ch:
		mb.delivered.Add(ctx, 1, mb.attrs)
		return msg, nil
	default:
	}

	timer := mb.clk.Timer(timeout)
	defer timer.Stop()
	select {
	case msg := <-mb.ch:
		mb.delivered.Add(ctx, 1, mb.attrs)
		return msg, nil
	case <-timer.C:
		return Message[T]{}, ErrTimeout
	case <-ctx.Done():
		return Message[T]{}, ctx.Err()
	}
}

// TryReceive returns a queued message without blocking.
func (mb *Mailbox[T]) TryReceive() (Message[T], bool) {
	select {
	case msg := <-mb.ch:
		mb.delivered.Add(context.Background(), 1, mb.attrs)
		return msg, true
	default:
		return Message[T]{}, false
	}
}

// Fresh reports whether msg is within threshold of now. A stale message is logged once at warn
// level and counted; the caller must then drop it without acting on it.
func (mb *Mailbox[T]) Fresh(ctx context.Context, msg Message[T], threshold time.Duration) bool {
	age := msg.Age(mb.clk)
	if age <= threshold {
		return true
	}
	mb.stale.Add(ctx, 1, mb.attrs)
	mb.logger.Warnw("dropping stale message",
		"mailbox", mb.name, "age", age.String(), "threshold", threshold.String(), "value", msg.Value)
	return false
}
