// Package events carries booking state changes to whoever listens. The engine
// publishes after its transaction commits; delivery never feeds back into the
// transition that produced the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	BookingStageChanged Type = "booking.stage_changed"
	BidReceived         Type = "bid.received"
	BidAccepted         Type = "bid.accepted"
	BidRejected         Type = "bid.rejected"
	ExtraPartsRequested Type = "extra_parts.requested"
	ExtraPartsResolved  Type = "extra_parts.resolved"
	RescheduleRequested Type = "reschedule.requested"
	RescheduleResolved  Type = "reschedule.resolved"
	AppealOpened        Type = "appeal.opened"
	AppealResolved      Type = "appeal.resolved"
	PaymentSettled      Type = "payment.settled"
)

// Event carries the booking id and the minimal delta needed to re-render.
// Consumers re-fetch the booking when they need more.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	BookingID  string         `json:"booking_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

func New(t Type, bookingID string, at time.Time, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		BookingID:  bookingID,
		OccurredAt: at.UTC(),
		Data:       data,
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher decouples publishing from the caller. Events are queued and
// delivered by a single goroutine; when the queue is full the event is dropped
// and logged.
type Dispatcher struct {
	next    Publisher
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(next Publisher, size int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		next:    next,
		queue:   make(chan Event, size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Publish(ctx, e); err != nil {
			log.Printf("[events] Error publishing %s for booking %s: %s\n", e.Type, e.BookingID, err.Error())
		}
		cancel()
	}
}

// Publish never blocks and never fails.
func (d *Dispatcher) Publish(_ context.Context, e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Printf("[events] Dispatcher closed, dropping %s for booking %s\n", e.Type, e.BookingID)
		return nil
	}
	select {
	case d.queue <- e:
	default:
		log.Printf("[events] Queue full, dropping %s for booking %s\n", e.Type, e.BookingID)
	}
	return nil
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// Of returns the recorded events of type t.
func (r *Recorder) Of(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
