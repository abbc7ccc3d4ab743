// Package bus implements the central publish/subscribe message bus that
// decouples producers (video capture, decision engine) from consumers
// (dashboard bridge, archive, notifiers). It provides typed messages,
// bounded in-memory history, delivery accounting, and graceful degradation
// when consumers are slow or absent. Delivery is at-most-once per
// subscriber, best effort.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grvsrs/playclaw/pkg/logger"
)

// ErrBusClosed is returned by Publish after Shutdown.
var ErrBusClosed = errors.New("message bus is shut down")

// ErrInvalidMessage wraps validation failures at publish time.
var ErrInvalidMessage = errors.New("invalid message")

const (
	historyCapacity = 100
	// sequentialQueueCap bounds backlog per sequential subscriber. When the
	// queue is full new messages for that subscriber are dropped and
	// counted, so one stuck handler cannot pile up memory or stall anyone.
	sequentialQueueCap = 64
)

// Handler consumes one message. A non-nil error is counted and logged but
// never stops delivery to other subscribers.
type Handler func(Message) error

type subscriber struct {
	name       string
	fn         Handler
	concurrent bool

	// Sequential subscribers only: a dedicated worker drains queue so the
	// handler runs off the publisher's goroutine, one message at a time.
	queue chan Message
	done  chan struct{}
}

// Stats is a point-in-time snapshot of delivery accounting.
type Stats struct {
	TotalPublished  uint64          `json:"total_published"`
	TotalDelivered  uint64          `json:"total_delivered"`
	TotalErrors     uint64          `json:"total_errors"`
	TotalDropped    uint64          `json:"total_dropped"`   // full sequential queues
	RejectedClosed  uint64          `json:"rejected_closed"` // publishes after Shutdown
	PerType         map[Type]uint64 `json:"per_type"`
	LastMessageTime time.Time       `json:"last_message_time"`
}

// Health is the read-only health snapshot.
type Health struct {
	Running               bool  `json:"running"`
	Subscribers           int   `json:"subscribers"`
	ConcurrentSubscribers int   `json:"concurrent_subscribers"`
	SequentialSubscribers int   `json:"sequential_subscribers"`
	HistorySize           int   `json:"history_size"`
	Stats                 Stats `json:"stats"`
}

// MessageBus is the central broker. Construct with New, wire it from the
// composition root, and Shutdown it exactly once on termination.
//
// The single mutex guards subscriber-set and history mutation only;
// handler invocation always happens outside it.
type MessageBus struct {
	mu      sync.Mutex
	subs    map[string]*subscriber
	history []Message
	running bool

	published uint64
	perType   map[Type]uint64
	lastMsg   time.Time

	// Updated during fan-out, outside the lock.
	delivered atomic.Uint64
	errored   atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64

	wg sync.WaitGroup
}

// New creates a running, empty bus.
func New() *MessageBus {
	return &MessageBus{
		subs:    make(map[string]*subscriber),
		perType: make(map[Type]uint64),
		running: true,
	}
}

// Subscribe registers a named handler. concurrent declares whether the
// handler is safe to invoke from arbitrary goroutines, possibly in
// parallel with itself; there is no runtime auto-detection. Sequential
// handlers get a dedicated worker so they never run on a publisher's
// goroutine. Subscribing an existing name again is a no-op.
func (b *MessageBus) Subscribe(name string, fn Handler, concurrent bool) error {
	if name == "" {
		return fmt.Errorf("subscriber name is empty")
	}
	if fn == nil {
		return fmt.Errorf("subscriber %q handler is nil", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return ErrBusClosed
	}
	if _, exists := b.subs[name]; exists {
		return nil
	}

	sub := &subscriber{name: name, fn: fn, concurrent: concurrent}
	if !concurrent {
		sub.queue = make(chan Message, sequentialQueueCap)
		sub.done = make(chan struct{})
		b.wg.Add(1)
		go b.runWorker(sub)
	}
	b.subs[name] = sub
	logger.DebugCF("bus", "Subscriber registered", map[string]interface{}{
		"name": name, "concurrent": concurrent,
	})
	return nil
}

// Unsubscribe removes a subscriber and stops its worker. Unknown names are
// a no-op.
func (b *MessageBus) Unsubscribe(name string) {
	b.mu.Lock()
	sub, ok := b.subs[name]
	if ok {
		delete(b.subs, name)
	}
	b.mu.Unlock()

	if ok && sub.done != nil {
		close(sub.done)
	}
}

// Publish validates the message, records it in history and statistics
// atomically, then fans it out to the subscriber set as of that moment.
// Concurrent-capable handlers run inline on the caller's goroutine (so
// per-subscriber order follows publish order); sequential handlers are
// enqueued to their workers and never block the caller. Invalid messages
// are dropped and counted; so are publishes after Shutdown, under a
// distinct counter.
func (b *MessageBus) Publish(msg Message) error {
	if err := msg.Validate(); err != nil {
		b.errored.Add(1)
		logger.WarnCF("bus", "Dropped invalid message", map[string]interface{}{
			"type": string(msg.Type), "source": msg.Source, "err": err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		b.rejected.Add(1)
		return ErrBusClosed
	}
	b.history = append(b.history, msg)
	if len(b.history) > historyCapacity {
		b.history = b.history[1:]
	}
	b.published++
	b.perType[msg.Type]++
	b.lastMsg = msg.Timestamp
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if sub.concurrent {
			b.deliver(sub, msg)
			continue
		}
		select {
		case sub.queue <- msg:
		default:
			b.dropped.Add(1)
			logger.WarnCF("bus", "Sequential subscriber backlog full, message dropped", map[string]interface{}{
				"subscriber": sub.name, "message_id": msg.ID, "type": string(msg.Type),
			})
		}
	}
	return nil
}

func (b *MessageBus) runWorker(sub *subscriber) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.queue:
			b.deliver(sub, msg)
		}
	}
}

// deliver invokes one handler, isolating failures: an error or panic is
// counted and logged with enough context to debug, and affects nobody else.
func (b *MessageBus) deliver(sub *subscriber, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.errored.Add(1)
			logger.ErrorCF("bus", "Subscriber panicked", map[string]interface{}{
				"subscriber": sub.name, "message_id": msg.ID,
				"type": string(msg.Type), "panic": fmt.Sprint(r),
			})
		}
	}()
	if err := sub.fn(msg); err != nil {
		b.errored.Add(1)
		logger.ErrorCF("bus", "Subscriber handler failed", map[string]interface{}{
			"subscriber": sub.name, "message_id": msg.ID,
			"type": string(msg.Type), "err": err.Error(),
		})
		return
	}
	b.delivered.Add(1)
}

// History returns up to limit of the most recent messages in publish
// order, optionally filtered by type ("" means all). The backing store is
// never exposed.
func (b *MessageBus) History(typeFilter Type, limit int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if typeFilter == "" {
		if limit <= 0 || limit > len(b.history) {
			limit = len(b.history)
		}
		out := make([]Message, limit)
		copy(out, b.history[len(b.history)-limit:])
		return out
	}

	if limit <= 0 {
		limit = len(b.history)
	}
	out := make([]Message, 0, limit)
	for i := len(b.history) - 1; i >= 0 && len(out) < limit; i-- {
		if b.history[i].Type == typeFilter {
			out = append(out, b.history[i])
		}
	}
	// Collected newest-first; flip back to publish order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Stats returns a snapshot of delivery accounting. Safe to call
// concurrently with Publish.
func (b *MessageBus) Stats() Stats {
	b.mu.Lock()
	perType := make(map[Type]uint64, len(b.perType))
	for t, n := range b.perType {
		perType[t] = n
	}
	s := Stats{
		TotalPublished:  b.published,
		PerType:         perType,
		LastMessageTime: b.lastMsg,
	}
	b.mu.Unlock()

	s.TotalDelivered = b.delivered.Load()
	s.TotalErrors = b.errored.Load()
	s.TotalDropped = b.dropped.Load()
	s.RejectedClosed = b.rejected.Load()
	return s
}

// HealthCheck reports whether the bus accepts publishes plus subscriber
// counts and the stats snapshot.
func (b *MessageBus) HealthCheck() Health {
	b.mu.Lock()
	h := Health{
		Running:     b.running,
		Subscribers: len(b.subs),
		HistorySize: len(b.history),
	}
	for _, sub := range b.subs {
		if sub.concurrent {
			h.ConcurrentSubscribers++
		} else {
			h.SequentialSubscribers++
		}
	}
	b.mu.Unlock()

	h.Stats = b.Stats()
	return h
}

// Shutdown marks the bus non-accepting, clears the subscriber set, and
// stops all workers, waiting for in-flight sequential deliveries to
// finish. Idempotent; publishes afterwards return ErrBusClosed.
func (b *MessageBus) Shutdown() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.done != nil {
			close(sub.done)
		}
	}
	b.wg.Wait()
	logger.InfoC("bus", "Message bus shut down")
}
