package events

import (
	"sync"
	"time"

	"github.com/blocksense-network/agentfs/internal/logger"
	"github.com/blocksense-network/agentfs/pkg/ids"
	"github.com/blocksense-network/agentfs/pkg/metrics"
)

const defaultQueueSize = 256

// BusConfig selects the per-subscriber dispatch queue depth.
type BusConfig struct {
	QueueSize int
}

// subscriber holds one sink's dedicated dispatch goroutine and bounded
// queue, the same shape as the teacher's BackgroundUploader: a channel
// buffer plus a goroutine draining it, so one slow sink never blocks
// Publish or another subscriber.
type subscriber struct {
	id       ids.SubscriptionId
	sink     Sink
	queue    chan Event
	stopCh   chan struct{}
	overflow uint64
}

// Bus is the process-wide Event Bus, spec.md §5 "Event subscribers are
// process-wide; deregistration is idempotent."
type Bus struct {
	mu      sync.RWMutex
	subs    map[ids.SubscriptionId]*subscriber
	cfg     BusConfig
	metrics *metrics.Metrics
}

// NewBus constructs an empty Bus.
func NewBus(cfg BusConfig) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Bus{subs: make(map[ids.SubscriptionId]*subscriber), cfg: cfg, metrics: metrics.New()}
}

// Subscribe registers sink and starts its dispatch goroutine, returning a
// SubscriptionId that Unsubscribe and OverflowCount key on.
func (b *Bus) Subscribe(sink Sink) ids.SubscriptionId {
	s := &subscriber{
		id:     ids.NewSubscriptionId(),
		sink:   sink,
		queue:  make(chan Event, b.cfg.QueueSize),
		stopCh: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()

	go s.dispatch()
	return s.id
}

func (s *subscriber) dispatch() {
	for {
		select {
		case e := <-s.queue:
			s.sink.HandleEvent(e)
		case <-s.stopCh:
			return
		}
	}
}

// Unsubscribe stops and forgets a subscription. Calling it twice, or with
// an id that was never registered, is a no-op.
func (b *Bus) Unsubscribe(id ids.SubscriptionId) {
	b.mu.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(s.stopCh)
	}
}

// Publish fans e out to every subscriber's queue without blocking. A
// subscriber whose queue is full has e dropped and its overflow counter
// incremented, spec.md §4.7 "slow sinks are dropped from the queue with a
// recorded overflow counter."
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	b.metrics.RecordEventPublished()
	for _, s := range b.subs {
		select {
		case s.queue <- e:
		default:
			s.overflow++
			b.metrics.RecordEventDropped()
			logger.Warn("event queue overflow, dropping event",
				logger.EventKind(e.Kind.String()), logger.QueueDepth(len(s.queue)), logger.Overflow(s.overflow))
		}
	}
}

// OverflowCount returns the number of events dropped for a subscription
// since it was created, or 0 if id is unknown.
func (b *Bus) OverflowCount(id ids.SubscriptionId) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.subs[id]; ok {
		return s.overflow
	}
	return 0
}
