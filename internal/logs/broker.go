// Package logs keeps the streamed ETL log: a bounded container for display and
// a broker that fans new lines out to live subscribers.
package logs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// subscriberBuffer is the per-subscriber channel size.
const subscriberBuffer = 100

// Subscriber represents a log stream subscriber.
type Subscriber struct {
	ID        string
	MinLevel  models.LogLevel // "" for all levels
	Ch        chan models.LogEntry
	CreatedAt time.Time
}

// Broker manages log subscriptions and publishing.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber // subscriber ID -> subscriber
	logger      *slog.Logger
}

// NewBroker creates a new log broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
	}
}

// Subscribe creates a new subscription for log entries at or above minLevel.
func (b *Broker) Subscribe(minLevel models.LogLevel) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:        uuid.New().String(),
		MinLevel:  minLevel,
		Ch:        make(chan models.LogEntry, subscriberBuffer),
		CreatedAt: time.Now(),
	}

	b.subscribers[sub.ID] = sub
	b.logger.Debug("subscriber added", "subscriber_id", sub.ID, "min_level", minLevel)

	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID]; exists {
		close(sub.Ch)
		delete(b.subscribers, sub.ID)
		b.logger.Debug("subscriber removed", "subscriber_id", sub.ID)
	}
}

// Publish sends a log entry to all matching subscribers without blocking.
func (b *Broker) Publish(entry models.LogEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !matches(sub, entry) {
			continue
		}
		select {
		case sub.Ch <- entry:
		default:
			b.logger.Warn("subscriber channel full, dropping log entry", "subscriber_id", sub.ID)
		}
	}
}

// Close unsubscribes everyone.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		close(sub.Ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func matches(sub *Subscriber, entry models.LogEntry) bool {
	if sub.MinLevel == "" {
		return true
	}
	return severity(entry.Level) >= severity(sub.MinLevel)
}

// severity orders levels; unknown levels rank with info.
func severity(level models.LogLevel) int {
	switch level {
	case models.LogLevelDebug:
		return 0
	case models.LogLevelWarning, "warn":
		return 2
	case models.LogLevelError:
		return 3
	default:
		return 1
	}
}
