package logs

import (
	"sync"

	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

const (
	// DefaultMaxLines is the number of streamed log lines kept for display.
	DefaultMaxLines = 100
)

// Container maintains a bounded collection of log entries.
// Once full, every Add evicts exactly the oldest entry so the container always
// holds the most recent maxLines entries in arrival order.
type Container struct {
	mu       sync.RWMutex
	entries  []models.LogEntry
	head     int // index of the oldest entry once the ring has wrapped
	maxLines int
}

// NewContainer creates a new log container with the specified max lines.
func NewContainer(maxLines int) *Container {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Container{
		entries:  make([]models.LogEntry, 0, maxLines),
		maxLines: maxLines,
	}
}

// Add appends a log entry, evicting the oldest one when at capacity.
func (c *Container) Add(entry models.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) < c.maxLines {
		c.entries = append(c.entries, entry)
		return
	}

	c.entries[c.head] = entry
	c.head = (c.head + 1) % c.maxLines
}

// GetAll returns all log entries, oldest first.
func (c *Container) GetAll() []models.LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ordered(len(c.entries))
}

// GetLast returns the last n log entries, oldest first.
func (c *Container) GetLast(n int) []models.LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || len(c.entries) == 0 {
		return nil
	}

	if n > len(c.entries) {
		n = len(c.entries)
	}

	return c.ordered(n)
}

// ordered copies the newest n entries in arrival order. Caller holds the lock.
func (c *Container) ordered(n int) []models.LogEntry {
	size := len(c.entries)
	result := make([]models.LogEntry, n)
	start := size - n
	for i := 0; i < n; i++ {
		result[i] = c.entries[(c.head+start+i)%size]
	}
	return result
}

// Clear removes all entries from the container.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
	c.head = 0
}

// Len returns the number of entries in the container.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MaxLines returns the maximum number of lines the container can hold.
func (c *Container) MaxLines() int {
	return c.maxLines
}
