package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships flushed batches, e.g. to a Kafka logs topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval, default 30s
	CountThreshold int           // distinct entries that force a flush, default 100
	Topic          string
	Publisher      Publisher // nil keeps flushed entries local only
	KeepRecent     int       // flushed entries retained for Recent, default 200
}

// AggregatedLogEntry counts identical log lines between flushes.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates error lines and flushes them periodically or when
// too many distinct lines pile up.
type LogCollector struct {
	config  *CollectionConfig
	pending map[uint64]*AggregatedLogEntry
	recent  []AggregatedLogEntry
	mu      sync.RWMutex
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.KeepRecent <= 0 {
		config.KeepRecent = 200
	}

	c := &LogCollector{
		config:  config,
		pending: make(map[uint64]*AggregatedLogEntry),
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.pending[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.pending[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	if len(c.pending) >= c.config.CountThreshold {
		c.flushLocked()
	}
}

// entryKey hashes level, caller, message and the fields in key order.
func entryKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s", level, caller, message)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%v", k, fields[k])
	}
	return h.Sum64()
}

func (c *LogCollector) loop() {
	defer c.wg.Done()
	t := time.NewTicker(c.config.TimeInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *LogCollector) flushLocked() {
	if len(c.pending) == 0 {
		return
	}
	batch := make([]AggregatedLogEntry, 0, len(c.pending))
	for _, e := range c.pending {
		batch = append(batch, *e)
	}
	c.pending = make(map[uint64]*AggregatedLogEntry)

	c.recent = append(c.recent, batch...)
	if over := len(c.recent) - c.config.KeepRecent; over > 0 {
		c.recent = append([]AggregatedLogEntry(nil), c.recent[over:]...)
	}

	if c.config.Publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// the logger itself cannot report this without recursing
		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch), err)
		}
	}()
}

// Recent returns up to limit aggregated entries, pending and flushed, most
// recently seen first.
func (c *LogCollector) Recent(limit int) []AggregatedLogEntry {
	c.mu.RLock()
	out := make([]AggregatedLogEntry, 0, len(c.recent)+len(c.pending))
	out = append(out, c.recent...)
	for _, e := range c.pending {
		out = append(out, *e)
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Close stops the flush loop after a final flush. Safe to call twice.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
