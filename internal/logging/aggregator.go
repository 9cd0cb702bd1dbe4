package logging

import (
	"log/slog"
	"sync"
	"time"
)

type counterKey struct {
	Component string
	Event     string
}

type counter struct {
	Events int64
	Total  int64
	Fields []slog.Attr
}

// Aggregator batches high-frequency events (pty output chunks, stdin
// reads) and emits one summary record per event type per interval.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	counters map[counterKey]*counter

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewAggregator creates an aggregator flushing every intervalSecs seconds.
// With a nil logger, recorded events are dropped.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		counters: make(map[counterKey]*counter),
		done:     make(chan struct{}),
	}
}

// Start begins the periodic flush goroutine.
func (a *Aggregator) Start() {
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	a.wg.Add(1)
	go a.loop()
}

// Stop flushes remaining counters and stops the flush goroutine.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	started := a.started
	a.started = false
	a.mu.Unlock()
	if started {
		close(a.done)
		a.wg.Wait()
	}
	a.flush()
}

// Add increments the event count by one and the running total by n.
// The most recent fields win.
func (a *Aggregator) Add(component, event string, n int64, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := counterKey{Component: component, Event: event}
	c, ok := a.counters[key]
	if !ok {
		c = &counter{}
		a.counters[key] = c
	}
	c.Events++
	c.Total += n
	if len(fields) > 0 {
		c.Fields = fields
	}
}

func (a *Aggregator) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.counters) == 0 {
		a.mu.Unlock()
		return
	}
	counters := a.counters
	a.counters = make(map[counterKey]*counter)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}

	for key, c := range counters {
		attrs := []any{
			slog.String("component", key.Component),
			slog.String("event", key.Event),
			slog.Int64("count", c.Events),
			slog.Int64("total", c.Total),
			slog.Int("window_seconds", int(a.interval.Seconds())),
		}
		for _, f := range c.Fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_summary", attrs...)
	}
}
