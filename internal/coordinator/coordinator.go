// Package coordinator polls a data source on an interval and fans the
// result out to the entities that render it.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Coordinator owns one polled data set of type T.
type Coordinator[T any] struct {
	name     string
	interval time.Duration
	fetch    func(context.Context) (T, error)
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.RWMutex
	data       T
	success    bool
	lastErr    error
	lastUpdate time.Time
	listeners  map[int]func()
	nextID     int
}

func New[T any](name string, interval time.Duration, fetch func(context.Context) (T, error), logger *zap.Logger) *Coordinator[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator[T]{
		name:      name,
		interval:  interval,
		fetch:     fetch,
		logger:    logger.Named("coordinator").With(zap.String("name", name)),
		now:       time.Now,
		listeners: make(map[int]func()),
	}
}

// Data returns the last successfully fetched data.
func (c *Coordinator[T]) Data() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// LastUpdateSuccess reports whether the most recent refresh succeeded.
func (c *Coordinator[T]) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.success
}

func (c *Coordinator[T]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Coordinator[T]) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

func (c *Coordinator[T]) Interval() time.Duration { return c.interval }

// AddListener registers fn to run after every refresh and returns a function
// removing it.
func (c *Coordinator[T]) AddListener(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Refresh fetches once. On failure the previous data is kept and
// LastUpdateSuccess turns false. Listeners run in both cases.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	data, err := c.fetch(ctx)

	c.mu.Lock()
	wasSuccess := c.success || c.lastUpdate.IsZero()
	c.lastUpdate = c.now()
	c.lastErr = err
	c.success = err == nil
	if err == nil {
		c.data = data
	}
	listeners := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	result := "success"
	switch {
	case err != nil && wasSuccess:
		result = "error"
		c.logger.Error("error fetching data", zap.Error(err))
	case err != nil:
		result = "error"
		c.logger.Debug("fetch still failing", zap.Error(err))
	case !wasSuccess:
		c.logger.Info("fetching data recovered")
	}
	refreshTotal.WithLabelValues(c.name, result).Inc()
	if err == nil {
		lastSuccess.WithLabelValues(c.name).SetToCurrentTime()
	}

	for _, fn := range listeners {
		fn()
	}
	return err
}

// Run refreshes every interval until ctx is done. It does not refresh
// immediately; callers do the first refresh themselves.
func (c *Coordinator[T]) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}

// Start runs Run in a goroutine.
func (c *Coordinator[T]) Start(ctx context.Context) {
	go c.Run(ctx)
}
