// Package coordinator batches refresh requests and tracks app readiness.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
)

// Options configures the coordinator timers.
type Options struct {
	// FlushDelay is the coalescing window for refresh requests.
	FlushDelay time.Duration
	// ReadyTimeout bounds the wait for the ready signal after a start. Zero disables the timer.
	ReadyTimeout time.Duration
	// ReadyEvent is the signal name used in log messages.
	ReadyEvent string
}

// readiness is the race between the ready signal and the timeout for one start.
type readiness struct {
	generation uint64
	first      bool
	armed      bool
	timer      *time.Timer
}

// Coordinator coalesces refresh requests into a single notification per
// window and decides when a new app instance warrants a page refresh.
type Coordinator struct {
	broadcaster ports.Broadcaster
	logger      ports.Logger
	opts        Options

	mu      sync.Mutex
	pending domain.RefreshFlags
	timer   *time.Timer
	ready   readiness
	starts  uint64
}

// New creates a Coordinator that notifies browsers through broadcaster.
func New(broadcaster ports.Broadcaster, logger ports.Logger, opts Options) *Coordinator {
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = domain.DefaultFlushDelay
	}
	if opts.ReadyEvent == "" {
		opts.ReadyEvent = domain.DefaultReadyEvent
	}
	return &Coordinator{
		broadcaster: broadcaster,
		logger:      logger,
		opts:        opts,
	}
}

// Request adds flags to the pending set and schedules a flush if none is
// scheduled. Later requests join the current window without extending it.
func (c *Coordinator) Request(flags domain.RefreshFlags) {
	if flags == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending |= flags
	if c.timer == nil {
		c.timer = time.AfterFunc(c.opts.FlushDelay, c.fire)
	}
}

// RequestPage schedules a full page reload.
func (c *Coordinator) RequestPage() { c.Request(domain.RefreshPage) }

// RequestStyles schedules a stylesheet reload.
func (c *Coordinator) RequestStyles() { c.Request(domain.RefreshStyles) }

// RequestImages schedules an image reload.
func (c *Coordinator) RequestImages() { c.Request(domain.RefreshImages) }

// Pending returns the flags waiting for the next flush.
func (c *Coordinator) Pending() domain.RefreshFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// fire is called when the coalescing window expires.
func (c *Coordinator) fire() {
	c.mu.Lock()
	flags := c.pending
	c.pending = 0
	c.timer = nil
	c.mu.Unlock()

	c.send(flags)
}

// Flush sends the pending flags immediately and blocks until the broadcast returns.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		if !c.timer.Stop() {
			// Timer already fired, let it complete rather than sending twice.
			c.mu.Unlock()
			return
		}
		c.timer = nil
	}
	flags := c.pending
	c.pending = 0
	c.mu.Unlock()

	c.send(flags)
}

func (c *Coordinator) send(flags domain.RefreshFlags) {
	if flags == 0 {
		return
	}
	if err := c.broadcaster.Broadcast(flags.Notification()); err != nil {
		c.logger.Warn("failed to notify browsers", "error", err)
		return
	}
	c.logger.Debug("refresh sent",
		"page", flags.Has(domain.RefreshPage),
		"styles", flags.Has(domain.RefreshStyles),
		"images", flags.Has(domain.RefreshImages))
}

// OnStart arms the readiness window for a newly forked app. Any window left
// over from a previous instance is cancelled.
func (c *Coordinator) OnStart(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready.timer != nil {
		c.ready.timer.Stop()
	}
	c.starts++
	c.ready = readiness{
		generation: generation,
		first:      c.starts == 1,
		armed:      true,
	}
	if c.opts.ReadyTimeout > 0 {
		c.ready.timer = time.AfterFunc(c.opts.ReadyTimeout, func() {
			c.expire(generation)
		})
	}
}

// Ready resolves the readiness window of generation and reports whether a page
// refresh was requested. The first instance ever started does not refresh.
// Signals for a stale generation or an already resolved window are ignored.
func (c *Coordinator) Ready(generation uint64) bool {
	c.mu.Lock()
	if !c.ready.armed || c.ready.generation != generation {
		c.mu.Unlock()
		return false
	}
	c.ready.armed = false
	if c.ready.timer != nil {
		c.ready.timer.Stop()
		c.ready.timer = nil
	}
	first := c.ready.first
	c.mu.Unlock()

	if first {
		c.logger.Debug("app is ready, first launch needs no refresh")
		return false
	}
	c.logger.Info("App is ready. Page refresh triggered")
	c.RequestPage()
	return true
}

func (c *Coordinator) expire(generation uint64) {
	c.mu.Lock()
	if !c.ready.armed || c.ready.generation != generation {
		c.mu.Unlock()
		return
	}
	c.ready.armed = false
	c.ready.timer = nil
	c.mu.Unlock()

	c.logger.Warn(fmt.Sprintf("Waited %dms without receiving %q from app. Page refresh triggered",
		c.opts.ReadyTimeout.Milliseconds(), c.opts.ReadyEvent))
	c.RequestPage()
}

// Stop cancels every timer and drops pending flags.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.ready.timer != nil {
		c.ready.timer.Stop()
		c.ready.timer = nil
	}
	c.ready.armed = false
	c.pending = 0
}
