package internal

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

// ScanState is the controller's lifecycle state. Finished, Failed and
// Cancelled are passed through on the way back to Idle and kept as the
// last outcome.
type ScanState int

const (
	StateIdle ScanState = iota
	StateScanning
	StateFinished
	StateFailed
	StateCancelled
)

func (s ScanState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

var ErrControllerClosed = errors.New("scan controller closed")

// Controller runs at most one scan at a time. A request that arrives while a
// scan is running cancels it and starts once it has torn down. Every event
// carries the generation of the scan that produced it; consumers drop
// events for which IsCurrent is false.
type Controller struct {
	scanner *Scanner
	log     *log.Logger
	parent  context.Context
	events  chan ScanEvent

	mu      sync.Mutex
	state   ScanState
	outcome ScanState
	gen     uint64
	cancel  context.CancelFunc
	queued  *ScanRequest
	idle    chan struct{}
	closed  bool
}

func NewController(ctx context.Context, scanner *Scanner, logger *log.Logger) *Controller {
	idle := make(chan struct{})
	close(idle)
	return &Controller{
		scanner: scanner,
		log:     orDiscard(logger),
		parent:  ctx,
		events:  make(chan ScanEvent, 64),
		idle:    idle,
	}
}

// Events must be drained for scans to make progress.
func (c *Controller) Events() <-chan ScanEvent {
	return c.events
}

// Request starts a scan or, if one is running, cancels it and queues req as
// its replacement. A later request replaces an earlier queued one. The new
// generation is current as soon as Request returns, so events still coming
// from a superseded scan fail IsCurrent while it tears down.
func (c *Controller) Request(req ScanRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrControllerClosed
	}
	c.gen++
	req.Generation = c.gen
	if c.state == StateScanning {
		c.log.Debug("scan superseded, restarting", "generation", req.Generation)
		c.queued = &req
		c.cancel()
		return nil
	}
	c.idle = make(chan struct{})
	c.start(req)
	return nil
}

// start must be called with mu held.
func (c *Controller) start(req ScanRequest) {
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel
	c.state = StateScanning
	go c.run(ctx, req)
}

func (c *Controller) run(ctx context.Context, req ScanRequest) {
	summary, err := c.scanner.Scan(ctx, req, c.events)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	switch {
	case err != nil:
		c.outcome = StateFailed
		c.log.Error("scan failed", "folder", req.Folder, "err", err)
	case summary.Cancelled:
		c.outcome = StateCancelled
	default:
		c.outcome = StateFinished
	}

	if c.queued != nil && !c.closed {
		next := *c.queued
		c.queued = nil
		c.start(next)
		return
	}
	c.queued = nil
	c.state = StateIdle
	c.cancel = nil
	close(c.idle)
}

// Stop cancels the running scan without a restart.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = nil
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) State() ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Outcome is the terminal state of the most recent scan.
func (c *Controller) Outcome() ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Current returns the generation of the newest scan.
func (c *Controller) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) IsCurrent(ev ScanEvent) bool {
	return ev.Generation == c.Current()
}

// Wait blocks until no scan is running or queued.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops any scan, waits for it and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	go func() {
		for range c.events {
		}
	}()
	_ = c.Wait(context.Background())
	close(c.events)
}
