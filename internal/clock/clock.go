// Package clock is the single source of "now" for the exchange core.
//
// It lets the matching engine, event timestamps, and timeouts run under a
// host-driven monotonic clock in LIVE mode, or a controlled virtual clock in
// BACKTEST mode, without subscriber code knowing which mode is active.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects where "now" comes from.
type Mode int32

const (
	// Live reads the host's monotonic wall clock.
	Live Mode = iota
	// Backtest reads a virtual timestamp advanced only by explicit calls.
	Backtest
)

func (m Mode) String() string {
	if m == Backtest {
		return "BACKTEST"
	}
	return "LIVE"
}

// Clock is the process-wide time source. The zero value is not usable; use
// New. A single Clock is normally constructed once by main and shared by
// handle since its semantics are inherently global, but nothing prevents
// constructing scoped instances for tests.
type Clock struct {
	mode int32 // atomic Mode

	mu            sync.RWMutex
	virtualMS     int64     // virtual time, ms since epoch
	anchorReal    time.Time // real time when virtualMS/speed were last set
	speed         float64   // speed factor applied since anchorReal, if interpolating
	interpolating bool      // whether reads should add elapsed-since-anchor*speed
}

// New creates a Clock starting in LIVE mode.
func New() *Clock {
	return &Clock{
		mode: int32(Live),
	}
}

// Mode returns the current mode.
func (c *Clock) Mode() Mode {
	return Mode(atomic.LoadInt32(&c.mode))
}

// SetMode switches between LIVE and BACKTEST. Switching to BACKTEST anchors
// the virtual clock at the current host time unless a virtual time was
// already set. Switching to LIVE simply stops virtual time from being read.
func (c *Clock) SetMode(m Mode) {
	c.mu.Lock()
	if m == Backtest && c.anchorReal.IsZero() {
		c.anchorReal = time.Now()
		c.virtualMS = c.anchorReal.UnixMilli()
	}
	c.mu.Unlock()
	atomic.StoreInt32(&c.mode, int32(m))
}

// NowMS returns the current time in milliseconds since the Unix epoch.
func (c *Clock) NowMS() int64 {
	if c.Mode() == Live {
		return time.Now().UnixMilli()
	}
	return c.virtualNowMS()
}

// NowNS returns the current time in nanoseconds since the Unix epoch.
func (c *Clock) NowNS() int64 {
	if c.Mode() == Live {
		return time.Now().UnixNano()
	}
	return c.virtualNowMS() * int64(time.Millisecond)
}

// Now returns the current time as a time.Time.
func (c *Clock) Now() time.Time {
	if c.Mode() == Live {
		return time.Now()
	}
	return time.UnixMilli(c.virtualNowMS())
}

// virtualNowMS performs a single fenced read of (virtualMS, anchorReal,
// speed) so a concurrent SetVirtualTime/Advance/SetSpeed can never be
// observed half-applied.
func (c *Clock) virtualNowMS() int64 {
	c.mu.RLock()
	base := c.virtualMS
	anchor := c.anchorReal
	speed := c.speed
	interpolating := c.interpolating
	c.mu.RUnlock()

	if !interpolating || anchor.IsZero() {
		return base
	}
	elapsed := time.Since(anchor)
	return base + int64(float64(elapsed.Milliseconds())*speed)
}

// SetVirtualTime sets the virtual clock to t (ms since epoch). Only legal in
// BACKTEST mode; a no-op (logged by the caller, not here) in LIVE mode so
// callers that don't track mode can call it unconditionally.
func (c *Clock) SetVirtualTime(ms int64) bool {
	if c.Mode() != Backtest {
		return false
	}
	c.mu.Lock()
	c.virtualMS = ms
	c.anchorReal = time.Now()
	c.mu.Unlock()
	return true
}

// Advance moves the virtual clock forward by delta. Only legal in BACKTEST
// mode. Returns false (no-op) otherwise. Virtual time never goes backward.
func (c *Clock) Advance(delta time.Duration) bool {
	if c.Mode() != Backtest {
		return false
	}
	if delta < 0 {
		delta = 0
	}
	c.mu.Lock()
	// collapse any pending speed-interpolated drift into virtualMS first
	c.virtualMS = c.collapseLocked()
	c.virtualMS += delta.Milliseconds()
	c.anchorReal = time.Now()
	c.mu.Unlock()
	return true
}

// SetSpeed sets the interpolation speed factor for BACKTEST mode. A factor
// of 1.0 means virtual time tracks real elapsed time 1:1 between explicit
// advances; 0 freezes it. Only legal in BACKTEST mode.
func (c *Clock) SetSpeed(factor float64) bool {
	if c.Mode() != Backtest {
		return false
	}
	c.mu.Lock()
	c.virtualMS = c.collapseLocked()
	c.anchorReal = time.Now()
	c.speed = factor
	c.interpolating = factor != 0
	c.mu.Unlock()
	return true
}

// collapseLocked must be called with mu held; it folds the speed-interpolated
// drift since anchorReal into a flat virtualMS value.
func (c *Clock) collapseLocked() int64 {
	if !c.interpolating || c.anchorReal.IsZero() {
		return c.virtualMS
	}
	elapsed := time.Since(c.anchorReal)
	return c.virtualMS + int64(float64(elapsed.Milliseconds())*c.speed)
}
