package httpapi

import (
	"sync/atomic"
	"time"

	"adoflow/internal/flow"
	"adoflow/internal/workitem"
)

// Content is one immutable generation of served data. A refresh builds a
// complete new Content and swaps the pointer; handlers read whichever
// generation was current when they started and never block on a writer.
type Content struct {
	Report    *flow.Report
	Dashboard *flow.DashboardData
	Items     []workitem.WorkItem
	LoadedAt  time.Time
}

// Snapshot holds the current Content behind an atomic pointer plus the
// single-writer refresh lock.
type Snapshot struct {
	ptr        atomic.Pointer[Content]
	refreshing atomic.Bool
}

// Load returns the current content, or nil before the first successful load.
func (s *Snapshot) Load() *Content { return s.ptr.Load() }

// Swap publishes a new generation.
func (s *Snapshot) Swap(c *Content) { s.ptr.Store(c) }

// BeginRefresh claims the writer slot. It returns false when a refresh is
// already running; the caller must not retry-spin, the running refresh will
// publish its result for everyone.
func (s *Snapshot) BeginRefresh() bool {
	return s.refreshing.CompareAndSwap(false, true)
}

// EndRefresh releases the writer slot.
func (s *Snapshot) EndRefresh() { s.refreshing.Store(false) }

// Refreshing reports whether a refresh currently holds the writer slot.
func (s *Snapshot) Refreshing() bool { return s.refreshing.Load() }
