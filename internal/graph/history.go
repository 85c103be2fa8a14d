package graph

import (
	"github.com/spaghettifunk/vixen/internal/lifetime"
)

// History wraps a resource slot so that a value written at frame F becomes
// readable as a distinct slot at frame F+1, without a cyclic edge in the
// graph (spec.md section 9: "temporal feedback... is expressed not by
// cycles but by frame-history resources"). A TAA-style node writes its
// output into Publish at frame F; any consumer reading Previous() at frame
// F+1 observes exactly what was published at F.
type History struct {
	current  *lifetime.Shared
	previous *lifetime.Shared
}

// NewHistory constructs an empty history slot.
func NewHistory() *History { return &History{} }

// Publish records shared as this frame's value. The caller retains its own
// reference; History takes an additional one via Clone so the value
// survives into the next frame even if the producing node drops its own
// reference at frame end.
func (h *History) Publish(shared *lifetime.Shared) {
	h.current = shared.Clone()
}

// Advance rotates the history by one frame: the value published during the
// frame just ended becomes Previous()'s value, and the slot for the new
// frame is cleared until the next Publish. frameIndex is the frame that
// just ended, used to tag the dropped reference for deferred destruction.
func (h *History) Advance(frameIndex uint64) {
	if h.previous != nil {
		h.previous.Drop(frameIndex)
	}
	h.previous = h.current
	h.current = nil
}

// Previous returns the value published one frame ago, or nil on the first
// frame before any Publish has happened.
func (h *History) Previous() *lifetime.Shared { return h.previous }
