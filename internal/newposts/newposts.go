// Package newposts tracks how many unseen items sit above the user.
package newposts

import (
	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/viewport"
)

// State is what the view shows. Count is 0 whenever Show is false.
type State struct {
	Show  bool
	Count int
}

// Controller owns the indicator for one feed view. Not goroutine-safe;
// it lives on the presenter's owner goroutine.
//
// The count is tied to an anchor: the effective index at which it was
// last set. Scrolling up from the anchor consumes it one item at a time,
// scrolling down never grows it, and it never exceeds the number of items
// above the user.
type Controller struct {
	state  State
	anchor int
	base   int

	prepended int // last seen Snapshot.Prepended
	synced    bool
}

func (c *Controller) State() State { return c.state }

// Seed shows count unseen items above anchor. A count of 0 hides.
func (c *Controller) Seed(count, anchor int) {
	c.set(count, anchor)
}

// Add stacks delta more unseen items on the current count and re-anchors
// at the user's current effective index.
func (c *Controller) Add(delta, effective int) {
	if delta <= 0 {
		return
	}
	c.set(c.state.Count+delta, effective)
}

func (c *Controller) set(count, anchor int) {
	if count <= 0 {
		c.hide()
		return
	}
	c.state = State{Show: true, Count: count}
	c.anchor = anchor
	c.base = count
}

// Observe applies a viewport sample: hide at the top, otherwise shrink the
// count as the effective index moves above the anchor.
func (c *Controller) Observe(s viewport.Sample) {
	if !c.state.Show {
		return
	}
	if s.AtTop() {
		c.hide()
		return
	}
	e := s.EffectiveIndex()
	n := min(c.state.Count, c.base-(c.anchor-e), e)
	if n <= 0 {
		c.hide()
		return
	}
	c.state.Count = n
}

// ObservePrepend returns how many items were prepended since the last
// snapshot it saw. The first snapshot after Reset only sets the baseline,
// and a counter that went backwards (a refresh) reports nothing. The
// caller decides whether to Add the result.
func (c *Controller) ObservePrepend(snap feed.Snapshot) int {
	prev, synced := c.prepended, c.synced
	c.prepended, c.synced = snap.Prepended, true
	if !synced || snap.Prepended <= prev {
		return 0
	}
	return snap.Prepended - prev
}

// Dismiss hides the indicator.
func (c *Controller) Dismiss() { c.hide() }

// Reset forgets everything, including the prepend baseline.
func (c *Controller) Reset() {
	*c = Controller{}
}

func (c *Controller) hide() {
	c.state = State{}
	c.anchor = 0
	c.base = 0
}
