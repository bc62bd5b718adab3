// Package lvp captures and restores the last viewed post of a feed.
//
// A Restorer is a state machine fed one input at a time by its owner:
// provider snapshots, viewport samples and confirmation timeouts. It never
// starts goroutines; side effects that outlive a call (indicator seeding,
// the restore-failed notice, the confirmation timer, requesting more pages)
// are returned to the owner as a Transition.
//
// A Capturer writes positions on background goroutines with a context
// detached from the view, so a capture fired during teardown completes.
package lvp

// Status is the restoration phase.
type Status int

const (
	// Ready has not searched yet, or was re-armed by a refresh.
	Ready Status = iota
	// Restoring is searching, or waiting for the view to reflect a scroll.
	Restoring
	// NotFound searched the loaded items and waits for more.
	NotFound
	// Completed is terminal until the next refresh or re-key.
	Completed
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Restoring:
		return "restoring"
	case NotFound:
		return "not_found"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Outcome says why Completed was reached.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// Restored scrolled to the saved item.
	Restored
	// AtTop found the saved item at index 0; nothing to scroll.
	AtTop
	// NoPosition had nothing saved, or the saved row was invalid.
	NoPosition
	// Empty found the feed empty or its refresh failed.
	Empty
	// GaveUp hit the scan ceiling or the end of the feed.
	GaveUp
	// Failed hit a store or scroll error and failed open.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return ""
	case Restored:
		return "restored"
	case AtTop:
		return "at_top"
	case NoPosition:
		return "no_position"
	case Empty:
		return "empty"
	case GaveUp:
		return "gave_up"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition is what one input did, plus the side effects the owner must
// carry out.
type Transition struct {
	Changed bool
	// Seed, when > 0, seeds the new-posts indicator with Seed items above
	// index Seed.
	Seed int
	// Failed asks the owner to emit one restore-failed notice.
	Failed bool
	// Await asks the owner to arm the confirmation timer.
	Await bool
	// LoadMore asks the owner to request the next older page.
	LoadMore bool
}
