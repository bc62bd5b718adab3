// Package ui is the terminal timeline view.
package ui

import "github.com/abelbrown/lastview/internal/presenter"

// ScrollTo asks the view to put Index at the top, Offset units scrolled
// past it.
type ScrollTo struct {
	Index  int
	Offset int
}

// RestoreFailed is sent when the saved position could not be found.
type RestoreFailed struct {
	presenter.RestoreFailedEvent
}

// FeedSwitched is sent when a feed switch finishes.
type FeedSwitched struct {
	Key  string
	Feed Feed
	Err  error
}

// RefreshTick re-reads the feed window and presenter state.
type RefreshTick struct{}
