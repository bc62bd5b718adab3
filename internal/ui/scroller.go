package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Scroller carries restore scrolls from the presenter into the Bubble Tea
// loop, in order. It never calls into the program, so the presenter can
// scroll while the view is busy.
type Scroller struct {
	ch chan ScrollTo
}

// NewScroller creates a Scroller.
func NewScroller() *Scroller {
	return &Scroller{ch: make(chan ScrollTo, 8)}
}

// ScrollToIndex queues a scroll. It blocks only while the queue is full.
func (s *Scroller) ScrollToIndex(ctx context.Context, index, offset int) error {
	select {
	case s.ch <- ScrollTo{Index: index, Offset: offset}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen returns a Cmd that waits for the next scroll. The App re-arms it
// after each ScrollTo.
func (s *Scroller) Listen() tea.Cmd {
	return func() tea.Msg {
		return <-s.ch
	}
}
