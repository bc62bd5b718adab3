package ui

import (
	"context"
	"errors"
	"testing"
)

func TestScrollerDeliversInOrder(t *testing.T) {
	s := NewScroller()
	ctx := context.Background()
	for _, i := range []int{19, 39, 37} {
		if err := s.ScrollToIndex(ctx, i, 0); err != nil {
			t.Fatalf("ScrollToIndex(%d): %v", i, err)
		}
	}
	for _, want := range []int{19, 39, 37} {
		msg := s.Listen()()
		got, ok := msg.(ScrollTo)
		if !ok || got.Index != want {
			t.Fatalf("Listen = %#v, want index %d", msg, want)
		}
	}
}

func TestScrollerFullQueueHonorsContext(t *testing.T) {
	s := NewScroller()
	for i := range cap(s.ch) {
		if err := s.ScrollToIndex(context.Background(), i, 0); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.ScrollToIndex(ctx, 99, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("ScrollToIndex on full queue = %v, want context.Canceled", err)
	}
}

func TestAppRearmsScrollListener(t *testing.T) {
	s := NewScroller()
	pres := newMockPresenter()
	app := NewApp(AppConfig{Presenter: pres, Feed: &mockFeed{items: posts(0, 49)}, Scroller: s})
	model, _ := app.Update(ScrollTo{Index: 12})
	if model.(App).Top() != 12 {
		t.Errorf("Top = %d", model.(App).Top())
	}
	_, cmd := app.Update(ScrollTo{Index: 3})
	if cmd == nil {
		t.Error("ScrollTo should re-arm the scroll listener")
	}
}
