package newposts

import (
	"testing"

	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/viewport"
)

func at(index int) viewport.Sample {
	return viewport.Sample{FirstVisibleIndex: index, FirstVisibleOffset: 1}
}

func TestSeed(t *testing.T) {
	var c Controller
	c.Seed(0, 0)
	if c.State().Show {
		t.Error("seed 0 should stay hidden")
	}
	c.Seed(37, 37)
	if got := c.State(); !got.Show || got.Count != 37 {
		t.Errorf("State = %+v, want show 37", got)
	}
}

func TestScrollUpConsumesCount(t *testing.T) {
	var c Controller
	c.Seed(37, 37)

	for _, tt := range []struct {
		index int
		want  int
	}{
		{37, 37},
		{40, 37}, // scrolling down never grows
		{30, 30},
		{31, 30},
		{10, 10},
		{1, 1},
	} {
		c.Observe(at(tt.index))
		if got := c.State(); !got.Show || got.Count != tt.want {
			t.Errorf("at %d State = %+v, want count %d", tt.index, got, tt.want)
		}
	}

	c.Observe(viewport.Sample{})
	if got := c.State(); got.Show || got.Count != 0 {
		t.Errorf("at top State = %+v, want hidden", got)
	}
}

func TestHalfScrolledItemDoesNotGrowCount(t *testing.T) {
	var c Controller
	c.Seed(37, 37)

	// more than half of item 37 scrolled off: effective index 38
	c.Observe(viewport.Sample{
		FirstVisibleIndex:  37,
		FirstVisibleOffset: 8,
		Items:              []viewport.LayoutItem{{Index: 37, Offset: -8, Size: 10}},
	})
	if got := c.State().Count; got != 37 {
		t.Errorf("count = %d, want 37", got)
	}
}

func TestIndexZeroWithOffsetHides(t *testing.T) {
	var c Controller
	c.Seed(3, 3)
	c.Observe(viewport.Sample{FirstVisibleIndex: 0, FirstVisibleOffset: 2})
	if got := c.State(); got.Show {
		t.Errorf("count reached 0 at index 0, State = %+v", got)
	}
}

func TestHiddenStaysZero(t *testing.T) {
	var c Controller
	c.Seed(5, 5)
	c.Dismiss()
	c.Observe(at(20))
	if got := c.State(); got.Show || got.Count != 0 {
		t.Errorf("dismissed State = %+v", got)
	}
}

func TestPrependScenario(t *testing.T) {
	var c Controller

	if n := c.ObservePrepend(feed.Snapshot{ItemCount: 50}); n != 0 {
		t.Fatalf("baseline snapshot reported %d", n)
	}
	loading := feed.Snapshot{ItemCount: 50, Prepend: feed.LoadState{Status: feed.Loading}}
	if n := c.ObservePrepend(loading); n != 0 {
		t.Fatalf("start of prepend reported %d", n)
	}
	done := feed.Snapshot{ItemCount: 55, Prepended: 5, Prepend: feed.LoadState{Status: feed.NotLoading}}
	delta := c.ObservePrepend(done)
	if delta != 5 {
		t.Fatalf("delta = %d, want 5", delta)
	}
	if n := c.ObservePrepend(done); n != 0 {
		t.Fatalf("repeated snapshot reported %d", n)
	}
	c.Add(delta, at(10).EffectiveIndex())
	if got := c.State(); !got.Show || got.Count != 5 {
		t.Fatalf("State = %+v, want show 5", got)
	}

	for i := 9; i > 5; i-- {
		c.Observe(at(i))
		if !c.State().Show {
			t.Fatalf("hidden too early at %d", i)
		}
	}
	c.Observe(at(5))
	if c.State().Show {
		t.Errorf("indicator should hide at effective index 5, State = %+v", c.State())
	}
}

func TestPrependStacksOnSeed(t *testing.T) {
	var c Controller
	c.Seed(4, 20)
	c.Add(3, 20)
	if got := c.State().Count; got != 7 {
		t.Errorf("count = %d, want 7", got)
	}
	c.Add(0, 20)
	if got := c.State().Count; got != 7 {
		t.Errorf("zero delta changed count to %d", got)
	}
}

func TestPrependCounterResets(t *testing.T) {
	tests := []struct {
		name  string
		seen  []int
		want  int
		reset bool
	}{
		{"growth", []int{0, 3, 7}, 4, false},
		{"refresh rewinds", []int{0, 9, 0}, 0, false},
		{"after rewind", []int{0, 9, 0, 2}, 2, false},
		{"stale snapshot after reset", []int{0, 9}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Controller
			last := len(tt.seen) - 1
			for _, n := range tt.seen[:last] {
				c.ObservePrepend(feed.Snapshot{Prepended: n})
			}
			if tt.reset {
				c.Reset()
			}
			if got := c.ObservePrepend(feed.Snapshot{Prepended: tt.seen[last]}); got != tt.want {
				t.Errorf("delta = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountNeverExceedsItemsAbove(t *testing.T) {
	var c Controller
	c.Seed(10, 10)
	c.Add(20, 10) // 30 claimed, only 10 above
	c.Observe(at(10))
	if got := c.State().Count; got != 10 {
		t.Errorf("count = %d, want clamp to 10", got)
	}
}
