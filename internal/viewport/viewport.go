// Package viewport describes what a scrolling list view currently shows.
package viewport

// LayoutItem is one item laid out on screen. Offset is the item's top
// relative to the viewport top; negative when scrolled partly above it.
type LayoutItem struct {
	Index  int
	Offset int
	Size   int
}

// Sample is a per-frame projection of the live list.
type Sample struct {
	FirstVisibleIndex int
	// FirstVisibleOffset is how far the first visible item is scrolled
	// past the viewport top, in the same units as LayoutItem.Size.
	FirstVisibleOffset int
	Items              []LayoutItem
	// ItemCount is the list length the view laid out against. Zero when
	// the view does not report it.
	ItemCount int
}

// EffectiveIndex is the first item considered genuinely at the top: the
// first visible item, or the one after it when more than half of it is
// scrolled above the viewport.
func (s Sample) EffectiveIndex() int {
	for _, it := range s.Items {
		if it.Index != s.FirstVisibleIndex {
			continue
		}
		if -it.Offset*2 > it.Size {
			return it.Index + 1
		}
		return it.Index
	}
	return s.FirstVisibleIndex
}

// AtTop reports whether the list is scrolled all the way up.
func (s Sample) AtTop() bool {
	return s.FirstVisibleIndex == 0 && s.FirstVisibleOffset == 0
}

// Contains reports whether index is laid out in this sample.
func (s Sample) Contains(index int) bool {
	for _, it := range s.Items {
		if it.Index == index {
			return true
		}
	}
	return false
}

// LastVisibleIndex is the highest laid out index, or FirstVisibleIndex
// when nothing is laid out.
func (s Sample) LastVisibleIndex() int {
	last := s.FirstVisibleIndex
	for _, it := range s.Items {
		if it.Index > last {
			last = it.Index
		}
	}
	return last
}

// Window builds a sample for a list of equally sized rows, as a simple
// view would report it: first is the top row index, scrolled is how many
// units of it are above the viewport, height is the viewport height.
func Window(first, scrolled, rowSize, height, count int) Sample {
	s := Sample{FirstVisibleIndex: first, FirstVisibleOffset: scrolled, ItemCount: count}
	if rowSize <= 0 {
		return s
	}
	for i, top := first, -scrolled; i < count && top < height; i, top = i+1, top+rowSize {
		s.Items = append(s.Items, LayoutItem{Index: i, Offset: top, Size: rowSize})
	}
	return s
}
