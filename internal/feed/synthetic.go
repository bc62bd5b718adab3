package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var syntheticAuthors = []string{"ada", "brook", "cyd", "dana", "eli", "fern", "gus"}

// SyntheticOptions configures a SyntheticSource.
type SyntheticOptions struct {
	// Initial is the number of posts that exist at Start.
	Initial int
	// Every is how often a new post appears after Start. Zero freezes the feed.
	Every time.Duration
	// Start anchors the timeline. Defaults to Now() at construction.
	Start time.Time
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// Latency is added to every load.
	Latency time.Duration
}

// SyntheticSource is a deterministic generated timeline. Post n has key
// "post-n" and a sort value one minute after post n-1. Newer posts appear
// every Every, so prepend always has something to find eventually.
type SyntheticSource struct {
	opts SyntheticOptions
	base int64 // sort value of post 0, unix ms
}

// NewSyntheticSource creates a source with opts.
func NewSyntheticSource(opts SyntheticOptions) *SyntheticSource {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Start.IsZero() {
		opts.Start = opts.Now()
	}
	return &SyntheticSource{
		opts: opts,
		base: opts.Start.Add(-time.Duration(opts.Initial) * time.Minute).UnixMilli(),
	}
}

// Newest returns the number of the newest post visible now, or -1.
func (s *SyntheticSource) Newest() int {
	n := s.opts.Initial - 1
	if s.opts.Every > 0 {
		if elapsed := s.opts.Now().Sub(s.opts.Start); elapsed > 0 {
			n += int(elapsed / s.opts.Every)
		}
	}
	return n
}

// Key returns the item key of post n.
func Key(n int) string {
	return "post-" + strconv.Itoa(n)
}

func parseKey(key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "post-"))
	if err != nil || !strings.HasPrefix(key, "post-") {
		return 0, fmt.Errorf("bad synthetic key %q", key)
	}
	return n, nil
}

func (s *SyntheticSource) item(n int) Item {
	return Item{
		Key:       Key(n),
		SortValue: s.base + int64(n)*int64(time.Minute/time.Millisecond),
		Kind:      Content,
		Title:     fmt.Sprintf("Post #%d", n),
		Author:    syntheticAuthors[n%len(syntheticAuthors)],
	}
}

// descending returns posts hi..lo inclusive, newest first.
func (s *SyntheticSource) descending(hi, lo int) []Item {
	var out []Item
	for n := hi; n >= lo; n-- {
		out = append(out, s.item(n))
	}
	return out
}

// Load implements PageSource.
func (s *SyntheticSource) Load(ctx context.Context, req Request) (Page, error) {
	if s.opts.Latency > 0 {
		t := time.NewTimer(s.opts.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-t.C:
		}
	}
	if req.Size <= 0 {
		req.Size = DefaultPageSize
	}
	top := s.Newest()

	switch req.Direction {
	case DirRefresh:
		if top < 0 {
			return Page{}, nil
		}
		return s.olderFrom(top, req.Size, Key(top)), nil

	case DirAppend:
		n, err := parseKey(req.Key)
		if err != nil {
			return Page{}, err
		}
		if n <= 0 {
			return Page{}, nil
		}
		return s.olderFrom(n-1, req.Size, ""), nil

	case DirPrepend:
		n, err := parseKey(req.Key)
		if err != nil {
			return Page{}, err
		}
		if n >= top {
			return Page{PrevKey: req.Key}, nil
		}
		hi := min(top, n+req.Size)
		return Page{Items: s.descending(hi, n+1), PrevKey: Key(hi)}, nil
	}
	return Page{}, fmt.Errorf("unknown direction %d", req.Direction)
}

// olderFrom returns up to size posts starting at hi going down.
func (s *SyntheticSource) olderFrom(hi, size int, prevKey string) Page {
	lo := max(0, hi-size+1)
	page := Page{Items: s.descending(hi, lo), PrevKey: prevKey}
	if lo > 0 {
		page.NextKey = Key(lo)
	}
	return page
}
