package main

import (
	"strings"
	"testing"
)

const sampleLog = `{"t":"2026-10-18T09:00:00Z","level":"info","kind":"lvp.restore_start","comp":"restorer","feed":"home"}
not json
{"t":"2026-10-18T09:00:01Z","level":"info","kind":"lvp.restore_found","comp":"restorer","feed":"home","item":"post-37","index":37}
{"t":"2026-10-18T09:00:02Z","level":"warn","kind":"lvp.capture_error","comp":"capture","feed":"lists/1","err":"disk full"}

{"t":"2026-10-18T09:00:03Z","level":"info","kind":"feed.load","comp":"pager","feed":"home","count":50,"dur_ms":12.5}
`

func TestReadTailLinesKeepsLastN(t *testing.T) {
	all := func(eventRecord) bool { return true }

	got := readTailLines(strings.NewReader(sampleLog), 2, all)
	if len(got) != 2 {
		t.Fatalf("lines = %d, want 2", len(got))
	}
	if got[0].ev.Kind != "lvp.capture_error" || got[1].ev.Kind != "feed.load" {
		t.Errorf("kinds = %s, %s", got[0].ev.Kind, got[1].ev.Kind)
	}
	if !strings.Contains(string(got[1].raw), `"count":50`) {
		t.Errorf("raw line not kept: %s", got[1].raw)
	}

	if got := readTailLines(strings.NewReader(sampleLog), 0, all); len(got) != 0 {
		t.Errorf("n=0 returned %d lines", len(got))
	}
}

func TestEventFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter eventFilter
		want   []string
	}{
		{"everything", eventFilter{}, []string{"lvp.restore_start", "lvp.restore_found", "lvp.capture_error", "feed.load"}},
		{"kind prefix", eventFilter{kinds: []string{"lvp.restore"}}, []string{"lvp.restore_start", "lvp.restore_found"}},
		{"several kinds", eventFilter{kinds: []string{"feed.", "lvp.capture"}}, []string{"lvp.capture_error", "feed.load"}},
		{"min level", eventFilter{level: "warn"}, []string{"lvp.capture_error"}},
		{"component", eventFilter{comp: "pager"}, []string{"feed.load"}},
		{"feed", eventFilter{feed: "lists/1"}, []string{"lvp.capture_error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readTailLines(strings.NewReader(sampleLog), 10, tt.filter.match)
			if len(got) != len(tt.want) {
				t.Fatalf("matched %d events, want %d", len(got), len(tt.want))
			}
			for i, l := range got {
				if l.ev.Kind != tt.want[i] {
					t.Errorf("event %d = %s, want %s", i, l.ev.Kind, tt.want[i])
				}
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	lines := readTailLines(strings.NewReader(sampleLog), 10, func(eventRecord) bool { return true })

	found := formatEvent(lines[1].ev)
	for _, want := range []string{"INFO", "lvp.restore_found", "feed=home", "@37", "item=post-37"} {
		if !strings.Contains(found, want) {
			t.Errorf("%q missing %q", found, want)
		}
	}

	load := formatEvent(lines[3].ev)
	if !strings.Contains(load, "(12.5ms)") || !strings.Contains(load, "n=50") {
		t.Errorf("load line = %q", load)
	}

	failed := formatEvent(lines[2].ev)
	if !strings.Contains(failed, "err=disk full") {
		t.Errorf("error line = %q", failed)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("home", 10); got != "home" {
		t.Errorf("short = %q", got)
	}
	if got := truncate("a-very-long-feed-key", 10); got != "a-very-..." {
		t.Errorf("long = %q", got)
	}
}
