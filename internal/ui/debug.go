package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/lastview/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders the debug panel showing restore stats and recent
// events. Returns empty string if ring is nil.
func debugOverlay(ring *otel.RingBuffer, width, height int, now time.Time) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Restore Stats"))
	lines = append(lines, fmt.Sprintf("  Restores:   %d started, %d done, %d gave up",
		stats[otel.KindRestoreStart], stats[otel.KindRestoreDone], stats[otel.KindRestoreGaveUp]))
	lines = append(lines, fmt.Sprintf("  Captures:   %d written, %d skipped, %d errors",
		stats[otel.KindCapture], stats[otel.KindCaptureSkip], stats[otel.KindCaptureError]))
	lines = append(lines, fmt.Sprintf("  Pages:      %d loaded, %d errors",
		stats[otel.KindFeedLoad], stats[otel.KindFeedError]))
	lines = append(lines, fmt.Sprintf("  New posts:  %d shown, %d hidden",
		stats[otel.KindNewPostsShow], stats[otel.KindNewPostsHide]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-22s", formatAge(now.Sub(e.Time)), string(e.Kind))
		if e.FeedKey != "" {
			line += "  " + truncateRunes(e.FeedKey, 12)
		}
		if e.Index != nil {
			line += fmt.Sprintf("  @%d", *e.Index)
		}
		if e.ItemKey != "" {
			line += "  " + truncateRunes(e.ItemKey, 16)
		}
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 30)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		lines = append(lines, line)
	}

	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 76
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("?") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
