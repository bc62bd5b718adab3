package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/lastview/internal/feed"
)

// ageWidth is the width of the right-aligned age column.
const ageWidth = 6

// RenderTimeline renders rows for items, which start at index top.
// Returns exactly height lines so the status bar stays put.
func RenderTimeline(items []feed.Item, top, width, height int, now time.Time) string {
	if height < 1 {
		height = 1
	}
	if len(items) == 0 {
		return padLines(HelpStyle.Render("Nothing here yet. Press 'r' to refresh."), height)
	}

	var b strings.Builder
	for i, it := range items {
		if i >= height {
			break
		}
		b.WriteString(renderItemLine(it, top+i, width, now))
		b.WriteString("\n")
	}
	return padLines(b.String(), height)
}

// padLines pads s with blank lines up to height lines.
func padLines(s string, height int) string {
	s = strings.TrimSuffix(s, "\n")
	n := strings.Count(s, "\n") + 1
	if n < height {
		s += strings.Repeat("\n", height-n)
	}
	return s + "\n"
}

// renderItemLine renders one post row: author badge, title, leader dots,
// then age.
func renderItemLine(it feed.Item, index, width int, now time.Time) string {
	if it.Kind == feed.Placeholder {
		return PlaceholderItem.Render(fmt.Sprintf("%4d  …", index))
	}

	badge := AuthorBadge.Render(it.Author)
	titleWidth := width - lipgloss.Width(badge) - ageWidth - 4
	if titleWidth < 20 {
		titleWidth = 20
	}
	title := truncateRunes(it.Title, titleWidth)

	left := badge + NormalItem.Render(title)
	age := formatAgeShort(now.Sub(time.UnixMilli(it.SortValue)))
	if pad := ageWidth - utf8.RuneCountInString(age); pad > 0 {
		age = strings.Repeat(" ", pad) + age
	}
	dots := width - lipgloss.Width(left) - ageWidth - 1
	return left + MetaItem.Render(fadeDots(dots)) + " " + MetaItem.Render(age)
}

// truncateRunes shortens s to max runes, ending with "..." when cut.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

func formatAgeShort(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "now"
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

func fadeDots(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.Repeat(".", count-1) + " "
}

// RenderIndicator renders the new-posts pill centered in width.
func RenderIndicator(count, width int) string {
	label := fmt.Sprintf("↑ %d new posts", count)
	if count == 1 {
		label = "↑ 1 new post"
	}
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, IndicatorPill.Render(label))
}

// RenderStatusBar renders the bottom status bar: feed, position, busy
// marker and key hints.
func RenderStatusBar(feedKey string, top, total, width int, busy string) string {
	position := fmt.Sprintf(" %s %d/%d ", feedKey, min(top+1, total), total)
	if busy != "" {
		position += busy + " "
	}

	keys := []string{
		StatusBarKey.Render("j/k") + StatusBarText.Render(":scroll"),
		StatusBarKey.Render("n") + StatusBarText.Render(":new"),
		StatusBarKey.Render("r") + StatusBarText.Render(":refresh"),
		StatusBarKey.Render("tab") + StatusBarText.Render(":feed"),
		StatusBarKey.Render("?") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("q") + StatusBarText.Render(":quit"),
	}
	keyHints := strings.Join(keys, " ")

	padding := width - lipgloss.Width(position) - lipgloss.Width(keyHints)
	if padding < 0 {
		padding = 0
	}
	bar := position + strings.Repeat(" ", padding) + keyHints
	return StatusBar.Width(width).Render(bar)
}
