// Package otel provides structured observability for the timeline.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the debug overlay
// and the /debug/events endpoint.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Restoration events
	KindRestoreStart    EventKind = "lvp.restore_start"
	KindRestoreFound    EventKind = "lvp.restore_found"
	KindRestoreNotFound EventKind = "lvp.restore_not_found"
	KindRestoreDone     EventKind = "lvp.restore_done"
	KindRestoreGaveUp   EventKind = "lvp.restore_gave_up"
	KindConfirmTimeout  EventKind = "lvp.confirm_timeout"

	// Capture events
	KindCapture      EventKind = "lvp.capture"
	KindCaptureSkip  EventKind = "lvp.capture_skip"
	KindCaptureError EventKind = "lvp.capture_error"

	// Feed loading events
	KindFeedLoad  EventKind = "feed.load"
	KindFeedError EventKind = "feed.error"

	// Indicator events
	KindNewPostsShow EventKind = "newposts.show"
	KindNewPostsHide EventKind = "newposts.hide"

	// Store events
	KindStoreError EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"

	// Trace events, only emitted when LASTVIEW_TRACE is set
	KindViewportSample EventKind = "trace.viewport"
	KindSnapshot       EventKind = "trace.snapshot"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "restorer", "capture", "pager", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	FeedKey   string         `json:"feed,omitempty"`
	ItemKey   string         `json:"item,omitempty"`
	Index     *int           `json:"index,omitempty"` // pointer so index 0 still serializes
	Count     int            `json:"count,omitempty"`
	Status    string         `json:"status,omitempty"`
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// At returns a pointer suitable for Event.Index.
func At(i int) *int {
	return &i
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
