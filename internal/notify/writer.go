// Package notify provides cross-process ingest notification between capture
// agents and the scribe server through filesystem events. An agent drops a
// small .event file after writing staging rows; the server consumes it and
// kicks the routing engine instead of waiting out the polling interval.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Event is the payload carried by an event file.
type Event struct {
	Type      string `json:"type"`
	StagingID string `json:"staging_id,omitempty"`
	Time      int64  `json:"time"`
}

// EventWriter drops event files into a shared directory. Writes go through a
// temp file and a rename so a watcher never reads a half-written event.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events into dir.
func NewEventWriter(dir string) *EventWriter {
	return &EventWriter{dir: dir}
}

// Notify writes one event file. The staging id may be empty for batch nudges
// that do not reference a single row. Safe to call concurrently.
func (w *EventWriter) Notify(eventType, stagingID string) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}

	evt := Event{Type: eventType, StagingID: stagingID, Time: time.Now().UnixNano()}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}

	label := stagingID
	if label == "" {
		label = eventType
	}
	final := filepath.Join(w.dir, fmt.Sprintf("%d-%s.event", evt.Time, safeName(label)))

	tmp, err := os.CreateTemp(w.dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("notify: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: write event: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: close event: %w", err)
	}
	return os.Rename(tmp.Name(), final)
}

// safeName replaces filename-hostile characters in an event label.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', ':', '\\':
			return '_'
		}
		return r
	}, s)
}
