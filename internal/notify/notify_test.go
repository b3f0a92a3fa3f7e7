package notify

import (
	"os"
	"strings"
	"testing"
	"time"
)

type captured struct {
	kind      string
	stagingID string
}

// startWatcher runs a watcher over dir and returns the channel its callback
// feeds. The short sleep lets fsnotify register before the caller writes.
func startWatcher(t *testing.T, dir string) chan captured {
	t.Helper()
	events := make(chan captured, 10)
	w := NewEventWatcher(dir, func(kind, stagingID string) {
		events <- captured{kind, stagingID}
	})
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	time.Sleep(50 * time.Millisecond)
	return events
}

func awaitEvent(t *testing.T, events chan captured) captured {
	t.Helper()
	select {
	case evt := <-events:
		return evt
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
		return captured{}
	}
}

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()

	if err := NewEventWriter(dir).Notify("staging_created", "stg-1a2b"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	if name := entries[0].Name(); !strings.HasSuffix(name, ".event") {
		t.Errorf("expected .event suffix, got %s", name)
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, dir)

	if err := NewEventWriter(dir).Notify("staging_created", "stg-route-1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	evt := awaitEvent(t, events)
	if evt.kind != "staging_created" {
		t.Errorf("expected staging_created, got %s", evt.kind)
	}
	if evt.stagingID != "stg-route-1" {
		t.Errorf("expected stg-route-1, got %s", evt.stagingID)
	}
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	// Events written before any watcher exists must still reach the callback.
	writer := NewEventWriter(dir)
	for _, id := range []string{"stg-drain-1", "stg-drain-2"} {
		if err := writer.Notify("staging_created", id); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}

	events := startWatcher(t, dir)
	time.Sleep(100 * time.Millisecond)

	if got := len(events); got != 2 {
		t.Fatalf("expected 2 drained events, got %d", got)
	}
}

func TestEventTypeRoundTrip(t *testing.T) {
	for _, kind := range []string{"staging_created", "staging_batch", "import_complete"} {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			events := startWatcher(t, dir)

			if err := NewEventWriter(dir).Notify(kind, "stg-roundtrip"); err != nil {
				t.Fatalf("Notify: %v", err)
			}

			evt := awaitEvent(t, events)
			if evt.kind != kind {
				t.Errorf("expected %s, got %s", kind, evt.kind)
			}
			if evt.stagingID != "stg-roundtrip" {
				t.Errorf("expected stg-roundtrip, got %s", evt.stagingID)
			}
		})
	}
}

func TestBatchNudgeWithoutStagingID(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, dir)

	if err := NewEventWriter(dir).Notify("staging_batch", ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	evt := awaitEvent(t, events)
	if evt.kind != "staging_batch" {
		t.Errorf("expected staging_batch, got %s", evt.kind)
	}
	if evt.stagingID != "" {
		t.Errorf("expected empty staging id, got %s", evt.stagingID)
	}
}

func TestStopWithoutStart(t *testing.T) {
	w := NewEventWatcher(t.TempDir(), nil)
	w.Stop() // must not block
}

func TestSafeName(t *testing.T) {
	if got := safeName("sess/2024:stg-9"); got != "sess_2024_stg-9" {
		t.Errorf("expected sess_2024_stg-9, got %s", got)
	}
}
