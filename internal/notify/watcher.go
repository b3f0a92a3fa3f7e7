package notify

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// EventWatcher consumes .event files from a directory and dispatches them to
// a callback. Files are removed as they are read, so exactly one consumer
// sees each event even when several processes watch the same directory.
type EventWatcher struct {
	dir     string
	handler func(eventType, stagingID string)
	fsw     *fsnotify.Watcher
	stopped chan struct{}
}

// NewEventWatcher prepares a watcher over dir. Nothing happens until Start.
func NewEventWatcher(dir string, handler func(eventType, stagingID string)) *EventWatcher {
	return &EventWatcher{dir: dir, handler: handler, stopped: make(chan struct{})}
}

// Start consumes any events already on disk, then watches for new ones. The
// directory is created if missing.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	// Events written while no watcher was running are still owed a nudge.
	if backlog, err := filepath.Glob(filepath.Join(ew.dir, "*.event")); err == nil {
		for _, path := range backlog {
			ew.consume(path)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(ew.dir); err != nil {
		_ = fsw.Close()
		return err
	}
	ew.fsw = fsw

	go ew.watch()
	log.Printf("notify: watching %s for ingest events", ew.dir)
	return nil
}

// Stop closes the watcher and waits for the dispatch goroutine to exit.
// Safe to call when Start never ran.
func (ew *EventWatcher) Stop() {
	if ew.fsw == nil {
		return
	}
	_ = ew.fsw.Close()
	<-ew.stopped
}

func (ew *EventWatcher) watch() {
	defer close(ew.stopped)
	for {
		select {
		case evt, ok := <-ew.fsw.Events:
			if !ok {
				return
			}
			if evt.Has(fsnotify.Create) && filepath.Ext(evt.Name) == ".event" {
				ew.consume(evt.Name)
			}
		case err, ok := <-ew.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("notify: fsnotify error: %v", err)
		}
	}
}

// consume reads, deletes, and dispatches one event file. A read failure
// means another consumer got there first; that is not an error.
func (ew *EventWatcher) consume(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = os.Remove(path)

	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		log.Printf("notify: bad event file %s: %v", filepath.Base(path), err)
		return
	}
	if evt.Type == "" || ew.handler == nil {
		return
	}
	ew.handler(evt.Type, evt.StagingID)
}
