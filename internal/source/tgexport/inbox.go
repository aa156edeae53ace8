package tgexport

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"chatdigest/internal/storage"
)

const debounceDelay = 500 * time.Millisecond

// Inbox imports every *.json export written into a directory.
type Inbox struct {
	watcher  *fsnotify.Watcher
	db       *storage.DB
	dir      string
	log      zerolog.Logger
	onImport func(*Export)
	stopCh   chan struct{}
	debounce map[string]*time.Timer
	mu       sync.Mutex
	stopOnce sync.Once
}

// NewInbox watches dir. onImport, if set, is called after each successful import.
func NewInbox(db *storage.DB, dir string, log zerolog.Logger, onImport func(*Export)) (*Inbox, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Inbox{
		watcher:  w,
		db:       db,
		dir:      dir,
		log:      log,
		onImport: onImport,
		stopCh:   make(chan struct{}),
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching.
func (in *Inbox) Start() error {
	if err := in.watcher.Add(in.dir); err != nil {
		return err
	}
	go in.run()
	in.log.Info().Str("dir", in.dir).Msg("watching export inbox")
	return nil
}

func (in *Inbox) run() {
	for {
		select {
		case <-in.stopCh:
			return

		case event, ok := <-in.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && strings.EqualFold(filepath.Ext(event.Name), ".json") {
				in.handleEvent(event.Name)
			}

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return
			}
			in.log.Error().Err(err).Msg("inbox watcher error")
		}
	}
}

// handleEvent coalesces the burst of writes a large export produces.
func (in *Inbox) handleEvent(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if timer, ok := in.debounce[path]; ok {
		timer.Stop()
	}
	in.debounce[path] = time.AfterFunc(debounceDelay, func() {
		in.mu.Lock()
		delete(in.debounce, path)
		in.mu.Unlock()

		in.importFile(path)
	})
}

func (in *Inbox) importFile(path string) {
	exp, err := ImportFile(in.db, path)
	if err != nil {
		in.log.Error().Err(err).Str("path", path).Msg("import export")
		return
	}
	in.log.Info().
		Str("path", path).
		Str("chat_id", exp.ChatID).
		Int("messages", len(exp.Messages)).
		Msg("imported export")
	if in.onImport != nil {
		in.onImport(exp)
	}
}

// Stop stops watching and cancels pending imports.
func (in *Inbox) Stop() {
	in.stopOnce.Do(func() {
		close(in.stopCh)

		in.mu.Lock()
		for _, timer := range in.debounce {
			timer.Stop()
		}
		in.mu.Unlock()

		in.watcher.Close()
	})
}
