package batch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/media"
)

// debounceDelay coalesces the Create+Write event bursts a file copy
// produces before the file is complete enough to transcode.
const debounceDelay = 2 * time.Second

// Watcher monitors a directory tree for new media files and feeds them to
// the orchestrator one at a time. This is the unattended drop-folder mode:
// files appearing under the watched directory are transcribed as they
// arrive until the context is cancelled.
type Watcher struct {
	orc      *Orchestrator
	watchDir string
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	queue   chan string

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	processed atomic.Int64
	failed    atomic.Int64
}

func NewWatcher(orc *Orchestrator, watchDir string, log zerolog.Logger) *Watcher {
	return &Watcher{
		orc:            orc,
		watchDir:       watchDir,
		log:            log.With().Str("component", "watcher").Logger(),
		queue:          make(chan string, 256),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// QueueDepth returns the number of files waiting to be processed.
func (w *Watcher) QueueDepth() int { return len(w.queue) }

// Processed returns the number of files handled since the watcher started.
func (w *Watcher) Processed() int64 { return w.processed.Load() }

// Failed returns the number of files that ended in a failed job.
func (w *Watcher) Failed() int64 { return w.failed.Load() }

// Run watches until ctx is cancelled, processing queued files sequentially.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	w.watcher = fsw

	// Watch the directory tree; fsnotify is not recursive by itself.
	dirCount := 0
	err = filepath.WalkDir(w.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	w.log.Info().Int("directories", dirCount).Str("watch_dir", w.watchDir).Msg("file watcher initialized")

	runID := uuid.NewString()
	if err := w.orc.store.BeginRun(runID); err != nil {
		w.log.Warn().Err(err).Msg("cannot record watch run start")
	}

	go w.eventLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().
				Int64("processed", w.processed.Load()).
				Int64("failed", w.failed.Load()).
				Msg("file watcher stopped")
			if err := w.orc.store.FinishRun(runID, int(w.processed.Load()-w.failed.Load()), int(w.failed.Load()), 0); err != nil {
				w.log.Warn().Err(err).Msg("cannot record watch run finish")
			}
			return nil
		case path := <-w.queue:
			job := w.orc.RunOne(ctx, runID, path)
			w.processed.Add(1)
			if job.Status == StatusFailed {
				w.failed.Add(1)
			}
		}
	}
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}

	// New subdirectories need their own watch.
	if ev.Op.Has(fsnotify.Create) {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			if err := w.watcher.Add(ev.Name); err != nil {
				w.log.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
			}
			return
		}
	}

	if !media.Supported(ev.Name) {
		return
	}
	w.debounce(ev.Name)
}

// debounce schedules path for enqueueing after a quiet period, resetting
// the timer on every new event for the same file.
func (w *Watcher) debounce(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.debounceTimers[path]; ok {
		timer.Reset(debounceDelay)
		return
	}
	w.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		select {
		case w.queue <- path:
			w.log.Debug().Str("path", path).Msg("queued for transcription")
		default:
			w.log.Warn().Str("path", path).Msg("watch queue full, dropping file")
		}
	})
}
