package extract

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"graphrag/backend/pkg/logger"
)

// VocabularyWatcher reloads the topic vocabulary when its file
// changes, so topic edits land without a restart. A reload that fails
// to parse keeps the previous vocabulary in place.
type VocabularyWatcher struct {
	path      string
	extractor *Extractor
	watcher   *fsnotify.Watcher
	logger    *zap.Logger
	stopCh    chan struct{}
}

const reloadDebounce = 100 * time.Millisecond

// WatchVocabulary starts watching the vocabulary file and swapping it
// into the extractor on change. Call Stop to shut the watcher down.
func WatchVocabulary(path string, extractor *Extractor) (*VocabularyWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, not just the file: editors replace files
	// on save, which drops a file-level watch.
	dir := filepath.Dir(path)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &VocabularyWatcher{
		path:      path,
		extractor: extractor,
		watcher:   fsWatcher,
		logger:    logger.Get(),
		stopCh:    make(chan struct{}),
	}

	go w.watchLoop()

	w.logger.Info("Vocabulary hot reloading enabled",
		zap.String("path", path))

	return w, nil
}

func (w *VocabularyWatcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Vocabulary watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

func (w *VocabularyWatcher) reload() {
	vocab, err := LoadVocabulary(w.path)
	if err != nil {
		w.logger.Error("Vocabulary reload failed, keeping previous",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}

	w.extractor.SwapVocabulary(vocab)
	w.logger.Info("Vocabulary reloaded",
		zap.String("path", w.path),
		zap.Int("topics", len(vocab.Topics)))
}

// Stop shuts down the watcher
func (w *VocabularyWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}
