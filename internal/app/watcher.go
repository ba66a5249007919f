package app

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the quiet period before a batch of changes is reported.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to definition files after a quiet period.
// It watches the directories of the given files, so new include files next
// to them are noticed as well.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(paths []string)
	log      *logrus.Entry
	dirs     map[string]bool
}

// NewWatcher watches the directories of files.
func NewWatcher(files []string, debounce time.Duration, onChange func([]string), log *logrus.Entry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{watcher: fw, debounce: debounce, onChange: onChange, log: log, dirs: map[string]bool{}}
	w.Add(files)

	return w, nil
}

// Add watches the directories of files not watched yet. Once Run has
// started it may only be called from onChange.
func (w *Watcher) Add(files []string) {
	for _, f := range files {
		dir := filepath.Dir(f)
		if w.dirs[dir] {
			continue
		}

		w.dirs[dir] = true

		if err := w.watcher.Add(dir); err != nil {
			w.log.WithError(err).WithField("dir", dir).Warn("cannot watch directory")
		}
	}
}

// Run delivers batches of changed paths until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := map[string]bool{}

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}

			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if !isDefinitionFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}

			pending[event.Name] = true

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.log.WithError(err).Warn("file watcher error")
		case <-timerC:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}

			sort.Strings(paths)
			clear(pending)

			timer, timerC = nil, nil

			w.onChange(paths)
		}
	}
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
