package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quorum-project/quorum/pkg/logging"
	"github.com/quorum-project/quorum/pkg/model"
)

// PackageSuffix marks files in a drop directory as update packages.
const PackageSuffix = ".qup"

// WatchResult reports one drop-directory submission to the caller.
type WatchResult struct {
	Path   string
	Result *model.UpdateResult
	Err    error
}

// Watcher submits update packages dropped into a local directory,
// typically a removable-media mount. Files are read only after their
// size stops changing, so a slow copy is not submitted half-written.
type Watcher struct {
	Manager *Manager
	Dir     string
	Actor   string
	// Tick is the settle poll interval; a file is submitted once its
	// size is unchanged across one tick. Zero means 500ms.
	Tick   time.Duration
	Notify func(WatchResult)
}

// Watch runs a Watcher with default settling until ctx is done.
func (m *Manager) Watch(ctx context.Context, dir, actor string, notify func(WatchResult)) error {
	w := &Watcher{Manager: m, Dir: dir, Actor: actor, Notify: notify}
	return w.Run(ctx)
}

// Run watches the drop directory until ctx is done. Packages already
// present at start are submitted too.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create drop watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}

	tick := w.Tick
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	timer := time.NewTicker(tick)
	defer timer.Stop()

	// pending maps package path to the size seen last tick; -1 means
	// not yet measured.
	pending := make(map[string]int64)

	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.Dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), PackageSuffix) {
			pending[filepath.Join(w.Dir, e.Name())] = -1
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, PackageSuffix) {
				continue
			}
			if _, seen := pending[event.Name]; !seen {
				pending[event.Name] = -1
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.ErrorErr("drop directory watcher", err, map[string]any{"dir": w.Dir})

		case <-timer.C:
			for path, lastSize := range pending {
				st, err := os.Stat(path)
				if err != nil {
					delete(pending, path)
					continue
				}
				if !st.Mode().IsRegular() {
					delete(pending, path)
					continue
				}
				if st.Size() != lastSize {
					pending[path] = st.Size()
					continue
				}
				delete(pending, path)
				w.submit(path)
			}
		}
	}
}

// submit reads one settled package file, runs it through the pipeline,
// and marks the file so a restart does not resubmit it.
func (w *Watcher) submit(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.ErrorErr("read dropped package", err, map[string]any{"path": path})
		w.notify(WatchResult{Path: path, Err: err})
		return
	}

	result, err := w.Manager.Submit(data, w.Actor)
	if err != nil {
		logging.ErrorErr("dropped package rejected", err, map[string]any{
			"path": path, "attempt_id": string(result.AttemptID), "class": result.FailureClass,
		})
	} else {
		logging.Info("dropped package committed", map[string]any{
			"path": path, "attempt_id": string(result.AttemptID),
			"package_version": result.PackageVersion,
		})
	}

	marked := path + markSuffix(err)
	if rerr := os.Rename(path, marked); rerr != nil {
		logging.Warn("mark dropped package", map[string]any{"path": path, "error": rerr.Error()})
	}
	w.notify(WatchResult{Path: path, Result: result, Err: err})
}

func (w *Watcher) notify(res WatchResult) {
	if w.Notify != nil {
		w.Notify(res)
	}
}

func markSuffix(err error) string {
	if err != nil {
		return ".rejected"
	}
	return ".applied"
}
