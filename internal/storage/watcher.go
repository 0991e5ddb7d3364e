// internal/storage/watcher.go
package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/Corphon/LectureCompanion/internal/utils"
)

// CacheWatcher invalidates FileStorage cache entries when files under a
// directory change on disk outside the process, for example when a lesson
// file is edited by hand. fsnotify is not recursive, so subdirectories are
// added as they appear.
type CacheWatcher struct {
	storage *FileStorage
	watcher *fsnotify.Watcher
	root    string
	onEvent func(path string) // test hook
}

// NewCacheWatcher watches dirPath (relative to the storage root) and every
// directory below it.
func NewCacheWatcher(storage *FileStorage, dirPath string) (*CacheWatcher, error) {
	root, err := storage.resolve(dirPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	cw := &CacheWatcher{storage: storage, watcher: w, root: root}
	if err := cw.addTree(root); err != nil {
		w.Close()
		return nil, err
	}
	return cw, nil
}

func (cw *CacheWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return cw.watcher.Add(path)
		}
		return nil
	})
}

// Run processes events until ctx is done.
func (cw *CacheWatcher) Run(ctx context.Context) {
	logger := utils.GetLogger()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handle(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("storage watcher error", map[string]interface{}{"error": err.Error(), "root": cw.root})
		}
	}
}

func (cw *CacheWatcher) handle(event fsnotify.Event) {
	if filepath.Ext(event.Name) == ".tmp" {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := cw.addTree(event.Name); err != nil {
				utils.GetLogger().Warn("failed to watch directory", map[string]interface{}{"path": event.Name, "error": err.Error()})
			}
			return
		}
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		cw.storage.Invalidate(event.Name)
		cw.storage.removeCacheEntriesWithPrefix(event.Name + string(filepath.Separator))
		if cw.onEvent != nil {
			cw.onEvent(event.Name)
		}
	}
}

// Close stops the underlying watcher.
func (cw *CacheWatcher) Close() error {
	return cw.watcher.Close()
}
