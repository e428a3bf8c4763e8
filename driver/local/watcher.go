package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/gobeaver/filewarden"
)

// Watch implements filewarden.CanWatch using fsnotify. The returned
// token signals once on the first matching change; callers re-arm via
// filewarden.OnChange.
func (a *Adapter) Watch(ctx context.Context, filter string) (filewarden.ChangeToken, error) {
	token := filewarden.NewCallbackChangeToken()

	watchPath := a.root
	// Watch the deepest literal directory of the filter, not the whole
	// root, so unrelated trees do not wake the event loop.
	if !strings.HasPrefix(filter, "*") {
		idx := strings.IndexAny(filter, "*?[")
		dirPart := filter
		if idx >= 0 {
			dirPart = filter[:idx]
		}
		if lastSlash := strings.LastIndex(dirPart, "/"); lastSlash >= 0 {
			watchPath = filepath.Join(a.root, filepath.FromSlash(dirPart[:lastSlash]))
		} else if idx < 0 {
			watchPath = filepath.Join(a.root, filepath.Dir(filepath.FromSlash(filter)))
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &filewarden.PathError{Op: "watch", Path: filter, Err: err}
	}
	if err := watcher.Add(watchPath); err != nil {
		watcher.Close()
		return nil, &filewarden.PathError{Op: "watch", Path: filter, Err: err}
	}

	// fsnotify watches are not recursive; for ** patterns every existing
	// subdirectory gets its own watch.
	if strings.Contains(filter, "**") {
		_ = filepath.Walk(watchPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				_ = watcher.Add(path)
			}
			return nil
		})
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				relPath, err := filepath.Rel(a.root, event.Name)
				if err != nil {
					continue
				}
				relPath = filepath.ToSlash(relPath)
				if matchesFilter(relPath, filter) {
					token.SignalChange()
					return // token is spent after the first change
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return token, nil
}

// matchesFilter checks if a path matches a glob filter pattern.
func matchesFilter(path, filter string) bool {
	if strings.Contains(filter, "**") {
		parts := strings.SplitN(filter, "**", 2)
		prefix := strings.TrimSuffix(parts[0], "/")
		suffix := strings.TrimPrefix(parts[1], "/")

		if prefix != "" && !strings.HasPrefix(path, prefix) {
			return false
		}
		if suffix != "" {
			matched, _ := filepath.Match(suffix, filepath.Base(path))
			return matched
		}
		return true
	}

	matched, _ := filepath.Match(filter, path)
	return matched
}
