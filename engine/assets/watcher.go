package assets

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/spices/engine/core"
)

var ErrWatcherClosed = errors.New("shader watcher already closed")

/**
 * @brief Watches a shader directory (recursively) and reports every compiled
 * stage that is created or rewritten.
 */
type ShaderWatcher struct {
	dir      string
	onChange func(name, stage string)

	mutex    sync.Mutex
	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

// NewShaderWatcher creates a watcher calling onChange(name, stage) for every
// changed <name>.<stage>.spv file under dir.
func NewShaderWatcher(dir string, onChange func(name, stage string)) (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "shader watcher")
	}
	return &ShaderWatcher{
		dir:      dir,
		onChange: onChange,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}, nil
}

func (w *ShaderWatcher) Start() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.isClosed {
		return ErrWatcherClosed
	}
	if err := w.watchRecursive(w.dir); err != nil {
		return errors.Wrapf(err, "watching %s", w.dir)
	}
	w.wg.Add(1)
	go w.start()
	core.LogInfo("watching shaders in %s", w.dir)
	return nil
}

func (w *ShaderWatcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					w.mutex.Lock()
					if err := w.watchRecursive(e.Name); err != nil {
						core.LogWarn("shader watcher: %s", err)
					}
					w.mutex.Unlock()
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handleFileEvent(e.Name)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-w.done:
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (w *ShaderWatcher) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		return nil
	})
}

func (w *ShaderWatcher) handleFileEvent(path string) {
	name, stage, ok := ParseShaderFileName(path)
	if !ok {
		return
	}
	core.LogDebug("shader changed: %s (%s)", name, stage)
	if w.onChange != nil {
		w.onChange(name, stage)
	}
}

func (w *ShaderWatcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return nil
	}
	w.isClosed = true
	close(w.done)
	w.mutex.Unlock()

	w.wg.Wait()
	return w.fsnotify.Close()
}

// ParseShaderFileName splits ".../<name>.<stage>.spv" into name and stage.
func ParseShaderFileName(path string) (name, stage string, ok bool) {
	base := filepath.Base(path)
	if filepath.Ext(base) != ".spv" {
		return "", "", false
	}
	base = strings.TrimSuffix(base, ".spv")
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return base[:i], base[i+1:], true
}
