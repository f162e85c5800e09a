/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package auth

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"postgres-schema-mcp/internal/logging"
)

// debounceDuration collapses bursts of events from a single save
const debounceDuration = 100 * time.Millisecond

// FileWatcher watches a file for changes and triggers a reload callback
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	filePath string
	reloadFn func() error
	done     chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(filePath string, reloadFn func() error) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:  watcher,
		filePath: filepath.Clean(filePath),
		reloadFn: reloadFn,
		done:     make(chan struct{}),
	}

	// Watch the directory: editors often replace the file on save, which
	// would silently drop a watch on the file itself
	dir := filepath.Dir(fw.filePath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	return fw, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start() {
	go fw.watch()
}

// Stop stops watching for file changes. It is safe to call more than once.
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		close(fw.done)
		fw.watcher.Close()
	})
}

// watch monitors file events and triggers reloads
func (fw *FileWatcher) watch() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != fw.filePath {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, fw.reload)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("file_watcher_error", "path", fw.filePath, "error", err)

		case <-fw.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

func (fw *FileWatcher) reload() {
	select {
	case <-fw.done:
		return
	default:
	}
	if err := fw.reloadFn(); err != nil {
		logging.Warn("file_reload_failed", "path", fw.filePath, "error", err)
	}
}
