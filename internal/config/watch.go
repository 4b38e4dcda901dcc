package config

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file on every write and hands valid configs to
// apply. Invalid edits are logged and skipped; the previous config stays in
// effect. Returns a stop func.
func Watch(path string, apply func(Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops a
	// watch held on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Printf("CONFIG: hot reload failed: %v", err)
					continue
				}
				log.Printf("CONFIG: reloaded %s", path)
				apply(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("CONFIG: watcher error: %v", err)
			}
		}
	}()

	stop := func() {
		close(done)
		watcher.Close()
	}
	return stop, nil
}
