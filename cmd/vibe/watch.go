package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// watchBuild runs the build once and again whenever one of the plan files
// is written, until ctx is done.
func watchBuild(ctx context.Context, stdout, stderr io.Writer, files []string, opts buildOptions) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Editors often replace files instead of writing them, so watch the
	// directories and filter by name.
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	rebuild := func() {
		if err := runBuild(stdout, stderr, files, opts); err != nil {
			fmt.Fprintf(stderr, "build failed: %v\n", err)
		}
	}
	rebuild()

	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				last = time.Now()
			}
		case <-ticker.C:
			if !last.IsZero() && time.Since(last) >= watchDebounce {
				last = time.Time{}
				rebuild()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(stderr, "watch: %v\n", err)
		}
	}
}
