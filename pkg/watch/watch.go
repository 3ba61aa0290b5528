// Package watch reports PDFs that appear in a directory tree.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

type WatchConfig struct {
	Roots []string
	// InitialScan emits the PDFs already present before watching starts.
	InitialScan bool
	// Debounce coalesces bursts of writes to the same file.
	Debounce time.Duration
	// Ignore skips paths containing any of these substrings, such as the output directory.
	Ignore []string
}

// Start watches the roots recursively. Paths arrive on the first channel once their
// writes have settled; both channels close when ctx is done.
func Start(ctx context.Context, cfg WatchConfig, logger zerolog.Logger) (<-chan string, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	logger = logger.With().Str("component", "watcher").Logger()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	var initial []string
	for _, root := range cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && wanted(path, cfg.Ignore) {
				initial = append(initial, path)
			}
			return nil
		})
		if err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(errCh)
		defer close(evCh)
		defer w.Close()

		for _, p := range initial {
			select {
			case evCh <- p:
			case <-ctx.Done():
				return
			}
		}

		var mu sync.Mutex
		timers := map[string]*time.Timer{}
		settled := make(chan string, 256)
		defer func() {
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case p := <-settled:
				if _, err := os.Stat(p); err != nil {
					continue
				}
				select {
				case evCh <- p:
				case <-ctx.Done():
					return
				}
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
						if err := w.Add(e.Name); err != nil {
							logger.Warn().Err(err).Str("path", e.Name).Msg("failed to watch new directory")
						}
						continue
					}
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 || !wanted(e.Name, cfg.Ignore) {
					continue
				}
				name := e.Name
				mu.Lock()
				if t, ok := timers[name]; ok {
					t.Reset(cfg.Debounce)
				} else {
					timers[name] = time.AfterFunc(cfg.Debounce, func() {
						mu.Lock()
						delete(timers, name)
						mu.Unlock()
						select {
						case settled <- name:
						default:
						}
					})
				}
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("watcher error")
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func wanted(path string, ignore []string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return false
	}
	for _, s := range ignore {
		if s != "" && strings.Contains(path, s) {
			return false
		}
	}
	return true
}
