package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "winova/pkg/logx"
)

// reloadDebounce coalesces the burst of events one editor save produces.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config after the file changes, until ctx is done. The
// parent directory is watched so saves that replace the file by rename are
// seen. It returns an error when the watcher breaks; run it under a restart
// policy.
func (m *ConfigManager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()

	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("path", m.path))

	pending := time.NewTimer(reloadDebounce)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("config watch: events closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				pending.Reset(reloadDebounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("config watch: errors closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events may be lost; reload once to catch up
				m.log.Warn("config watch overflow; reloading", logx.String("dir", dir))
				pending.Reset(reloadDebounce)
				continue
			}
			m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(err))

		case <-pending.C:
			published, err := m.reload(ctx)
			switch {
			case err != nil:
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			case !published:
				m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
			}
		}
	}
}
