package gateway

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// watchConfig reloads and validates the config file on every write, purely
// to surface mistakes early; nothing in the running server is reloaded
// automatically, since most of the config is baked into already-started
// channel adapters and the cron scheduler. A full config reload would mean
// rebuilding the gateway, not patching it in place.
func (m *ManagedServer) watchConfig(ctx context.Context) {
	if m.Server.configPath == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.Server.logger.Warn("config watcher init failed", "error", err)
		return
	}
	if err := watcher.Add(m.Server.configPath); err != nil {
		m.Server.logger.Warn("config watcher add failed", "path", m.Server.configPath, "error", err)
		watcher.Close()
		return
	}
	m.configWatcher = watcher

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
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				m.Server.logger.Info("config file changed on disk, restart to apply", "path", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.Server.logger.Warn("config watcher error", "error", err)
			}
		}
	}()
}
