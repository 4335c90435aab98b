package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 基于 fsnotify 的配置热更新器。
// 配置文件被写入后重新加载，校验通过才回调；冷却时间避免编辑器多次写入触发重复回调。
type Watcher struct {
	Path     string
	Cooldown time.Duration

	mu         sync.Mutex
	lastReload time.Time
}

// Start watches the config file until ctx is done, invoking onUpdate with each
// successfully reloaded config. Invalid intermediate states are skipped.
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 2 * time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.Path); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.allowReload() {
				continue
			}
			if cfg, err := LoadWithEnvOverrides(w.Path); err == nil && onUpdate != nil {
				onUpdate(cfg)
			}
		case _, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			// 监听错误不致命，继续等待下一个事件
		}
	}
}

func (w *Watcher) allowReload() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.lastReload) < w.Cooldown {
		return false
	}
	w.lastReload = time.Now()
	return true
}
