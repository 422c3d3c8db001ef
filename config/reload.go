// 配置文件变更监听器。
//
// 通过 fsnotify 监听配置文件所在目录，不可用时退回修改时间轮询；
// 变更经过防抖后重新加载并校验，只有校验通过的新配置才会交给回调。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadCallback 在新配置生效时调用
type ReloadCallback func(oldConfig, newConfig *Config)

// Watcher watches one configuration file and reloads it on change.
type Watcher struct {
	mu sync.RWMutex

	loader        *Loader
	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration
	forcePoll     bool

	current   *Config
	lastMod   time.Time
	callbacks []ReloadCallback

	running bool
	stop    chan struct{}
	done    chan struct{}

	logger *zap.Logger
}

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPolling 跳过 fsnotify，始终轮询修改时间（网络文件系统等场景）
func WithPolling() WatcherOption {
	return func(w *Watcher) {
		w.forcePoll = true
	}
}

// WithPollInterval sets how often the file is checked in polling mode
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithDebounceDelay sets how long a change must be quiet before reload
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher 创建监听器；current 是已加载的配置，loader 用于重新加载
func NewWatcher(loader *Loader, current *Config, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.configPath == "" {
		return nil, fmt.Errorf("watcher requires a loader with a config path")
	}
	path := filepath.Clean(loader.configPath)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	w := &Watcher{
		loader:        loader,
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		current:       current,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"), zap.String("path", w.path))

	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat path %s: %w", w.path, err)
	}
	return w, nil
}

// OnReload registers a callback for accepted configurations
func (w *Watcher) OnReload(callback ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Config returns the configuration currently in effect
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching. It stops when ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	var notifier *fsnotify.Watcher
	if !w.forcePoll {
		var err error
		if notifier, err = newFileNotifier(w.path); err != nil {
			w.logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
		}
	}

	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	if notifier != nil {
		go w.notifyLoop(ctx, notifier, w.stop, w.done)
		w.logger.Info("config watcher started", zap.String("mode", "fsnotify"))
		return nil
	}
	go w.pollLoop(ctx, w.stop, w.done)
	w.logger.Info("config watcher started",
		zap.String("mode", "poll"),
		zap.Duration("poll_interval", w.pollInterval),
	)
	return nil
}

// newFileNotifier 监听所在目录，文件被 rename 替换后仍能收到事件
func newFileNotifier(path string) (*fsnotify.Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := notifier.Add(filepath.Dir(path)); err != nil {
		_ = notifier.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	return notifier, nil
}

// Stop stops watching and waits for the loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()
	<-done
}

func (w *Watcher) notifyLoop(ctx context.Context, notifier *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)
	defer notifier.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event, ok := <-notifier.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// 重置防抖
			pending = time.After(w.debounceDelay)
		case err, ok := <-notifier.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if w.changed() {
				// 重置防抖
				pending = time.After(w.debounceDelay)
			}
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

// changed 检查修改时间是否前进
func (w *Watcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if info.ModTime().Equal(w.lastMod) {
		return false
	}
	w.lastMod = info.ModTime()
	return true
}

// Reload 立即重新加载；校验失败时保留当前配置并返回错误
func (w *Watcher) Reload() error {
	next, err := w.loader.Load()
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		return err
	}

	w.mu.Lock()
	old := w.current
	w.current = next
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(old, next)
	}
	return nil
}

func (w *Watcher) reload() {
	if err := w.Reload(); err != nil {
		w.logger.Warn("config reload rejected, keeping current config", zap.Error(err))
		return
	}
	w.logger.Info("config reloaded")
}
