package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher(NewLoader(), DefaultConfig())
	assert.Error(t, err)
	_, err = NewWatcher(nil, DefaultConfig())
	assert.Error(t, err)
}

func TestWatcher_ReloadAppliesValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streambridge.yaml")
	writeConfig(t, path, "log:\n  level: info\n")

	loader := NewLoader().WithConfigPath(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, cfg)
	require.NoError(t, err)

	var gotOld, gotNew *Config
	w.OnReload(func(o, n *Config) { gotOld, gotNew = o, n })

	writeConfig(t, path, "log:\n  level: debug\n")
	require.NoError(t, w.Reload())

	require.NotNil(t, gotNew)
	assert.Equal(t, "info", gotOld.Log.Level)
	assert.Equal(t, "debug", gotNew.Log.Level)
	assert.Same(t, gotNew, w.Config())
}

func TestWatcher_ReloadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streambridge.yaml")
	writeConfig(t, path, "bridge:\n  high_water_mark: 8\n  low_water_mark: 2\n")

	loader := NewLoader().WithConfigPath(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	w, err := NewWatcher(loader, cfg)
	require.NoError(t, err)

	var calls atomic.Int32
	w.OnReload(func(o, n *Config) { calls.Add(1) })

	writeConfig(t, path, "bridge:\n  high_water_mark: 2\n  low_water_mark: 8\n")
	assert.Error(t, w.Reload())
	assert.Zero(t, calls.Load())
	assert.Same(t, cfg, w.Config())

	writeConfig(t, path, "bridge: [not a map\n")
	assert.Error(t, w.Reload())
	assert.Same(t, cfg, w.Config())
}

func TestWatcher_PollsFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streambridge.yaml")
	writeConfig(t, path, "log:\n  level: info\n")

	loader := NewLoader().WithConfigPath(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, cfg,
		WithPolling(),
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	levels := make(chan string, 4)
	w.OnReload(func(o, n *Config) { levels <- n.Log.Level })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.Error(t, w.Start(ctx), "second start must fail")

	writeConfig(t, path, "log:\n  level: warn\n")
	// 部分文件系统的 mtime 精度较粗，显式推进
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case lvl := <-levels:
		assert.Equal(t, "warn", lvl)
	case <-time.After(2 * time.Second):
		t.Fatal("reload not observed")
	}
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streambridge.yaml")
	writeConfig(t, path, "log:\n  level: info\n")

	loader := NewLoader().WithConfigPath(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	w, err := NewWatcher(loader, cfg,
		WithDebounceDelay(50*time.Millisecond),
		WithWatcherLogger(zap.New(core)),
	)
	require.NoError(t, err)

	levels := make(chan string, 4)
	w.OnReload(func(o, n *Config) { levels <- n.Log.Level })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	require.Equal(t, 1, logs.FilterField(zap.String("mode", "fsnotify")).Len())

	// 同目录的其他文件不触发重新加载
	writeConfig(t, filepath.Join(filepath.Dir(path), "other.yaml"), "log:\n  level: error\n")
	writeConfig(t, path, "log:\n  level: debug\n")

	select {
	case lvl := <-levels:
		assert.Equal(t, "debug", lvl)
	case <-time.After(2 * time.Second):
		t.Fatal("reload not observed")
	}
	select {
	case lvl := <-levels:
		t.Fatalf("unexpected extra reload to %q", lvl)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streambridge.yaml")
	writeConfig(t, path, "")

	w, err := NewWatcher(NewLoader().WithConfigPath(path), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
