package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ReloadFunc receives a reloaded config together with what changed relative
// to the previously applied one. It is never called with an empty diff.
type ReloadFunc func(next *Config, d ConfigDiff)

// Watcher polls a config file and hands effective changes to a [ReloadFunc].
//
// A changed file is applied once its content has stayed the same for the
// settle period, so an editor saving in several writes produces one reload.
// Edits that parse to an identical config (comments, key order) update the
// watcher's state without calling back.
type Watcher struct {
	path     string
	interval time.Duration
	settle   time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	current *Config

	done     chan struct{}
	stopOnce sync.Once

	// Owned by the poll goroutine.
	lastMtime   time.Time
	appliedHash [sha256.Size]byte
	pending     *candidate
}

// candidate is a parsed file version waiting out the settle period.
type candidate struct {
	cfg   *Config
	hash  [sha256.Size]byte
	since time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithSettle sets how long new content must stay unchanged before it is
// applied. Zero applies on the first poll that sees it.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.settle = d
		}
	}
}

// NewWatcher loads path and starts polling it in the background. The initial
// load must succeed.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.appliedHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently applied config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.check(now)
		}
	}
}

// check picks up a modified file as a candidate and applies the candidate
// once it has settled.
func (w *Watcher) check(now time.Time) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	if !info.ModTime().Equal(w.lastMtime) {
		cfg, hash, mtime, err := w.load()
		if err != nil {
			// Possibly a half-written save; retried on the next poll.
			slog.Warn("config: watcher: failed to load config", "path", w.path, "err", err)
			w.pending = nil
			return
		}
		w.lastMtime = mtime
		switch {
		case hash == w.appliedHash:
			w.pending = nil
		case w.pending == nil || w.pending.hash != hash:
			w.pending = &candidate{cfg: cfg, hash: hash, since: now}
		}
	}

	if w.pending == nil || now.Sub(w.pending.since) < w.settle {
		return
	}
	next := w.pending
	w.pending = nil
	w.apply(next)
}

func (w *Watcher) apply(c *candidate) {
	w.mu.Lock()
	prev := w.current
	w.current = c.cfg
	w.mu.Unlock()
	w.appliedHash = c.hash

	d := Diff(prev, c.cfg)
	if d.Empty() {
		slog.Debug("config: watcher: file changed without effect", "path", w.path)
		return
	}
	slog.Info("config: watcher: configuration reloaded", "path", w.path, "changed", d.Sections())

	if w.onReload != nil {
		w.onReload(c.cfg, d)
	}
}

// load reads, hashes and validates the file in one pass.
func (w *Watcher) load() (*Config, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
