// Package session owns the single voice connection the relay speaks through.
//
// A [Manager] connects lazily on the first utterance, tracks whether audio is
// playing, and tears the connection down after a period of silence or when
// the platform drops it. Only the playback worker drives it, but platform
// callbacks and the idle timer run on their own goroutines, so all state is
// guarded by a mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicerelay/pkg/audio"
)

// DefaultIdleTimeout is how long a connection may stay silent before it is
// released.
const DefaultIdleTimeout = 5 * time.Minute

// ErrConnection is wrapped by every error that prevents the relay from
// reaching the voice channel.
var ErrConnection = errors.New("session: connection failed")

// State is the lifecycle state of the voice connection.
type State int

const (
	// StateDisconnected means no connection is held.
	StateDisconnected State = iota

	// StateConnected means the connection is open and silent.
	StateConnected

	// StatePlaying means a clip is being streamed.
	StatePlaying
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// Platform joins the voice channel.
	Platform audio.Platform

	// ChannelID is the fixed voice channel to speak in.
	ChannelID string

	// IdleTimeout defaults to [DefaultIdleTimeout] if zero.
	IdleTimeout time.Duration

	// OnTransition, if set, is called for every state change with a short
	// reason ("connect", "play", "finished", "idle", "dropped", "failed",
	// "close"). It runs with the manager lock held and must not call back
	// into the Manager.
	OnTransition func(from, to State, reason string)
}

// Manager is the connection lifecycle state machine:
//
//	Disconnected -> Connected -> Playing -> Connected (idle) -> Disconnected
//
// At most one idle timer is pending at any time.
type Manager struct {
	platform     audio.Platform
	channelID    string
	idleTimeout  time.Duration
	onTransition func(from, to State, reason string)

	// connectMu serialises EnsureConnected so the platform join runs
	// without holding mu.
	connectMu sync.Mutex

	mu      sync.Mutex
	state   State
	conn    audio.Connection
	idle    *time.Timer
	idleGen uint64
	closed  bool
}

// NewManager creates a disconnected [Manager].
func NewManager(cfg ManagerConfig) *Manager {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Manager{
		platform:     cfg.Platform,
		channelID:    cfg.ChannelID,
		idleTimeout:  idle,
		onTransition: cfg.OnTransition,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureConnected joins the voice channel if no connection is held. It is a
// no-op while connected. Errors wrap [ErrConnection].
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("%w: manager closed", ErrConnection)
	}
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if m.channelID == "" {
		return fmt.Errorf("%w: no voice channel configured", ErrConnection)
	}
	conn, err := m.platform.Connect(ctx, m.channelID)
	if err != nil {
		return fmt.Errorf("%w: join %s: %w", ErrConnection, m.channelID, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Disconnect()
		return fmt.Errorf("%w: manager closed", ErrConnection)
	}
	m.conn = conn
	m.transitionLocked(StateConnected, "connect")
	// A connection that never plays is still released after the timeout.
	m.scheduleIdleLocked(conn)
	m.mu.Unlock()

	slog.Info("session: joined voice channel", "channel_id", m.channelID)
	go m.watch(conn)
	return nil
}

// Play streams frames over the held connection and blocks until the clip
// finishes, the platform drops the connection, or playback fails. A failed
// or dropped connection is released; the next [Manager.EnsureConnected]
// establishes a fresh one. A finished clip restarts the idle timer.
func (m *Manager) Play(ctx context.Context, frames <-chan audio.AudioFrame) audio.PlaybackResult {
	m.mu.Lock()
	conn := m.conn
	if conn == nil {
		m.mu.Unlock()
		return audio.PlaybackResult{
			Event: audio.PlaybackFailed,
			Err:   fmt.Errorf("%w: not connected", ErrConnection),
		}
	}
	m.stopIdleLocked()
	m.transitionLocked(StatePlaying, "play")
	m.mu.Unlock()

	res := conn.Play(ctx, frames)

	m.mu.Lock()
	if m.conn != conn {
		// Already released by the drop watcher or Close.
		m.mu.Unlock()
		return res
	}
	var release audio.Connection
	switch res.Event {
	case audio.PlaybackFinished:
		m.transitionLocked(StateConnected, "finished")
		m.scheduleIdleLocked(conn)
	case audio.PlaybackDisconnected:
		release = conn
		m.conn = nil
		m.transitionLocked(StateDisconnected, "dropped")
	default:
		release = conn
		m.conn = nil
		m.transitionLocked(StateDisconnected, "failed")
	}
	m.mu.Unlock()

	if release != nil {
		if res.Event == audio.PlaybackFailed {
			slog.Warn("session: playback failed, releasing connection",
				"channel_id", m.channelID, "err", res.Err)
		}
		if err := release.Disconnect(); err != nil {
			slog.Debug("session: disconnect after playback", "err", err)
		}
	}
	return res
}

// Close releases the connection and refuses further connects. Safe to call
// more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.stopIdleLocked()
	conn := m.conn
	m.conn = nil
	m.transitionLocked(StateDisconnected, "close")
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}

// watch observes platform-initiated drops of conn and releases it. Whoever
// clears m.conn first owns the Disconnect call.
func (m *Manager) watch(conn audio.Connection) {
	<-conn.Done()

	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	slog.Warn("session: voice connection dropped by platform", "channel_id", m.channelID)
	m.stopIdleLocked()
	m.conn = nil
	m.transitionLocked(StateDisconnected, "dropped")
	m.mu.Unlock()

	if err := conn.Disconnect(); err != nil {
		slog.Debug("session: disconnect after drop", "err", err)
	}
}

// scheduleIdleLocked replaces any pending idle timer with a fresh one.
func (m *Manager) scheduleIdleLocked(conn audio.Connection) {
	m.stopIdleLocked()
	gen := m.idleGen
	m.idle = time.AfterFunc(m.idleTimeout, func() { m.idleExpired(conn, gen) })
}

// stopIdleLocked cancels the pending idle timer. Bumping the generation
// invalidates a callback that already fired but has not taken the lock.
func (m *Manager) stopIdleLocked() {
	m.idleGen++
	if m.idle != nil {
		m.idle.Stop()
		m.idle = nil
	}
}

func (m *Manager) idleExpired(conn audio.Connection, gen uint64) {
	m.mu.Lock()
	if gen != m.idleGen || m.conn != conn || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.idle = nil
	m.conn = nil
	m.transitionLocked(StateDisconnected, "idle")
	m.mu.Unlock()

	slog.Info("session: idle timeout, leaving voice channel",
		"channel_id", m.channelID, "idle", m.idleTimeout)
	if err := conn.Disconnect(); err != nil {
		slog.Warn("session: idle disconnect", "err", err)
	}
}

func (m *Manager) transitionLocked(to State, reason string) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	if m.onTransition != nil {
		m.onTransition(from, to, reason)
	}
}
