package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voicerelay/pkg/audio"
	audiomock "github.com/MrWong99/voicerelay/pkg/audio/mock"
)

// frames returns a closed channel holding n silent frames.
func frames(n int) <-chan audio.AudioFrame {
	ch := make(chan audio.AudioFrame, n)
	for i := range n {
		ch <- audio.AudioFrame{Data: make([]byte, 8), SampleRate: 48000, Channels: 2, Timestamp: time.Duration(i) * 20 * time.Millisecond}
	}
	close(ch)
	return ch
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", m.State(), want)
}

// expectReleasedOnce waits for conn to be disconnected and checks it happened
// exactly once, whichever of Play and the drop watcher got there first.
func expectReleasedOnce(t *testing.T, conn *audiomock.Connection) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for conn.DisconnectCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := conn.DisconnectCount(); got != 1 {
		t.Errorf("disconnects on dropped connection = %d, want 1", got)
	}
}

type transitions struct {
	mu  sync.Mutex
	got []string
}

func (tr *transitions) record(from, to State, reason string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.got = append(tr.got, fmt.Sprintf("%s->%s(%s)", from, to, reason))
}

func (tr *transitions) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.got...)
}

func TestNewManager_Defaults(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{Platform: &audiomock.Platform{}, ChannelID: "vc"})
	if m.idleTimeout != DefaultIdleTimeout {
		t.Errorf("idleTimeout = %v, want %v", m.idleTimeout, DefaultIdleTimeout)
	}
	if m.State() != StateDisconnected {
		t.Errorf("initial state = %v", m.State())
	}
}

func TestManager_EnsureConnected(t *testing.T) {
	t.Parallel()

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		platform := &audiomock.Platform{}
		m := NewManager(ManagerConfig{Platform: platform, ChannelID: "vc-1"})
		defer m.Close()

		for range 3 {
			if err := m.EnsureConnected(context.Background()); err != nil {
				t.Fatalf("EnsureConnected: %v", err)
			}
		}
		if platform.ConnectCount() != 1 {
			t.Errorf("connect calls = %d, want 1", platform.ConnectCount())
		}
		if platform.ConnectCalls[0].ChannelID != "vc-1" {
			t.Errorf("channel = %q", platform.ConnectCalls[0].ChannelID)
		}
		if m.State() != StateConnected {
			t.Errorf("state = %v, want connected", m.State())
		}
	})

	t.Run("join failure", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("missing access")
		m := NewManager(ManagerConfig{Platform: &audiomock.Platform{ConnectError: cause}, ChannelID: "vc"})

		err := m.EnsureConnected(context.Background())
		if !errors.Is(err, ErrConnection) || !errors.Is(err, cause) {
			t.Fatalf("err = %v, want ErrConnection wrapping cause", err)
		}
		if m.State() != StateDisconnected {
			t.Errorf("state = %v, want disconnected", m.State())
		}
	})

	t.Run("no channel", func(t *testing.T) {
		t.Parallel()
		platform := &audiomock.Platform{}
		m := NewManager(ManagerConfig{Platform: platform})
		if err := m.EnsureConnected(context.Background()); !errors.Is(err, ErrConnection) {
			t.Fatalf("err = %v, want ErrConnection", err)
		}
		if platform.ConnectCount() != 0 {
			t.Errorf("connect calls = %d, want 0", platform.ConnectCount())
		}
	})

	t.Run("after close", func(t *testing.T) {
		t.Parallel()
		m := NewManager(ManagerConfig{Platform: &audiomock.Platform{}, ChannelID: "vc"})
		_ = m.Close()
		if err := m.EnsureConnected(context.Background()); !errors.Is(err, ErrConnection) {
			t.Fatalf("err = %v, want ErrConnection", err)
		}
	})
}

func TestManager_PlayFinished(t *testing.T) {
	t.Parallel()

	tr := &transitions{}
	platform := &audiomock.Platform{}
	m := NewManager(ManagerConfig{Platform: platform, ChannelID: "vc", OnTransition: tr.record})
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	res := m.Play(context.Background(), frames(3))
	if !res.OK() {
		t.Fatalf("result = %+v, want finished", res)
	}
	if m.State() != StateConnected {
		t.Errorf("state = %v, want connected", m.State())
	}
	conn := platform.Last()
	if conn.PlayCount() != 1 || len(conn.Played[0]) != 3 {
		t.Errorf("played = %d clips", conn.PlayCount())
	}

	want := []string{
		"disconnected->connected(connect)",
		"connected->playing(play)",
		"playing->connected(finished)",
	}
	if got := tr.list(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestManager_PlayWithoutConnection(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{Platform: &audiomock.Platform{}, ChannelID: "vc"})
	res := m.Play(context.Background(), frames(1))
	if res.Event != audio.PlaybackFailed || !errors.Is(res.Err, ErrConnection) {
		t.Fatalf("result = %+v, want failed with ErrConnection", res)
	}
}

func TestManager_IdleDisconnect(t *testing.T) {
	t.Parallel()

	platform := &audiomock.Platform{}
	m := NewManager(ManagerConfig{Platform: platform, ChannelID: "vc", IdleTimeout: 30 * time.Millisecond})

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	if res := m.Play(context.Background(), frames(1)); !res.OK() {
		t.Fatalf("play: %+v", res)
	}
	waitForState(t, m, StateDisconnected)

	if got := platform.Last().DisconnectCount(); got != 1 {
		t.Errorf("disconnects = %d, want 1", got)
	}

	// The next utterance reconnects.
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	if platform.ConnectCount() != 2 {
		t.Errorf("connect calls = %d, want 2", platform.ConnectCount())
	}
	_ = m.Close()
}

func TestManager_IdleWithoutPlay(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{Platform: &audiomock.Platform{}, ChannelID: "vc", IdleTimeout: 20 * time.Millisecond})
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForState(t, m, StateDisconnected)
}

func TestManager_PlayReschedulesIdleTimer(t *testing.T) {
	t.Parallel()

	const idle = 200 * time.Millisecond
	m := NewManager(ManagerConfig{Platform: &audiomock.Platform{}, ChannelID: "vc", IdleTimeout: idle})
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	for range 4 {
		if res := m.Play(context.Background(), frames(1)); !res.OK() {
			t.Fatalf("play: %+v", res)
		}
		time.Sleep(idle / 2)
	}
	if m.State() != StateConnected {
		t.Fatalf("state = %v after repeated plays, want connected", m.State())
	}

	m.mu.Lock()
	pending := m.idle != nil
	m.mu.Unlock()
	if !pending {
		t.Error("expected exactly one pending idle timer")
	}
}

func TestManager_TimerCancelledWhilePlaying(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{Platform: &audiomock.Platform{}, ChannelID: "vc", IdleTimeout: 50 * time.Millisecond})
	defer m.Close()
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}

	ch := make(chan audio.AudioFrame)
	done := make(chan audio.PlaybackResult, 1)
	go func() { done <- m.Play(context.Background(), ch) }()
	waitForState(t, m, StatePlaying)

	// Longer than the idle timeout; a stale timer must not tear down a
	// connection that is playing.
	time.Sleep(150 * time.Millisecond)
	if m.State() != StatePlaying {
		t.Fatalf("state = %v while playing", m.State())
	}
	close(ch)
	if res := <-done; !res.OK() {
		t.Fatalf("play: %+v", res)
	}
}

func TestManager_ForcedDisconnectResolvesPlay(t *testing.T) {
	t.Parallel()

	conn := audiomock.NewConnection()
	platform := &audiomock.Platform{Connections: []*audiomock.Connection{conn}}
	m := NewManager(ManagerConfig{Platform: platform, ChannelID: "vc"})
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}

	never := make(chan audio.AudioFrame)
	done := make(chan audio.PlaybackResult, 1)
	go func() { done <- m.Play(context.Background(), never) }()
	waitForState(t, m, StatePlaying)

	conn.Drop()

	select {
	case res := <-done:
		if res.Event != audio.PlaybackDisconnected {
			t.Errorf("event = %v, want disconnected", res.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after forced disconnect")
	}
	waitForState(t, m, StateDisconnected)

	m.mu.Lock()
	pending := m.idle != nil
	m.mu.Unlock()
	if pending {
		t.Error("idle timer still pending after forced disconnect")
	}
	expectReleasedOnce(t, conn)
}

func TestManager_ForcedDisconnectWhileIdle(t *testing.T) {
	t.Parallel()

	conn := audiomock.NewConnection()
	platform := &audiomock.Platform{Connections: []*audiomock.Connection{conn}}
	m := NewManager(ManagerConfig{Platform: platform, ChannelID: "vc"})
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn.Drop()
	waitForState(t, m, StateDisconnected)

	m.mu.Lock()
	pending := m.idle != nil
	m.mu.Unlock()
	if pending {
		t.Error("idle timer still pending after drop")
	}

	expectReleasedOnce(t, conn)

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	if platform.ConnectCount() != 2 {
		t.Errorf("connect calls = %d, want 2", platform.ConnectCount())
	}
}

func TestManager_PlaybackFailureTearsDown(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("%w: opus encode", audio.ErrPlayback)
	conn := audiomock.NewConnection()
	conn.PlayResult = audio.PlaybackResult{Event: audio.PlaybackFailed, Err: cause}
	platform := &audiomock.Platform{Connections: []*audiomock.Connection{conn}}
	m := NewManager(ManagerConfig{Platform: platform, ChannelID: "vc"})
	defer m.Close()

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	res := m.Play(context.Background(), frames(2))
	if res.Event != audio.PlaybackFailed || !errors.Is(res.Err, audio.ErrPlayback) {
		t.Fatalf("result = %+v", res)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}
	if conn.DisconnectCount() != 1 {
		t.Errorf("disconnects = %d, want 1", conn.DisconnectCount())
	}
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	platform := &audiomock.Platform{}
	m := NewManager(ManagerConfig{Platform: platform, ChannelID: "vc"})
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %v", m.State())
	}
	if got := platform.Last().DisconnectCount(); got != 1 {
		t.Errorf("disconnects = %d, want 1", got)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s    State
		want string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnected, "connected"},
		{StatePlaying, "playing"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d) = %q, want %q", tt.s, got, tt.want)
		}
	}
}
