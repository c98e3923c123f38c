// Package mock provides in-memory implementations of [audio.Platform] and
// [audio.Connection] for unit tests.
//
// All mocks are safe for concurrent use. They record calls and expose
// exported fields that the test sets to control return values.
//
// Typical usage:
//
//	conn := mock.NewConnection()
//	platform := &mock.Platform{Connections: []*mock.Connection{conn}}
//	got, err := platform.Connect(ctx, "channel-42")
//	conn.Drop() // simulate being kicked
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicerelay/pkg/audio"
)

// Connection is a mock [audio.Connection].
type Connection struct {
	mu sync.Mutex

	// PlayResult is returned by Play after the frame channel is drained.
	// The zero value reports PlaybackFinished.
	PlayResult audio.PlaybackResult

	// PlayFunc, if set, replaces the default Play behaviour.
	PlayFunc func(ctx context.Context, frames <-chan audio.AudioFrame) audio.PlaybackResult

	// DisconnectError is returned by Disconnect.
	DisconnectError error

	// Played holds the frames received by each Play call, in order.
	Played [][]audio.AudioFrame

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	done     chan struct{}
	doneOnce sync.Once
}

// NewConnection returns a live mock connection.
func NewConnection() *Connection {
	return &Connection{done: make(chan struct{})}
}

func (c *Connection) init() {
	c.mu.Lock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	c.mu.Unlock()
}

// Play implements [audio.Connection]. It drains frames, stopping early if
// the connection is dropped or ctx is cancelled.
func (c *Connection) Play(ctx context.Context, frames <-chan audio.AudioFrame) audio.PlaybackResult {
	c.init()
	c.mu.Lock()
	fn := c.PlayFunc
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, frames)
	}

	var got []audio.AudioFrame
	defer func() {
		c.mu.Lock()
		c.Played = append(c.Played, got)
		c.mu.Unlock()
	}()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				c.mu.Lock()
				defer c.mu.Unlock()
				return c.PlayResult
			}
			got = append(got, f)
		case <-c.done:
			return audio.PlaybackResult{Event: audio.PlaybackDisconnected}
		case <-ctx.Done():
			return audio.PlaybackResult{Event: audio.PlaybackFailed, Err: ctx.Err()}
		}
	}
}

// Done implements [audio.Connection].
func (c *Connection) Done() <-chan struct{} {
	c.init()
	return c.done
}

// Disconnect implements [audio.Connection]. It closes Done and returns
// DisconnectError.
func (c *Connection) Disconnect() error {
	c.init()
	c.close()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	return c.DisconnectError
}

// Drop simulates a platform-initiated disconnect. Disconnect is not counted.
func (c *Connection) Drop() {
	c.init()
	c.close()
}

// PlayCount returns how many Play calls have completed.
func (c *Connection) PlayCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Played)
}

// DisconnectCount returns CallCountDisconnect. Thread-safe.
func (c *Connection) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect
}

func (c *Connection) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

var _ audio.Connection = (*Connection)(nil)

// ConnectCall records the arguments of a single Connect invocation.
type ConnectCall struct {
	ChannelID string
}

// Platform is a mock [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// Connections are handed out in order, one per successful Connect.
	// Once exhausted, a fresh [NewConnection] is returned.
	Connections []*Connection

	// ConnectError, if non-nil, is returned by Connect.
	ConnectError error

	// ConnectCalls records every Connect call.
	ConnectCalls []ConnectCall

	handed []*Connection
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(_ context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{ChannelID: channelID})
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	var c *Connection
	if len(p.Connections) > 0 {
		c, p.Connections = p.Connections[0], p.Connections[1:]
	} else {
		c = NewConnection()
	}
	p.handed = append(p.handed, c)
	return c, nil
}

// ConnectCount returns the number of Connect calls. Thread-safe.
func (p *Platform) ConnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// Last returns the most recently returned connection, or nil.
func (p *Platform) Last() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handed) == 0 {
		return nil
	}
	return p.handed[len(p.handed)-1]
}

// SetConnectError changes ConnectError. Thread-safe.
func (p *Platform) SetConnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectError = err
}

var _ audio.Platform = (*Platform)(nil)
