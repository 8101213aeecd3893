// Package apptest provides a recording SignalConnection for tests.
package apptest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Relay/internal/core"
)

// Conn records every frame it accepts.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
	closed bool
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Fail makes every following TrySend return err.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Conn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// Envelopes decodes the recorded frames, skipping those without an event name.
func (c *Conn) Envelopes() []core.Envelope {
	var out []core.Envelope
	for _, f := range c.Frames() {
		if env, err := core.DecodeEnvelope(f); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// Events returns the event names received, in order.
func (c *Conn) Events() []string {
	var out []string
	for _, env := range c.Envelopes() {
		out = append(out, env.Event)
	}
	return out
}

// Find returns the data of the first envelope named event.
func (c *Conn) Find(event string) (map[string]any, bool) {
	for _, env := range c.Envelopes() {
		if env.Event != event {
			continue
		}
		var data map[string]any
		if json.Unmarshal(env.Data, &data) != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

// Count returns how many envelopes named event were received.
func (c *Conn) Count(event string) int {
	n := 0
	for _, env := range c.Envelopes() {
		if env.Event == event {
			n++
		}
	}
	return n
}
