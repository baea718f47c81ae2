// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"context"
	"sync"
)

// Stream is the output channel of a provider. It can be written from callbacks that outlive the
// goroutine owning the stream, like the report filters of a gpsd session.
type Stream struct {
	mu     sync.RWMutex
	ch     chan Update
	closed bool
}

// NewStream returns an open Stream.
func NewStream() *Stream {
	return &Stream{ch: make(chan Update)}
}

// C returns the receiving end of the stream.
func (s *Stream) C() <-chan Update {
	return s.ch
}

// Send delivers the update. It reports false if the stream is closed or ctx ended before the update
// was received.
func (s *Stream) Send(ctx context.Context, update Update) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close closes the stream. Pending senders must be able to give up, so Close is called either after
// the watch context ended or when no other goroutine sends anymore.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
