// Package discoverytest provides an in-memory announcement source for
// tests that drive a discovery agent without a multicast socket.
package discoverytest

import (
	"context"
	"testing"
	"time"
)

// Source is a packet source fed by the test
type Source struct {
	datagrams chan []byte
}

// NewSource creates an empty source
func NewSource() *Source {
	return &Source{datagrams: make(chan []byte)}
}

// Receive blocks until the test announces a datagram or ctx is cancelled
func (s *Source) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-s.datagrams:
		return data, nil
	}
}

// Announce hands data to the agent and returns once it has been received
func (s *Source) Announce(t testing.TB, data []byte) {
	t.Helper()
	select {
	case s.datagrams <- data:
	case <-time.After(time.Second):
		t.Fatal("agent is not receiving announcements")
	}
}
