// Package link owns the serialized transport session to the inverter.
package link

import (
	"sync"
	"time"
)

// Transport is one way of moving register reads to the device. Implementations
// are not safe for concurrent use; Link provides the locking.
type Transport interface {
	Connect() error
	Disconnect() error
	Connected() bool
	ReadRegister(addr uint16) (uint16, error)
}

// ReadFunc reads a single holding register. It is only valid inside the
// Session callback that supplied it.
type ReadFunc func(addr uint16) (uint16, error)

// Link serializes multi-register read sequences over a Transport. All
// consumers (snapshot poller, battery sampler, capability detector, on-demand
// bot reads) go through Session so reads from different cycles never
// interleave.
type Link struct {
	mu   sync.Mutex
	tr   Transport
	pace time.Duration
}

// New wraps a transport. The pacing delay after each read keeps the request
// rate below what the logger stick tolerates.
func New(tr Transport) *Link {
	return &Link{tr: tr, pace: 50 * time.Millisecond}
}

// Session acquires the transport for one uninterrupted read sequence,
// connecting on demand. If fn returns an error the transport is disconnected
// so the next session starts from a fresh connection.
func (l *Link) Session(fn func(read ReadFunc) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.tr.Connected() {
		if err := l.tr.Connect(); err != nil {
			return err
		}
	}

	if err := fn(l.read); err != nil {
		l.tr.Disconnect()
		return err
	}
	return nil
}

func (l *Link) read(addr uint16) (uint16, error) {
	v, err := l.tr.ReadRegister(addr)
	if err != nil {
		return 0, err
	}
	time.Sleep(l.pace)
	return v, nil
}

// Close tears down the transport. Safe to call when not connected.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tr.Disconnect()
}
