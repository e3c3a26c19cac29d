package locate

import (
	"context"
	"errors"
	"sync"

	"eventmap/internal/model"
)

// PendingLocator is a Locator whose fix is supplied later by someone else,
// typically the browser reporting navigator.geolocation results over HTTP.
// It resolves at most once.
type PendingLocator struct {
	once sync.Once
	ch   chan fix
}

type fix struct {
	pos model.Coordinate
	err error
}

// NewPendingLocator returns an unresolved locator.
func NewPendingLocator() *PendingLocator {
	return &PendingLocator{ch: make(chan fix, 1)}
}

// Locate waits for Resolve or Reject, or for ctx to end.
func (p *PendingLocator) Locate(ctx context.Context) (model.Coordinate, error) {
	select {
	case f := <-p.ch:
		return f.pos, f.err
	case <-ctx.Done():
		return model.Coordinate{}, ctx.Err()
	}
}

// Resolve delivers a successful fix. It reports false if the locator was
// already resolved.
func (p *PendingLocator) Resolve(pos model.Coordinate) bool {
	return p.deliver(fix{pos: pos})
}

// Reject delivers a failure with a human-readable message.
func (p *PendingLocator) Reject(msg string) bool {
	if msg == "" {
		msg = "unknown error"
	}
	return p.deliver(fix{err: errors.New(msg)})
}

func (p *PendingLocator) deliver(f fix) bool {
	sent := false
	p.once.Do(func() {
		p.ch <- f
		sent = true
	})
	return sent
}
