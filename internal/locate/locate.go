// Package locate tracks the user's position on a mounted map.
//
// A view starts at a fixed default coordinate. Each locate request is a
// single-shot asynchronous fix: it either moves the position and recenters
// the map, or raises one alert with the failure reason. Starting a new
// request cancels the one still pending.
package locate

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// DefaultZoom is used on mount and after every successful fix.
const DefaultZoom = 17

// DefaultPosition is the coordinate a view is centered on at mount.
var DefaultPosition = model.Coordinate{Lat: 35.30881988721451, Lng: -80.73359802880277}

// ErrCanceled is the result of a request that was superseded or cancelled
// before it resolved.
var ErrCanceled = errors.New("locate request canceled")

// MapSurface is the map widget the tracker recenters. SetView is called with
// the tracker locked, so it must not call back into the Tracker.
type MapSurface interface {
	SetView(center model.Coordinate, zoom int)
}

// Notifier shows a blocking message to the user.
type Notifier interface {
	Alert(msg string)
}

// Locator obtains a one-shot position fix from the host environment.
// It must return when ctx is done.
type Locator interface {
	Locate(ctx context.Context) (model.Coordinate, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (model.Coordinate, error)

func (f LocatorFunc) Locate(ctx context.Context) (model.Coordinate, error) {
	return f(ctx)
}

// Result is the outcome of one request: exactly one of Position or Err is set.
type Result struct {
	Position *model.Coordinate
	Err      error
}

// Request is a single pending or finished locate request.
type Request struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Done is closed once the request has a result.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Cancel abandons the request. It resolves with ErrCanceled unless it
// already finished.
func (r *Request) Cancel() {
	r.cancel()
}

// Wait blocks until the request resolves or ctx is done.
func (r *Request) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithDefault overrides the mount coordinate.
func WithDefault(c model.Coordinate) Option {
	return func(t *Tracker) { t.defaultPos = c }
}

// WithZoom overrides the zoom used on mount and after a fix.
func WithZoom(zoom int) Option {
	return func(t *Tracker) {
		if zoom > 0 {
			t.zoom = zoom
		}
	}
}

// Tracker owns the position state of one view.
type Tracker struct {
	surface  MapSurface
	notifier Notifier

	defaultPos model.Coordinate
	zoom       int

	mu      sync.Mutex
	current *model.Coordinate
	pending *Request
}

// NewTracker returns an unmounted tracker; call Mount before use.
func NewTracker(surface MapSurface, notifier Notifier, opts ...Option) *Tracker {
	t := &Tracker{
		surface:    surface,
		notifier:   notifier,
		defaultPos: DefaultPosition,
		zoom:       DefaultZoom,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mount sets the position to the default and centers the map on it.
func (t *Tracker) Mount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := t.defaultPos
	t.current = &pos
	t.surface.SetView(pos, t.zoom)
}

// Position returns the current position, if any.
func (t *Tracker) Position() (model.Coordinate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return model.Coordinate{}, false
	}
	return *t.current, true
}

// Pending returns the unresolved request, or nil.
func (t *Tracker) Pending() *Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Locate starts a request against locator, cancelling any pending one.
// The request lives until it resolves, is superseded, or ctx is done.
func (t *Tracker) Locate(ctx context.Context, locator Locator) *Request {
	reqCtx, cancel := context.WithCancel(ctx)
	req := &Request{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	prev := t.pending
	t.pending = req
	t.mu.Unlock()

	if prev != nil {
		appLog.Debug("locate request superseded", "request", prev.ID, "by", req.ID)
		prev.Cancel()
	}

	go func() {
		pos, err := locator.Locate(reqCtx)
		t.finish(reqCtx, req, pos, err)
	}()

	return req
}

// Cancel abandons the pending request, if any.
func (t *Tracker) Cancel() {
	if req := t.Pending(); req != nil {
		req.Cancel()
	}
}

func (t *Tracker) finish(ctx context.Context, req *Request, pos model.Coordinate, err error) {
	defer req.cancel()
	defer close(req.done)

	t.mu.Lock()
	current := t.pending == req
	if current {
		t.pending = nil
	}
	if !current || ctx.Err() != nil {
		t.mu.Unlock()
		req.result = Result{Err: ErrCanceled}
		return
	}
	if err != nil {
		t.mu.Unlock()
		req.result = Result{Err: err}
		appLog.Info("locate request failed", "request", req.ID, "reason", err.Error())
		t.notifier.Alert("Location access denied: " + err.Error())
		return
	}
	// Position and map view change together so a later fix always wins both.
	fix := pos
	t.current = &fix
	t.surface.SetView(fix, t.zoom)
	t.mu.Unlock()

	res := fix
	req.result = Result{Position: &res}
	appLog.Debug("locate request resolved", "request", req.ID, "lat", fix.Lat, "lng", fix.Lng)
}
