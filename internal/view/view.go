// Package view holds the state of one mounted map: its marker layer, sidebar
// controller, location tracker and the map view the UI was told to show.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventmap/internal/locate"
	appLog "eventmap/internal/log"
	"eventmap/internal/marker"
	"eventmap/internal/model"
	"eventmap/internal/selection"
	"eventmap/internal/store"
)

// ErrUnknownRequest is returned when a locate result names no pending request.
var ErrUnknownRequest = errors.New("unknown locate request")

// Options carries the per-view settings taken from config.
type Options struct {
	DefaultCenter model.Coordinate
	Zoom          int
	Icon          marker.Icon
}

type pendingLocate struct {
	locator *locate.PendingLocator
	req     *locate.Request
}

// State is the JSON-friendly view of everything the UI renders.
type State struct {
	ID         string             `json:"id"`
	Selection  selection.Snapshot `json:"selection"`
	Position   *model.Coordinate  `json:"position,omitempty"`
	MapView    model.MapView      `json:"map_view"`
	MapViewSeq int                `json:"map_view_seq"` // bumped by every SetView
	Pending    string             `json:"pending_request,omitempty"`
	Alerts     []string           `json:"alerts,omitempty"`
}

// View is one map mount. It is safe for concurrent use.
type View struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc

	layer      *marker.Layer
	controller *selection.Controller
	tracker    *locate.Tracker

	mu       sync.Mutex
	mapView  model.MapView
	viewSeq  int
	alerts   []string
	pending  map[string]pendingLocate
	lastSeen time.Time
}

// New mounts a view over the events of s: the tracker centers on the
// default coordinate and every event gets a marker wired to the sidebar.
func New(id string, s *store.Store, opts Options) *View {
	if opts.Zoom <= 0 {
		opts.Zoom = locate.DefaultZoom
	}
	if opts.DefaultCenter == (model.Coordinate{}) {
		opts.DefaultCenter = locate.DefaultPosition
	}
	if opts.Icon.URL == "" {
		opts.Icon = marker.DefaultIcon
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		ID:         id,
		ctx:        ctx,
		cancel:     cancel,
		controller: selection.NewController(),
		pending:    make(map[string]pendingLocate),
		lastSeen:   time.Now(),
	}
	v.layer = marker.NewLayer(s.Events(), opts.Icon, v.controller.Select)
	v.tracker = locate.NewTracker(v, v,
		locate.WithDefault(opts.DefaultCenter),
		locate.WithZoom(opts.Zoom),
	)
	v.tracker.Mount()
	return v
}

// SetView records where the map is centered. It makes View a locate.MapSurface.
func (v *View) SetView(center model.Coordinate, zoom int) {
	v.mu.Lock()
	v.mapView = model.MapView{Center: center, Zoom: zoom}
	v.viewSeq++
	v.mu.Unlock()
}

// Alert queues a blocking message for the UI. It makes View a locate.Notifier.
func (v *View) Alert(msg string) {
	v.mu.Lock()
	v.alerts = append(v.alerts, msg)
	v.mu.Unlock()
}

// Markers returns the markers of this view.
func (v *View) Markers() []marker.Marker {
	return v.layer.Markers()
}

// Click selects the event behind a marker.
func (v *View) Click(eventID string) error {
	v.touch()
	_, err := v.layer.Click(eventID)
	return err
}

// CloseSidebar hides the sidebar, keeping the selection.
func (v *View) CloseSidebar() {
	v.touch()
	v.controller.Close()
}

// ReopenSidebar shows the retained selection again.
func (v *View) ReopenSidebar() error {
	v.touch()
	return v.controller.Reopen()
}

// Navigate returns the directions URL for the selected event.
func (v *View) Navigate() (string, error) {
	v.touch()
	return v.controller.Navigate()
}

// StartLocate begins a locate request whose fix will arrive through
// ResolveLocate or RejectLocate. Any pending request is cancelled.
func (v *View) StartLocate() string {
	v.touch()
	locator := locate.NewPendingLocator()
	req := v.tracker.Locate(v.ctx, locator)

	v.mu.Lock()
	v.pending[req.ID] = pendingLocate{locator: locator, req: req}
	v.mu.Unlock()

	go func() {
		<-req.Done()
		v.mu.Lock()
		delete(v.pending, req.ID)
		v.mu.Unlock()
	}()

	return req.ID
}

// ResolveLocate delivers a successful fix for request reqID and waits until
// the tracker has applied it.
func (v *View) ResolveLocate(ctx context.Context, reqID string, pos model.Coordinate) (locate.Result, error) {
	return v.deliver(ctx, reqID, func(p *locate.PendingLocator) bool { return p.Resolve(pos) })
}

// RejectLocate delivers a failure for request reqID and waits until the
// tracker has raised the alert.
func (v *View) RejectLocate(ctx context.Context, reqID, msg string) (locate.Result, error) {
	return v.deliver(ctx, reqID, func(p *locate.PendingLocator) bool { return p.Reject(msg) })
}

func (v *View) deliver(ctx context.Context, reqID string, send func(*locate.PendingLocator) bool) (locate.Result, error) {
	v.touch()
	v.mu.Lock()
	pl, ok := v.pending[reqID]
	v.mu.Unlock()
	if !ok || !send(pl.locator) {
		return locate.Result{}, fmt.Errorf("%w: %s", ErrUnknownRequest, reqID)
	}
	return pl.req.Wait(ctx)
}

// State returns the current state without consuming alerts.
func (v *View) State() State {
	return v.state(false)
}

// DrainAlerts returns the current state and clears the alerts it reports,
// so each alert is shown exactly once.
func (v *View) DrainAlerts() State {
	v.touch()
	return v.state(true)
}

// Unmount cancels outstanding work. The view must not be used afterwards.
func (v *View) Unmount() {
	v.cancel()
	appLog.Debug("view unmounted", "view", v.ID)
}

// IdleSince returns when the view was last used.
func (v *View) IdleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

func (v *View) state(drain bool) State {
	st := State{
		ID:        v.ID,
		Selection: v.controller.Snapshot(),
	}
	if pos, ok := v.tracker.Position(); ok {
		st.Position = &pos
	}
	if req := v.tracker.Pending(); req != nil {
		st.Pending = req.ID
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	st.MapView = v.mapView
	st.MapViewSeq = v.viewSeq
	if len(v.alerts) > 0 {
		st.Alerts = append([]string(nil), v.alerts...)
		if drain {
			v.alerts = nil
		}
	}
	return st
}

func (v *View) touch() {
	v.mu.Lock()
	v.lastSeen = time.Now()
	v.mu.Unlock()
}
