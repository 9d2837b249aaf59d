// Package sse streams record and selection lifecycle events to browsers.
//
// The broker tracks the published selection. Every client first receives
// the current selection (if any). Record changes seen by the catalog
// watcher are forwarded as they happen and also accumulated into a
// throttled selection.stale notice listing everything that changed since
// that selection was curated.
package sse

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/starford/attractor-gallery/internal/models"
)

// Event types pushed to clients.
const (
	TypeRecordCreated    = "record.created"
	TypeRecordUpdated    = "record.updated"
	TypeRecordDeleted    = "record.deleted"
	TypeSelectionStale   = "selection.stale"
	TypeSelectionUpdated = "selection.updated"
)

var recordTypes = map[string]string{
	"created": TypeRecordCreated,
	"updated": TypeRecordUpdated,
	"deleted": TypeRecordDeleted,
}

const (
	clientBuffer      = 64
	defaultKeepAlive  = 15 * time.Second
	defaultStaleDelay = 2 * time.Second
)

// SelectionSummary is the payload of selection.updated.
type SelectionSummary struct {
	RunID    string         `json:"run_id,omitempty"`
	Policy   string         `json:"policy"`
	Rendered int            `json:"rendered"`
	Groups   map[string]int `json:"groups"`
}

// RecordChange is one record event.
type RecordChange struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// StaleNotice is the payload of selection.stale. Changed holds the latest
// change per record since SinceRunID was published, ordered by id.
type StaleNotice struct {
	SinceRunID string         `json:"since_run_id,omitempty"`
	Changed    []RecordChange `json:"changed"`
}

// Stats is a point-in-time view of the broker.
type Stats struct {
	Clients int
	// Pending counts records changed since the current selection.
	Pending int
	RunID   string
}

// Broker fans selection and record events out to SSE clients. All state is
// owned by a single loop goroutine; public methods talk to it over channels.
type Broker struct {
	staleMin  time.Duration
	keepAlive time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	selectionCh   chan SelectionSummary
	changeCh      chan RecordChange
	statsCh       chan chan Stats

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. staleThrottle is the minimum gap between two
// selection.stale notices.
func NewBroker(staleThrottle time.Duration) *Broker {
	if staleThrottle <= 0 {
		staleThrottle = defaultStaleDelay
	}
	b := &Broker{
		staleMin:      staleThrottle,
		keepAlive:     defaultKeepAlive,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		selectionCh:   make(chan SelectionSummary, 16),
		changeCh:      make(chan RecordChange, 256),
		statsCh:       make(chan chan Stats),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

// hub is the loop-owned state.
type hub struct {
	clients map[chan []byte]struct{}
	seq     uint64

	selection *SelectionSummary

	// replay is the encoded selection.updated frame sent to new clients.
	replay []byte

	pending   map[string]string
	lastStale time.Time
}

// frame encodes one SSE message with a monotonically increasing id.
func (h *hub) frame(typ string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	h.seq++
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id: %d\nevent: %s\ndata: %s\n\n", h.seq, typ, payload)
	return buf.Bytes()
}

func (h *hub) broadcast(msg []byte) {
	if msg == nil {
		return
	}
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// Slow client; it misses this frame.
		}
	}
}

func (h *hub) staleNotice() StaleNotice {
	n := StaleNotice{Changed: make([]RecordChange, 0, len(h.pending))}
	if h.selection != nil {
		n.SinceRunID = h.selection.RunID
	}
	for id, kind := range h.pending {
		n.Changed = append(n.Changed, RecordChange{ID: id, Kind: kind})
	}
	slices.SortFunc(n.Changed, func(a, b RecordChange) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return n
}

func (b *Broker) run() {
	defer close(b.stopped)

	h := &hub{
		clients: make(map[chan []byte]struct{}),
		pending: make(map[string]string),
	}

	// flush is non-nil while a trailing stale notice is scheduled.
	var (
		timer *time.Timer
		flush <-chan time.Time
	)
	disarm := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, flush = nil, nil
	}
	sendStale := func(now time.Time) {
		h.lastStale = now
		h.broadcast(h.frame(TypeSelectionStale, h.staleNotice()))
	}

	for {
		select {
		case <-b.stopCh:
			disarm()
			for ch := range h.clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			if h.replay != nil {
				ch <- h.replay
			}
			h.clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}

		case s := <-b.selectionCh:
			disarm()
			clear(h.pending)
			h.selection = &s
			h.replay = h.frame(TypeSelectionUpdated, s)
			h.broadcast(h.replay)

		case c := <-b.changeCh:
			h.broadcast(h.frame(recordTypes[c.Kind], RecordChange{ID: c.ID, Kind: c.Kind}))
			h.pending[c.ID] = c.Kind
			if flush != nil {
				continue
			}
			now := time.Now()
			if wait := b.staleMin - now.Sub(h.lastStale); wait > 0 {
				timer = time.NewTimer(wait)
				flush = timer.C
				continue
			}
			sendStale(now)

		case now := <-flush:
			timer, flush = nil, nil
			sendStale(now)

		case resp := <-b.statsCh:
			st := Stats{Clients: len(h.clients), Pending: len(h.pending)}
			if h.selection != nil {
				st.RunID = h.selection.RunID
			}
			resp <- st
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The current selection, if any, is the first
// message on the returned channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// Stats reports client count and pending changes.
func (b *Broker) Stats() Stats {
	if b.closed.Load() {
		return Stats{}
	}
	resp := make(chan Stats, 1)
	select {
	case b.statsCh <- resp:
	case <-b.stopped:
		return Stats{}
	}
	select {
	case st := <-resp:
		return st
	case <-b.stopped:
		return Stats{}
	}
}

// PublishRecordEvent forwards a catalog change. kind is created, updated or
// deleted; anything else is ignored.
func (b *Broker) PublishRecordEvent(kind string, id models.ID) {
	if _, ok := recordTypes[kind]; !ok || b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- RecordChange{ID: id.Hex(), Kind: kind}:
	case <-b.stopped:
	}
}

// PublishSelection installs s as the current selection, clears pending
// changes and notifies every client.
func (b *Broker) PublishSelection(s SelectionSummary) {
	if b.closed.Load() {
		return
	}
	select {
	case b.selectionCh <- s:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
