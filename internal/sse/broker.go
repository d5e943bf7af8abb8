// Package sse streams job progress, note changes, and session events to the
// browser over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeJobState       = "job.state"
	TypeNotesChanged   = "notes.changed"
	TypeSessionExpired = "session.expired"
	TypeNavigate       = "navigate"
)

// Event is one message to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// command is anything the loop can be asked to do. Each one runs with
// exclusive access to the hub.
type command func(h *hub)

// hub is the state owned by the event loop.
type hub struct {
	clients     map[chan []byte]struct{}
	jobs        map[string][]byte
	seq         uint64
	lastRefresh time.Time
	refreshMin  time.Duration
}

func (h *hub) frame(e Event) []byte {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil
	}
	h.seq++
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, e.Type, payload))
}

func (h *hub) send(raw []byte) {
	if raw == nil {
		return
	}
	for ch := range h.clients {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than block the loop.
		}
	}
}

// Broker fans events out to connected clients.
//
// A single event loop owns the client set, the latest job frame per target,
// and the list-refresh throttle. Public methods hand it commands over one
// channel. New clients are sent the latest frame of every job so a page
// opened mid-job starts from the current state.
type Broker struct {
	cmds    chan command
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one notes.changed per
// refreshThrottle.
func NewBroker(refreshThrottle time.Duration) *Broker {
	if refreshThrottle <= 0 {
		refreshThrottle = time.Second
	}

	b := &Broker{
		cmds:    make(chan command, 256),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	h := &hub{
		clients:    make(map[chan []byte]struct{}),
		jobs:       make(map[string][]byte),
		refreshMin: refreshThrottle,
	}
	go b.run(h)
	return b
}

func (b *Broker) run(h *hub) {
	defer close(b.stopped)
	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			return
		case cmd := <-b.cmds:
			cmd(h)
		}
	}
}

// do queues cmd and reports whether the loop accepted it.
func (b *Broker) do(cmd command) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.cmds <- cmd:
		return true
	case <-b.stopped:
		return false
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and primes it with the current job states.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	done := make(chan struct{})
	ok := b.do(func(h *hub) {
		h.clients[ch] = struct{}{}
		for _, raw := range h.jobs {
			select {
			case ch <- raw:
			default:
			}
		}
		close(done)
	})
	if !ok {
		close(ch)
		return ch
	}
	select {
	case <-done:
	case <-b.stopped:
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.do(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.do(func(h *hub) { resp <- len(h.clients) }) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts event.
func (b *Broker) Publish(event Event) {
	b.do(func(h *hub) { h.send(h.frame(event)) })
}

// PublishJob broadcasts a processing state change for target and keeps it as
// that target's latest state.
func (b *Broker) PublishJob(target string, state any) {
	b.do(func(h *hub) {
		raw := h.frame(Event{Type: TypeJobState, Data: state})
		if raw == nil {
			return
		}
		h.jobs[target] = raw
		h.send(raw)
	})
}

// PublishSessionExpired tells pages the credential is gone.
func (b *Broker) PublishSessionExpired(reason string) {
	b.Publish(Event{Type: TypeSessionExpired, Data: map[string]string{"reason": reason, "location": "/login"}})
}

// PublishNavigate asks pages to move to location.
func (b *Broker) PublishNavigate(location string) {
	b.Publish(Event{Type: TypeNavigate, Data: map[string]string{"location": location}})
}

// PublishNoteEvent broadcasts note.<kind> and a throttled notes.changed.
func (b *Broker) PublishNoteEvent(kind, id string) {
	b.do(func(h *hub) {
		h.send(h.frame(Event{Type: "note." + kind, Data: map[string]string{"id": id}}))
		if now := time.Now(); now.Sub(h.lastRefresh) >= h.refreshMin {
			h.lastRefresh = now
			h.send(h.frame(Event{Type: TypeNotesChanged, Data: map[string]string{}}))
		}
	})
}

// ServeHTTP streams events to one client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: 3000\n\n"))
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
