package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// next reads one frame or fails after a second.
func next(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return ""
}

// drain returns every frame already queued on ch.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestClientCountTracksSubscriptions(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	a, c := b.Subscribe(), b.Subscribe()
	if n := b.ClientCount(); n != 2 {
		t.Fatalf("clients = %d, want 2", n)
	}
	b.Unsubscribe(a)
	b.Unsubscribe(a)
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d after unsubscribe, want 1", n)
	}
	b.Unsubscribe(c)
}

func TestJobStateIsBroadcast(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishJob("pdf", map[string]string{"job_id": "j1", "state": "waiting"})

	msg := next(t, ch)
	if !strings.Contains(msg, "event: job.state") || !strings.Contains(msg, `"state":"waiting"`) {
		t.Errorf("frame = %q", msg)
	}
	if !strings.HasPrefix(msg, "id: ") {
		t.Errorf("frame has no id: %q", msg)
	}
}

func TestLateSubscriberGetsLatestJobState(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	b.PublishJob("pdf", map[string]string{"state": "submitting"})
	b.PublishJob("pdf", map[string]string{"state": "waiting"})
	b.PublishJob("audio", map[string]string{"state": "failure"})
	b.PublishNavigate("/notes")

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	got := strings.Join(drain(ch), "")
	if strings.Contains(got, "submitting") {
		t.Error("stale pdf state replayed")
	}
	if !strings.Contains(got, `"state":"waiting"`) || !strings.Contains(got, `"state":"failure"`) {
		t.Errorf("replay = %q", got)
	}
	if strings.Contains(got, "navigate") {
		t.Error("navigate is not replayed")
	}
}

func TestSessionAndNavigateEvents(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSessionExpired("rejected")
	b.PublishNavigate("/notes")

	first, second := next(t, ch), next(t, ch)
	if !strings.Contains(first, "event: session.expired") || !strings.Contains(first, `"location":"/login"`) {
		t.Errorf("first = %q", first)
	}
	if !strings.Contains(second, "event: navigate") || !strings.Contains(second, `"location":"/notes"`) {
		t.Errorf("second = %q", second)
	}
}

func TestNotesChangedIsThrottled(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "n1")
	b.PublishNoteEvent("deleted", "n2")
	// ClientCount round-trips through the loop, so both events are handled.
	b.ClientCount()

	var notes, refresh int
	for _, msg := range drain(ch) {
		switch {
		case strings.Contains(msg, "event: notes.changed"):
			refresh++
		case strings.Contains(msg, "event: note."):
			notes++
		}
	}
	if notes != 2 || refresh != 1 {
		t.Errorf("note events = %d, refresh events = %d; want 2 and 1", notes, refresh)
	}
}

type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func TestServeHTTPStreamsUntilDisconnect(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.PublishNoteEvent("updated", "n1")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.body()
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.HasPrefix(body, "retry: 3000") {
		t.Errorf("missing retry preamble: %q", body)
	}
	if !strings.Contains(body, "event: note.updated") || !strings.Contains(body, `"id":"n1"`) {
		t.Errorf("body = %q", body)
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after disconnect", n)
	}
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 200; i++ {
		b.Publish(Event{Type: "tick", Data: i})
	}
	if n := b.ClientCount(); n != 1 {
		t.Errorf("clients = %d", n)
	}
	if got := len(drain(ch)); got != cap(ch) {
		t.Errorf("queued = %d, want %d", got, cap(ch))
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel still open")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close returned an open channel")
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after close", n)
	}
	b.PublishNavigate("/notes")
	b.PublishJob("pdf", nil)
	b.Close()
}
