// Package testutil provides an in-memory notes backend for tests. It speaks the
// same REST surface as the real service and counts every request it sees.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// DefaultUser and DefaultPassword are registered on every new Backend.
const (
	DefaultUser     = "alice@example.com"
	DefaultPassword = "secret"
)

// Upload records what the AI endpoints received.
type Upload struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
	Auth        string
}

type forced struct {
	status int
	body   string
}

// Backend is a fake notes service.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	token    string
	users    map[string]string
	order    []string
	records  map[string]map[string]any
	nextID   int
	uploads  []Upload
	failures map[string]forced
	hits     map[string]int

	requests atomic.Int64

	// CreateAck makes POST /notes answer {note_id, message} instead of the record.
	CreateAck bool
	// ProcessDelay is how long the AI endpoints take to answer.
	ProcessDelay time.Duration
	// Summary is the content returned by the AI endpoints; empty derives one
	// from the file name.
	Summary string
}

// NewBackend starts a Backend and stops it when the test ends.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		token:    "valid-token",
		users:    map[string]string{DefaultUser: DefaultPassword},
		records:  make(map[string]map[string]any),
		failures: make(map[string]forced),
		hits:     make(map[string]int),
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the base URL of the backend.
func (b *Backend) URL() string { return b.Server.URL }

// Token is the credential the backend currently accepts.
func (b *Backend) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// RevokeToken makes the current credential invalid; every protected call
// answers 401 until a new login.
func (b *Backend) RevokeToken() {
	b.mu.Lock()
	b.token = "rotated-" + strconv.Itoa(b.nextID) + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	b.mu.Unlock()
}

// Requests is the total number of requests received.
func (b *Backend) Requests() int { return int(b.requests.Load()) }

// Hits returns how many requests matched "METHOD /route/pattern".
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// Uploads returns every file the AI endpoints received.
func (b *Backend) Uploads() []Upload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Upload(nil), b.uploads...)
}

// Fail forces the next requests to path to answer status with body verbatim.
func (b *Backend) Fail(path string, status int, body string) {
	b.mu.Lock()
	b.failures[path] = forced{status: status, body: body}
	b.mu.Unlock()
}

// Recover removes a failure installed by Fail.
func (b *Backend) Recover(path string) {
	b.mu.Lock()
	delete(b.failures, path)
	b.mu.Unlock()
}

// Seed stores a raw record exactly as given (plus an _id when missing) and
// returns its id. Use it to feed heterogeneous shapes to the client.
func (b *Backend) Seed(rec map[string]any) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var id string
	switch v := rec["_id"].(type) {
	case string:
		id = v
	case map[string]any:
		id, _ = v["$oid"].(string)
	}
	if id == "" {
		id = b.newIDLocked()
		rec["_id"] = id
	}
	b.records[id] = rec
	b.order = append(b.order, id)
	return id
}

// Record returns a copy of the stored record for id.
func (b *Backend) Record(id string) (map[string]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, true
}

func (b *Backend) newIDLocked() string {
	b.nextID++
	return fmt.Sprintf("%024x", b.nextID)
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.count)

	r.Post("/Login", b.login)
	r.Post("/Register", b.register)

	r.Group(func(r chi.Router) {
		r.Use(b.requireToken)
		r.Post("/Logout", b.logout)
		r.Get("/notes", b.listNotes)
		r.Post("/notes", b.createNote)
		r.Get("/notes/{id}", b.getNote)
		r.Put("/notes/{id}", b.updateNote)
		r.Delete("/notes/{id}", b.deleteNote)
		r.Post("/summariser/pdf", b.process("pdf_summary", "source_document"))
		r.Post("/whisper/audio", b.process("voice_transcription", "source_audio"))
	})
	return r
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		b.mu.Lock()
		f, failing := b.failures[r.URL.Path]
		b.mu.Unlock()
		if failing {
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, f.body)
			return
		}
		next.ServeHTTP(w, r)
		if rc := chi.RouteContext(r.Context()); rc != nil {
			b.mu.Lock()
			b.hits[r.Method+" "+rc.RoutePattern()]++
			b.mu.Unlock()
		}
	})
}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != b.Token() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token has expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.mu.Lock()
	pw, ok := b.users[req.Username]
	b.mu.Unlock()
	if !ok || pw != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid username or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": b.Token()})
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"Message": "Username and password are required"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[req.Username]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"Message": "User already exists"})
		return
	}
	b.users[req.Username] = req.Password
	writeJSON(w, http.StatusCreated, map[string]string{"Message": "User created"})
}

func (b *Backend) logout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (b *Backend) listNotes(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := make([]map[string]any, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.records[id])
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createNote(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "No data provided"})
		return
	}
	if s, _ := req["title"].(string); strings.TrimSpace(s) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Title is required"})
		return
	}
	if s, _ := req["content"].(string); strings.TrimSpace(s) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Content is required"})
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	req["created_at"] = now
	req["updated_at"] = now
	if _, ok := req["format"]; !ok {
		req["format"] = "text"
	}
	if _, ok := req["content_type"]; !ok {
		req["content_type"] = "manual"
	}
	delete(req, "_id")
	id := b.Seed(req)
	if b.CreateAck {
		writeJSON(w, http.StatusCreated, map[string]string{"note_id": id, "message": "Note created successfully"})
		return
	}
	rec, _ := b.Record(id)
	writeJSON(w, http.StatusCreated, rec)
}

func (b *Backend) getNote(w http.ResponseWriter, r *http.Request) {
	rec, ok := b.Record(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Note not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) updateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	rec, ok := b.records[id]
	if ok {
		for _, k := range []string{"title", "content", "updated_at"} {
			if v, present := req[k]; present {
				rec[k] = v
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Note not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note updated successfully"})
}

func (b *Backend) deleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	_, ok := b.records[id]
	if ok {
		delete(b.records, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Note not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note deleted successfully"})
}

// process handles both AI endpoints: it reads the single file part, waits
// ProcessDelay, persists the produced note, and answers {content}.
func (b *Backend) process(contentType, sourceField string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "File upload required"})
			return
		}
		size, _ := io.Copy(io.Discard, file)
		_ = file.Close()

		b.mu.Lock()
		b.uploads = append(b.uploads, Upload{
			Path:        r.URL.Path,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        size,
			Auth:        r.Header.Get("Authorization"),
		})
		b.mu.Unlock()

		if b.ProcessDelay > 0 {
			select {
			case <-time.After(b.ProcessDelay):
			case <-r.Context().Done():
				return
			}
		}

		summary := b.Summary
		if summary == "" {
			summary = "Summary of " + header.Filename
		}
		now := time.Now().UTC().Format(time.RFC3339)
		rec := map[string]any{
			"title":        header.Filename,
			"content":      summary,
			"content_type": contentType,
			"format":       "text",
			sourceField:    header.Filename,
			"created_at":   now,
			"updated_at":   now,
		}
		if contentType == "voice_transcription" {
			rec["audio_size"] = size
			rec["transcript"] = "transcript of " + header.Filename
		}
		id := b.Seed(rec)
		writeJSON(w, http.StatusOK, map[string]string{"content": summary, "note_id": id})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
