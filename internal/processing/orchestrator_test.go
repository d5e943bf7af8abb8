package processing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/ingest"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notes"
	"github.com/starford/scribe/internal/remote"
	"github.com/starford/scribe/internal/session"
	"github.com/starford/scribe/internal/storage"
	"github.com/starford/scribe/internal/testutil"
)

func loggedIn(t *testing.T, b *testutil.Backend) (*remote.Client, *session.Session) {
	t.Helper()
	store := storage.NewMemory()
	_ = store.Save(b.Token())
	s, err := session.New(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.Client(b.URL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return c, s
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	r.states = append(r.states, s.State)
	r.mu.Unlock()
}

func (r *recorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func pdf(name string) *ingest.Artifact {
	return ingest.FromBytes(name, "application/pdf", []byte("%PDF-1.4 test document"))
}

func TestSelectRejectsWithoutNetwork(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	o := New(PDFSummarize, c)

	err := o.Select(ingest.FromBytes("notes.txt", "text/plain", []byte("hi")))
	if err == nil || err.Error() != "Only PDF documents are supported" {
		t.Fatalf("err = %v", err)
	}
	if _, err := o.Submit(context.Background()); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("submit without selection: %v", err)
	}
	snap := o.Snapshot()
	if snap.State != Idle || snap.Message != "Only PDF documents are supported" {
		t.Errorf("snapshot = %+v", snap)
	}
	if b.Requests() != 0 {
		t.Errorf("backend saw %d requests, want 0", b.Requests())
	}
}

func TestOversizedPDFRejectedWithoutNetwork(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	o := New(PDFSummarize, c)

	big := ingest.FromBytes("big.pdf", "application/pdf", make([]byte, ingest.MaxPDFSize+1))
	err := o.Select(big)
	if err == nil || err.Error() != "Document too large (25.0MB). Maximum size is 25MB" {
		t.Fatalf("err = %v", err)
	}
	if b.Requests() != 0 {
		t.Error("oversized document reached the backend")
	}
}

func TestSubmitPDF(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	rec := &recorder{}
	navigated := make(chan struct{})
	o := New(PDFSummarize, c,
		WithListener(rec.listen),
		WithDisplayDelay(10*time.Millisecond),
		WithNavigate(func() { close(navigated) }))

	if err := o.Select(pdf("report.pdf")); err != nil {
		t.Fatalf("Select: %v", err)
	}
	snap, err := o.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap.State != Success || snap.Content != "Summary of report.pdf" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.JobID == "" {
		t.Error("job id missing")
	}

	want := []State{Validated, Submitting, Waiting, Success}
	got := rec.seen()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}

	ups := b.Uploads()
	if len(ups) != 1 {
		t.Fatalf("uploads = %d, want 1", len(ups))
	}
	if ups[0].Filename != "report.pdf" || ups[0].ContentType != "application/pdf" || ups[0].Auth != "Bearer "+b.Token() {
		t.Errorf("upload = %+v", ups[0])
	}
	if b.Hits("POST /notes") != 0 {
		t.Error("orchestrator must not create notes itself")
	}

	select {
	case <-navigated:
	case <-time.After(2 * time.Second):
		t.Fatal("navigation hook not called")
	}
}

func TestFailureIsRetryable(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	o := New(PDFSummarize, c)
	_ = o.Select(pdf("a.pdf"))

	b.Fail("/summariser/pdf", http.StatusInternalServerError, `{"error":"PDF could not be parsed"}`)
	snap, err := o.Submit(context.Background())
	if err == nil || snap.State != Failure || snap.Message != "PDF could not be parsed" {
		t.Fatalf("snapshot = %+v err = %v", snap, err)
	}
	if snap.ErrorKind != "remote" {
		t.Errorf("error kind = %q", snap.ErrorKind)
	}

	b.Recover("/summariser/pdf")
	snap, err = o.Submit(context.Background())
	if err != nil || snap.State != Success {
		t.Fatalf("retry: %+v %v", snap, err)
	}
	if b.Requests() != 2 {
		t.Errorf("requests = %d, want 2", b.Requests())
	}
}

func TestFailureMessages(t *testing.T) {
	cases := []struct {
		name, body string
		status     int
		want       string
	}{
		{"message field", `{"message":"quota exceeded"}`, 429, "quota exceeded"},
		{"raw text", `upstream exploded`, 500, "upstream exploded"},
		{"empty", ``, 502, "Audio processing failed (HTTP 502)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := testutil.NewBackend(t)
			c, _ := loggedIn(t, b)
			o := New(AudioTranscribe, c)
			_ = o.Select(ingest.FromBytes("a.mp3", "audio/mpeg", []byte("ID3")))
			b.Fail("/whisper/audio", tc.status, tc.body)

			snap, _ := o.Submit(context.Background())
			if snap.State != Failure || snap.Message != tc.want {
				t.Errorf("snapshot = %+v, want message %q", snap, tc.want)
			}
		})
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	b := testutil.NewBackend(t)
	c, s := loggedIn(t, b)
	o := New(PDFSummarize, c)
	_ = o.Select(pdf("a.pdf"))

	b.RevokeToken()
	_, err := o.Submit(context.Background())
	if !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("err = %v", err)
	}
	if s.Authenticated() {
		t.Error("session not cleared by 401")
	}

	before := b.Requests()
	snap, err := o.Submit(context.Background())
	if !errors.Is(err, apperr.ErrUnauthenticated) || snap.State != Failure {
		t.Errorf("second submit: %+v %v", snap, err)
	}
	if b.Requests() != before {
		t.Error("request sent without a credential")
	}
}

func TestSubmitWhileInFlightIsBusy(t *testing.T) {
	b := testutil.NewBackend(t)
	b.ProcessDelay = 300 * time.Millisecond
	c, _ := loggedIn(t, b)
	o := New(PDFSummarize, c)
	_ = o.Select(pdf("a.pdf"))

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !o.Snapshot().State.Busy() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := o.Submit(context.Background()); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("concurrent submit err = %v", err)
	}
	if err := o.Select(pdf("b.pdf")); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("select while busy err = %v", err)
	}
	if err := o.Reset(); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("reset while busy err = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if n := len(b.Uploads()); n != 1 {
		t.Errorf("uploads = %d, want 1", n)
	}
}

func TestTimeout(t *testing.T) {
	b := testutil.NewBackend(t)
	b.ProcessDelay = 2 * time.Second
	c, _ := loggedIn(t, b)
	o := New(PDFSummarize, c, WithTimeout(50*time.Millisecond))
	_ = o.Select(pdf("a.pdf"))

	snap, err := o.Submit(context.Background())
	if apperr.KindOf(err) != apperr.KindTimeout || snap.State != Failure {
		t.Errorf("snapshot = %+v err = %v", snap, err)
	}
}

func TestNetworkFailure(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	b.Server.Close()

	o := New(PDFSummarize, c)
	_ = o.Select(pdf("a.pdf"))
	snap, err := o.Submit(context.Background())
	if apperr.KindOf(err) != apperr.KindNetwork {
		t.Fatalf("kind = %v (%v)", apperr.KindOf(err), err)
	}
	if snap.Message != "Connection error. Please verify the backend is running." {
		t.Errorf("message = %q", snap.Message)
	}
}

func TestResetClearsSelection(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	o := New(PDFSummarize, c)
	_ = o.Select(pdf("a.pdf"))
	_, _ = o.Submit(context.Background())

	if err := o.Reset(); err != nil {
		t.Fatal(err)
	}
	if o.Artifact() != nil || o.Snapshot().State != Idle {
		t.Errorf("after reset: %+v", o.Snapshot())
	}
}

func TestSelectReplacesPreviousArtifact(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	o := New(AudioTranscribe, c)

	rec := ingest.FromBytes("recording-x.webm", "audio/webm", []byte("webm"))
	_ = o.Select(rec)
	file := ingest.FromBytes("upload.mp3", "audio/mpeg", []byte("ID3"))
	_ = o.Select(file)
	if o.Artifact() != file {
		t.Error("selecting a file must replace the recording")
	}
}

func TestLargeWavTranscription(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	navigated := make(chan struct{})
	o := New(AudioTranscribe, c,
		WithDisplayDelay(20*time.Millisecond),
		WithNavigate(func() { close(navigated) }))

	path := filepath.Join(t.TempDir(), "meeting.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(30_000_000); err != nil {
		t.Fatal(err)
	}
	f.Close()

	a, err := ingest.FromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Select(a); err != nil {
		t.Fatalf("Select: %v", err)
	}
	snap, err := o.Submit(context.Background())
	if err != nil || snap.State != Success {
		t.Fatalf("Submit: %+v %v", snap, err)
	}
	if snap.Content != "Summary of meeting.wav" {
		t.Errorf("content = %q", snap.Content)
	}
	ups := b.Uploads()
	if len(ups) != 1 || ups[0].Path != "/whisper/audio" || ups[0].Size != 30_000_000 {
		t.Errorf("uploads = %+v", ups)
	}

	select {
	case <-navigated:
	case <-time.After(time.Second):
		t.Fatal("no navigation after the display delay")
	}
	list, err := notes.NewRepository(c).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, n := range list {
		if n.ContentType == models.ContentVoiceTranscription && n.Title == "meeting.wav" {
			found = true
		}
	}
	if !found {
		t.Errorf("no voice_transcription note in list: %+v", list)
	}
}

func TestRenderContent(t *testing.T) {
	cases := map[string]string{
		`"plain summary"`: "plain summary",
		`{"summary":"x"}`: "{\n  \"summary\": \"x\"\n}",
		`["a","b"]`:       "[\n  \"a\",\n  \"b\"\n]",
		`null`:            "",
		``:                "",
	}
	for in, want := range cases {
		if got := renderContent([]byte(in)); got != want {
			t.Errorf("renderContent(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestTransitionTable(t *testing.T) {
	illegal := []struct {
		s State
		e Event
	}{
		{Idle, SubmitStarted},
		{Submitting, SubmitStarted},
		{Waiting, Reset},
		{Success, SubmitStarted},
		{Idle, UploadSucceeded},
	}
	for _, tc := range illegal {
		if _, err := next(tc.s, tc.e); err == nil {
			t.Errorf("%s on %s should be illegal", tc.e, tc.s)
		}
	}
	if to, err := next(Failure, SubmitStarted); err != nil || to != Submitting {
		t.Errorf("retry from failure: %v %v", to, err)
	}
}

func TestInfoInspectsOncePerSelection(t *testing.T) {
	var calls int
	orig := inspect
	inspect = func(a *ingest.Artifact) ingest.Info {
		calls++
		return orig(a)
	}
	t.Cleanup(func() { inspect = orig })

	b := testutil.NewBackend(t)
	c, _ := loggedIn(t, b)
	o := New(PDFSummarize, c)
	if o.Info() != nil {
		t.Fatal("info without a selection")
	}

	_ = o.Select(ingest.FromBytes("a.pdf", "application/pdf", []byte("%PDF-1.4\n%%EOF\n")))
	for i := 0; i < 5; i++ {
		if info := o.Info(); info == nil || info.Name != "a.pdf" {
			t.Fatalf("info = %+v", info)
		}
	}
	if calls != 1 {
		t.Errorf("inspected %d times, want 1", calls)
	}

	_ = o.Select(ingest.FromBytes("b.pdf", "application/pdf", []byte("%PDF-1.4\n%%EOF\n")))
	if info := o.Info(); info == nil || info.Name != "b.pdf" || calls != 2 {
		t.Errorf("new selection: info = %+v, calls = %d", info, calls)
	}
	_ = o.Reset()
	if o.Info() != nil {
		t.Error("info kept after reset")
	}
}
