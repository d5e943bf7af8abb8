// Package processing uploads one validated artifact to a remote AI endpoint
// and tracks the attempt through a single state machine.
package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptrace"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/ingest"
	"github.com/starford/scribe/internal/remote"
)

// Defaults.
const (
	DefaultDisplayDelay = 3 * time.Second
	DefaultTimeout      = 10 * time.Minute
)

const maxResponseBody = 10 << 20

// Snapshot is the observable state of an orchestrator.
type Snapshot struct {
	JobID     string    `json:"job_id,omitempty"`
	Target    string    `json:"target"`
	State     State     `json:"state"`
	File      string    `json:"file,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Message   string    `json:"message,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Content   string    `json:"content,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Listener observes every state change.
type Listener func(Snapshot)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithListener registers l for state changes.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, l) }
}

// WithNavigate sets the hook run once the success message has been shown for
// the display delay.
func WithNavigate(fn func()) Option {
	return func(o *Orchestrator) { o.navigate = fn }
}

// WithDisplayDelay sets how long success stays on screen before navigation.
func WithDisplayDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.delay = d }
}

// WithTimeout bounds each submission. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs upload attempts for one Target.
type Orchestrator struct {
	target    Target
	client    *remote.Client
	logger    *slog.Logger
	listeners []Listener
	navigate  func()
	delay     time.Duration
	timeout   time.Duration

	mu       sync.Mutex
	snap     Snapshot
	artifact *ingest.Artifact
	info     *ingest.Info
	navTimer *time.Timer
}

// inspect describes an artifact; replaced in tests.
var inspect = ingest.Inspect

// New creates an idle Orchestrator. client must carry the session guard.
func New(target Target, client *remote.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		target:  target,
		client:  client,
		logger:  slog.Default(),
		delay:   DefaultDisplayDelay,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.snap = Snapshot{Target: target.Name, State: Idle, UpdatedAt: time.Now()}
	return o
}

// Target returns the endpoint this orchestrator uploads to.
func (o *Orchestrator) Target() Target { return o.target }

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Artifact returns the selected artifact, if any.
func (o *Orchestrator) Artifact() *ingest.Artifact {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.artifact
}

// Info describes the selected artifact, or nil without one. The artifact is
// inspected once per selection.
func (o *Orchestrator) Info() *ingest.Info {
	o.mu.Lock()
	a, info := o.artifact, o.info
	o.mu.Unlock()
	if a == nil || info != nil {
		return info
	}

	computed := inspect(a)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.artifact == a {
		o.info = &computed
	}
	return &computed
}

// Select validates a and, when accepted, makes it the artifact of a new job,
// replacing any earlier selection. A rejected artifact clears the selection.
// Nothing is sent.
func (o *Orchestrator) Select(a *ingest.Artifact) error {
	o.mu.Lock()
	if o.snap.State.Busy() {
		o.mu.Unlock()
		return apperr.ErrBusy
	}
	o.cancelNavigation()

	verr := ingest.Validate(a, o.target.Kind)
	var snap Snapshot
	var err error
	if verr != nil {
		o.artifact, o.info = nil, nil
		snap, err = o.apply(ValidationFailed, func(s *Snapshot) {
			*s = Snapshot{Target: o.target.Name, Message: verr.Error(), ErrorKind: apperr.KindValidation.String()}
		})
	} else {
		o.artifact, o.info = a, nil
		snap, err = o.apply(ArtifactSelected, func(s *Snapshot) {
			*s = Snapshot{
				JobID:   uuid.NewString(),
				Target:  o.target.Name,
				File:    a.Name,
				Size:    a.Size,
				Message: o.target.Ready,
			}
		})
	}
	o.mu.Unlock()

	if err != nil {
		return err
	}
	o.notify(snap)
	return verr
}

// Submit uploads the selected artifact in exactly one request. It is legal
// from Validated and from Failure (a manual retry of the same artifact);
// while a request is in flight it returns apperr.ErrBusy.
func (o *Orchestrator) Submit(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	if o.snap.State.Busy() {
		snap := o.snap
		o.mu.Unlock()
		return snap, apperr.ErrBusy
	}
	a := o.artifact
	if a == nil {
		snap := o.snap
		o.mu.Unlock()
		return snap, apperr.Validation("Please choose a file first")
	}
	o.cancelNavigation()
	snap, err := o.apply(SubmitStarted, func(s *Snapshot) {
		s.Message = o.target.Progress
		s.ErrorKind = ""
		s.Content = ""
	})
	o.mu.Unlock()
	if err != nil {
		return snap, err
	}
	o.notify(snap)

	o.logger.Info("processing: submitting",
		slog.String("job_id", snap.JobID),
		slog.String("target", o.target.Name),
		slog.String("file", a.Name),
		slog.Int64("size", a.Size))

	content, uerr := o.upload(ctx, a)
	if uerr != nil {
		snap = o.advance(UploadFailed, func(s *Snapshot) {
			s.Message = uerr.Error()
			s.ErrorKind = apperr.KindOf(uerr).String()
		})
		o.logger.Warn("processing: failed",
			slog.String("job_id", snap.JobID),
			slog.String("error", uerr.Error()))
		return snap, uerr
	}

	snap = o.advance(UploadSucceeded, func(s *Snapshot) {
		s.Message = o.target.Done
		s.Content = content
	})
	o.logger.Info("processing: succeeded", slog.String("job_id", snap.JobID))

	o.mu.Lock()
	if o.navigate != nil && o.snap.State == Success {
		o.navTimer = time.AfterFunc(o.delay, o.navigate)
	}
	o.mu.Unlock()
	return snap, nil
}

// Reset discards the selection and any result ("create another").
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.snap.State.Busy() {
		o.mu.Unlock()
		return apperr.ErrBusy
	}
	o.cancelNavigation()
	o.artifact, o.info = nil, nil
	snap, err := o.apply(Reset, func(s *Snapshot) {
		*s = Snapshot{Target: o.target.Name}
	})
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.notify(snap)
	return nil
}

func (o *Orchestrator) upload(ctx context.Context, a *ingest.Artifact) (string, error) {
	body, contentType, err := encode(a)
	if err != nil {
		return "", err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var once sync.Once
	sent := func() { once.Do(o.markSent) }
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { sent() },
	})

	req, err := o.client.NewRequest(ctx, http.MethodPost, o.target.Path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	sent()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", remote.DecodeError(resp, o.target.Fallback)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperr.Timeout(err)
		}
		return "", apperr.Network(err)
	}
	var out struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", apperr.Parse(resp.StatusCode, "Unexpected response from the backend", err)
	}
	return renderContent(out.Content), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// encode builds the single-part form body with the artifact under "file".
func encode(a *ingest.Artifact) (*bytes.Buffer, string, error) {
	rc, err := a.Open()
	if err != nil {
		return nil, "", fmt.Errorf("processing: open %s: %w", a.Name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(a.Name)))
	h.Set("Content-Type", a.MIME)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("processing: create part: %w", err)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, "", fmt.Errorf("processing: read %s: %w", a.Name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("processing: close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// renderContent returns a JSON string as-is and any other value indented.
func renderContent(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

// apply moves the state machine; callers hold o.mu.
func (o *Orchestrator) apply(ev Event, mutate func(*Snapshot)) (Snapshot, error) {
	to, err := next(o.snap.State, ev)
	if err != nil {
		return o.snap, err
	}
	from := o.snap.State
	if mutate != nil {
		mutate(&o.snap)
	}
	o.snap.State = to
	o.snap.UpdatedAt = time.Now()
	o.logger.Debug("processing: transition",
		slog.String("target", o.target.Name),
		slog.String("event", ev.String()),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	return o.snap, nil
}

// advance applies ev and notifies listeners. Illegal moves are logged and
// leave the state unchanged.
func (o *Orchestrator) advance(ev Event, mutate func(*Snapshot)) Snapshot {
	o.mu.Lock()
	snap, err := o.apply(ev, mutate)
	o.mu.Unlock()
	if err != nil {
		o.logger.Error("processing: transition rejected", slog.String("error", err.Error()))
		return snap
	}
	o.notify(snap)
	return snap
}

// markSent moves Submitting to Waiting once the request is on the wire.
func (o *Orchestrator) markSent() {
	o.mu.Lock()
	if o.snap.State != Submitting {
		o.mu.Unlock()
		return
	}
	snap, _ := o.apply(RequestSent, nil)
	o.mu.Unlock()
	o.notify(snap)
}

func (o *Orchestrator) cancelNavigation() {
	if o.navTimer != nil {
		o.navTimer.Stop()
		o.navTimer = nil
	}
}

func (o *Orchestrator) notify(s Snapshot) {
	for _, l := range o.listeners {
		l(s)
	}
}
