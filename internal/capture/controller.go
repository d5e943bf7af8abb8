// Package capture drives a microphone recording from start to a finished
// audio artifact.
package capture

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/ingest"
)

// RecordingMIME is the type of every finished recording.
const RecordingMIME = "audio/webm"

// State of a Controller.
type State int

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// ErrNotRecording is returned by Stop outside the Recording state.
var ErrNotRecording = errors.New("capture: not recording")

// Stream is an open input device producing encoded audio chunks. Chunks is
// closed once the device stops producing.
type Stream interface {
	Chunks() <-chan []byte
	// Active reports whether the device is still held.
	Active() bool
	// Close releases the device.
	Close() error
}

// Device opens an input stream.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Controller owns one device for the lifetime of a recording.
type Controller struct {
	device Device
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	stream    Stream
	buf       *bytes.Buffer
	collected chan struct{}
	artifact  *ingest.Artifact
}

// NewController creates an idle Controller over device.
func NewController(device Device, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{device: device, logger: logger, now: time.Now}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DeviceActive reports whether the controller still holds an active device.
func (c *Controller) DeviceActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil && c.stream.Active()
}

// Artifact returns the finished recording, or nil outside Stopped.
func (c *Controller) Artifact() *ingest.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// Start acquires the device and begins recording. A device that cannot be
// opened is a permission failure and leaves the controller Idle. Starting
// from Stopped drops the previous recording.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Recording {
		return apperr.ErrBusy
	}
	c.artifact = nil
	c.state = Idle

	stream, err := c.device.Open(ctx)
	if err != nil {
		c.logger.Warn("capture: open device failed", slog.String("error", err.Error()))
		return apperr.Permission(err)
	}

	c.stream = stream
	c.buf = new(bytes.Buffer)
	c.collected = make(chan struct{})
	go collect(stream.Chunks(), c.buf, c.collected)

	c.state = Recording
	c.logger.Info("capture: recording started")
	return nil
}

// collect owns buf until done is closed.
func collect(chunks <-chan []byte, buf *bytes.Buffer, done chan<- struct{}) {
	defer close(done)
	for chunk := range chunks {
		buf.Write(chunk)
	}
}

// Stop releases the device, then finalizes the collected chunks into one
// audio/webm artifact. An empty recording is a validation error and returns
// the controller to Idle.
func (c *Controller) Stop() (*ingest.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording {
		return nil, ErrNotRecording
	}

	// Release the device before finalizing.
	stream := c.stream
	c.stream = nil
	if err := stream.Close(); err != nil {
		c.logger.Warn("capture: release device failed", slog.String("error", err.Error()))
	}
	<-c.collected

	data := c.buf.Bytes()
	c.buf = nil
	if len(data) == 0 {
		c.state = Idle
		return nil, apperr.Validation("No audio was recorded")
	}

	c.artifact = ingest.FromBytes(recordingName(c.now()), RecordingMIME, data)
	c.state = Stopped
	c.logger.Info("capture: recording stopped", slog.Int64("size", c.artifact.Size))
	return c.artifact, nil
}

// Discard drops the finished recording, or aborts one in progress.
func (c *Controller) Discard() {
	if c.State() == Recording {
		_, _ = c.Stop()
	}
	c.mu.Lock()
	c.artifact = nil
	c.state = Idle
	c.mu.Unlock()
}

// recordingName is "recording-<ISO-8601 UTC>.webm" with ':' and '.' made
// filename safe.
func recordingName(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return "recording-" + ts + ".webm"
}
