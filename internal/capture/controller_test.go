package capture

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/ingest"
)

type fakeStream struct {
	chunks   chan []byte
	released atomic.Bool
}

func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }
func (s *fakeStream) Active() bool          { return !s.released.Load() }
func (s *fakeStream) Close() error {
	if s.released.CompareAndSwap(false, true) {
		close(s.chunks)
	}
	return nil
}

type fakeDevice struct {
	err     error
	streams []*fakeStream
}

func (d *fakeDevice) Open(context.Context) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{chunks: make(chan []byte, 16)}
	d.streams = append(d.streams, s)
	return s, nil
}

func fixedClock(c *Controller) {
	c.now = func() time.Time { return time.Date(2024, 5, 1, 10, 20, 30, 123_000_000, time.UTC) }
}

func TestStartStopProducesOneArtifact(t *testing.T) {
	dev := &fakeDevice{}
	c := NewController(dev, nil)
	fixedClock(c)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != Recording || !c.DeviceActive() {
		t.Fatalf("state = %v active = %v", c.State(), c.DeviceActive())
	}
	dev.streams[0].chunks <- []byte("chunk-1 ")
	dev.streams[0].chunks <- []byte("chunk-2")

	a, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.State() != Stopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	if c.DeviceActive() || !dev.streams[0].released.Load() {
		t.Error("device still held after Stop")
	}
	if a.MIME != "audio/webm" {
		t.Errorf("MIME = %q", a.MIME)
	}
	if a.Name != "recording-2024-05-01T10-20-30-123Z.webm" {
		t.Errorf("Name = %q", a.Name)
	}
	rc, _ := a.Open()
	data, _ := io.ReadAll(rc)
	if string(data) != "chunk-1 chunk-2" {
		t.Errorf("data = %q", data)
	}
	if c.Artifact() != a {
		t.Error("Artifact() does not return the finalized recording")
	}
	if err := ingest.Validate(a, ingest.Audio); err != nil {
		t.Errorf("recording rejected: %v", err)
	}
}

func TestStartFailureIsPermission(t *testing.T) {
	c := NewController(&fakeDevice{err: errors.New("denied")}, nil)
	err := c.Start(context.Background())
	if apperr.KindOf(err) != apperr.KindPermission {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
	if err.Error() != "Microphone access denied. Please allow microphone permissions." {
		t.Errorf("message = %q", err.Error())
	}
	if c.State() != Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestStopWithoutRecording(t *testing.T) {
	c := NewController(&fakeDevice{}, nil)
	if _, err := c.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("err = %v", err)
	}
}

func TestStartWhileRecordingIsBusy(t *testing.T) {
	c := NewController(&fakeDevice{}, nil)
	_ = c.Start(context.Background())
	if err := c.Start(context.Background()); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("err = %v", err)
	}
	c.Discard()
}

func TestEmptyRecordingRejected(t *testing.T) {
	dev := &fakeDevice{}
	c := NewController(dev, nil)
	_ = c.Start(context.Background())
	_, err := c.Stop()
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
	if c.State() != Idle || !dev.streams[0].released.Load() {
		t.Error("empty recording should release the device and return to idle")
	}
}

func TestDiscard(t *testing.T) {
	dev := &fakeDevice{}
	c := NewController(dev, nil)
	_ = c.Start(context.Background())
	dev.streams[0].chunks <- []byte("x")
	_, _ = c.Stop()

	c.Discard()
	if c.State() != Idle || c.Artifact() != nil {
		t.Errorf("state = %v artifact = %v", c.State(), c.Artifact())
	}

	_ = c.Start(context.Background())
	c.Discard()
	if !dev.streams[1].released.Load() {
		t.Error("discarding a live recording must release the device")
	}
}

func TestExecDevice(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dev := &ExecDevice{Command: "sh", Args: []string{"-c", "printf webm-bytes; exec sleep 10"}}
	c := NewController(dev, nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.DeviceActive() {
		t.Error("device inactive while recording")
	}
	a, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Size != int64(len("webm-bytes")) {
		t.Errorf("size = %d", a.Size)
	}
	if c.DeviceActive() {
		t.Error("device active after Stop")
	}
}

func TestExecDeviceEarlyExitIsPermission(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dev := &ExecDevice{Command: "sh", Args: []string{"-c", "echo 'no input device' >&2; exit 1"}}
	c := NewController(dev, nil)

	err := c.Start(context.Background())
	if apperr.KindOf(err) != apperr.KindPermission {
		t.Fatalf("kind = %v (%v)", apperr.KindOf(err), err)
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Err == nil {
		t.Fatal("cause not kept")
	}
}

func TestExecDeviceMissingCommand(t *testing.T) {
	c := NewController(&ExecDevice{Command: "scribe-no-such-recorder"}, nil)
	if apperr.KindOf(c.Start(context.Background())) != apperr.KindPermission {
		t.Error("missing command should be a permission failure")
	}
}

func TestExecStreamAbandonWithUnreadChunks(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	dev := &ExecDevice{Command: "cat", Args: []string{"/dev/zero"}}
	st, err := dev.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Let the chunk buffer fill with nobody reading.
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = st.(*execStream).abandon()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout + 2*time.Second):
		t.Fatal("abandon blocked on a full chunk channel")
	}
	if st.Active() {
		t.Error("stream active after abandon")
	}
}
