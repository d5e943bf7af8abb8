package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	chunkSize       = 32 << 10
	defaultStartup  = 2 * time.Second
	shutdownTimeout = 3 * time.Second
)

// ExecDevice records by running an external capture command (ffmpeg by
// default) that writes encoded audio to stdout.
type ExecDevice struct {
	Command string
	Args    []string
	// StartupWait bounds how long Open waits for the first chunk.
	StartupWait time.Duration
}

// Open starts the command. A command that exits before producing any audio
// is reported as an error carrying its stderr.
func (d *ExecDevice) Open(ctx context.Context) (Stream, error) {
	if d.Command == "" {
		return nil, fmt.Errorf("capture: no capture command configured")
	}
	// Not CommandContext: the recording outlives the request that started it.
	cmd := exec.Command(d.Command, d.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	stderr := &limitedBuffer{max: 4 << 10}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start %s: %w", d.Command, err)
	}

	s := &execStream{
		cmd:    cmd,
		chunks: make(chan []byte, 64),
		first:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.read(stdout)

	wait := d.StartupWait
	if wait <= 0 {
		wait = defaultStartup
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-s.first:
		return s, nil
	case <-s.done:
		msg := strings.TrimSpace(stderr.String())
		if msg == "" && s.waitErr != nil {
			msg = s.waitErr.Error()
		}
		return nil, fmt.Errorf("capture: %s exited before producing audio: %s", d.Command, msg)
	case <-timer.C:
		return s, nil
	case <-ctx.Done():
		_ = s.abandon()
		return nil, ctx.Err()
	}
}

type execStream struct {
	cmd    *exec.Cmd
	chunks chan []byte

	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}
	waitErr   error // set before done is closed

	closed    atomic.Bool
	closeOnce sync.Once
}

func (s *execStream) read(r io.Reader) {
	defer close(s.done)
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.chunks <- bytes.Clone(buf[:n])
			s.firstOnce.Do(func() { close(s.first) })
		}
		if err != nil {
			break
		}
	}
	close(s.chunks)
	s.waitErr = s.cmd.Wait()
}

func (s *execStream) Chunks() <-chan []byte { return s.chunks }

func (s *execStream) Active() bool {
	if s.closed.Load() {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close interrupts the command so it can finish the container, and kills it
// if it does not exit in time. It returns once the process is gone.
func (s *execStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		select {
		case <-s.done:
			return
		default:
		}
		_ = s.cmd.Process.Signal(os.Interrupt)
		select {
		case <-s.done:
		case <-time.After(shutdownTimeout):
			_ = s.cmd.Process.Kill()
			<-s.done
		}
	})
	return nil
}

// abandon closes a stream whose chunks nobody will read. The reader must
// keep draining or it blocks on a full channel and never reaches Wait.
func (s *execStream) abandon() error {
	go func() {
		for range s.chunks {
		}
	}()
	return s.Close()
}

type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
