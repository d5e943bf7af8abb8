package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/capture"
	"github.com/starford/scribe/internal/ingest"
	"github.com/starford/scribe/internal/processing"
)

// multipart framing allowance on top of the artifact limit.
const formOverhead = 1 << 20

type jobData struct {
	Job       processing.Snapshot
	Action    string
	Busy      bool
	Done      bool
	CanSubmit bool
	Info      *ingest.Info
	CanRecord bool
	Recording bool
	Recorded  bool
}

func (s *Server) jobPage(o *processing.Orchestrator) jobData {
	snap := o.Snapshot()
	d := jobData{
		Job:       snap,
		Action:    "/summarize",
		Busy:      snap.State.Busy(),
		Done:      snap.State == processing.Success,
		CanSubmit: snap.State == processing.Validated || snap.State == processing.Failure,
	}
	d.Info = o.Info()
	if o == s.Audio {
		d.Action = "/transcribe"
		if s.Recorder != nil {
			d.CanRecord = true
			st := s.Recorder.State()
			d.Recording = st == capture.Recording
			d.Recorded = st == capture.Stopped
		}
	}
	return d
}

func (s *Server) showJob(w http.ResponseWriter, r *http.Request, status int, name, title string, o *processing.Orchestrator, errMsg string) {
	d := s.jobPage(o)
	p := page{Title: title, Error: errMsg, Data: d}
	if d.Busy || d.Recording {
		p.Refresh = "2"
	}
	s.render(w, r, status, name, p)
}

func (s *Server) summarizePage(w http.ResponseWriter, r *http.Request) {
	s.showJob(w, r, http.StatusOK, "summarize", "Summarize PDF", s.PDF, "")
}

func (s *Server) transcribePage(w http.ResponseWriter, r *http.Request) {
	s.showJob(w, r, http.StatusOK, "transcribe", "Transcribe Audio", s.Audio, "")
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	s.accept(w, r, s.PDF, "summarize", "Summarize PDF", "/summarize")
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	s.accept(w, r, s.Audio, "transcribe", "Transcribe Audio", "/transcribe")
}

// accept takes an uploaded file, or a retry of the current one, and submits
// it in the background. The page then follows progress through /events.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, o *processing.Orchestrator, name, title, back string) {
	kind := o.Target().Kind
	limit := ingest.MaxSize(kind)
	r.Body = http.MaxBytesReader(w, r.Body, 2*limit+formOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.showJob(w, r, http.StatusRequestEntityTooLarge, name, title, o, ingest.TooLarge(kind, uploadSize(r, tooBig)).Error())
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			s.showJob(w, r, http.StatusBadRequest, name, title, o, "Could not read the upload")
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if r.FormValue("action") != "retry" {
		if err := s.selectUpload(r, o); err != nil {
			if errors.Is(err, apperr.ErrBusy) {
				s.showJob(w, r, http.StatusConflict, name, title, o, "A file is already being processed")
				return
			}
			s.showJob(w, r, statusFor(err), name, title, o, err.Error())
			return
		}
	}
	if o.Artifact() == nil {
		s.showJob(w, r, http.StatusUnprocessableEntity, name, title, o, "Please select a file")
		return
	}
	s.submit(o)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// uploadSize is the size to report for a body that hit the cap. Chunked
// uploads have no length, so the cap itself is the best lower bound.
func uploadSize(r *http.Request, tooBig *http.MaxBytesError) int64 {
	if r.ContentLength > 0 {
		return r.ContentLength
	}
	return tooBig.Limit
}

// selectUpload validates the form file before copying it out of the
// request, so a rejected file is never read.
func (s *Server) selectUpload(r *http.Request, o *processing.Orchestrator) error {
	var a *ingest.Artifact
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			a = ingest.FromMultipart(files[0])
		}
	}
	if err := ingest.Validate(a, o.Target().Kind); err != nil {
		// Record the rejection on the job too.
		if serr := o.Select(a); errors.Is(serr, apperr.ErrBusy) {
			return serr
		}
		return err
	}
	detached, err := ingest.Detach(a)
	if err != nil {
		return err
	}
	if o == s.Audio && s.Recorder != nil {
		s.Recorder.Discard()
	}
	return o.Select(detached)
}

func (s *Server) submit(o *processing.Orchestrator) {
	go func() {
		if _, err := o.Submit(s.Jobs); err != nil && !errors.Is(err, apperr.ErrBusy) {
			s.Logger.Info("job failed", slog.String("target", o.Target().Name), slog.String("error", err.Error()))
		}
	}()
}

func (s *Server) recordStart(w http.ResponseWriter, r *http.Request) {
	if s.Audio.Snapshot().State.Busy() {
		s.showJob(w, r, http.StatusConflict, "transcribe", "Transcribe Audio", s.Audio, "A file is already being processed")
		return
	}
	if err := s.Recorder.Start(s.Jobs); err != nil {
		if errors.Is(err, apperr.ErrBusy) {
			redirect(w, r, "/transcribe", "", "")
			return
		}
		s.showJob(w, r, statusFor(err), "transcribe", "Transcribe Audio", s.Audio, err.Error())
		return
	}
	_ = s.Audio.Reset()
	redirect(w, r, "/transcribe", "Recording...", "")
}

func (s *Server) recordStop(w http.ResponseWriter, r *http.Request) {
	a, err := s.Recorder.Stop()
	if err != nil {
		if errors.Is(err, capture.ErrNotRecording) {
			redirect(w, r, "/transcribe", "", "")
			return
		}
		s.showJob(w, r, statusFor(err), "transcribe", "Transcribe Audio", s.Audio, err.Error())
		return
	}
	if err := s.Audio.Select(a); err != nil {
		s.showJob(w, r, statusFor(err), "transcribe", "Transcribe Audio", s.Audio, err.Error())
		return
	}
	redirect(w, r, "/transcribe", "Recording complete", "")
}

func (s *Server) recordDiscard(w http.ResponseWriter, r *http.Request) {
	s.Recorder.Discard()
	if err := s.Audio.Reset(); err != nil {
		redirect(w, r, "/transcribe", "", "A file is already being processed")
		return
	}
	redirect(w, r, "/transcribe", "", "")
}

func (s *Server) job(name string) (*processing.Orchestrator, string) {
	switch name {
	case s.PDF.Target().Name:
		return s.PDF, "/summarize"
	case s.Audio.Target().Name:
		return s.Audio, "/transcribe"
	}
	return nil, ""
}

func (s *Server) jobState(w http.ResponseWriter, r *http.Request) {
	o, _ := s.job(chi.URLParam(r, "target"))
	if o == nil {
		writeJSON(w, http.StatusNotFound, errorBody("unknown job"))
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

func (s *Server) jobReset(w http.ResponseWriter, r *http.Request) {
	o, back := s.job(chi.URLParam(r, "target"))
	if o == nil {
		http.NotFound(w, r)
		return
	}
	if err := o.Reset(); err != nil {
		redirect(w, r, back, "", "A file is already being processed")
		return
	}
	if o == s.Audio && s.Recorder != nil {
		s.Recorder.Discard()
	}
	redirect(w, r, back, "", "")
}
