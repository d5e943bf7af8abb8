package processing

import "github.com/starford/scribe/internal/ingest"

// Target is one remote processing endpoint.
type Target struct {
	Name     string
	Path     string
	Kind     ingest.Kind
	Ready    string // shown once a file is accepted
	Progress string // shown while waiting
	Done     string // shown on success
	Fallback string // error text when the backend gives none
}

var (
	PDFSummarize = Target{
		Name:     "pdf_summarize",
		Path:     "/summariser/pdf",
		Kind:     ingest.PDF,
		Ready:    "Document ready for processing",
		Progress: "Processing document and creating summary...",
		Done:     "Summary generated successfully! Saved as a note.",
		Fallback: "Processing failed",
	}
	AudioTranscribe = Target{
		Name:     "audio_transcribe",
		Path:     "/whisper/audio",
		Kind:     ingest.Audio,
		Ready:    "Audio file ready for processing",
		Progress: "Transcribing audio and generating summary...",
		Done:     "Audio processed successfully! Summary saved as a note.",
		Fallback: "Audio processing failed",
	}
)
