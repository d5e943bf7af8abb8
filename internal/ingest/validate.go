package ingest

import (
	"fmt"

	"github.com/starford/scribe/internal/apperr"
)

// Kind is what an artifact is offered as.
type Kind string

const (
	PDF   Kind = "pdf"
	Audio Kind = "audio"
)

// Size limits, inclusive.
const (
	MaxPDFSize   int64 = 25 << 20
	MaxAudioSize int64 = 50 << 20
)

var audioTypes = map[string]bool{
	"audio/mpeg": true,
	"audio/mp3":  true,
	"audio/wav":  true,
	"audio/mp4":  true,
	"audio/m4a":  true,
	"audio/webm": true,
}

var audioExtensions = map[string]bool{
	"mpeg": true,
	"mp3":  true,
	"wav":  true,
	"mp4":  true,
	"m4a":  true,
	"webm": true,
}

// Validate accepts or rejects a as kind. A rejection is an apperr.Error of
// KindValidation carrying the user-facing message. It never does I/O.
func Validate(a *Artifact, kind Kind) error {
	if a == nil {
		return apperr.Validation("Please select a file")
	}
	switch kind {
	case PDF:
		if a.MIME != "application/pdf" {
			return apperr.Validation("Only PDF documents are supported")
		}
		if a.Size > MaxPDFSize {
			return TooLarge(PDF, a.Size)
		}
	case Audio:
		if !audioTypes[a.MIME] && !audioExtensions[extension(a.Name)] {
			return apperr.Validation("Only audio files (MP3, WAV, M4A, MP4, WebM) are supported")
		}
		if a.Size > MaxAudioSize {
			return TooLarge(Audio, a.Size)
		}
	default:
		return fmt.Errorf("ingest: unknown kind %q", kind)
	}
	return nil
}

// MaxSize returns the inclusive size limit for kind.
func MaxSize(kind Kind) int64 {
	if kind == Audio {
		return MaxAudioSize
	}
	return MaxPDFSize
}

// TooLarge is the rejection for a size bytes long offered as kind.
func TooLarge(kind Kind, size int64) error {
	if kind == Audio {
		return apperr.Validation("Audio file too large (%.1fMB). Maximum size is 50MB", megabytes(size))
	}
	return apperr.Validation("Document too large (%.1fMB). Maximum size is 25MB", megabytes(size))
}

func megabytes(n int64) float64 {
	return float64(n) / (1 << 20)
}
