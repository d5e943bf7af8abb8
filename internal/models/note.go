// Package models defines the domain types for scribe.
package models

import "time"

// ContentType is the provenance tag of a note as it travels on the wire.
type ContentType string

const (
	ContentManual             ContentType = "manual"
	ContentPDFSummary         ContentType = "pdf_summary"
	ContentVoiceTranscription ContentType = "voice_transcription"
	ContentYouTubeSummary     ContentType = "youtube_summary"
	ContentYouTubeReference   ContentType = "youtube_reference"
)

// DefaultFormat is the body format assumed when the server omits one.
const DefaultFormat = "text"

// ParseContentType maps a wire value to a known ContentType.
func ParseContentType(s string) (ContentType, bool) {
	switch ct := ContentType(s); ct {
	case ContentManual, ContentPDFSummary, ContentVoiceTranscription,
		ContentYouTubeSummary, ContentYouTubeReference:
		return ct, true
	}
	return "", false
}

// Note is the canonical, normalized note entity.
type Note struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`
	Format      string      `json:"format"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	SourceDocument string `json:"source_document,omitempty"`
	SourceAudio    string `json:"source_audio,omitempty"`
	AudioSize      int64  `json:"audio_size,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	SourceVideoID  string `json:"source_video_id,omitempty"`
}

// Variant returns the tagged-union view of the note's content type.
func (n *Note) Variant() Variant {
	switch n.ContentType {
	case ContentPDFSummary:
		return PDFSummary{SourceDocument: n.SourceDocument}
	case ContentVoiceTranscription:
		return VoiceTranscription{SourceAudio: n.SourceAudio, AudioSize: n.AudioSize, Transcript: n.Transcript}
	case ContentYouTubeSummary:
		return YouTubeSummary{VideoID: n.SourceVideoID}
	case ContentYouTubeReference:
		return YouTubeReference{VideoID: n.SourceVideoID}
	default:
		return Manual{}
	}
}

// Editable reports whether title and content may be changed by the user.
func (n *Note) Editable() bool {
	return n.Variant().Editable()
}
