// Package render turns normalized notes into what a surface shows: per-type
// presentation, previews, metadata, and search filtering.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/scribe/internal/models"
)

// Layout selects how a note body is shown.
type Layout int

const (
	// LayoutPreview shows a content preview and the metadata panel.
	LayoutPreview Layout = iota
	// LayoutWarning shows only a warning and the source reference.
	LayoutWarning
)

// Presentation is everything type-specific about showing a note.
type Presentation struct {
	Icon     string
	Label    string
	Accent   string
	Layout   Layout
	Editable bool
	Warning  string
	VideoID  string
}

// Present returns the presentation for n's variant.
func Present(n *models.Note) Presentation {
	var p presenter
	n.Variant().Accept(&p)
	p.out.Editable = n.Editable()
	return p.out
}

type presenter struct{ out Presentation }

func (p *presenter) VisitManual(models.Manual) {
	p.out = Presentation{Icon: "✏️", Label: "Manual Note", Accent: "gray"}
}

func (p *presenter) VisitPDFSummary(models.PDFSummary) {
	p.out = Presentation{Icon: "📄", Label: "PDF Summary", Accent: "blue"}
}

func (p *presenter) VisitVoiceTranscription(models.VoiceTranscription) {
	p.out = Presentation{Icon: "🎙️", Label: "Voice Note", Accent: "green"}
}

func (p *presenter) VisitYouTubeSummary(models.YouTubeSummary) {
	p.out = Presentation{Icon: "🎬", Label: "YouTube Summary", Accent: "green"}
}

func (p *presenter) VisitYouTubeReference(v models.YouTubeReference) {
	p.out = Presentation{
		Icon:    "📺",
		Label:   "YouTube Reference",
		Accent:  "orange",
		Layout:  LayoutWarning,
		Warning: "Transcript was unavailable",
		VideoID: v.VideoID,
	}
}

// PreviewLength is the number of characters shown in list previews.
const PreviewLength = 150

// Preview shortens content to PreviewLength characters.
func Preview(content string) string {
	if content == "" {
		return "No content available"
	}
	if utf8.RuneCountInString(content) <= PreviewLength {
		return content
	}
	return string([]rune(content)[:PreviewLength]) + "..."
}

// Field is one row of the metadata panel.
type Field struct {
	Label string
	Value string
}

// Metadata lists the timestamps and whichever source fields n carries.
func Metadata(n *models.Note) []Field {
	m := metadata{fields: []Field{
		{Label: "Created", Value: formatTime(n.CreatedAt)},
		{Label: "Updated", Value: formatTime(n.UpdatedAt)},
	}}
	n.Variant().Accept(&m)
	return m.fields
}

type metadata struct{ fields []Field }

func (m *metadata) add(label, value string) {
	if value != "" {
		m.fields = append(m.fields, Field{Label: label, Value: value})
	}
}

func (m *metadata) VisitManual(models.Manual) {}

func (m *metadata) VisitPDFSummary(v models.PDFSummary) {
	m.add("Source document", v.SourceDocument)
}

func (m *metadata) VisitVoiceTranscription(v models.VoiceTranscription) {
	m.add("Source audio", v.SourceAudio)
	if v.AudioSize > 0 {
		m.add("Audio size", FormatSize(v.AudioSize))
	}
	m.add("Transcript", v.Transcript)
}

func (m *metadata) VisitYouTubeSummary(v models.YouTubeSummary) {
	m.add("Video ID", v.VideoID)
}

func (m *metadata) VisitYouTubeReference(v models.YouTubeReference) {
	m.add("Video ID", v.VideoID)
}

// FormatSize renders a byte count in MB with two decimals.
func FormatSize(n int64) string {
	return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

// Filter keeps the notes whose title or content contains term, ignoring
// case. An empty term keeps everything. It never calls the backend.
func Filter(notes []models.Note, term string) []models.Note {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return notes
	}
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), term) ||
			strings.Contains(strings.ToLower(n.Content), term) {
			out = append(out, n)
		}
	}
	return out
}

// CountLabel is "1 note" or "N notes".
func CountLabel(n int) string {
	if n == 1 {
		return "1 note"
	}
	return fmt.Sprintf("%d notes", n)
}
