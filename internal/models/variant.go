package models

// Variant is the closed set of note shapes. Consumers dispatch through Accept so
// that adding a variant breaks every Visitor at compile time.
type Variant interface {
	Kind() ContentType
	// Editable reports whether the free-text fields may be edited.
	Editable() bool
	Accept(v Visitor)
	sealed()
}

// Visitor handles each Variant.
type Visitor interface {
	VisitManual(Manual)
	VisitPDFSummary(PDFSummary)
	VisitVoiceTranscription(VoiceTranscription)
	VisitYouTubeSummary(YouTubeSummary)
	VisitYouTubeReference(YouTubeReference)
}

// Manual is a note typed by the user.
type Manual struct{}

// PDFSummary is a note produced by summarizing an uploaded PDF.
type PDFSummary struct {
	SourceDocument string
}

// VoiceTranscription is a note produced from uploaded or recorded audio.
type VoiceTranscription struct {
	SourceAudio string
	AudioSize   int64
	Transcript  string
}

// YouTubeSummary is a note summarizing a video.
type YouTubeSummary struct {
	VideoID string
}

// YouTubeReference is a placeholder for a video that could not be summarized.
// It has no body.
type YouTubeReference struct {
	VideoID string
}

func (Manual) Kind() ContentType             { return ContentManual }
func (PDFSummary) Kind() ContentType         { return ContentPDFSummary }
func (VoiceTranscription) Kind() ContentType { return ContentVoiceTranscription }
func (YouTubeSummary) Kind() ContentType     { return ContentYouTubeSummary }
func (YouTubeReference) Kind() ContentType   { return ContentYouTubeReference }

func (Manual) Editable() bool             { return true }
func (PDFSummary) Editable() bool         { return true }
func (VoiceTranscription) Editable() bool { return true }
func (YouTubeSummary) Editable() bool     { return false }
func (YouTubeReference) Editable() bool   { return false }

func (m Manual) Accept(v Visitor)             { v.VisitManual(m) }
func (p PDFSummary) Accept(v Visitor)         { v.VisitPDFSummary(p) }
func (t VoiceTranscription) Accept(v Visitor) { v.VisitVoiceTranscription(t) }
func (y YouTubeSummary) Accept(v Visitor)     { v.VisitYouTubeSummary(y) }
func (y YouTubeReference) Accept(v Visitor)   { v.VisitYouTubeReference(y) }

func (Manual) sealed()             {}
func (PDFSummary) sealed()         {}
func (VoiceTranscription) sealed() {}
func (YouTubeSummary) sealed()     {}
func (YouTubeReference) sealed()   {}
