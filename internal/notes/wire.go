package notes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/scribe/internal/models"
)

// wireNote is a backend record as received. Every field is optional.
type wireNote struct {
	MongoID flexString `json:"_id"`
	ID      flexString `json:"id"`
	NoteID  flexString `json:"note_id"`

	Title       *string `json:"title"`
	Content     string  `json:"content"`
	ContentType string  `json:"content_type"`
	Format      string  `json:"format"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`

	SourceDocument string    `json:"source_document"`
	SourceAudio    string    `json:"source_audio"`
	AudioSize      flexInt64 `json:"audio_size"`
	Transcript     string    `json:"transcript"`
	SourceVideoID  string    `json:"source_video_id"`
}

func (w *wireNote) id() string {
	for _, s := range []flexString{w.MongoID, w.ID, w.NoteID} {
		if s != "" {
			return string(s)
		}
	}
	return ""
}

// isRecord tells a full record from an acknowledgement such as
// {"note_id": "...", "message": "..."}.
func (w *wireNote) isRecord() bool {
	return w.Title != nil || w.ContentType != "" || w.CreatedAt != ""
}

// flexString accepts a JSON string, number, or {"$oid": "..."}.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case len(data) > 0 && data[0] == '{':
		var oid struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(data, &oid); err != nil {
			return err
		}
		*f = flexString(oid.OID)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("notes: unsupported id %s", data)
		}
		*f = flexString(n.String())
	}
	return nil
}

// flexInt64 accepts a JSON number or numeric string; anything else is zero.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt64(n)
	} else {
		*f = 0
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123,
	time.RFC1123Z,
}

// parseTime understands ISO-8601 with or without zone, and the RFC 1123 form
// Flask emits for datetimes.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeError describes a record that cannot become a Note.
type normalizeError struct {
	id     string
	reason string
}

func (e *normalizeError) Error() string {
	if e.id == "" {
		return "invalid note record: " + e.reason
	}
	return fmt.Sprintf("invalid note record %s: %s", e.id, e.reason)
}

// normalize applies the display defaults to an untrusted record. warn is
// called for recoverable oddities.
func normalize(w *wireNote, now time.Time, warn func(msg string, id string)) (models.Note, error) {
	n := models.Note{
		ID:             w.id(),
		Content:        w.Content,
		Format:         strings.TrimSpace(w.Format),
		SourceDocument: w.SourceDocument,
		SourceAudio:    w.SourceAudio,
		AudioSize:      int64(w.AudioSize),
		Transcript:     w.Transcript,
		SourceVideoID:  strings.TrimSpace(w.SourceVideoID),
	}
	if n.ID == "" {
		return models.Note{}, &normalizeError{reason: "missing id"}
	}

	if w.Title != nil && strings.TrimSpace(*w.Title) != "" {
		n.Title = *w.Title
	} else {
		n.Title = "Untitled"
	}

	switch ct, ok := models.ParseContentType(w.ContentType); {
	case w.ContentType == "":
		n.ContentType = models.ContentManual
	case !ok:
		warn("unknown content type "+strconv.Quote(w.ContentType)+", shown as manual", n.ID)
		n.ContentType = models.ContentManual
	default:
		n.ContentType = ct
	}

	if n.ContentType == models.ContentYouTubeReference && n.SourceVideoID == "" {
		return models.Note{}, &normalizeError{id: n.ID, reason: "youtube_reference without source_video_id"}
	}

	if n.Format == "" {
		n.Format = models.DefaultFormat
	}

	created, ok := parseTime(w.CreatedAt)
	if !ok {
		if w.CreatedAt != "" {
			warn("unparsable created_at "+strconv.Quote(w.CreatedAt), n.ID)
		}
		created = now
	}
	updated, ok := parseTime(w.UpdatedAt)
	if !ok {
		updated = created
	}
	n.CreatedAt, n.UpdatedAt = created, updated
	return n, nil
}
