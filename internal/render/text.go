package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/starford/scribe/internal/models"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Body returns the note content for a terminal. HTML notes are converted to
// Markdown; if conversion fails the raw content is returned.
func Body(n *models.Note) string {
	if !strings.EqualFold(n.Format, "html") {
		return n.Content
	}
	md, err := mdConverter.ConvertString(n.Content)
	if err != nil {
		return n.Content
	}
	return strings.TrimSpace(md)
}

// WriteList prints one line per note followed by its preview.
func WriteList(w io.Writer, notes []models.Note) error {
	if len(notes) == 0 {
		_, err := fmt.Fprintln(w, "No notes yet")
		return err
	}
	if _, err := fmt.Fprintf(w, "My Notes (%s)\n\n", CountLabel(len(notes))); err != nil {
		return err
	}
	for i := range notes {
		n := &notes[i]
		p := Present(n)
		if _, err := fmt.Fprintf(w, "%s %-18s %s  [%s]  %s\n", p.Icon, p.Label, formatTime(n.CreatedAt), n.ID, n.Title); err != nil {
			return err
		}
		var line string
		if p.Layout == LayoutWarning {
			line = fmt.Sprintf("⚠️ %s (video %s)", p.Warning, p.VideoID)
		} else {
			line = strings.ReplaceAll(Preview(Body(n)), "\n", " ")
		}
		if _, err := fmt.Fprintf(w, "    %s\n", line); err != nil {
			return err
		}
	}
	return nil
}

// WriteNote prints a full note with its metadata panel.
func WriteNote(w io.Writer, n *models.Note) error {
	p := Present(n)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", p.Icon, n.Title)
	fmt.Fprintf(&b, "%s · %s\n\n", p.Label, n.ID)
	if p.Layout == LayoutWarning {
		fmt.Fprintf(&b, "⚠️ %s\nVideo ID: %s\n", p.Warning, p.VideoID)
		_, err := io.WriteString(w, b.String())
		return err
	}
	body := Body(n)
	if body == "" {
		body = "No content available"
	}
	b.WriteString(body)
	b.WriteString("\n\n")
	for _, f := range Metadata(n) {
		fmt.Fprintf(&b, "%-16s %s\n", f.Label+":", f.Value)
	}
	if !p.Editable {
		b.WriteString("(read-only)\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
