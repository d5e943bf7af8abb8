package render

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/starford/scribe/internal/models"
)

var (
	htmlPolicy = bluemonday.UGCPolicy()
	textPolicy = bluemonday.StrictPolicy()
)

// HTMLBody returns the note content safe for a browser. HTML notes are
// sanitized; everything else is escaped and shown as preformatted text by the
// page.
func HTMLBody(n *models.Note) template.HTML {
	if strings.EqualFold(n.Format, "html") {
		return template.HTML(htmlPolicy.Sanitize(n.Content))
	}
	return template.HTML(template.HTMLEscapeString(n.Content))
}

// Card is the view model for one note in a page.
type Card struct {
	Note         models.Note
	Presentation Presentation
	Preview      string
	Body         template.HTML
	Metadata     []Field
	Characters   int
}

// NewCard builds the view model for n.
func NewCard(n models.Note) Card {
	return Card{
		Note:         n,
		Presentation: Present(&n),
		Preview:      Preview(plainText(&n)),
		Body:         HTMLBody(&n),
		Metadata:     Metadata(&n),
		Characters:   len([]rune(n.Content)),
	}
}

// Cards builds view models for notes.
func Cards(notes []models.Note) []Card {
	out := make([]Card, len(notes))
	for i, n := range notes {
		out[i] = NewCard(n)
	}
	return out
}

// plainText strips markup from HTML notes for previews.
func plainText(n *models.Note) string {
	if !strings.EqualFold(n.Format, "html") {
		return n.Content
	}
	return html.UnescapeString(textPolicy.Sanitize(n.Content))
}
