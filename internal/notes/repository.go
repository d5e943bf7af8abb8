// Package notes is the client-side repository over the backend's note
// endpoints. Nothing is cached: every read goes to the backend.
package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/remote"
)

// Change kinds passed to a Listener.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// Listener observes successful mutations.
type Listener func(kind string, n models.Note)

// Confirm asks the user to approve a destructive action.
type Confirm func() bool

// DeletePrompt is the question asked before deleting a note.
func DeletePrompt(title string) string {
	return fmt.Sprintf("Are you sure you want to delete %q?", title)
}

// Repository reads and writes notes through a guarded backend client.
type Repository struct {
	client   *remote.Client
	logger   *slog.Logger
	listener Listener
	now      func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithListener sets the mutation listener.
func WithListener(l Listener) Option {
	return func(r *Repository) { r.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// NewRepository creates a Repository. client must carry the session guard.
func NewRepository(client *remote.Client, opts ...Option) *Repository {
	r := &Repository{client: client, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns every note in server order. Records that cannot be shown are
// skipped with a warning.
func (r *Repository) List(ctx context.Context) ([]models.Note, error) {
	var raw []json.RawMessage
	if err := r.client.JSON(ctx, http.MethodGet, "/notes", nil, &raw); err != nil {
		return nil, err
	}
	now := r.now()
	out := make([]models.Note, 0, len(raw))
	for i, item := range raw {
		var w wireNote
		if err := json.Unmarshal(item, &w); err != nil {
			r.logger.Warn("notes: skipping undecodable record",
				slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		n, err := normalize(&w, now, r.warn)
		if err != nil {
			r.logger.Warn("notes: skipping record", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Get returns one note. A missing note matches apperr.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (models.Note, error) {
	var w wireNote
	if err := r.client.JSON(ctx, http.MethodGet, notePath(id), nil, &w); err != nil {
		return models.Note{}, err
	}
	if w.id() == "" {
		w.ID = flexString(id)
	}
	n, err := normalize(&w, r.now(), r.warn)
	if err != nil {
		return models.Note{}, apperr.Parse(http.StatusOK, err.Error(), err)
	}
	return n, nil
}

// Draft is the editable part of a note.
type Draft struct {
	Title   string
	Content string
}

func (d *Draft) trim() {
	d.Title = strings.TrimSpace(d.Title)
	d.Content = strings.TrimSpace(d.Content)
}

// Create stores a new manual note. Title and content are trimmed and must be
// non-empty; nothing is sent otherwise.
func (r *Repository) Create(ctx context.Context, d Draft) (models.Note, error) {
	d.trim()
	if err := validation.Validate(d.Title, validation.Required.Error("Please enter a note title")); err != nil {
		return models.Note{}, apperr.Validation("%s", err.Error())
	}
	if err := validation.Validate(d.Content, validation.Required.Error("Please add some content to your note")); err != nil {
		return models.Note{}, apperr.Validation("%s", err.Error())
	}

	body := map[string]string{
		"title":        d.Title,
		"content":      d.Content,
		"format":       models.DefaultFormat,
		"content_type": string(models.ContentManual),
	}
	var w wireNote
	if err := r.client.JSON(ctx, http.MethodPost, "/notes", body, &w); err != nil {
		return models.Note{}, err
	}

	var n models.Note
	now := r.now().UTC()
	switch {
	case w.isRecord():
		var err error
		if n, err = normalize(&w, now, r.warn); err != nil {
			return models.Note{}, apperr.Parse(http.StatusCreated, err.Error(), err)
		}
	case w.id() != "":
		n = models.Note{
			ID:          w.id(),
			Title:       d.Title,
			Content:     d.Content,
			ContentType: models.ContentManual,
			Format:      models.DefaultFormat,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	default:
		return models.Note{}, apperr.Parse(http.StatusCreated, "Create response did not include a note id", nil)
	}

	r.logger.Info("notes: created", slog.String("id", n.ID))
	r.emit(Created, n)
	return n, nil
}

// Update replaces title and content of note id. Provenance fields are never
// sent.
func (r *Repository) Update(ctx context.Context, id string, d Draft) (models.Note, error) {
	d.trim()
	if err := validation.Validate(d.Title, validation.Required.Error("Title and content cannot be empty")); err != nil {
		return models.Note{}, apperr.Validation("%s", err.Error())
	}
	if err := validation.Validate(d.Content, validation.Required.Error("Title and content cannot be empty")); err != nil {
		return models.Note{}, apperr.Validation("%s", err.Error())
	}

	body := map[string]string{
		"title":      d.Title,
		"content":    d.Content,
		"updated_at": r.now().UTC().Format(time.RFC3339Nano),
	}
	var w wireNote
	if err := r.client.JSON(ctx, http.MethodPut, notePath(id), body, &w); err != nil {
		return models.Note{}, err
	}

	var n models.Note
	if w.isRecord() {
		if w.id() == "" {
			w.ID = flexString(id)
		}
		var err error
		if n, err = normalize(&w, r.now(), r.warn); err != nil {
			return models.Note{}, apperr.Parse(http.StatusOK, err.Error(), err)
		}
	} else {
		var err error
		if n, err = r.Get(ctx, id); err != nil {
			return models.Note{}, err
		}
	}

	r.logger.Info("notes: updated", slog.String("id", id))
	r.emit(Updated, n)
	return n, nil
}

// Delete removes note id once confirm approves. A declined confirmation
// returns apperr.ErrCancelled without contacting the backend; a note that is
// already gone matches apperr.ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id string, confirm Confirm) error {
	if confirm == nil || !confirm() {
		return apperr.ErrCancelled
	}
	if err := r.client.JSON(ctx, http.MethodDelete, notePath(id), nil, nil); err != nil {
		return err
	}
	r.logger.Info("notes: deleted", slog.String("id", id))
	r.emit(Deleted, models.Note{ID: id})
	return nil
}

func (r *Repository) emit(kind string, n models.Note) {
	if r.listener != nil {
		r.listener(kind, n)
	}
}

func (r *Repository) warn(msg, id string) {
	r.logger.Warn("notes: "+msg, slog.String("id", id))
}

func notePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}
