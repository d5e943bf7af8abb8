// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes scribe notes and processing tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/notes"
	"github.com/starford/scribe/internal/processing"
	"github.com/starford/scribe/internal/render"
)

// Server wraps the MCP server with scribe tools.
type Server struct {
	mcp    *server.MCPServer
	notes  *notes.Repository
	pdf    *processing.Orchestrator
	audio  *processing.Orchestrator
	logger *slog.Logger

	// fetch resolves http(s) sources; replaced in tests.
	fetch func(ctx context.Context, rawURL string, limit int64) ([]byte, error)
}

// New creates a new MCP server with all scribe tools registered.
func New(repo *notes.Repository, pdf, audio *processing.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{notes: repo, pdf: pdf, audio: audio, logger: logger, fetch: fetchHTTP}

	s.mcp = server.NewMCPServer(
		"Scribe",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note of the signed-in user with its type and a short preview."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive search over note titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search term")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note in full, including its metadata."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a manual note. Read the scribe://note-types resource for the note shapes."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Plain-text body")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the title and content of a manual, PDF summary, or voice note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New body")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note. Nothing happens unless confirm is true."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true to delete")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("summarize_pdf",
		mcp.WithDescription("Upload a PDF (max 25MB) for summarization. The backend saves the summary as a note."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Local path, base64 data URI, or http(s) URL")),
		mcp.WithString("filename", mcp.Description("File name to report when the source has none")),
	), s.process(s.pdf))

	s.mcp.AddTool(mcp.NewTool("transcribe_audio",
		mcp.WithDescription("Upload audio (MP3, WAV, M4A, MP4, WebM; max 50MB) for transcription and summary. The backend saves the result as a note."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Local path, base64 data URI, or http(s) URL")),
		mcp.WithString("filename", mcp.Description("File name to report when the source has none")),
	), s.process(s.audio))

	s.mcp.AddResource(
		mcp.NewResource("scribe://note-types", "Note Types",
			mcp.WithResourceDescription("The note shapes scribe knows and which of them can be edited."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteTypesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns err into a tool-level error result. Auth failures tell the
// agent how to recover.
func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrUnauthenticated) {
		return mcp.NewToolResultError(err.Error() + " (run `scribe login`)")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, err := s.notes.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	var buf bytes.Buffer
	if err := render.WriteList(&buf, all); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	all, err := s.notes.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	found := render.Filter(all, query)
	if len(found) == 0 {
		return mcp.NewToolResultText("No notes found"), nil
	}
	var buf bytes.Buffer
	if err := render.WriteList(&buf, found); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return toolError(err), nil
	}
	var buf bytes.Buffer
	if err := render.WriteNote(&buf, &n); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d := notes.Draft{Title: req.GetString("title", ""), Content: req.GetString("content", "")}
	n, err := s.notes.Create(ctx, d)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	current, err := s.notes.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	if !current.Editable() {
		p := render.Present(&current)
		return mcp.NewToolResultError(p.Label + " notes cannot be edited"), nil
	}
	d := notes.Draft{Title: req.GetString("title", ""), Content: req.GetString("content", "")}
	n, err := s.notes.Update(ctx, id, d)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", n.ID)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	confirmed := req.GetBool("confirm", false)
	err = s.notes.Delete(ctx, id, func() bool { return confirmed })
	switch {
	case err == nil:
		return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
	case errors.Is(err, apperr.ErrCancelled):
		return mcp.NewToolResultText("not deleted: confirm was false"), nil
	}
	return toolError(err), nil
}

// process uploads the source through o and waits for the result.
func (s *Server) process(o *processing.Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		src, err := req.RequireString("source")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		a, err := s.resolve(ctx, src, req.GetString("filename", ""), o.Target().Kind)
		if err != nil {
			return toolError(err), nil
		}
		if err := o.Select(a); err != nil {
			return toolError(err), nil
		}
		snap, err := o.Submit(ctx)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(snap.Message + "\n\n" + snap.Content), nil
	}
}

func (s *Server) readNoteTypesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "scribe://note-types",
			MIMEType: "text/markdown",
			Text:     NoteTypes,
		},
	}, nil
}
