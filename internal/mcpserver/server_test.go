package mcpserver

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/scribe/internal/notes"
	"github.com/starford/scribe/internal/processing"
	"github.com/starford/scribe/internal/session"
	"github.com/starford/scribe/internal/storage"
	"github.com/starford/scribe/internal/testutil"
)

func testServer(t *testing.T, b *testutil.Backend, token string) *Server {
	t.Helper()

	store := storage.NewMemory()
	if token != "" {
		_ = store.Save(token)
	}
	s, err := session.New(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	client, err := s.Client(b.URL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return New(
		notes.NewRepository(client),
		processing.New(processing.PDFSummarize, client),
		processing.New(processing.AudioTranscribe, client),
		nil,
	)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_notes":       srv.listNotes,
		"search_notes":     srv.searchNotes,
		"read_note":        srv.readNote,
		"create_note":      srv.createNote,
		"update_note":      srv.updateNote,
		"delete_note":      srv.deleteNote,
		"summarize_pdf":    srv.process(srv.pdf),
		"transcribe_audio": srv.process(srv.audio),
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"title":   "Test",
		"content": "Hello",
	})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "created: ") {
		t.Fatalf("create result = %q", text)
	}
	id := strings.TrimPrefix(text, "created: ")

	r = callTool(t, srv, "read_note", map[string]interface{}{"id": id})
	text = resultText(r)
	if !strings.Contains(text, "Test") || !strings.Contains(text, "Hello") {
		t.Errorf("read result = %q", text)
	}
}

func TestCreateNoteRejectsBlank(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())

	r := callTool(t, srv, "create_note", map[string]interface{}{"title": " ", "content": "x"})
	if !r.IsError || resultText(r) != "Please enter a note title" {
		t.Errorf("result = %q", resultText(r))
	}
	if b.Hits("POST /notes") != 0 {
		t.Error("blank draft reached the backend")
	}
}

func TestListAndSearchNotes(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())
	b.Seed(map[string]any{"title": "Quarterly report", "content": "numbers", "content_type": "pdf_summary"})
	b.Seed(map[string]any{"title": "Shopping", "content": "eggs", "content_type": "manual"})

	text := resultText(callTool(t, srv, "list_notes", map[string]interface{}{}))
	if !strings.Contains(text, "Quarterly report") || !strings.Contains(text, "Shopping") {
		t.Errorf("list = %q", text)
	}

	text = resultText(callTool(t, srv, "search_notes", map[string]interface{}{"query": "EGGS"}))
	if !strings.Contains(text, "Shopping") || strings.Contains(text, "Quarterly") {
		t.Errorf("search = %q", text)
	}
	text = resultText(callTool(t, srv, "search_notes", map[string]interface{}{"query": "zzz"}))
	if text != "No notes found" {
		t.Errorf("empty search = %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())
	r := callTool(t, srv, "read_note", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestUpdateRefusesYouTubeNote(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())
	id := b.Seed(map[string]any{"title": "Video", "content": "s", "content_type": "youtube_summary", "source_video_id": "v"})

	r := callTool(t, srv, "update_note", map[string]interface{}{"id": id, "title": "a", "content": "b"})
	if !r.IsError || !strings.Contains(resultText(r), "cannot be edited") {
		t.Errorf("result = %q", resultText(r))
	}
	if b.Hits("PUT /notes/{id}") != 0 {
		t.Error("update reached the backend")
	}
}

func TestDeleteNeedsConfirm(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())
	id := b.Seed(map[string]any{"title": "Gone", "content": "x", "content_type": "manual"})

	r := callTool(t, srv, "delete_note", map[string]interface{}{"id": id, "confirm": false})
	if r.IsError || b.Hits("DELETE /notes/{id}") != 0 {
		t.Fatalf("unconfirmed delete: %q", resultText(r))
	}
	r = callTool(t, srv, "delete_note", map[string]interface{}{"id": id, "confirm": true})
	if r.IsError {
		t.Fatalf("delete: %q", resultText(r))
	}
	if _, ok := b.Record(id); ok {
		t.Error("record still present")
	}
}

func TestUnauthenticatedToolsSendNothing(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, "")

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	if !r.IsError || !strings.Contains(resultText(r), "scribe login") {
		t.Errorf("result = %q", resultText(r))
	}
	if b.Requests() != 0 {
		t.Errorf("backend saw %d requests", b.Requests())
	}
}

func TestSummarizeFromPath(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())

	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n%%EOF\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "summarize_pdf", map[string]interface{}{"source": path})
	if r.IsError {
		t.Fatalf("summarize: %q", resultText(r))
	}
	if !strings.Contains(resultText(r), "Summary of paper.pdf") {
		t.Errorf("result = %q", resultText(r))
	}
	ups := b.Uploads()
	if len(ups) != 1 || ups[0].ContentType != "application/pdf" {
		t.Errorf("uploads = %+v", ups)
	}
}

func TestTranscribeFromDataURI(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())

	src := "data:audio/webm;base64," + base64.StdEncoding.EncodeToString([]byte("webm-bytes"))
	r := callTool(t, srv, "transcribe_audio", map[string]interface{}{"source": src, "filename": "memo.webm"})
	if r.IsError {
		t.Fatalf("transcribe: %q", resultText(r))
	}
	ups := b.Uploads()
	if len(ups) != 1 || ups[0].Filename != "memo.webm" || ups[0].ContentType != "audio/webm" {
		t.Errorf("uploads = %+v", ups)
	}
}

func TestProcessRejectsWrongTypeWithoutNetwork(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())

	src := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
	r := callTool(t, srv, "summarize_pdf", map[string]interface{}{"source": src})
	if !r.IsError || resultText(r) != "Only PDF documents are supported" {
		t.Errorf("result = %q", resultText(r))
	}
	if b.Requests() != 0 {
		t.Errorf("backend saw %d requests", b.Requests())
	}
}

func TestRemoteSourceLimit(t *testing.T) {
	b := testutil.NewBackend(t)
	srv := testServer(t, b, b.Token())
	srv.fetch = func(_ context.Context, _ string, limit int64) ([]byte, error) {
		return make([]byte, limit+1), nil
	}

	r := callTool(t, srv, "summarize_pdf", map[string]interface{}{"source": "https://example.com/big.pdf"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "Document too large") {
		t.Errorf("result = %q", resultText(r))
	}
	if b.Requests() != 0 {
		t.Errorf("backend saw %d requests", b.Requests())
	}
}

func TestFetchBlocksLoopback(t *testing.T) {
	_, err := fetchHTTP(context.Background(), "http://127.0.0.1:1/x.pdf", 10)
	if err == nil || !strings.Contains(err.Error(), "blocked host") {
		t.Errorf("err = %v", err)
	}
}

func TestDecodeDataURI(t *testing.T) {
	data, mime, err := decodeDataURI("data:Audio/WAV;base64," + base64.StdEncoding.EncodeToString([]byte("RIFF")))
	if err != nil || string(data) != "RIFF" || mime != "audio/wav" {
		t.Errorf("got %q %q %v", data, mime, err)
	}
	if _, _, err := decodeDataURI("data:text/plain,hello"); err == nil {
		t.Error("plain data URI accepted")
	}
}

func TestCleanFilename(t *testing.T) {
	if got := cleanFilename("../../etc/pass wd.pdf"); got != "pass_wd.pdf" {
		t.Errorf("got %q", got)
	}
}

func TestAllowHostBlocksMetadata(t *testing.T) {
	for _, host := range []string{"169.254.169.254", "metadata.google.internal", "0.0.0.0", "::1"} {
		if err := allowHost(host); err == nil {
			t.Errorf("%s allowed", host)
		}
	}
	if err := allowHost("93.184.216.34"); err != nil {
		t.Errorf("public address blocked: %v", err)
	}
}
