// Package ingest describes files offered for processing and decides, before
// any network call, whether they are acceptable.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Artifact is a file chosen or recorded by the user. It is immutable once
// built.
type Artifact struct {
	Name string
	MIME string
	Size int64

	open func() (io.ReadCloser, error)
}

// Open returns a fresh reader over the artifact's bytes.
func (a *Artifact) Open() (io.ReadCloser, error) {
	if a.open == nil {
		return nil, fmt.Errorf("ingest: artifact %q has no content", a.Name)
	}
	return a.open()
}

// FromPath builds an artifact from a file on disk. The MIME type is sniffed
// from the content, since no browser reported one.
func FromPath(path string) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("ingest: %s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: detect type of %s: %w", path, err)
	}
	return &Artifact{
		Name: filepath.Base(path),
		MIME: mediaType(mt.String()),
		Size: info.Size(),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// FromMultipart builds an artifact from an uploaded form file, trusting the
// MIME type the browser reported.
func FromMultipart(fh *multipart.FileHeader) *Artifact {
	return &Artifact{
		Name: filepath.Base(fh.Filename),
		MIME: mediaType(fh.Header.Get("Content-Type")),
		Size: fh.Size,
		open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// FromBytes builds an artifact over an in-memory buffer.
func FromBytes(name, mime string, data []byte) *Artifact {
	return &Artifact{
		Name: name,
		MIME: mediaType(mime),
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// mediaType lowercases a MIME value and drops its parameters.
func mediaType(s string) string {
	s, _, _ = strings.Cut(s, ";")
	return strings.ToLower(strings.TrimSpace(s))
}

// extension returns the lowercased name suffix after the last dot.
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Detach copies a's content into memory so it outlives its source (for
// example an upload whose temporary files are removed with the request).
func Detach(a *Artifact) (*Artifact, error) {
	rc, err := a.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", a.Name, err)
	}
	return FromBytes(a.Name, a.MIME, data), nil
}
