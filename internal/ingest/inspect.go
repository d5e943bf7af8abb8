package ingest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info is a human-readable description of an artifact.
type Info struct {
	Name   string
	MIME   string
	SizeMB float64
	Pages  int // 0 when unknown
}

func (i Info) String() string {
	s := fmt.Sprintf("%s (%.2f MB, %s)", i.Name, i.SizeMB, i.MIME)
	if i.Pages > 0 {
		s += fmt.Sprintf(", %d page(s)", i.Pages)
	}
	return s
}

// Inspect describes a. It never rejects: a PDF that cannot be parsed simply
// reports no page count.
func Inspect(a *Artifact) Info {
	info := Info{Name: a.Name, MIME: a.MIME, SizeMB: megabytes(a.Size)}
	if a.MIME == "application/pdf" && a.Size <= MaxPDFSize {
		info.Pages = pageCount(a)
	}
	return info
}

func pageCount(a *Artifact) int {
	rc, err := a.Open()
	if err != nil {
		return 0
	}
	defer rc.Close()

	var rs io.ReadSeeker
	if s, ok := rc.(io.ReadSeeker); ok {
		rs = s
	} else {
		data, err := io.ReadAll(io.LimitReader(rc, MaxPDFSize))
		if err != nil {
			return 0
		}
		rs = bytes.NewReader(data)
	}

	ctx, err := api.ReadValidateAndOptimize(rs, model.NewDefaultConfiguration())
	if err != nil {
		return 0
	}
	return ctx.PageCount
}
