package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/starford/scribe/internal/ingest"
)

const maxRedirects = 5

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

var errNotBase64 = errors.New("only base64 data URIs are supported")

// resolve turns a tool source (local path, data URI or http(s) URL) into an
// artifact. Remote sources are read up to one byte past the limit for kind so
// an oversize file is rejected with its size class, never buffered whole.
func (s *Server) resolve(ctx context.Context, src, filename string, kind ingest.Kind) (*ingest.Artifact, error) {
	limit := ingest.MaxSize(kind)

	var (
		data     []byte
		declared string
		err      error
	)
	switch {
	case strings.HasPrefix(src, "data:"):
		data, declared, err = decodeDataURI(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		data, err = s.fetch(ctx, src, limit)
	default:
		return ingest.FromPath(src)
	}
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ingest.TooLarge(kind, int64(len(data)))
	}

	detected := mimetype.Detect(data)
	if declared == "" || declared == "application/octet-stream" {
		declared = detected.String()
	}
	if filename == "" {
		filename = remoteName(src, detected)
	}
	return ingest.FromBytes(cleanFilename(filename), declared, data), nil
}

// decodeDataURI splits data:<mediatype>;base64,<payload> into its bytes and
// lower-cased media type.
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("invalid data URI: no payload")
	}
	header, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", errNotBase64
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("invalid data URI payload: %w", err)
		}
	}

	mediaType := ""
	if header != "" {
		if mt, _, perr := mime.ParseMediaType(header); perr == nil {
			mediaType = mt
		}
	}
	return data, mediaType, nil
}

// fetchHTTP downloads at most limit+1 bytes of rawURL. Loopback, link-local
// and cloud metadata hosts are refused, including as redirect targets.
func fetchHTTP(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("unsupported source URL: %s", rawURL)
	}
	if err := allowHost(u.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 2 * time.Minute,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return allowHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: %s", u.Host, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit+1))
}

// allowHost rejects hosts a tool call must not reach.
func allowHost(host string) error {
	if strings.EqualFold(host, "metadata.google.internal") {
		return fmt.Errorf("blocked host: %s", host)
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return nil //nolint:nilerr // the download reports DNS failures
		}
		ips = resolved
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("blocked host: %s (%s)", host, ip)
		}
	}
	return nil
}

// remoteName picks an upload name for a source that did not supply one.
func remoteName(src string, detected *mimetype.MIME) string {
	if u, err := url.Parse(src); err == nil && u.Scheme != "data" {
		if base := path.Base(u.Path); strings.Contains(base, ".") && base != "." {
			return base
		}
	}
	ext := detected.Extension()
	if ext == "" {
		ext = ".bin"
	}
	return uuid.NewString() + ext
}

// cleanFilename keeps the base name and replaces anything outside
// [a-zA-Z0-9._-].
func cleanFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(filepath.Base(name), "_")
	if name == "" || name == "." || name == ".." {
		return uuid.NewString()
	}
	return name
}
