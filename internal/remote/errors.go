package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starford/scribe/internal/apperr"
)

// maxRawMessage bounds raw response text shown to the user.
const maxRawMessage = 300

// DecodeError turns a non-2xx response into an *apperr.Error. It tries a
// structured payload first (message, error, Message), then the raw body text,
// then a message derived from fallback and the status code. A 404 also
// matches apperr.ErrNotFound.
func DecodeError(resp *http.Response, fallback string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	status := resp.StatusCode

	var e *apperr.Error
	switch msg := structuredMessage(data); {
	case msg != "":
		e = apperr.Remote(status, msg)
	case strings.TrimSpace(string(data)) != "":
		e = apperr.Parse(status, truncate(strings.TrimSpace(string(data)), maxRawMessage), nil)
	default:
		e = apperr.Parse(status, fmt.Sprintf("%s (HTTP %d)", fallback, status), nil)
	}
	if status == http.StatusNotFound {
		e.Err = apperr.ErrNotFound
	}
	return e
}

// structuredMessage extracts the first non-empty message field of a JSON
// error object, or "" when data is not one.
func structuredMessage(data []byte) string {
	var body struct {
		Message  string `json:"message"`
		Error    string `json:"error"`
		MessageU string `json:"Message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	for _, s := range []string{body.Message, body.Error, body.MessageU} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
