// Package awspath normalizes request paths before they reach the
// S3-compatible mock handler: percent-decoding, then collapsing "."/".."
// segments the way a real S3 gateway normalizes an object key before
// routing on it. Dot segments are resolved against the root, so no path
// can climb above "/"; they can still leave the bucket they appear under
// ("/bucket/../etc/passwd" becomes "/etc/passwd").
package awspath

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Sanitizer rewrites r.URL.Path through Clean before calling the wrapped
// handler, rejecting requests whose path doesn't decode.
type Sanitizer struct {
	next http.Handler
}

// New wraps next with path sanitization.
func New(next http.Handler) *Sanitizer {
	return &Sanitizer{next: next}
}

func (s *Sanitizer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cleaned, err := Clean(r.URL.Path)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	r.URL.Path = cleaned
	s.next.ServeHTTP(w, r)
}

// Clean percent-decodes p and runs path.Clean over the result. Every path
// this package sees comes from an HTTP request line, so it always has a
// leading slash; path.Clean already confines "."/".." segments to that
// root and never lets them escape above it.
func Clean(p string) (string, error) {
	if p == "" || p == "/" {
		return "/", nil
	}
	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", err
	}
	cleaned := path.Clean(decoded)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned, nil
}
