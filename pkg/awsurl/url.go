// Package awsurl builds and renders the AWS-flavored URLs consumed by the
// V4 signer and the HTTP bridge. Every component is stored already
// URL-encoded so that downstream consumers — the wire request and the
// canonical request used for signing — read the same bytes.
package awsurl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Scheme is the transport scheme of a URL. AWS request signing is
// insensitive to it, but the default port and the wire scheme depend on it.
type Scheme int

const (
	HTTPS Scheme = iota
	HTTP
)

// DefaultPort returns the well-known port for the scheme.
func (s Scheme) DefaultPort() int {
	if s == HTTP {
		return 80
	}
	return 443
}

func (s Scheme) String() string {
	if s == HTTP {
		return "http"
	}
	return "https"
}

// URL is a mutable AWS request URL: scheme, host, port, an already-encoded
// path, and an already-encoded, key-sorted query.
//
// path is stored without a leading slash; it is reinserted on emission.
// params maps encoded key to encoded value; QueryString sorts keys
// ascending at read time, which is what V4 signing requires.
type URL struct {
	scheme Scheme
	host   string
	port   int
	path   string
	params map[string]string
}

// New returns a URL defaulted to HTTPS on its default port.
func New() *URL {
	return &URL{
		scheme: HTTPS,
		port:   HTTPS.DefaultPort(),
		params: make(map[string]string),
	}
}

// Scheme returns the current scheme.
func (u *URL) Scheme() Scheme { return u.scheme }

// SetScheme changes the scheme. If the current port is still the previous
// scheme's default, it is moved to the new scheme's default; an explicitly
// set port survives the switch.
func (u *URL) SetScheme(s Scheme) {
	if u.port == u.scheme.DefaultPort() {
		u.port = s.DefaultPort()
	}
	u.scheme = s
}

// Host returns the current host, without port.
func (u *URL) Host() string { return u.host }

// Port returns the current port (explicit or scheme default).
func (u *URL) Port() int { return u.port }

// SetHost parses "host" or "host:port" and sets both fields. hostport is
// expected to already be validated by the caller (e.g. it came from a
// service's own endpoint construction, not directly from a user); a
// malformed port is treated as a programming error and panics rather than
// being propagated, matching the invariant that this layer never recovers
// from bad input.
func (u *URL) SetHost(hostport string) {
	idx := strings.LastIndexByte(hostport, ':')
	if idx < 0 {
		u.host = hostport
		return
	}
	host, portStr := hostport[:idx], hostport[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		panic(fmt.Sprintf("awsurl: invalid port in host %q: %v", hostport, err))
	}
	u.host = host
	u.port = port
}

// SetPath encodes and stores raw as the path. Segments produced by "//" are
// elided; the stored form never has a leading slash.
func (u *URL) SetPath(raw string) {
	segments := strings.Split(raw, "/")
	encoded := segments[:0]
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		encoded = append(encoded, encode(seg))
	}
	u.path = strings.Join(encoded, "/")
}

// Path returns the stored, already-encoded path without a leading slash.
func (u *URL) Path() string { return u.path }

// SetRawPath stores raw verbatim as the already-encoded path, without
// elision or re-encoding. Used when composing a path out of pieces that
// are individually already the output of SetPath/Path, to avoid
// double-encoding them.
func (u *URL) SetRawPath(raw string) {
	u.path = strings.TrimPrefix(raw, "/")
}

// EncodedPath returns the path as it appears on the wire and in the
// canonical request: leading slash present, "/" when empty.
func (u *URL) EncodedPath() string {
	if u.path == "" {
		return "/"
	}
	return "/" + u.path
}

// AddParam stores encode(k) -> encode(v). A repeated key overwrites the
// previous value.
func (u *URL) AddParam(k, v string) {
	if u.params == nil {
		u.params = make(map[string]string)
	}
	u.params[encode(k)] = encode(v)
}

// QueryString renders params as "k1=v1&k2=v2&..." in ascending key order,
// or "" when there are no params.
func (u *URL) QueryString() string {
	if len(u.params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(u.params))
	for k := range u.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + u.params[k]
	}
	return strings.Join(parts, "&")
}

// String renders "scheme://host[:port]/path[?query]", suppressing the port
// when it equals the scheme's default.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.scheme.String())
	b.WriteString("://")
	b.WriteString(u.host)
	if u.port != u.scheme.DefaultPort() {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(u.port))
	}
	b.WriteString(u.EncodedPath())
	if q := u.QueryString(); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

// encode applies the AWS URI-encoding variant: unreserved bytes
// (alphanumerics, '-', '_', '.', '~') pass through; everything else,
// including '/', becomes an uppercase "%XX".
func encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	default:
		return false
	}
}
