// Package awswire defines the Request/Response shapes shared by the V4
// signer, the HTTP bridge, and the generic AWS client. They are
// intentionally not net/http types: the signer needs to mutate headers in
// place before a connection is even opened, and the bridge only needs
// enough of the HTTP model to write a request and parse a response, not
// redirects, cookies, or automatic content negotiation (spec Non-goals).
package awswire

import (
	"sort"
	"strings"

	"github.com/wzshiming/s3c/pkg/awsurl"
)

// Request is a signable, dispatchable HTTP request. Headers are keyed by
// their lower-cased name; SetHeader/Header always normalize case so that
// canonical-header construction (ascending lower-cased name order) is a
// pure read of the map.
type Request struct {
	Method  string
	URL     *awsurl.URL
	Headers map[string]string
	Body    []byte
}

// NewRequest builds a Request with an initialized header map.
func NewRequest(method string, url *awsurl.URL, body []byte) *Request {
	return &Request{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
		Body:    body,
	}
}

// SetHeader stores value under the lower-cased form of name, overwriting
// any existing value.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(name)] = value
}

// Header returns the value stored for name, case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.Headers[strings.ToLower(name)]
	return v, ok
}

// SortedHeaderNames returns the request's header names, lower-cased and in
// ascending order — the order the V4 canonical request requires.
func (r *Request) SortedHeaderNames() []string {
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Response is the result of dispatching a Request.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Header returns the value stored for name, case-insensitively. Response
// headers are populated by the HTTP bridge with lower-cased keys.
func (r *Response) Header(name string) (string, bool) {
	v, ok := r.Headers[strings.ToLower(name)]
	return v, ok
}
