// Package awshttp is the single-connection HTTP bridge the generic AWS
// client dispatches signed requests through. It keeps at most one cached
// connection, keyed by (host, port, tls); the cache is dropped and
// replaced whenever that key changes, the peer asks for Connection:
// close, or a send fails outright. It is not safe for concurrent use —
// spec models it as owned by a single cooperative executor.
package awshttp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wzshiming/s3c/pkg/awsurl"
	"github.com/wzshiming/s3c/pkg/awswire"
)

// NetworkError wraps a transport-level failure: dial, write, or read. The
// generic client (pkg/awsclient) classifies it as a retryable AwsError;
// the bridge itself never retries.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("awshttp: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

type connKey struct {
	host string
	port int
	tls  bool
}

// Bridge dispatches Requests over a single cached connection.
type Bridge struct {
	key  connKey
	conn net.Conn
	br   *bufio.Reader

	// DialTimeout bounds opening a new connection. Defaulted by NewBridge.
	DialTimeout time.Duration
}

// NewBridge returns a Bridge with no cached connection.
func NewBridge() *Bridge {
	return &Bridge{DialTimeout: 10 * time.Second}
}

// Send writes req over the cached (or newly opened) connection and reads
// a full response into memory. On any transport failure the cached
// connection is dropped and a *NetworkError is returned.
func (b *Bridge) Send(ctx context.Context, req *awswire.Request) (*awswire.Response, error) {
	key := connKey{
		host: req.URL.Host(),
		port: req.URL.Port(),
		tls:  req.URL.Scheme() == awsurl.HTTPS,
	}

	if b.conn == nil || b.key != key {
		b.dropLocked()
		conn, err := b.dial(ctx, key)
		if err != nil {
			return nil, &NetworkError{Err: err}
		}
		b.conn = conn
		b.br = bufio.NewReader(conn)
		b.key = key
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = b.conn.SetDeadline(deadline)
	} else {
		_ = b.conn.SetDeadline(time.Time{})
	}

	httpReq, err := b.buildHTTPRequest(req)
	if err != nil {
		b.dropLocked()
		return nil, &NetworkError{Err: err}
	}

	if err := httpReq.Write(b.conn); err != nil {
		b.dropLocked()
		return nil, &NetworkError{Err: err}
	}

	httpResp, err := http.ReadResponse(b.br, httpReq)
	if err != nil {
		b.dropLocked()
		return nil, &NetworkError{Err: err}
	}

	body, err := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if err != nil {
		b.dropLocked()
		return nil, &NetworkError{Err: err}
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k, v := range httpResp.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	if httpResp.Close || strings.EqualFold(headers["connection"], "close") {
		b.dropLocked()
	}

	return &awswire.Response{Status: httpResp.StatusCode, Headers: headers, Body: body}, nil
}

// dropLocked closes and forgets the cached connection, if any.
func (b *Bridge) dropLocked() {
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = nil
	b.br = nil
	b.key = connKey{}
}

func (b *Bridge) dial(ctx context.Context, key connKey) (net.Conn, error) {
	addr := net.JoinHostPort(key.host, strconv.Itoa(key.port))
	d := &net.Dialer{Timeout: b.DialTimeout}
	if !key.tls {
		return d.DialContext(ctx, "tcp", addr)
	}
	tlsDialer := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: key.host}}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}

// buildHTTPRequest translates an awswire.Request into a net/http.Request
// suitable for Request.Write: the wire path is "path?query" (always a
// leading slash), all headers are copied verbatim, and Host comes from
// the URL rather than from the header map (net/http treats Host
// specially and ignores a "Host" entry in the header map when writing).
func (b *Bridge) buildHTTPRequest(req *awswire.Request) (*http.Request, error) {
	wirePath := req.URL.EncodedPath()
	if q := req.URL.QueryString(); q != "" {
		wirePath += "?" + q
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequest(req.Method, wirePath, body)
	if err != nil {
		return nil, err
	}
	httpReq.Host = req.URL.Host()
	httpReq.URL.Scheme = req.URL.Scheme().String()
	httpReq.URL.Host = req.URL.Host()

	for name, value := range req.Headers {
		if strings.EqualFold(name, "host") {
			continue
		}
		httpReq.Header.Set(name, value)
	}
	if len(req.Body) > 0 {
		httpReq.ContentLength = int64(len(req.Body))
	}
	return httpReq, nil
}
