package awshttp

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wzshiming/s3c/pkg/awsurl"
	"github.com/wzshiming/s3c/pkg/awswire"
)

func TestBridgeSendRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/foo" {
			t.Errorf("server saw path %q", r.URL.Path)
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	host, port := mustSplit(t, srv.URL)
	u := awsurl.New()
	u.SetScheme(awsurl.HTTP)
	u.SetHost(host + ":" + port)
	u.SetPath("/foo")

	req := awswire.NewRequest("GET", u, nil)
	req.SetHeader("host", u.Host())

	b := NewBridge()
	resp, err := b.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	if string(resp.Body) != "hello" {
		t.Fatalf("body = %q", resp.Body)
	}
	if v, _ := resp.Header("etag"); v != `"abc"` {
		t.Fatalf("etag header = %q", v)
	}
}

func TestBridgeReusesConnectionForSameKey(t *testing.T) {
	var remoteAddrs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteAddrs = append(remoteAddrs, r.RemoteAddr)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, port := mustSplit(t, srv.URL)
	u := awsurl.New()
	u.SetScheme(awsurl.HTTP)
	u.SetHost(host + ":" + port)
	u.SetPath("/")

	b := NewBridge()
	for i := 0; i < 3; i++ {
		req := awswire.NewRequest("GET", u, nil)
		req.SetHeader("host", u.Host())
		if _, err := b.Send(context.Background(), req); err != nil {
			t.Fatalf("Send #%d: %v", i, err)
		}
	}

	if len(remoteAddrs) != 3 {
		t.Fatalf("expected 3 requests, server saw %d", len(remoteAddrs))
	}
	for _, addr := range remoteAddrs[1:] {
		if addr != remoteAddrs[0] {
			t.Fatalf("connection was not reused across requests: %v", remoteAddrs)
		}
	}
}

func TestBridgeDropsConnectionOnKeyChange(t *testing.T) {
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srvB.Close()

	b := NewBridge()

	hostA, portA := mustSplit(t, srvA.URL)
	uA := awsurl.New()
	uA.SetScheme(awsurl.HTTP)
	uA.SetHost(hostA + ":" + portA)
	reqA := awswire.NewRequest("GET", uA, nil)
	reqA.SetHeader("host", uA.Host())
	if _, err := b.Send(context.Background(), reqA); err != nil {
		t.Fatalf("Send A: %v", err)
	}
	firstConn := b.conn

	hostB, portB := mustSplit(t, srvB.URL)
	uB := awsurl.New()
	uB.SetScheme(awsurl.HTTP)
	uB.SetHost(hostB + ":" + portB)
	reqB := awswire.NewRequest("GET", uB, nil)
	reqB.SetHeader("host", uB.Host())
	if _, err := b.Send(context.Background(), reqB); err != nil {
		t.Fatalf("Send B: %v", err)
	}

	if b.conn == firstConn {
		t.Fatal("expected a new connection after switching host")
	}
}

func TestBridgeDropsConnectionOnFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	// Accept once and close immediately without writing a response, so
	// the bridge's read of the HTTP response fails.
	go func() {
		c, acceptErr := ln.Accept()
		if acceptErr == nil {
			c.Close()
		}
	}()

	host, port := mustSplit(t, "http://"+ln.Addr().String())
	u := awsurl.New()
	u.SetScheme(awsurl.HTTP)
	u.SetHost(host + ":" + port)

	req := awswire.NewRequest("GET", u, nil)
	req.SetHeader("host", u.Host())

	b := NewBridge()
	if _, err := b.Send(context.Background(), req); err == nil {
		t.Fatal("expected network error from closed peer")
	}
	if b.conn != nil {
		t.Fatal("expected cached connection to be dropped after failure")
	}
}

func mustSplit(t *testing.T, rawURL string) (string, string) {
	t.Helper()
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "http://"), "https://")
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", trimmed, err)
	}
	return host, port
}
