package awsclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wzshiming/s3c/pkg/awscreds"
	"github.com/wzshiming/s3c/pkg/awsurl"
	"github.com/wzshiming/s3c/pkg/awswire"
)

type fakeSender struct {
	responses []fakeResult
	calls     int
}

type fakeResult struct {
	resp *awswire.Response
	err  error
}

func (f *fakeSender) Send(_ context.Context, _ *awswire.Request) (*awswire.Response, error) {
	r := f.responses[f.calls]
	f.calls++
	return r.resp, r.err
}

func newTestClient(sender requestSender, provider awscreds.Provider) *Client {
	c := New(Config{Region: "us-east-1", HTTPS: true}, provider, "s3")
	c.bridge = sender
	c.Sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func newReq() *awswire.Request {
	u := awsurl.New()
	u.SetHost("s3.amazonaws.com")
	u.SetPath("/bucket")
	return awswire.NewRequest("GET", u, nil)
}

type staticProvider struct {
	creds awscreds.Credentials
	ok    bool
	err   error
}

func (p staticProvider) Load(context.Context) (awscreds.Credentials, bool, error) {
	return p.creds, p.ok, p.err
}
func (staticProvider) Name() string { return "static" }

func okCreds() staticProvider {
	return staticProvider{creds: awscreds.Credentials{AccessKeyID: "key", SecretAccessKey: "secret"}, ok: true}
}

func TestSendSucceedsOnFirstAttempt(t *testing.T) {
	sender := &fakeSender{responses: []fakeResult{
		{resp: &awswire.Response{Status: 200, Body: []byte("ok")}},
	}}
	c := newTestClient(sender, okCreds())

	resp, err := c.Send(context.Background(), newReq())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("body = %q", resp.Body)
	}
	if sender.calls != 1 {
		t.Fatalf("calls = %d, want 1", sender.calls)
	}
}

func TestSendRetriesOnRetryableThenSucceeds(t *testing.T) {
	sender := &fakeSender{responses: []fakeResult{
		{resp: &awswire.Response{Status: 503, Body: nil}},
		{resp: &awswire.Response{Status: 200, Body: []byte("ok")}},
	}}
	c := newTestClient(sender, okCreds())

	resp, err := c.Send(context.Background(), newReq())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("body = %q", resp.Body)
	}
	if sender.calls != 2 {
		t.Fatalf("calls = %d, want 2", sender.calls)
	}
}

func TestSendStopsOnNonRetryableError(t *testing.T) {
	sender := &fakeSender{responses: []fakeResult{
		{resp: &awswire.Response{Status: 404, Body: nil}},
	}}
	c := newTestClient(sender, okCreds())

	_, err := c.Send(context.Background(), newReq())
	var awsErr *AwsError
	if !errors.As(err, &awsErr) {
		t.Fatalf("expected *AwsError, got %v (%T)", err, err)
	}
	if awsErr.Kind != KindResourceNotFound {
		t.Fatalf("kind = %v", awsErr.Kind)
	}
	if sender.calls != 1 {
		t.Fatalf("calls = %d, want 1 (non-retryable stops immediately)", sender.calls)
	}
}

// Retry cap property from spec.md §8: never more than 5 attempts total.
func TestSendCapsAtFiveAttempts(t *testing.T) {
	responses := make([]fakeResult, 10)
	for i := range responses {
		responses[i] = fakeResult{resp: &awswire.Response{Status: 503}}
	}
	sender := &fakeSender{responses: responses}
	c := newTestClient(sender, okCreds())

	_, err := c.Send(context.Background(), newReq())
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if sender.calls != maxAttempts {
		t.Fatalf("calls = %d, want %d", sender.calls, maxAttempts)
	}
}

func TestSendStopsWithoutDispatchWhenNoCredentials(t *testing.T) {
	sender := &fakeSender{responses: []fakeResult{{resp: &awswire.Response{Status: 200}}}}
	c := newTestClient(sender, staticProvider{ok: false})

	_, err := c.Send(context.Background(), newReq())
	var awsErr *AwsError
	if !errors.As(err, &awsErr) || awsErr.Kind != KindUnauthorized {
		t.Fatalf("err = %v, want Unauthorized AwsError", err)
	}
	if awsErr.Retryable {
		t.Fatal("credential absence must be non-retryable")
	}
	if sender.calls != 0 {
		t.Fatalf("calls = %d, want 0 (should fail before dispatch)", sender.calls)
	}
}

func TestSendNetworkErrorIsRetryable(t *testing.T) {
	sender := &fakeSender{responses: []fakeResult{
		{err: errors.New("connection reset")},
		{resp: &awswire.Response{Status: 200, Body: []byte("ok")}},
	}}
	c := newTestClient(sender, okCreds())

	resp, err := c.Send(context.Background(), newReq())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("body = %q", resp.Body)
	}
}

func TestSendSetsHostHeaderAndScheme(t *testing.T) {
	sender := &fakeSender{responses: []fakeResult{{resp: &awswire.Response{Status: 200}}}}
	c := newTestClient(sender, okCreds())

	req := newReq()
	req.URL.SetScheme(awsurl.HTTP)
	if _, err := c.Send(context.Background(), req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if req.URL.Scheme() != awsurl.HTTPS {
		t.Fatalf("scheme not forced from config: %v", req.URL.Scheme())
	}
	if v, _ := req.Header("host"); v != "s3.amazonaws.com" {
		t.Fatalf("host header = %q", v)
	}
}

func TestBackoffDelayStaysWithinBaseAndCap(t *testing.T) {
	d1 := backoffDelay(1)
	if d1 < 0 || d1 > backoffBase {
		t.Fatalf("attempt 1 delay %v out of [0, %v]", d1, backoffBase)
	}
	d10 := backoffDelay(10)
	if d10 < 0 || d10 > backoffCap {
		t.Fatalf("attempt 10 delay %v exceeds cap %v", d10, backoffCap)
	}
}
