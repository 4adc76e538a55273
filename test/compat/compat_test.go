// Package compat cross-checks pkg/s3.Client against the official
// aws-sdk-go-v2 S3 client, both talking to the same internal/s3mock
// server, the way the teacher's test/integration/main_test.go drives
// its own server with aws-sdk-go-v2 — except here the reference client
// is exercised alongside this repo's hand-rolled one instead of being
// the only client under test.
package compat

import (
	"bytes"
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wzshiming/s3c/internal/s3mock"
	"github.com/wzshiming/s3c/pkg/awsclient"
	"github.com/wzshiming/s3c/pkg/awscreds"
	"github.com/wzshiming/s3c/pkg/s3"
)

const (
	accessKeyID     = "AKIDEXAMPLE"
	secretAccessKey = "examplesecret"
)

type staticProvider struct {
	creds awscreds.Credentials
}

func (p staticProvider) Load(context.Context) (awscreds.Credentials, bool, error) {
	return p.creds, true, nil
}

func (p staticProvider) Name() string { return "Static" }

// newOfficialClient builds an aws-sdk-go-v2 S3 client pointed at addr,
// following the same config.LoadDefaultConfig + EndpointResolverFunc
// shape the teacher's test/integration/auth_test.go uses against its
// own local server.
func newOfficialClient(t *testing.T, addr string) *awss3.Client {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, secretAccessKey, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               "http://" + addr,
					SigningRegion:     "us-east-1",
					HostnameImmutable: true,
				}, nil
			}),
		),
	)
	if err != nil {
		t.Fatalf("load official sdk config: %v", err)
	}

	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.UsePathStyle = true
	})
}

func newHandRolledClient(srv *s3mock.Server) *s3.Client {
	cfg := awsclient.Config{Region: "us-east-1", Endpoint: srv.Endpoint(), HTTPS: false}
	provider := staticProvider{creds: awscreds.Credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey}}
	return s3.New(cfg, provider)
}

func TestListBucketsAgreesWithOfficialSDK(t *testing.T) {
	srv := s3mock.New(t, accessKeyID, secretAccessKey)
	if err := srv.CreateBucket("alpha"); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	if err := srv.CreateBucket("beta"); err != nil {
		t.Fatalf("create bucket: %v", err)
	}

	ours := newHandRolledClient(srv)
	official := newOfficialClient(t, srv.Endpoint())
	ctx := context.Background()

	ourNames, err := ours.ListBuckets(ctx)
	if err != nil {
		t.Fatalf("hand-rolled ListBuckets: %v", err)
	}

	officialOut, err := official.ListBuckets(ctx, &awss3.ListBucketsInput{})
	if err != nil {
		t.Fatalf("official ListBuckets: %v", err)
	}
	var officialNames []string
	for _, b := range officialOut.Buckets {
		officialNames = append(officialNames, aws.ToString(b.Name))
	}

	if !sameSet(ourNames, officialNames) {
		t.Fatalf("bucket lists disagree: ours=%v official=%v", ourNames, officialNames)
	}
}

func TestMultipartUploadReadableByOfficialSDK(t *testing.T) {
	srv := s3mock.New(t, accessKeyID, secretAccessKey)
	if err := srv.CreateBucket("compat-bucket"); err != nil {
		t.Fatalf("create bucket: %v", err)
	}

	ours := newHandRolledClient(srv)
	official := newOfficialClient(t, srv.Endpoint())
	ctx := context.Background()

	body := bytes.Repeat([]byte("compat-data"), 1000)

	uploadID, err := ours.CreateMultipartUpload(ctx, "compat-bucket", "object.bin")
	if err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}
	etag, err := ours.UploadPart(ctx, "compat-bucket", "object.bin", 1, uploadID, body)
	if err != nil {
		t.Fatalf("UploadPart: %v", err)
	}
	if _, err := ours.CompleteMultipartUpload(ctx, "compat-bucket", "object.bin", uploadID, []string{etag}); err != nil {
		t.Fatalf("CompleteMultipartUpload: %v", err)
	}

	out, err := official.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String("compat-bucket"),
		Key:    aws.String("object.bin"),
	})
	if err != nil {
		t.Fatalf("official GetObject: %v", err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		t.Fatalf("read official GetObject body: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), body) {
		t.Fatalf("official client read back different bytes than the hand-rolled client wrote")
	}
}

func TestObjectWrittenByOfficialSDKIsReadableByOurClient(t *testing.T) {
	srv := s3mock.New(t, accessKeyID, secretAccessKey)
	if err := srv.CreateBucket("compat-bucket-2"); err != nil {
		t.Fatalf("create bucket: %v", err)
	}

	ours := newHandRolledClient(srv)
	official := newOfficialClient(t, srv.Endpoint())
	ctx := context.Background()

	body := []byte("written through the official sdk")
	if _, err := official.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String("compat-bucket-2"),
		Key:    aws.String("from-sdk.txt"),
		Body:   bytes.NewReader(body),
	}); err != nil {
		t.Fatalf("official PutObject: %v", err)
	}

	obj, err := ours.GetObject(ctx, "compat-bucket-2", "from-sdk.txt", "bytes=0-")
	if err != nil {
		t.Fatalf("hand-rolled GetObject: %v", err)
	}
	if !bytes.Equal(obj.Body, body) {
		t.Fatalf("hand-rolled client read back different bytes than the official client wrote")
	}
}

// TestBucketAndObjectLifecycleViaOfficialSDK exercises the mock server's
// HTTP-level bucket/object corners (PUT bucket, HeadBucket, HeadObject,
// DeleteObject, DeleteBucket) that pkg/s3.Client never calls, since it has
// no CreateBucket/Delete*/Head* operations (spec.md §4.F lists neither).
// The official SDK is the only client exercising these here, matching
// SPEC_FULL.md §3's role for aws-sdk-go-v2 in this repo: a reference client
// used only from tests.
func TestBucketAndObjectLifecycleViaOfficialSDK(t *testing.T) {
	srv := s3mock.New(t, accessKeyID, secretAccessKey)
	official := newOfficialClient(t, srv.Endpoint())
	ctx := context.Background()

	if _, err := official.CreateBucket(ctx, &awss3.CreateBucketInput{
		Bucket: aws.String("lifecycle-bucket"),
	}); err != nil {
		t.Fatalf("official CreateBucket: %v", err)
	}
	if _, err := official.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String("lifecycle-bucket"),
	}); err != nil {
		t.Fatalf("official HeadBucket: %v", err)
	}

	body := []byte("lifecycle object body")
	if _, err := official.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String("lifecycle-bucket"),
		Key:    aws.String("lifecycle.txt"),
		Body:   bytes.NewReader(body),
	}); err != nil {
		t.Fatalf("official PutObject: %v", err)
	}
	if _, err := official.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String("lifecycle-bucket"),
		Key:    aws.String("lifecycle.txt"),
	}); err != nil {
		t.Fatalf("official HeadObject: %v", err)
	}

	if _, err := official.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String("lifecycle-bucket"),
		Key:    aws.String("lifecycle.txt"),
	}); err != nil {
		t.Fatalf("official DeleteObject: %v", err)
	}
	if _, err := official.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String("lifecycle-bucket"),
		Key:    aws.String("lifecycle.txt"),
	}); err == nil {
		t.Fatal("expected HeadObject to fail after DeleteObject")
	}

	if _, err := official.DeleteBucket(ctx, &awss3.DeleteBucketInput{
		Bucket: aws.String("lifecycle-bucket"),
	}); err != nil {
		t.Fatalf("official DeleteBucket: %v", err)
	}
	if _, err := official.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String("lifecycle-bucket"),
	}); err == nil {
		t.Fatal("expected HeadBucket to fail after DeleteBucket")
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
