package s3

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"

	"github.com/wzshiming/s3c/pkg/awsclient"
	"github.com/wzshiming/s3c/pkg/awscreds"
	"github.com/wzshiming/s3c/pkg/awsurl"
	"github.com/wzshiming/s3c/pkg/awswire"
)

// Client wraps the generic awsclient.Client with S3's service operations.
// Per spec.md §9, service identity lives in the wrapped Client's "s3"
// service name; this type only adds the S3-specific request shapes.
type Client struct {
	*awsclient.Client
	config awsclient.Config
}

// New builds an S3 Client over chain for credential resolution.
func New(config awsclient.Config, chain awscreds.Provider) *Client {
	return &Client{
		Client: awsclient.New(config, chain, "s3"),
		config: config,
	}
}

// Object is the result of GetObject: the requested byte range and the
// total object size, derived from Content-Range when present.
type Object struct {
	Body       []byte
	ObjectSize int64
}

// ListBuckets implements spec.md §4.F: GET "/" against the service
// endpoint (no bucket in host or path), parsing
// ListAllMyBucketsResult/Buckets/Bucket/Name. An empty list is not an
// error.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	u := awsurl.New()
	u.SetScheme(c.config.Scheme())
	if c.config.Endpoint != "" {
		u.SetHost(c.config.Endpoint)
	} else {
		u.SetHost(defaultHost(c.config.Region))
	}

	resp, err := c.Send(ctx, awswire.NewRequest("GET", u, nil))
	if err != nil {
		return nil, err
	}

	var parsed listAllMyBucketsResult
	if err := xml.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, &awsclient.AwsError{
			Kind:    awsclient.KindInvalidResponse,
			Message: fmt.Sprintf("list buckets: %v", err),
		}
	}

	names := make([]string, 0, len(parsed.Buckets.Bucket))
	for _, b := range parsed.Buckets.Bucket {
		names = append(names, b.Name)
	}
	return names, nil
}

// ListObjects implements spec.md §4.F's paginated ListObjectsV2: GET
// against the bucket with list-type=2, optional prefix, and a
// continuation-token loop terminated by IsTruncated=false or by
// collecting limit keys (limit<=0 means unbounded).
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	var keys []string
	var continuationToken string

	for {
		u := bucketURL(c.config, bucket)
		u.AddParam("list-type", "2")
		if prefix != "" {
			u.AddParam("prefix", prefix)
		}
		if limit > 0 {
			u.AddParam("max-keys", strconv.Itoa(limit-len(keys)))
		}
		if continuationToken != "" {
			u.AddParam("continuation-token", continuationToken)
		}

		resp, err := c.Send(ctx, awswire.NewRequest("GET", u, nil))
		if err != nil {
			return nil, err
		}

		var parsed listBucketResultV2
		if err := xml.Unmarshal(resp.Body, &parsed); err != nil {
			return nil, &awsclient.AwsError{
				Kind:    awsclient.KindInvalidResponse,
				Message: fmt.Sprintf("list objects: %v", err),
			}
		}

		for _, item := range parsed.Contents {
			keys = append(keys, item.Key)
		}

		if !parsed.IsTruncated {
			break
		}
		if parsed.NextContinuationToken == "" {
			return nil, &awsclient.AwsError{
				Kind:    awsclient.KindInvalidResponse,
				Message: "list objects: truncated response without a continuation token",
			}
		}
		continuationToken = parsed.NextContinuationToken

		if limit > 0 && len(keys) >= limit {
			break
		}
	}

	return keys, nil
}

// contentRangePattern matches the "<unit> <start>-<end>/<total>" form of
// a Content-Range response header.
var contentRangePattern = regexp.MustCompile(`^\S+ \d+-\d+/(\d+)$`)

// GetObject implements spec.md §4.F: GET with a Range header. ObjectSize
// is parsed from Content-Range's total when present, otherwise falls
// back to the length of the returned body.
func (c *Client) GetObject(ctx context.Context, bucket, key, byteRange string) (*Object, error) {
	u := objectURL(c.config, bucket, key)

	req := awswire.NewRequest("GET", u, nil)
	req.SetHeader("range", byteRange)

	resp, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	size := int64(len(resp.Body))
	if cr, ok := resp.Header("content-range"); ok {
		if m := contentRangePattern.FindStringSubmatch(cr); m != nil {
			if total, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				size = total
			}
		}
	}

	return &Object{Body: resp.Body, ObjectSize: size}, nil
}

// CreateMultipartUpload implements spec.md §4.F: POST
// ".../<key>?uploads=" with an empty body, parsing
// InitiateMultipartUploadResult/UploadId.
func (c *Client) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	u := objectURL(c.config, bucket, key)
	u.AddParam("uploads", "")

	resp, err := c.Send(ctx, awswire.NewRequest("POST", u, nil))
	if err != nil {
		return "", err
	}

	var parsed initiateMultipartUploadResult
	if err := xml.Unmarshal(resp.Body, &parsed); err != nil {
		return "", &awsclient.AwsError{
			Kind:    awsclient.KindInvalidResponse,
			Message: fmt.Sprintf("create multipart upload: %v", err),
		}
	}
	if parsed.UploadId == "" {
		return "", &awsclient.AwsError{
			Kind:    awsclient.KindInvalidResponse,
			Message: "create multipart upload: missing UploadId",
		}
	}
	return parsed.UploadId, nil
}

// UploadPart implements spec.md §4.F: PUT
// ".../<key>?partNumber=N&uploadId=..." with body. The returned ETag is
// the response header's value with its surrounding quotes stripped
// (spec.md §9); callers must keep it opaque and pass it back verbatim
// to CompleteMultipartUpload.
func (c *Client) UploadPart(ctx context.Context, bucket, key string, partNumber int, uploadID string, body []byte) (string, error) {
	u := objectURL(c.config, bucket, key)
	u.AddParam("partNumber", strconv.Itoa(partNumber))
	u.AddParam("uploadId", uploadID)

	resp, err := c.Send(ctx, awswire.NewRequest("PUT", u, body))
	if err != nil {
		return "", err
	}

	etag, ok := resp.Header("etag")
	if !ok || etag == "" {
		return "", &awsclient.AwsError{
			Kind:    awsclient.KindInvalidResponse,
			Message: "upload part: missing ETag header",
		}
	}
	return stripQuotes(etag), nil
}

// CompleteMultipartUpload implements spec.md §4.F: POST
// ".../<key>?uploadId=..." with an XML body listing one-based,
// contiguous parts in order. etags are expected already stripped of
// their surrounding quotes (as UploadPart returns them); this function
// re-quotes each one exactly once when building the request body.
func (c *Client) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, etags []string) (string, error) {
	u := objectURL(c.config, bucket, key)
	u.AddParam("uploadId", uploadID)

	parts := make([]completedPart, len(etags))
	for i, etag := range etags {
		parts[i] = completedPart{PartNumber: i + 1, ETag: `"` + stripQuotes(etag) + `"`}
	}
	body, err := xml.Marshal(completeMultipartUpload{Xmlns: completeMultipartUploadXmlns, Parts: parts})
	if err != nil {
		return "", err
	}

	resp, err := c.Send(ctx, awswire.NewRequest("POST", u, body))
	if err != nil {
		return "", err
	}

	var parsed completeMultipartUploadResult
	if err := xml.Unmarshal(resp.Body, &parsed); err != nil {
		return "", &awsclient.AwsError{
			Kind:    awsclient.KindInvalidResponse,
			Message: fmt.Sprintf("complete multipart upload: %v", err),
		}
	}
	return parsed.ETag, nil
}

// AbortMultipartUpload implements the §5.1 supplemented operation: DELETE
// ".../<key>?uploadId=...", discarding any parts already uploaded.
func (c *Client) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	u := objectURL(c.config, bucket, key)
	u.AddParam("uploadId", uploadID)

	_, err := c.Send(ctx, awswire.NewRequest("DELETE", u, nil))
	return err
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
