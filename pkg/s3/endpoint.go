package s3

import (
	"fmt"

	"github.com/wzshiming/s3c/pkg/awsclient"
	"github.com/wzshiming/s3c/pkg/awsurl"
)

// bucketURL builds the URL used to address a bucket, implementing the two
// addressing modes described in SPEC_FULL.md §5.2: virtual-hosted-style
// (bucket in the host) when no endpoint override is configured, and
// path-style (bucket as the first path segment) against a configured
// S3-compatible endpoint.
func bucketURL(config awsclient.Config, bucket string) *awsurl.URL {
	u := awsurl.New()
	u.SetScheme(config.Scheme())

	if config.Endpoint != "" {
		u.SetHost(config.Endpoint)
		u.SetPath("/" + bucket)
		return u
	}

	u.SetHost(bucket + "." + defaultHost(config.Region))
	return u
}

// objectURL builds the URL addressing a single object within bucket,
// appending key onto whichever path bucketURL already established
// (nothing for virtual-hosted-style, "/<bucket>" for path-style) without
// re-encoding that prefix.
func objectURL(config awsclient.Config, bucket, key string) *awsurl.URL {
	u := bucketURL(config, bucket)
	prefix := u.Path()
	u.SetPath(key)
	if prefix != "" {
		u.SetRawPath(prefix + "/" + u.Path())
	}
	return u
}

// defaultHost builds the region-qualified default S3 endpoint host, per
// SPEC_FULL.md §5.3: unqualified "s3.amazonaws.com" for us-east-1 (and the
// empty region, which spec.md's examples treat as the implicit default),
// "s3.<region>.amazonaws.com" otherwise.
func defaultHost(region string) string {
	if region == "" || region == "us-east-1" {
		return "s3.amazonaws.com"
	}
	return fmt.Sprintf("s3.%s.amazonaws.com", region)
}
