// Package s3 implements the S3 service operations of spec.md §4.F on top
// of the generic retrying client in pkg/awsclient: ListBuckets,
// ListObjectsV2, GetObject, and the multipart-upload trio
// (CreateMultipartUpload/UploadPart/CompleteMultipartUpload), plus
// AbortMultipartUpload.
package s3

import "encoding/xml"

// bucket is a single <Bucket> entry in a ListBuckets response.
type bucket struct {
	Name string `xml:"Name"`
}

// listAllMyBucketsResult mirrors ListBuckets' XML body. Unknown elements
// (Owner, CreationDate) are ignored by omission.
type listAllMyBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Buckets struct {
		Bucket []bucket `xml:"Bucket"`
	} `xml:"Buckets"`
}

// contents is a single <Contents> entry in a ListObjectsV2 response.
type contents struct {
	Key string `xml:"Key"`
}

// listBucketResultV2 mirrors ListObjectsV2's XML body.
type listBucketResultV2 struct {
	XMLName               xml.Name   `xml:"ListBucketResult"`
	IsTruncated           bool       `xml:"IsTruncated"`
	NextContinuationToken string     `xml:"NextContinuationToken,omitempty"`
	Contents              []contents `xml:"Contents"`
}

// initiateMultipartUploadResult mirrors CreateMultipartUpload's XML body.
type initiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	UploadId string   `xml:"UploadId"`
}

// completedPart is one <Part> entry in a CompleteMultipartUpload request
// body. ETag carries the literal quotes S3 expects on the wire; callers
// pass in values already stripped of the quotes UploadPart's response
// header wraps them in (spec.md §9), and CompleteMultipartUpload
// re-adds exactly one pair when building the body.
type completedPart struct {
	ETag       string `xml:"ETag"`
	PartNumber int    `xml:"PartNumber"`
}

// completeMultipartUpload is the request body for CompleteMultipartUpload.
type completeMultipartUpload struct {
	XMLName xml.Name         `xml:"CompleteMultipartUpload"`
	Xmlns   string           `xml:"xmlns,attr"`
	Parts   []completedPart `xml:"Part"`
}

// completeMultipartUploadResult mirrors CompleteMultipartUpload's response
// XML body.
type completeMultipartUploadResult struct {
	XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
	ETag    string   `xml:"ETag"`
}

const completeMultipartUploadXmlns = "http://s3.amazonaws.com/doc/2006-03-01/"
