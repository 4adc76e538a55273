package s3mock

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// handler is the mock S3 service's http.Handler, dispatching on method,
// path shape, and query parameters the way the teacher's pkg/server.
// ServeHTTP does, but against the self-consistent store in this package
// instead of the teacher's broken pkg/storage.
type handler struct {
	store *store
}

func newHandler(st *store) *handler {
	return &handler{store: st}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.SplitN(path, "/", 2)

	if path == "" {
		if r.Method == http.MethodGet {
			h.listBuckets(w, r)
		} else {
			h.errorResponse(w, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	bucket := parts[0]
	var key string
	if len(parts) > 1 {
		key = parts[1]
	}

	query := r.URL.Query()
	if key == "" {
		switch r.Method {
		case http.MethodPut:
			h.createBucket(w, bucket)
		case http.MethodDelete:
			h.deleteBucket(w, bucket)
		case http.MethodHead:
			h.headBucket(w, bucket)
		case http.MethodGet:
			h.listObjectsV2(w, bucket, query)
		default:
			h.errorResponse(w, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodPut:
		if query.Has("uploadId") && query.Has("partNumber") {
			h.uploadPart(w, r, bucket, key, query)
		} else {
			h.putObject(w, r, bucket, key)
		}
	case http.MethodPost:
		switch {
		case query.Has("uploads"):
			h.createMultipartUpload(w, r, bucket, key)
		case query.Has("uploadId"):
			h.completeMultipartUpload(w, r, bucket, query.Get("uploadId"), key)
		default:
			h.errorResponse(w, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
		}
	case http.MethodGet:
		if query.Has("uploadId") {
			h.listParts(w, bucket, query.Get("uploadId"))
		} else {
			h.getObject(w, r, bucket, key)
		}
	case http.MethodHead:
		h.headObject(w, bucket, key)
	case http.MethodDelete:
		if query.Has("uploadId") {
			h.abortMultipartUpload(w, bucket, query.Get("uploadId"))
		} else {
			h.deleteObject(w, bucket, key)
		}
	default:
		h.errorResponse(w, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *handler) listBuckets(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListBuckets()
	if err != nil {
		h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		return
	}
	result := xmlListAllMyBucketsResult{}
	for _, n := range names {
		result.Buckets.Bucket = append(result.Buckets.Bucket, xmlBucket{Name: n})
	}
	h.xmlResponse(w, result, http.StatusOK)
}

func (h *handler) createBucket(w http.ResponseWriter, bucket string) {
	if err := h.store.CreateBucket(bucket); err != nil {
		if err == errBucketAlreadyExists {
			h.errorResponse(w, "BucketAlreadyExists", "Bucket already exists", http.StatusConflict)
		} else {
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) deleteBucket(w http.ResponseWriter, bucket string) {
	if err := h.store.DeleteBucket(bucket); err != nil {
		switch err {
		case errBucketNotFound:
			h.errorResponse(w, "NoSuchBucket", "Bucket does not exist", http.StatusNotFound)
		case errBucketNotEmpty:
			h.errorResponse(w, "BucketNotEmpty", "Bucket is not empty", http.StatusConflict)
		default:
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) headBucket(w http.ResponseWriter, bucket string) {
	if !h.store.BucketExists(bucket) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) listObjectsV2(w http.ResponseWriter, bucket string, query map[string][]string) {
	get := func(k string) string {
		if v, ok := query[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	prefix := get("prefix")
	continuationToken := get("continuation-token")
	maxKeys := 1000
	if mk := get("max-keys"); mk != "" {
		if parsed, err := strconv.Atoi(mk); err == nil && parsed > 0 {
			maxKeys = parsed
		}
	}

	entries, isTruncated, err := h.store.ListObjects(bucket, prefix, continuationToken, maxKeys)
	if err != nil {
		if err == errBucketNotFound {
			h.errorResponse(w, "NoSuchBucket", "Bucket does not exist", http.StatusNotFound)
		} else {
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	result := xmlListBucketResultV2{
		Name:        bucket,
		Prefix:      prefix,
		MaxKeys:     maxKeys,
		KeyCount:    len(entries),
		IsTruncated: isTruncated,
	}
	if isTruncated && len(entries) > 0 {
		result.NextContinuationToken = entries[len(entries)-1].Key
	}
	for _, e := range entries {
		result.Contents = append(result.Contents, xmlContents{
			Key:          e.Key,
			LastModified: e.ModTime.UTC().Format(time.RFC3339),
			ETag:         fmt.Sprintf("%q", e.ETag),
			Size:         e.Size,
			StorageClass: "STANDARD",
		})
	}
	h.xmlResponse(w, result, http.StatusOK)
}

var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d+)?$`)

func (h *handler) getObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	f, meta, modTime, size, err := h.store.GetObject(bucket, key)
	if err != nil {
		h.notFoundFor(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("ETag", fmt.Sprintf("%q", meta.ETag))
	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	w.Header().Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	w.Header().Set("Accept-Ranges", "bytes")

	byteRange := r.Header.Get("Range")
	if byteRange == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, f)
		return
	}

	m := rangePattern.FindStringSubmatch(byteRange)
	if m == nil {
		h.errorResponse(w, "InvalidRange", "Invalid Range header", http.StatusBadRequest)
		return
	}
	start, _ := strconv.ParseInt(m[1], 10, 64)
	end := size - 1
	if m[2] != "" {
		end, _ = strconv.ParseInt(m[2], 10, 64)
	}
	if start >= size || end < start {
		h.errorResponse(w, "InvalidRange", "Range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= size {
		end = size - 1
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	io.CopyN(w, io.NewSectionReader(f, start, end-start+1), end-start+1)
}

func (h *handler) headObject(w http.ResponseWriter, bucket, key string) {
	f, meta, modTime, size, err := h.store.GetObject(bucket, key)
	if err != nil {
		h.notFoundFor(w, err)
		return
	}
	f.Close()
	w.Header().Set("ETag", fmt.Sprintf("%q", meta.ETag))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

func (h *handler) putObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	contentType := r.Header.Get("Content-Type")
	etag, _, err := h.store.PutObject(bucket, key, r.Body, contentType)
	if err != nil {
		if err == errBucketNotFound {
			h.errorResponse(w, "NoSuchBucket", "Bucket does not exist", http.StatusNotFound)
		} else {
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("ETag", fmt.Sprintf("%q", etag))
	w.WriteHeader(http.StatusOK)
}

func (h *handler) deleteObject(w http.ResponseWriter, bucket, key string) {
	if err := h.store.DeleteObject(bucket, key); err != nil && err != errObjectNotFound {
		if err == errBucketNotFound {
			h.errorResponse(w, "NoSuchBucket", "Bucket does not exist", http.StatusNotFound)
		} else {
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) createMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	uploadID, err := h.store.CreateMultipartUpload(bucket, key, contentType)
	if err != nil {
		if err == errBucketNotFound {
			h.errorResponse(w, "NoSuchBucket", "Bucket does not exist", http.StatusNotFound)
		} else {
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.xmlResponse(w, xmlInitiateMultipartUploadResult{Bucket: bucket, Key: key, UploadId: uploadID}, http.StatusOK)
}

func (h *handler) uploadPart(w http.ResponseWriter, r *http.Request, bucket, key string, query map[string][]string) {
	partNumber, err := strconv.Atoi(query["partNumber"][0])
	if err != nil {
		h.errorResponse(w, "InvalidArgument", "Invalid part number", http.StatusBadRequest)
		return
	}
	uploadID := query["uploadId"][0]

	etag, err := h.store.UploadPart(bucket, uploadID, partNumber, r.Body)
	if err != nil {
		switch err {
		case errInvalidUploadID:
			h.errorResponse(w, "NoSuchUpload", "Upload does not exist", http.StatusNotFound)
		case errInvalidPartNumber:
			h.errorResponse(w, "InvalidArgument", "Invalid part number", http.StatusBadRequest)
		default:
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("ETag", fmt.Sprintf("%q", etag))
	w.WriteHeader(http.StatusOK)
}

func (h *handler) completeMultipartUpload(w http.ResponseWriter, r *http.Request, bucket, uploadID, key string) {
	var req xmlCompleteMultipartUpload
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "MalformedXML", "Invalid XML", http.StatusBadRequest)
		return
	}

	parts := make([]completedPart, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = completedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	etag, _, err := h.store.CompleteMultipartUpload(bucket, uploadID, parts)
	if err != nil {
		switch err {
		case errInvalidUploadID:
			h.errorResponse(w, "NoSuchUpload", "Upload does not exist", http.StatusNotFound)
		case errInvalidPartOrder:
			h.errorResponse(w, "InvalidPartOrder", "Parts are not in ascending order", http.StatusBadRequest)
		default:
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.xmlResponse(w, xmlCompleteMultipartUploadResult{
		Location: fmt.Sprintf("/%s/%s", bucket, key),
		Bucket:   bucket,
		Key:      key,
		ETag:     fmt.Sprintf("%q", etag),
	}, http.StatusOK)
}

func (h *handler) abortMultipartUpload(w http.ResponseWriter, bucket, uploadID string) {
	if err := h.store.AbortMultipartUpload(bucket, uploadID); err != nil {
		if err == errInvalidUploadID {
			h.errorResponse(w, "NoSuchUpload", "Upload does not exist", http.StatusNotFound)
		} else {
			h.errorResponse(w, "InternalError", err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listParts(w http.ResponseWriter, bucket, uploadID string) {
	parts, err := h.store.ListParts(bucket, uploadID)
	if err != nil {
		h.errorResponse(w, "NoSuchUpload", "Upload does not exist", http.StatusNotFound)
		return
	}
	result := xmlListPartsResult{UploadId: uploadID}
	for _, p := range parts {
		result.Parts = append(result.Parts, xmlCompletedPart{
			PartNumber: p.PartNumber,
			ETag:       fmt.Sprintf("%q", p.ETag),
			Size:       p.Size,
		})
	}
	h.xmlResponse(w, result, http.StatusOK)
}

func (h *handler) notFoundFor(w http.ResponseWriter, err error) {
	if err == errBucketNotFound {
		h.errorResponse(w, "NoSuchBucket", "Bucket does not exist", http.StatusNotFound)
		return
	}
	h.errorResponse(w, "NoSuchKey", "Object does not exist", http.StatusNotFound)
}

func (h *handler) xmlResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(data)
}

func (h *handler) errorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(xmlError{Code: code, Message: message})
}
