package s3file

import (
	"context"
	"fmt"

	"github.com/wzshiming/s3c/pkg/s3"
)

// DefaultPartSize is WriteFile's default part size (spec.md §4.H).
const DefaultPartSize = 8 << 20

// MinPartSize is AWS's minimum size for a non-final multipart part
// (SPEC_FULL.md §5.4); NewWriteFile rejects any smaller configured part size.
const MinPartSize = 5 << 20

// WriteFile buffers writes into part_size-sized chunks, uploading each as
// a multipart part, and finalizes the object on Close. It satisfies
// io.Writer and io.Closer.
type WriteFile struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string

	uploadID string
	etags    []string

	pending []byte
	offset  int
}

// NewWriteFile issues CreateMultipartUpload and returns a WriteFile
// embedding the resulting upload ID, per spec.md §4.H. partSize of 0 uses
// DefaultPartSize; a nonzero partSize below MinPartSize is rejected
// (SPEC_FULL.md §5.4 — stricter than the source, which left this
// unenforced).
func NewWriteFile(ctx context.Context, client *s3.Client, bucket, key string, partSize int) (*WriteFile, error) {
	if partSize == 0 {
		partSize = DefaultPartSize
	}
	if partSize < MinPartSize {
		return nil, fmt.Errorf("s3file: part size %d is below the %d minimum", partSize, MinPartSize)
	}

	uploadID, err := client.CreateMultipartUpload(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("s3file: open %s/%s: %w", bucket, key, err)
	}

	return &WriteFile{
		ctx:      ctx,
		client:   client,
		bucket:   bucket,
		key:      key,
		uploadID: uploadID,
		pending:  make([]byte, partSize),
	}, nil
}

// UploadID returns the multipart upload ID this WriteFile is writing to,
// for out-of-band AbortMultipartUpload calls (spec.md §9).
func (f *WriteFile) UploadID() string { return f.uploadID }

// Write implements io.Writer per spec.md §4.H: copies p into the pending
// buffer, flushing a part each time it fills.
func (f *WriteFile) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := copy(f.pending[f.offset:], p)
		f.offset += n
		p = p[n:]
		total += n

		if f.offset == len(f.pending) {
			if err := f.flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// flush uploads the pending buffer as the next part, appending its ETag
// and resetting offset. A no-op when offset is 0.
func (f *WriteFile) flush() error {
	if f.offset == 0 {
		return nil
	}

	partNumber := len(f.etags) + 1
	etag, err := f.client.UploadPart(f.ctx, f.bucket, f.key, partNumber, f.uploadID, f.pending[:f.offset])
	if err != nil {
		return fmt.Errorf("s3file: upload part %d of %s/%s: %w", partNumber, f.bucket, f.key, err)
	}

	f.etags = append(f.etags, etag)
	f.offset = 0
	return nil
}

// Close flushes any residual buffered bytes (the final part may be under
// the part-size minimum) and completes the multipart upload. On any
// failure it best-effort aborts the upload before returning the error
// (SPEC_FULL.md §5.1, supplementing spec.md §9's documented gap: the
// source leaves the upload orphaned on close failure).
func (f *WriteFile) Close() error {
	if err := f.flush(); err != nil {
		f.abortBestEffort()
		return err
	}

	if _, err := f.client.CompleteMultipartUpload(f.ctx, f.bucket, f.key, f.uploadID, f.etags); err != nil {
		f.abortBestEffort()
		return fmt.Errorf("s3file: close %s/%s: %w", f.bucket, f.key, err)
	}
	return nil
}

func (f *WriteFile) abortBestEffort() {
	_ = f.client.AbortMultipartUpload(f.ctx, f.bucket, f.key, f.uploadID)
}
