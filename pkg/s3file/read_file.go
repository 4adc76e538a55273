// Package s3file implements spec.md §4.G/4.H's streaming object I/O:
// ReadFile downloads an object as fixed-size byte ranges into a ring
// buffer, WriteFile buffers writes into part-sized chunks and finalizes
// them as a multipart upload. Both convert the underlying *awsclient.AwsError
// to a plain Go error at this boundary, per spec.md §7.
package s3file

import (
	"context"
	"fmt"
	"io"

	"github.com/wzshiming/s3c/pkg/s3"
)

// DefaultChunkSize is ReadFile's default ring buffer capacity (spec.md §4.G).
const DefaultChunkSize = 8 << 20

// ReadFile is a sequential, range-based reader over an S3 object. It
// satisfies io.Reader and io.Closer; Close is a no-op, matching spec.md
// §4.G ("GC/destructor handles resources") — there is no dedicated
// connection to release beyond the shared *s3.Client's.
type ReadFile struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string

	chunkSize int
	ring      []byte
	ringStart int
	ringEnd   int

	fileRead int64
	fileSize int64
	sized    bool
}

// NewReadFile returns a ReadFile over bucket/key using the given chunk size
// (the size of each ranged GetObject call and the ring buffer's capacity);
// a chunkSize of 0 uses DefaultChunkSize.
func NewReadFile(ctx context.Context, client *s3.Client, bucket, key string, chunkSize int) *ReadFile {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReadFile{
		ctx:       ctx,
		client:    client,
		bucket:    bucket,
		key:       key,
		chunkSize: chunkSize,
	}
}

// Size returns the object's total size. It is 0 until the first chunk has
// been downloaded.
func (f *ReadFile) Size() int64 { return f.fileSize }

// Read implements io.Reader per spec.md §4.G: drains the ring buffer into
// p, downloading another chunk via a ranged GetObject whenever the ring
// is empty and the file is not yet exhausted. Returns (0, io.EOF) once
// fileRead equals fileSize and the ring is empty.
func (f *ReadFile) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if n := f.drainRing(p[total:]); n > 0 {
			total += n
			continue
		}

		if f.sized && f.fileRead == f.fileSize {
			break
		}

		if err := f.downloadChunk(); err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
	}

	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// Close is a no-op: ReadFile holds no resource beyond the shared client.
func (f *ReadFile) Close() error { return nil }

func (f *ReadFile) drainRing(p []byte) int {
	n := copy(p, f.ring[f.ringStart:f.ringEnd])
	f.ringStart += n
	f.fileRead += int64(n)
	return n
}

// downloadChunk issues a ranged GetObject for the next chunkSize window
// and commits the body into the ring buffer. On the first chunk it sets
// fileSize from the response's derived object size.
func (f *ReadFile) downloadChunk() error {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", f.fileRead, f.fileRead+int64(f.chunkSize)-1)
	obj, err := f.client.GetObject(f.ctx, f.bucket, f.key, rangeHeader)
	if err != nil {
		return fmt.Errorf("s3file: read %s/%s: %w", f.bucket, f.key, err)
	}

	if !f.sized {
		f.fileSize = obj.ObjectSize
		f.sized = true
	}

	f.ring = obj.Body
	f.ringStart = 0
	f.ringEnd = len(obj.Body)

	if len(obj.Body) == 0 {
		// The server reported nothing left to read; treat the file as
		// exhausted at the current position so Read stops looping.
		f.fileSize = f.fileRead
	}
	return nil
}
