// Package s3mock is an in-process, filesystem-backed S3-compatible HTTP
// server used by this repo's own test suites in place of a real AWS
// account. It speaks the subset of the S3 REST API that pkg/s3.Client and
// the official-SDK cross-checks in test/compat exercise: bucket listing,
// creation, HEAD and deletion, ListObjectsV2, ranged GetObject, HeadObject,
// single-shot PutObject, DeleteObject, and the multipart-upload operations
// (create, upload part, complete, abort, list parts).
//
// The storage layout follows the same directory-per-object idiom as the
// teacher repo's pkg/storage: each object is a directory holding a "data"
// file and a "meta" sidecar, and in-progress multipart uploads live under
// a bucket-local ".uploads" directory keyed by upload ID.
package s3mock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	dataFileName = "data"
	metaFileName = "meta"
	uploadsDir   = ".uploads"
)

var (
	errBucketNotFound      = errors.New("bucket not found")
	errBucketAlreadyExists = errors.New("bucket already exists")
	errBucketNotEmpty      = errors.New("bucket not empty")
	errObjectNotFound      = errors.New("object not found")
	errInvalidUploadID     = errors.New("invalid upload id")
	errInvalidPartNumber   = errors.New("invalid part number")
	errInvalidPartOrder    = errors.New("parts not in ascending order")
)

// objectMeta is the JSON sidecar stored alongside an object's data file.
type objectMeta struct {
	ContentType string `json:"contentType"`
	ETag        string `json:"etag"`
}

// uploadMeta is the JSON sidecar describing an in-progress multipart
// upload's target.
type uploadMeta struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
}

// objectEntry is one listed object, as returned by store.ListObjects.
type objectEntry struct {
	Key     string
	Size    int64
	ETag    string
	ModTime time.Time
}

// partEntry is one uploaded part of an in-progress multipart upload.
type partEntry struct {
	PartNumber int
	ETag       string
	Size       int64
}

// completedPart identifies one part by number and the ETag the caller
// claims UploadPart returned for it, as provided to CompleteMultipartUpload.
type completedPart struct {
	PartNumber int
	ETag       string
}

// store is the filesystem-backed object/bucket/multipart backend. A single
// mutex serializes all operations; the mock server has no need for the
// fine-grained per-object locking a production store would want.
type store struct {
	mu       sync.Mutex
	basePath string
}

func newStore(basePath string) (*store, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &store{basePath: abs}, nil
}

func (s *store) bucketPath(bucket string) string {
	return filepath.Join(s.basePath, bucket)
}

func (s *store) objectDir(bucket, key string) string {
	return filepath.Join(s.bucketPath(bucket), filepath.FromSlash(key))
}

// --- buckets ---

func (s *store) CreateBucket(bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.bucketPath(bucket)
	if _, err := os.Stat(path); err == nil {
		return errBucketAlreadyExists
	}
	return os.MkdirAll(path, 0o755)
}

func (s *store) DeleteBucket(bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.bucketPath(bucket)
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errBucketNotFound
		}
		return err
	}
	if len(entries) > 0 {
		return errBucketNotEmpty
	}
	return os.Remove(path)
}

func (s *store) BucketExists(bucket string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.bucketPath(bucket))
	return err == nil && info.IsDir()
}

func (s *store) ListBuckets() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// --- objects ---

// PutObject writes data as the content of bucket/key, replacing any
// existing object at that key, and returns its computed ETag.
func (s *store) PutObject(bucket, key string, data io.Reader, contentType string) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bucketExistsLocked(bucket) {
		return "", 0, errBucketNotFound
	}

	dir := s.objectDir(bucket, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}

	dataPath := filepath.Join(dir, dataFileName)
	f, err := os.Create(dataPath)
	if err != nil {
		return "", 0, err
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hash), data)
	closeErr := f.Close()
	if err != nil {
		return "", 0, err
	}
	if closeErr != nil {
		return "", 0, closeErr
	}

	etag := hex.EncodeToString(hash.Sum(nil))
	if err := writeMeta(filepath.Join(dir, metaFileName), &objectMeta{ContentType: contentType, ETag: etag}); err != nil {
		return "", 0, err
	}
	return etag, size, nil
}

// GetObject opens the data file for bucket/key and returns it alongside
// its metadata; the caller is responsible for closing the returned file.
func (s *store) GetObject(bucket, key string) (*os.File, *objectMeta, time.Time, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bucketExistsLocked(bucket) {
		return nil, nil, time.Time{}, 0, errBucketNotFound
	}

	dir := s.objectDir(bucket, key)
	meta, err := readMeta[objectMeta](filepath.Join(dir, metaFileName))
	if err != nil {
		return nil, nil, time.Time{}, 0, errObjectNotFound
	}

	dataPath := filepath.Join(dir, dataFileName)
	info, err := os.Stat(dataPath)
	if err != nil {
		return nil, nil, time.Time{}, 0, errObjectNotFound
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, nil, time.Time{}, 0, err
	}
	return f, meta, info.ModTime(), info.Size(), nil
}

func (s *store) DeleteObject(bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bucketExistsLocked(bucket) {
		return errBucketNotFound
	}
	dir := s.objectDir(bucket, key)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	s.cleanupEmptyDirsLocked(s.bucketPath(bucket), filepath.Dir(dir))
	return nil
}

// ListObjects returns up to maxKeys objects under bucket whose key starts
// with prefix and sorts lexicographically after marker, plus whether more
// results remain.
func (s *store) ListObjects(bucket, prefix, marker string, maxKeys int) ([]objectEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bucketExistsLocked(bucket) {
		return nil, false, errBucketNotFound
	}

	root := s.bucketPath(bucket)
	var all []objectEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Name() != metaFileName {
			return nil
		}
		dir := filepath.Dir(path)
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, uploadsDir) {
			return nil
		}
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		dataInfo, statErr := os.Stat(filepath.Join(dir, dataFileName))
		if statErr != nil {
			return nil
		}
		meta, metaErr := readMeta[objectMeta](path)
		if metaErr != nil {
			return nil
		}
		all = append(all, objectEntry{
			Key:     key,
			Size:    dataInfo.Size(),
			ETag:    meta.ETag,
			ModTime: dataInfo.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	start := 0
	if marker != "" {
		start = sort.Search(len(all), func(i int) bool { return all[i].Key > marker })
	}
	all = all[start:]

	if maxKeys <= 0 || len(all) <= maxKeys {
		return all, false, nil
	}
	return all[:maxKeys], true, nil
}

func (s *store) bucketExistsLocked(bucket string) bool {
	info, err := os.Stat(s.bucketPath(bucket))
	return err == nil && info.IsDir()
}

// cleanupEmptyDirsLocked removes dir and any now-empty ancestors, stopping
// at (and never removing) root.
func (s *store) cleanupEmptyDirsLocked(root, dir string) {
	for {
		if dir == root || !strings.HasPrefix(dir, root) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// --- multipart uploads ---

func (s *store) uploadDir(bucket, uploadID string) string {
	return filepath.Join(s.bucketPath(bucket), uploadsDir, uploadID)
}

func (s *store) CreateMultipartUpload(bucket, key, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bucketExistsLocked(bucket) {
		return "", errBucketNotFound
	}

	uploadID := uuid.New().String()
	dir := s.uploadDir(bucket, uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := writeMeta(filepath.Join(dir, metaFileName), &uploadMeta{Bucket: bucket, Key: key, ContentType: contentType}); err != nil {
		return "", err
	}
	return uploadID, nil
}

// UploadPart stores data as part partNumber of the given upload and returns
// its ETag.
func (s *store) UploadPart(bucket, uploadID string, partNumber int, data io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if partNumber < 1 {
		return "", errInvalidPartNumber
	}

	dir := s.uploadDir(bucket, uploadID)
	if _, err := os.Stat(filepath.Join(dir, metaFileName)); err != nil {
		return "", errInvalidUploadID
	}

	partPath := filepath.Join(dir, partFileName(partNumber))
	f, err := os.Create(partPath)
	if err != nil {
		return "", err
	}
	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, hash), data)
	closeErr := f.Close()
	if err != nil {
		return "", err
	}
	if closeErr != nil {
		return "", closeErr
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// CompleteMultipartUpload assembles parts (in the order given) into the
// upload's target object, verifying both the part sequence and each part's
// claimed ETag, then removes the upload's working directory.
func (s *store) CompleteMultipartUpload(bucket, uploadID string, parts []completedPart) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.uploadDir(bucket, uploadID)
	meta, err := readMeta[uploadMeta](filepath.Join(dir, metaFileName))
	if err != nil {
		return "", 0, errInvalidUploadID
	}

	for i, p := range parts {
		if p.PartNumber != i+1 {
			return "", 0, errInvalidPartOrder
		}
		partPath := filepath.Join(dir, partFileName(p.PartNumber))
		f, err := os.Open(partPath)
		if err != nil {
			return "", 0, errInvalidPartNumber
		}
		hash := sha256.New()
		_, err = io.Copy(hash, f)
		f.Close()
		if err != nil {
			return "", 0, err
		}
		if hex.EncodeToString(hash.Sum(nil)) != strings.Trim(p.ETag, `"`) {
			return "", 0, fmt.Errorf("part %d: etag mismatch", p.PartNumber)
		}
	}

	objDir := s.objectDir(meta.Bucket, meta.Key)
	if err := os.MkdirAll(objDir, 0o755); err != nil {
		return "", 0, err
	}
	dataPath := filepath.Join(objDir, dataFileName)
	out, err := os.Create(dataPath)
	if err != nil {
		return "", 0, err
	}

	hash := sha256.New()
	var total int64
	for _, p := range parts {
		f, err := os.Open(filepath.Join(dir, partFileName(p.PartNumber)))
		if err != nil {
			out.Close()
			return "", 0, err
		}
		n, err := io.Copy(io.MultiWriter(out, hash), f)
		f.Close()
		total += n
		if err != nil {
			out.Close()
			return "", 0, err
		}
	}
	if err := out.Close(); err != nil {
		return "", 0, err
	}

	etag := hex.EncodeToString(hash.Sum(nil))
	if err := writeMeta(filepath.Join(objDir, metaFileName), &objectMeta{ContentType: meta.ContentType, ETag: etag}); err != nil {
		return "", 0, err
	}

	os.RemoveAll(dir)
	s.cleanupEmptyDirsLocked(filepath.Join(s.bucketPath(bucket), uploadsDir), filepath.Dir(dir))
	return etag, total, nil
}

func (s *store) AbortMultipartUpload(bucket, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.uploadDir(bucket, uploadID)
	if _, err := os.Stat(filepath.Join(dir, metaFileName)); err != nil {
		return errInvalidUploadID
	}
	return os.RemoveAll(dir)
}

func (s *store) ListParts(bucket, uploadID string) ([]partEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.uploadDir(bucket, uploadID)
	if _, err := os.Stat(filepath.Join(dir, metaFileName)); err != nil {
		return nil, errInvalidUploadID
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var parts []partEntry
	for _, e := range entries {
		n, ok := partNumberFromFileName(e.Name())
		if !ok {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		hash := sha256.New()
		size, err := io.Copy(hash, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		parts = append(parts, partEntry{PartNumber: n, ETag: hex.EncodeToString(hash.Sum(nil)), Size: size})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

const partFilePrefix = "part-"

func partFileName(n int) string { return partFilePrefix + strconv.Itoa(n) }

func partNumberFromFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, partFilePrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, partFilePrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

func writeMeta(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readMeta[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
