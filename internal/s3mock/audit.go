package s3mock

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var auditBucketName = []byte("requests")

// AuditRecord is one completed request against the mock server, persisted
// to an embedded bbolt database so tests can assert on the server's
// request history independently of the HTTP responses it returned.
type AuditRecord struct {
	Method     string
	Bucket     string
	Key        string
	StatusCode int
	Timestamp  time.Time
}

// auditLog records AuditRecords to a bbolt-backed file, one value per
// request keyed by an auto-incrementing sequence number.
type auditLog struct {
	db *bolt.DB
}

func openAuditLog(path string) (*auditLog, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(auditBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &auditLog{db: db}, nil
}

func (a *auditLog) record(rec AuditRecord) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(auditBucketName)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// Records returns every recorded AuditRecord in the order requests
// completed.
func (a *auditLog) Records() ([]AuditRecord, error) {
	var records []AuditRecord
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(auditBucketName)
		return b.ForEach(func(k, v []byte) error {
			var rec AuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

func (a *auditLog) Close() error {
	return a.db.Close()
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// auditingResponseWriter captures the status code written through it, the
// way the teacher's pkg/accesslog.ResponseWriter does for its own access
// log entries.
type auditingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// auditMiddleware records one AuditRecord per request after next has
// served it, extracting bucket/key from the path the same way handler.
// ServeHTTP does.
func auditMiddleware(log *auditLog, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		aw := &auditingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(aw, r)

		path := strings.TrimPrefix(r.URL.Path, "/")
		parts := strings.SplitN(path, "/", 2)
		var bucket, key string
		if len(parts) > 0 {
			bucket = parts[0]
		}
		if len(parts) > 1 {
			key = parts[1]
		}

		_ = log.record(AuditRecord{
			Method:     r.Method,
			Bucket:     bucket,
			Key:        key,
			StatusCode: aw.status,
			Timestamp:  time.Now(),
		})
	})
}
