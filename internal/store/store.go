// Package store keeps the client's small persistent state in BoltDB:
// the last device used per transport and the history of diagnostic runs.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"LinkTerm/internal/model"
)

var (
	linksBucket       = []byte("links")
	diagnosticsBucket = []byte("diagnostics")
)

// Record is one finished diagnostic run.
type Record struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session"`
	Link    string    `json:"link"`
	Kind    string    `json:"kind"` // latency or mbps

	Iterations int     `json:"iterations,omitempty"`
	Valid      int     `json:"valid,omitempty"`
	MeanMs     float64 `json:"mean_ms,omitempty"`
	MinMs      float64 `json:"min_ms,omitempty"`
	MaxMs      float64 `json:"max_ms,omitempty"`
	NoData     bool    `json:"no_data,omitempty"`

	Bytes     int           `json:"bytes,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
	Mbps      float64       `json:"mbps,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// LatencyRecord summarises a latency report.
func LatencyRecord(rep model.LatencyReport) Record {
	r := Record{
		Kind:       "latency",
		Iterations: rep.Iterations,
		Valid:      rep.Valid,
		MeanMs:     rep.Mean,
		MinMs:      rep.Min,
		MaxMs:      rep.Max,
		NoData:     rep.NoData,
	}
	if rep.Err != nil {
		r.Error = rep.Err.Error()
	}
	return r
}

// ThroughputRecord summarises a throughput report.
func ThroughputRecord(rep model.ThroughputReport) Record {
	r := Record{Kind: "mbps", Bytes: rep.Bytes, Elapsed: rep.Elapsed, Mbps: rep.Mbps}
	if rep.Err != nil {
		r.Error = rep.Err.Error()
	}
	return r
}

// Store wraps the BoltDB file.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{linksBucket, diagnosticsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetLastLink remembers the address last connected for transport.
func (s *Store) SetLastLink(transport, address string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(linksBucket).Put([]byte(transport), []byte(address))
	})
}

// LastLink returns the address last connected for transport, or "".
func (s *Store) LastLink(transport string) (string, error) {
	var addr string
	err := s.db.View(func(tx *bbolt.Tx) error {
		addr = string(tx.Bucket(linksBucket).Get([]byte(transport)))
		return nil
	})
	return addr, err
}

// Record appends a diagnostic run. Records are kept in insertion order.
func (s *Store) Record(rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(diagnosticsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, body)
	})
}

// History returns up to limit records, newest first.
func (s *Store) History(limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(diagnosticsBucket).Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(out) < limit); k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %x: %w", k, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}
