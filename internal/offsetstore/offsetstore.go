// Package offsetstore provides the reference sink's in-memory substitute for
// the external offset store the driver framework would normally own: a
// process-lifetime map from partition to the last persisted offset.
package offsetstore

import (
	"sync"

	"github.com/conduktor/kafka-connect-opentelemetry/ingress"
)

// Store is a concurrency-safe, in-memory keyed offset table. It exists
// purely so cmd/otlp-ingress can demonstrate the resume contract (§4.F
// Start step 3) without a real external framework; it holds no state across
// process restarts.
type Store struct {
	mu   sync.Mutex
	data map[ingress.PartitionKey]ingress.PersistedOffset
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[ingress.PartitionKey]ingress.PersistedOffset)}
}

// Read implements ingress.OffsetReader: it returns ok=false for any
// partition it has never seen a Write for, which the driver treats
// identically to an explicit empty record.
func (s *Store) Read(pk ingress.PartitionKey) (ingress.PersistedOffset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[pk]
	return v, ok
}

// Write persists the offset for rec's partition, keyed by its session id,
// signal name, and sequence. Callers typically invoke this from their
// commit hook, after (or instead of) calling Driver.Commit.
func (s *Store) Write(rec ingress.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.PartitionKey] = ingress.PersistedOffset{
		SessionId:  rec.OffsetKey.SessionId,
		SignalName: rec.OffsetKey.SignalName,
		Sequence:   rec.OffsetKey.Sequence,
	}
}
