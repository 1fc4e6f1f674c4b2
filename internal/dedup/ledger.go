// Package dedup tracks which external message identifiers have already been
// admitted into the pipeline, so overlapping poll result sets do not re-ingest
// the same item.
package dedup

import (
	"context"
	"sync"
)

// SeenKeyStore is the pluggable admission ledger. Admit returns true exactly
// once per key and records the key atomically on the true path; the
// check-and-set must hold under concurrent poll cycles.
type SeenKeyStore interface {
	Admit(ctx context.Context, externalKey string) (bool, error)
}

// MemoryLedger keeps the seen set in process memory. Sufficient for a single
// long-lived poller; admissions reset on restart, giving at-least-once
// delivery into the pipeline across restarts.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

// Admit records the key if unseen. The mutex is the single critical section
// serializing admission decisions.
func (l *MemoryLedger) Admit(_ context.Context, externalKey string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[externalKey]; ok {
		return false, nil
	}
	l.seen[externalKey] = struct{}{}
	return true, nil
}

// Len reports the number of admitted keys.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// AdmitFunc adapts a function (e.g. the store's durable seen-table insert)
// to the SeenKeyStore interface for multi-instance deployments.
type AdmitFunc func(ctx context.Context, externalKey string) (bool, error)

// Admit calls the wrapped function.
func (f AdmitFunc) Admit(ctx context.Context, externalKey string) (bool, error) {
	return f(ctx, externalKey)
}
