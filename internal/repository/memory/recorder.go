// Package memory keeps recent tick history in process. It is the default
// recorder when no database is configured.
package memory

import (
	"context"
	"sync"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
)

// defaultCapacity is the per-instance ring size when none is given.
const defaultCapacity = 500

// Recorder implements domain.SnapshotRecorder with a bounded per-instance
// ring. Oldest rows fall off once the ring fills.
type Recorder struct {
	capacity int

	mu   sync.RWMutex
	rows map[string][]domain.SnapshotRecord
}

// NewRecorder creates a recorder keeping at most capacity rows per instance.
// capacity <= 0 uses the default.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Recorder{
		capacity: capacity,
		rows:     make(map[string][]domain.SnapshotRecord),
	}
}

// Save appends one tick row, evicting the oldest beyond capacity.
func (r *Recorder) Save(_ context.Context, rec domain.SnapshotRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := append(r.rows[rec.InstanceID], rec)
	if len(rows) > r.capacity {
		rows = rows[len(rows)-r.capacity:]
	}
	r.rows[rec.InstanceID] = rows
	return nil
}

// Recent returns up to limit rows for the instance, newest tick first.
func (r *Recorder) Recent(_ context.Context, instanceID string, limit int) ([]domain.SnapshotRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := r.rows[instanceID]
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	out := make([]domain.SnapshotRecord, 0, limit)
	for i := len(rows) - 1; i >= len(rows)-limit; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}

// Health always succeeds.
func (r *Recorder) Health(_ context.Context) error {
	return nil
}
