package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UsersCreated          uint64
	UsersDeleted          uint64
	LookupDurationCount   uint64
	LookupDurationTotalNs int64
}

// InMemoryRecorder stores metrics in memory using atomic counters.
type InMemoryRecorder struct {
	usersCreated          uint64
	usersDeleted          uint64
	lookupDurationCount   uint64
	lookupDurationTotalNs int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		UsersCreated:          atomic.LoadUint64(&m.usersCreated),
		UsersDeleted:          atomic.LoadUint64(&m.usersDeleted),
		LookupDurationCount:   atomic.LoadUint64(&m.lookupDurationCount),
		LookupDurationTotalNs: atomic.LoadInt64(&m.lookupDurationTotalNs),
	}
}

// IncUserCreated increments the user created counter.
func (m *InMemoryRecorder) IncUserCreated() {
	atomic.AddUint64(&m.usersCreated, 1)
}

// IncUserDeleted increments the user deleted counter.
func (m *InMemoryRecorder) IncUserDeleted() {
	atomic.AddUint64(&m.usersDeleted, 1)
}

// ObserveLookupDuration records a user lookup duration.
func (m *InMemoryRecorder) ObserveLookupDuration(duration time.Duration) {
	atomic.AddUint64(&m.lookupDurationCount, 1)
	atomic.AddInt64(&m.lookupDurationTotalNs, duration.Nanoseconds())
}
