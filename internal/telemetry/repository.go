package telemetry

import "sync"

// repository holds the latest snapshot. Collection runs on the exporter's
// goroutine while updates come from the simulation, hence the lock.
type repository struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

func (r *repository) Store(s Snapshot) {
	servers := make([]ServerValues, len(s.Servers))
	copy(servers, s.Servers)
	s.Servers = servers

	r.mu.Lock()
	r.snap = s
	r.set = true
	r.mu.Unlock()
}

func (r *repository) Load() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap, r.set
}
