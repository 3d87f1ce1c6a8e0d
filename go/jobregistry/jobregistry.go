// Package jobregistry tracks in-flight and finished builds for both
// engines (spec §4.8). Kernel builds are keyed by a monotonic integer
// allocated at Prepare time; ROM builds are keyed by a UUID allocated at
// build start. A single lock protects allocation and status mutation;
// it is never held across a child-process wait.
package jobregistry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go.buildorch.dev/go/buildtypes"
)

var (
	activeKernelBuilds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "builder_kernel_builds_active",
		Help: "number of kernel builds currently tracked as unfinished.",
	})
	activeROMBuilds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "builder_rom_builds_active",
		Help: "number of ROM builds currently tracked as unfinished.",
	})
	kernelBuildsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "builder_kernel_builds_finished_total",
		Help: "number of kernel builds that reached a terminal state, by result.",
	}, []string{"result"})
	romBuildsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "builder_rom_builds_finished_total",
		Help: "number of ROM builds that reached a terminal state, by result.",
	}, []string{"result"})
)

// Status is the mutable per-build bookkeeping the registry hands out by
// value. Finished and Succeeded only ever transition false->true and
// false->X once; MarkFinished is idempotent in the sense that a second
// call is a no-op rather than a double-count.
type Status struct {
	Finished  bool
	Succeeded bool
}

// KernelRegistry allocates monotonic integer build ids and tracks each
// one's terminal status (spec §4.8, §4.6).
type KernelRegistry struct {
	mu   sync.Mutex
	next int64
	byID map[int64]*Status
}

// NewKernelRegistry returns an empty registry; the first allocated id is 1.
func NewKernelRegistry() *KernelRegistry {
	return &KernelRegistry{byID: map[int64]*Status{}}
}

// Allocate reserves the next build id and registers it as unfinished.
func (r *KernelRegistry) Allocate() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.byID[id] = &Status{}
	activeKernelBuilds.Inc()
	return id
}

// IsValid reports whether id was ever allocated by this registry.
func (r *KernelRegistry) IsValid(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[id]
	return ok
}

// IsFinished reports whether id has reached a terminal state. It
// returns false, buildtypes.NotFound for an id never allocated.
func (r *KernelRegistry) IsFinished(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[id]
	if !ok {
		return false, buildtypes.NotFound("jobregistry: unknown kernel build id %d", id)
	}
	return st.Finished, nil
}

// MarkFinished transitions id to a terminal state exactly once. A
// second call for an already-finished id is a no-op.
func (r *KernelRegistry) MarkFinished(id int64, succeeded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[id]
	if !ok {
		return buildtypes.NotFound("jobregistry: unknown kernel build id %d", id)
	}
	if st.Finished {
		return nil
	}
	st.Finished = true
	st.Succeeded = succeeded
	activeKernelBuilds.Dec()
	kernelBuildsFinished.WithLabelValues(resultLabel(succeeded)).Inc()
	return nil
}

// Status returns a snapshot of id's bookkeeping.
func (r *KernelRegistry) Status(id int64) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[id]
	if !ok {
		return Status{}, buildtypes.NotFound("jobregistry: unknown kernel build id %d", id)
	}
	return *st, nil
}

// ROMRegistry is the UUID-keyed equivalent for ROM builds (spec §4.7:
// build ids are of the form build-<uuid>).
type ROMRegistry struct {
	mu   sync.Mutex
	byID map[string]*Status
}

// NewROMRegistry returns an empty registry.
func NewROMRegistry() *ROMRegistry {
	return &ROMRegistry{byID: map[string]*Status{}}
}

// Allocate mints a fresh "build-<uuid>" id and registers it as unfinished.
func (r *ROMRegistry) Allocate() string {
	id := "build-" + uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = &Status{}
	activeROMBuilds.Inc()
	return id
}

// IsValid reports whether id was ever allocated by this registry.
func (r *ROMRegistry) IsValid(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[id]
	return ok
}

// IsFinished reports whether id has reached a terminal state.
func (r *ROMRegistry) IsFinished(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[id]
	if !ok {
		return false, buildtypes.NotFound("jobregistry: unknown ROM build id %s", id)
	}
	return st.Finished, nil
}

// MarkFinished transitions id to a terminal state exactly once.
func (r *ROMRegistry) MarkFinished(id string, succeeded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[id]
	if !ok {
		return buildtypes.NotFound("jobregistry: unknown ROM build id %s", id)
	}
	if st.Finished {
		return nil
	}
	st.Finished = true
	st.Succeeded = succeeded
	activeROMBuilds.Dec()
	romBuildsFinished.WithLabelValues(resultLabel(succeeded)).Inc()
	return nil
}

// Status returns a snapshot of id's bookkeeping.
func (r *ROMRegistry) Status(id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byID[id]
	if !ok {
		return Status{}, buildtypes.NotFound("jobregistry: unknown ROM build id %s", id)
	}
	return *st, nil
}

func resultLabel(succeeded bool) string {
	if succeeded {
		return "success"
	}
	return "failure"
}
