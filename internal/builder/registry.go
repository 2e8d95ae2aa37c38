package builder

import (
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/logger"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// Registry holds every registered builder, keyed by descriptor identifier,
// plus a memoisation table for dynamic builds.
type Registry struct {
	mu        sync.RWMutex
	builders  map[string]Builder
	graph     *dependencyGraph
	disabled  map[string]bool
	log       *logger.Logger
	Functions value.FunctionTable

	memoMu sync.Mutex
	memo   map[memoKey]DynamicBuildResult
}

type memoKey struct {
	buildID int
	trackID int
}

// NewRegistry returns an empty registry. funcs resolves FunctionCall
// expressions encountered while propagating parameter values.
func NewRegistry(log *logger.Logger, funcs value.FunctionTable) *Registry {
	return &Registry{
		builders:  make(map[string]Builder),
		graph:     newDependencyGraph(),
		disabled:  make(map[string]bool),
		log:       log,
		Functions: funcs,
		memo:      make(map[memoKey]DynamicBuildResult),
	}
}

// Register adds b under its descriptor's identifier. Composite treatments
// have their design's internal instances recorded as reference edges so
// Validate can catch dangling or circular registration-time references.
func (r *Registry) Register(b Builder) error {
	key := b.Descriptor().ID().Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[key]; exists {
		return ErrAlreadyRegistered{ID: key}
	}
	r.builders[key] = b
	r.graph.addNode(key)
	delete(r.disabled, key)

	if td, ok := b.Descriptor().(*descriptor.TreatmentDescriptor); ok && td.IsComposite() {
		if design, ok := td.Composite.(Design); ok {
			for _, inst := range design.Treatments {
				r.graph.addEdge(key, inst.TreatmentID.Key())
			}
		}
	}
	r.log.WithFields(map[string]any{
		"layer":         "build",
		"descriptor_id": key,
	}).Debug("builder registered")
	return nil
}

// Log returns the logger this registry was built with; the build and check
// layers share it so their entries correlate with builder events.
func (r *Registry) Log() *logger.Logger { return r.log }

// Validate checks that every referenced descriptor is registered and that
// the registration-time reference graph is acyclic.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for from, refs := range r.graph.outgoing {
		for to := range refs {
			if _, ok := r.builders[to]; !ok {
				return ErrUnknownReference{From: from, To: to}
			}
		}
	}
	if cycle := r.graph.detectCycle(); len(cycle) > 0 {
		return ErrCircularReference{Cycle: cycle}
	}
	return nil
}

// Lookup returns the builder registered for id.
func (r *Registry) Lookup(id descriptor.Identifier) (Builder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[id.Key()]
	if !ok || r.disabled[id.Key()] {
		return nil, ErrBuilderNotFound{ID: id.Key()}
	}
	return b, nil
}

// List returns every registered identifier key, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.builders))
	for k := range r.builders {
		if r.disabled[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Memoized returns the cached DynamicBuildResult for (buildID, trackID) if
// DynamicBuild has already run for that pair: repeat calls return the
// already-built senders with no prepared futures, so a build reached along
// several wiring paths is scheduled exactly once.
func (r *Registry) Memoized(buildID, trackID int) (DynamicBuildResult, bool) {
	r.memoMu.Lock()
	defer r.memoMu.Unlock()
	res, ok := r.memo[memoKey{buildID, trackID}]
	if !ok {
		return DynamicBuildResult{}, false
	}
	res.PreparedFutures = nil
	return res, true
}

// StoreMemo records the DynamicBuildResult for (buildID, trackID).
func (r *Registry) StoreMemo(buildID, trackID int, res DynamicBuildResult) {
	r.memoMu.Lock()
	r.memo[memoKey{buildID, trackID}] = res
	r.memoMu.Unlock()
	r.log.WithFields(map[string]any{
		"layer":    "build",
		"build_id": buildID,
		"track_id": trackID,
		"tasks":    len(res.PreparedFutures),
	}).Debug("dynamic build memoised")
}
