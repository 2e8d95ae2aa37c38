// Package builder implements C2: for every descriptor identifier, a
// strategy object ("builder") knowing how to static-build, dynamic-build,
// give-next, and check that kind of node — primitive treatment, composite
// treatment, or model.
package builder

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// ModelHandle is a handle to a shared, long-lived model instance; copies of
// a handle share the same Value. No reference count is kept.
type ModelHandle struct {
	ID    descriptor.Identifier
	Value any
}

// GenesisEnvironment is the computed scope a build record carries: resolved
// parameter values, resolved generic bindings, and the model handles visible
// to this build.
type GenesisEnvironment struct {
	Parameters map[string]value.Const
	Generics   map[string]descriptor.DescribedType
	Models     map[string]ModelHandle
}

// Mask returns a fresh environment carrying only the names a child
// treatment declared. params and models select host-scope names to carry forward unchanged; generics is
// the child instance's own per-generic assignment (its declared generic
// name -> either a concrete DescribedType or a reference to one of the
// host's own generic names via descriptor.Gen), each resolved against this
// environment's own generic bindings so a host generic threads through to
// the child as a concrete type once the host itself is concrete.
func (g GenesisEnvironment) Mask(params []string, generics map[string]descriptor.DescribedType, models []string) GenesisEnvironment {
	masked := GenesisEnvironment{
		Parameters: make(map[string]value.Const, len(params)),
		Generics:   make(map[string]descriptor.DescribedType, len(generics)),
		Models:     make(map[string]ModelHandle, len(models)),
	}
	for _, p := range params {
		if v, ok := g.Parameters[p]; ok {
			masked.Parameters[p] = v
		}
	}
	for name, assigned := range generics {
		masked.Generics[name] = assigned.Resolve(g.Generics)
	}
	for _, m := range models {
		if v, ok := g.Models[m]; ok {
			masked.Models[m] = v
		}
	}
	return masked
}

// ContextualEnv is the additional scope available only once a track is
// materialising a specific activation: the contexts currently in effect.
type ContextualEnv struct {
	Contexts map[descriptor.Identifier]map[string]value.Data
}

// ConnectionEndpoint names one side of a connection. An empty InstanceLabel
// denotes the enclosing treatment's own input/output ("Self").
type ConnectionEndpoint struct {
	InstanceLabel string
	Port          string
}

func (e ConnectionEndpoint) IsSelf() bool { return e.InstanceLabel == "" }

// Connection is one producer-output -> consumer-input edge of a design.
type Connection struct {
	From ConnectionEndpoint
	To   ConnectionEndpoint
}

// ConnectionBuckets partitions a build record's internal connection graph
// into the four buckets C3 classifies during static build.
type ConnectionBuckets struct {
	Root   []Connection // Self-input -> internal
	Next   []Connection // internal -> internal
	Last   []Connection // internal -> Self-output
	Direct []Connection // Self-input -> Self-output passthrough
}

// BuildRecord is C3's per-static-build state.
type BuildRecord struct {
	DescriptorID       descriptor.Identifier
	Label              string
	HostBuildID        int // -1 when the host is the synthetic "Direct" root
	Genesis            GenesisEnvironment
	InstanciatedModels map[string]ModelHandle
	TreatmentBuildIDs  map[string]int
	Buckets            ConnectionBuckets

	// rootSinks holds, per track id, the receiver half for each of this
	// record's own Self-outputs once give_next has been asked for it at the
	// root of the tree (HostBuildID == DirectHost has no further host to
	// forward to). The external driver reads them through RootSinkHandles.
	// sinksMu guards both maps: several tracks may materialise against the
	// same root record concurrently.
	sinksMu   sync.Mutex
	rootSinks map[int]map[string]*transmission.InputHandle
	rootFeeds map[int]map[string]*transmission.OutputHandle
}

// rootSink returns the sender feeding this record's own Self-output sink
// for (trackID, port), creating the pair on first use.
func (r *BuildRecord) rootSink(trackID int, port string, datatype descriptor.DescribedType) *transmission.OutputHandle {
	r.sinksMu.Lock()
	defer r.sinksMu.Unlock()
	if r.rootSinks == nil {
		r.rootSinks = map[int]map[string]*transmission.InputHandle{}
		r.rootFeeds = map[int]map[string]*transmission.OutputHandle{}
	}
	if r.rootSinks[trackID] == nil {
		r.rootSinks[trackID] = map[string]*transmission.InputHandle{}
		r.rootFeeds[trackID] = map[string]*transmission.OutputHandle{}
	}
	if sender, ok := r.rootFeeds[trackID][port]; ok {
		return sender
	}
	sender, receivers := transmission.NewOutputHandle(datatype, 1)
	r.rootSinks[trackID][port] = receivers[0]
	r.rootFeeds[trackID][port] = sender
	return sender
}

// RootSinkHandles returns the receiver halves wired for trackID's
// Self-outputs, copied so the caller never observes a concurrent
// materialise mutating the underlying map.
func (r *BuildRecord) RootSinkHandles(trackID int) map[string]*transmission.InputHandle {
	r.sinksMu.Lock()
	defer r.sinksMu.Unlock()
	sinks := r.rootSinks[trackID]
	out := make(map[string]*transmission.InputHandle, len(sinks))
	for name, in := range sinks {
		out[name] = in
	}
	return out
}

// DirectHost is the sentinel host build id used at the root of the tree.
const DirectHost = -1

// Arena stores build records addressed by index rather than by shared
// pointer, sidestepping ownership cycles in the build tree. Back-references
// to a record's host are plain indices.
type Arena struct {
	records []*BuildRecord
}

// NewArena constructs an empty arena.
func NewArena() *Arena { return &Arena{} }

// Allocate appends rec and returns its index.
func (a *Arena) Allocate(rec *BuildRecord) int {
	a.records = append(a.records, rec)
	return len(a.records) - 1
}

// Get returns the record at id.
func (a *Arena) Get(id int) *BuildRecord {
	if id < 0 || id >= len(a.records) {
		return nil
	}
	return a.records[id]
}

// Len reports how many records have been allocated.
func (a *Arena) Len() int { return len(a.records) }

// StaticBuildResult is the outcome of one static_build call: either a new
// build record id, or a model handle when the descriptor being built is a
// model.
type StaticBuildResult struct {
	IsModel bool
	BuildID int
	Model   ModelHandle
}

// Task is one prepared, schedulable unit of work produced by dynamic_build.
// The external scheduler runs it; it must close every output it opened
// before returning.
type Task func(ctx context.Context) error

// DynamicBuildResult is returned by dynamic_build and give_next alike: the
// sender halves the caller must feed, and the tasks the caller must
// schedule.
type DynamicBuildResult struct {
	FeedingInputs   map[string]*transmission.OutputHandle
	PreparedFutures []Task
}
