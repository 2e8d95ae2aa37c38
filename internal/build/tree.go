package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/check"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Tree is the launched build: the arena of build records, the registry
// that produced them, and the set of tracks materialised from it.
type Tree struct {
	reg         *builder.Registry
	arena       *builder.Arena
	rootBuildID int

	mu      sync.Mutex
	nextTrk int
	tracks  map[int]*Track
}

// Launch runs C3's top-level entry point: it builds the genesis
// environment, static-builds the entry treatment, runs the checker, and —
// on success — materialises track 0 and schedules its prepared tasks on
// the supplied executor.
func Launch(ctx context.Context, reg *builder.Registry, entryID descriptor.Identifier, params Params, generics Generics) (*Tree, map[string]*transmission.OutputHandle, error) {
	start := time.Now()
	entryBuilder, err := reg.Lookup(entryID)
	if err != nil {
		return nil, nil, pkgerrors.NewLaunchTargetNotTreatment(entryID.String())
	}
	entryDesc, ok := entryBuilder.Descriptor().(*descriptor.TreatmentDescriptor)
	if !ok {
		return nil, nil, pkgerrors.NewLaunchTargetNotTreatment(entryID.String())
	}

	genesis, err := buildGenesis(entryDesc, params, generics, reg.Functions)
	if err != nil {
		return nil, nil, err
	}

	arena := builder.NewArena()
	staticRes, err := entryBuilder.StaticBuild(reg, arena, builder.DirectHost, "", genesis)
	if err != nil {
		return nil, nil, err
	}

	checker := check.New(reg, arena)
	status := checker.Check(staticRes.BuildID)
	if status.Failure || len(status.Errors) > 0 {
		return nil, nil, pkgerrors.NewErroneousChecks(status.Errors)
	}

	tree := &Tree{reg: reg, arena: arena, rootBuildID: staticRes.BuildID, tracks: map[int]*Track{}}

	feedingInputs, err := tree.materialise(ctx, 0)
	if err != nil {
		return nil, nil, err
	}

	reg.Log().WithFields(map[string]any{
		"layer":         "build",
		"descriptor_id": entryID.String(),
		"build_id":      staticRes.BuildID,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("launch complete")
	return tree, feedingInputs, nil
}

// materialise allocates trackID (if not already present), dynamic-builds
// the root, and schedules every prepared future on an errgroup bound to
// ctx.
func (t *Tree) materialise(ctx context.Context, trackID int) (map[string]*transmission.OutputHandle, error) {
	t.mu.Lock()
	if trackID >= t.nextTrk {
		t.nextTrk = trackID + 1
	}
	track, exists := t.tracks[trackID]
	if !exists {
		track = newTrack(trackID)
		t.tracks[trackID] = track
	}
	t.mu.Unlock()

	res, err := t.reg.Lookup(t.rootEntry())
	if err != nil {
		return nil, err
	}

	dynRes, err := res.DynamicBuild(t.reg, t.arena, t.rootBuildID, trackID, builder.ContextualEnv{})
	if err != nil {
		return nil, err
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, task := range dynRes.PreparedFutures {
		task := task
		group.Go(func() error { return task(gctx) })
	}
	track.group = group
	track.feeding = dynRes.FeedingInputs

	t.reg.Log().WithFields(map[string]any{
		"layer":    "build",
		"build_id": t.rootBuildID,
		"track_id": trackID,
		"tasks":    len(dynRes.PreparedFutures),
	}).Debug("track materialised")
	return dynRes.FeedingInputs, nil
}

// Outputs returns the receiver handles for the entry treatment's own
// outputs on trackID, populated lazily as the corresponding internal
// producer's dynamic build asks its host for give_next.
func (t *Tree) Outputs(trackID int) map[string]*transmission.InputHandle {
	record := t.arena.Get(t.rootBuildID)
	if record == nil {
		return nil
	}
	return record.RootSinkHandles(trackID)
}

func (t *Tree) rootEntry() descriptor.Identifier {
	record := t.arena.Get(t.rootBuildID)
	if record == nil {
		return descriptor.Identifier{}
	}
	return record.DescriptorID
}

// NewTrack allocates and materialises an additional track against the same
// build tree, used by the distribution engine when a remote worker
// instantiates a new activation.
func (t *Tree) NewTrack(ctx context.Context) (int, map[string]*transmission.OutputHandle, error) {
	t.mu.Lock()
	id := t.nextTrk
	t.nextTrk++
	t.mu.Unlock()

	feeding, err := t.materialise(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return id, feeding, nil
}

// Wait blocks until every task of trackID has returned.
func (t *Tree) Wait(trackID int) error {
	t.mu.Lock()
	track, ok := t.tracks[trackID]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("build: no such track %d", trackID)
	}
	return track.group.Wait()
}

// Shutdown synchronously tears down every live track: it closes each
// track's entry senders so the close cascades through the pipeline, then
// blocks until the tasks have drained or ctx expires — the one place
// blocking is allowed, because shutdown runs outside the scheduler.
func (t *Tree) Shutdown(ctx context.Context) error {
	start := time.Now()
	t.mu.Lock()
	tracks := make([]*Track, 0, len(t.tracks))
	for _, trk := range t.tracks {
		tracks = append(tracks, trk)
	}
	t.mu.Unlock()

	for _, trk := range tracks {
		for _, sender := range trk.feeding {
			_ = sender.Close()
		}
	}

	var firstErr error
	for _, trk := range tracks {
		if trk.group == nil {
			continue
		}
		done := make(chan error, 1)
		go func(trk *Track) { done <- trk.group.Wait() }(trk)
		select {
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		case err := <-done:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	t.reg.Log().WithFields(map[string]any{
		"layer":       "build",
		"build_id":    t.rootBuildID,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("shutdown complete")
	return firstErr
}
