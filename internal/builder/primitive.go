package builder

import (
	"fmt"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// TaskFactory is the host-language implementation a leaf (primitive)
// treatment supplies: given its resolved parameter values, model handles,
// input handles, and output handles, it returns exactly one prepared Task
type TaskFactory func(params map[string]value.Const, models map[string]ModelHandle, ins map[string]*transmission.InputHandle, outs map[string]*transmission.OutputHandle) Task

// PrimitiveBuilder wraps a host-language leaf treatment implementation
type PrimitiveBuilder struct {
	desc    *descriptor.TreatmentDescriptor
	factory TaskFactory
}

// NewPrimitiveBuilder constructs a builder for a primitive treatment. desc
// must not carry a composite design.
func NewPrimitiveBuilder(desc *descriptor.TreatmentDescriptor, factory TaskFactory) *PrimitiveBuilder {
	return &PrimitiveBuilder{desc: desc, factory: factory}
}

func (b *PrimitiveBuilder) Variant() Variant                 { return VariantPrimitive }
func (b *PrimitiveBuilder) Descriptor() descriptor.Descriptor { return b.desc }

func (b *PrimitiveBuilder) StaticBuild(reg *Registry, arena *Arena, hostBuildID int, label string, genesis GenesisEnvironment) (StaticBuildResult, error) {
	record := &BuildRecord{
		DescriptorID: b.desc.ID(),
		Label:        label,
		HostBuildID:  hostBuildID,
		Genesis:      genesis,
	}
	id := arena.Allocate(record)
	return StaticBuildResult{BuildID: id}, nil
}

func (b *PrimitiveBuilder) DynamicBuild(reg *Registry, arena *Arena, buildID, trackID int, env ContextualEnv) (DynamicBuildResult, error) {
	if cached, ok := reg.Memoized(buildID, trackID); ok {
		return cached, nil
	}

	record := arena.Get(buildID)
	if record == nil {
		return DynamicBuildResult{}, fmt.Errorf("builder: no build record %d", buildID)
	}

	ins := map[string]*transmission.InputHandle{}
	feedingInputs := map[string]*transmission.OutputHandle{}
	for _, in := range b.desc.Inputs {
		out, handles := transmission.NewOutputHandle(in.Datatype, 1)
		ins[in.Name] = handles[0]
		feedingInputs[in.Name] = out
	}

	outs := map[string]*transmission.OutputHandle{}
	var downstream []Task
	if record.HostBuildID != DirectHost {
		hostBuilder, err := reg.Lookup(b.hostDescriptorID(arena, record))
		if err != nil {
			return DynamicBuildResult{}, err
		}
		hostRes, err := hostBuilder.GiveNext(reg, arena, record.HostBuildID, trackID, record.Label, env)
		if err != nil {
			return DynamicBuildResult{}, err
		}
		for _, o := range b.desc.Outputs {
			if sender, ok := hostRes.FeedingInputs[o.Name]; ok {
				outs[o.Name] = sender
			}
		}
		// Siblings first dynamic-built while wiring this treatment's
		// outputs travel upward with it so the caller schedules them too.
		downstream = hostRes.PreparedFutures
	}

	reg.log.WithFields(map[string]any{
		"layer":         "transmission",
		"descriptor_id": record.DescriptorID.String(),
		"build_id":      buildID,
		"track_id":      trackID,
		"inputs":        len(ins),
		"outputs":       len(outs),
	}).Debug("transmitters wired")

	task := b.factory(record.Genesis.Parameters, record.Genesis.Models, ins, outs)
	result := DynamicBuildResult{FeedingInputs: feedingInputs, PreparedFutures: append(downstream, task)}
	reg.StoreMemo(buildID, trackID, result)
	return result, nil
}

func (b *PrimitiveBuilder) hostDescriptorID(arena *Arena, record *BuildRecord) descriptor.Identifier {
	host := arena.Get(record.HostBuildID)
	if host == nil {
		return descriptor.Identifier{}
	}
	return host.DescriptorID
}

// GiveNext is never called on a primitive: primitives have no internal
// instances of their own to ask for further wiring.
func (b *PrimitiveBuilder) GiveNext(reg *Registry, arena *Arena, buildID, trackID int, childLabel string, env ContextualEnv) (DynamicBuildResult, error) {
	return DynamicBuildResult{}, fmt.Errorf("builder: give_next called on primitive %s", b.desc.ID())
}

func (b *PrimitiveBuilder) CheckDynamicBuild(reg *Registry, arena *Arena, buildID int, path *Path) []error {
	record := arena.Get(buildID)
	if record == nil {
		return []error{fmt.Errorf("builder: no build record %d", buildID)}
	}
	if !path.Push(record.DescriptorID.Key(), buildID) {
		return []error{fmt.Errorf("already-included build step: %s (build %d)", record.DescriptorID, buildID)}
	}
	defer path.Pop()
	return nil
}

func (b *PrimitiveBuilder) CheckGiveNext(reg *Registry, arena *Arena, buildID int, childLabel string, path *Path) []error {
	return nil
}

var _ Builder = (*PrimitiveBuilder)(nil)
