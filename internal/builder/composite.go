package builder

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	"github.com/alexisbeaulieu97/melodium/internal/value"
	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
)

// CompositeBuilder builds a treatment whose body is a Design rather than a
// host-language implementation.
type CompositeBuilder struct {
	desc   *descriptor.TreatmentDescriptor
	design Design
}

// NewCompositeBuilder constructs a builder for a composite treatment. desc
// must carry a non-nil Composite design.
func NewCompositeBuilder(desc *descriptor.TreatmentDescriptor) (*CompositeBuilder, error) {
	design, ok := desc.Composite.(Design)
	if !ok {
		return nil, fmt.Errorf("builder: %s has no composite design", desc.ID())
	}
	return &CompositeBuilder{desc: desc, design: design}, nil
}

func (b *CompositeBuilder) Variant() Variant                   { return VariantComposite }
func (b *CompositeBuilder) Descriptor() descriptor.Descriptor   { return b.desc }

func (b *CompositeBuilder) instanceEnv(reg *Registry, params map[string]descriptor.Expr, declared []descriptor.Parameter, outer GenesisEnvironment) (map[string]value.Const, error) {
	env := value.Environment{Names: outer.Parameters}
	resolved := make(map[string]value.Const, len(declared))
	for _, p := range declared {
		expr, has := params[p.Name]
		switch {
		case has:
			if p.Const && value.IsContextFieldRef(expr) {
				return nil, pkgerrors.NewConstRequiredContextProvided(p.Name)
			}
			c, err := value.Resolve(expr, env, reg.Functions)
			if err != nil {
				return nil, fmt.Errorf("resolving parameter %q: %w", p.Name, err)
			}
			if p.Const && !c.IsConst {
				return nil, pkgerrors.NewConstRequiredVarProvided(p.Name)
			}
			resolved[p.Name] = c
		case p.Default != nil:
			c, err := value.Resolve(p.Default, env, reg.Functions)
			if err != nil {
				return nil, fmt.Errorf("resolving default for parameter %q: %w", p.Name, err)
			}
			resolved[p.Name] = c
		default:
			return nil, pkgerrors.NewUnsetParameterNoDefault(p.Name)
		}
	}
	return resolved, nil
}

// StaticBuild resolves defaults, instantiates internal models, recursively
// static-builds every internal treatment instance with a masked
// environment, classifies connections into the four buckets, and allocates
// a build record.
func (b *CompositeBuilder) StaticBuild(reg *Registry, arena *Arena, hostBuildID int, label string, genesis GenesisEnvironment) (StaticBuildResult, error) {
	// Refuse recursive instantiation before allocating: an ancestor with
	// this same descriptor means the design loops and the recursion would
	// never terminate.
	for hostID := hostBuildID; hostID != DirectHost; {
		host := arena.Get(hostID)
		if host == nil {
			break
		}
		if host.DescriptorID == b.desc.ID() {
			return StaticBuildResult{}, pkgerrors.NewAlreadyIncludedBuildStep(b.desc.ID().String(), hostID)
		}
		hostID = host.HostBuildID
	}

	record := &BuildRecord{
		DescriptorID:       b.desc.ID(),
		Label:              label,
		HostBuildID:        hostBuildID,
		Genesis:            genesis,
		InstanciatedModels: map[string]ModelHandle{},
		TreatmentBuildIDs:  map[string]int{},
	}
	buildID := arena.Allocate(record)

	for _, mi := range b.design.Models {
		mb, err := reg.Lookup(mi.ModelID)
		if err != nil {
			return StaticBuildResult{}, err
		}
		modelDesc, ok := mb.Descriptor().(*descriptor.ModelDescriptor)
		if !ok {
			return StaticBuildResult{}, fmt.Errorf("builder: %s is not a model descriptor", mi.ModelID)
		}
		params, err := b.instanceEnv(reg, mi.Params, modelDesc.Parameters(), genesis)
		if err != nil {
			return StaticBuildResult{}, err
		}
		childGenesis := GenesisEnvironment{Parameters: params}
		res, err := mb.StaticBuild(reg, arena, buildID, mi.Label, childGenesis)
		if err != nil {
			return StaticBuildResult{}, err
		}
		record.InstanciatedModels[mi.Label] = res.Model
	}

	for _, ti := range b.design.Treatments {
		cb, err := reg.Lookup(ti.TreatmentID)
		if err != nil {
			return StaticBuildResult{}, err
		}
		td, ok := cb.Descriptor().(*descriptor.TreatmentDescriptor)
		if !ok {
			return StaticBuildResult{}, fmt.Errorf("builder: %s is not a treatment descriptor", ti.TreatmentID)
		}
		params, err := b.instanceEnv(reg, ti.Params, td.Parameters(), genesis)
		if err != nil {
			return StaticBuildResult{}, err
		}
		models := map[string]ModelHandle{}
		for slot, source := range ti.Models {
			if h, ok := record.InstanciatedModels[source]; ok {
				models[slot] = h
			} else if h, ok := genesis.Models[source]; ok {
				models[slot] = h
			}
		}
		masked := genesis.Mask(nil, ti.Generics, nil)
		childGenesis := GenesisEnvironment{Parameters: params, Generics: masked.Generics, Models: models}
		res, err := cb.StaticBuild(reg, arena, buildID, ti.Label, childGenesis)
		if err != nil {
			return StaticBuildResult{}, err
		}
		if !res.IsModel {
			record.TreatmentBuildIDs[ti.Label] = res.BuildID
		}
	}

	record.Buckets = classifyConnections(b.design.Connections)

	return StaticBuildResult{BuildID: buildID}, nil
}

// classifyConnections partitions connections into the four build-record
// buckets: root, next, last, direct.
func classifyConnections(conns []Connection) ConnectionBuckets {
	var buckets ConnectionBuckets
	for _, c := range conns {
		switch {
		case c.From.IsSelf() && c.To.IsSelf():
			buckets.Direct = append(buckets.Direct, c)
		case c.From.IsSelf():
			buckets.Root = append(buckets.Root, c)
		case c.To.IsSelf():
			buckets.Last = append(buckets.Last, c)
		default:
			buckets.Next = append(buckets.Next, c)
		}
	}
	return buckets
}

// DynamicBuild materialises a running instance for trackID: it builds
// internal connections, dynamic-builds every root treatment, and aggregates
// their prepared futures.
func (b *CompositeBuilder) DynamicBuild(reg *Registry, arena *Arena, buildID, trackID int, env ContextualEnv) (DynamicBuildResult, error) {
	if cached, ok := reg.Memoized(buildID, trackID); ok {
		return cached, nil
	}

	record := arena.Get(buildID)
	if record == nil {
		return DynamicBuildResult{}, fmt.Errorf("builder: no build record %d", buildID)
	}

	result := DynamicBuildResult{FeedingInputs: map[string]*transmission.OutputHandle{}}

	rootLabels := map[string]struct{}{}
	for _, c := range record.Buckets.Root {
		rootLabels[c.To.InstanceLabel] = struct{}{}
	}
	for label := range rootLabels {
		childID, ok := record.TreatmentBuildIDs[label]
		if !ok {
			continue
		}
		childBuilder, err := reg.Lookup(b.childDescriptorID(label))
		if err != nil {
			return DynamicBuildResult{}, err
		}
		childRes, err := childBuilder.DynamicBuild(reg, arena, childID, trackID, env)
		if err != nil {
			return DynamicBuildResult{}, err
		}
		result.PreparedFutures = append(result.PreparedFutures, childRes.PreparedFutures...)
	}

	for _, c := range record.Buckets.Root {
		childID := record.TreatmentBuildIDs[c.To.InstanceLabel]
		childBuilder, err := reg.Lookup(b.childDescriptorID(c.To.InstanceLabel))
		if err != nil {
			return DynamicBuildResult{}, err
		}
		childRes, err := childBuilder.DynamicBuild(reg, arena, childID, trackID, env)
		if err != nil {
			return DynamicBuildResult{}, err
		}
		if sender, ok := childRes.FeedingInputs[c.To.Port]; ok {
			addFeedingInput(result.FeedingInputs, c.From.Port, sender)
		}
	}

	for _, c := range record.Buckets.Direct {
		decl, ok := b.desc.Input(c.From.Port)
		if !ok {
			continue
		}
		if record.HostBuildID == DirectHost {
			sender := record.rootSink(trackID, c.To.Port, decl.Datatype)
			addFeedingInput(result.FeedingInputs, c.From.Port, sender)
			continue
		}
		host := arena.Get(record.HostBuildID)
		if host == nil {
			return DynamicBuildResult{}, fmt.Errorf("builder: no build record %d", record.HostBuildID)
		}
		hostBuilder, err := reg.Lookup(host.DescriptorID)
		if err != nil {
			return DynamicBuildResult{}, err
		}
		hostRes, err := hostBuilder.GiveNext(reg, arena, record.HostBuildID, trackID, record.Label, env)
		if err != nil {
			return DynamicBuildResult{}, err
		}
		result.PreparedFutures = append(result.PreparedFutures, hostRes.PreparedFutures...)
		outward, ok := hostRes.FeedingInputs[c.To.Port]
		if !ok {
			continue
		}
		sender, relay := relayThrough(decl.Datatype, outward)
		addFeedingInput(result.FeedingInputs, c.From.Port, sender)
		result.PreparedFutures = append(result.PreparedFutures, relay)
	}

	reg.StoreMemo(buildID, trackID, result)
	return result, nil
}

// relayThrough wires a passthrough connection: the returned sender is fed
// by this treatment's caller, and the relay task pumps every batch into
// outward until the inward side closes.
func relayThrough(datatype descriptor.DescribedType, outward *transmission.OutputHandle) (*transmission.OutputHandle, Task) {
	sender, receivers := transmission.NewOutputHandle(datatype, 1)
	inward := receivers[0]
	relay := func(ctx context.Context) error {
		defer outward.Close()
		for {
			batch, err := inward.RecvMany()
			if err != nil {
				return nil
			}
			if err := outward.SendMany(batch); err != nil {
				return nil
			}
			if err := outward.Flush(); err != nil {
				return nil
			}
		}
	}
	return sender, relay
}

// addFeedingInput maps port to sender, merging into an existing sender's
// fan-out set when the same port already feeds another consumer.
func addFeedingInput(inputs map[string]*transmission.OutputHandle, port string, sender *transmission.OutputHandle) {
	if existing, ok := inputs[port]; ok {
		if existing != sender {
			existing.Adopt(sender)
		}
		return
	}
	inputs[port] = sender
}

// childDescriptorID looks up the descriptor identifier an internal instance
// label refers to within this builder's design.
func (b *CompositeBuilder) childDescriptorID(label string) descriptor.Identifier {
	for _, ti := range b.design.Treatments {
		if ti.Label == label {
			return ti.TreatmentID
		}
	}
	return descriptor.Identifier{}
}

// GiveNext is called by a child instance (childLabel) to obtain the senders
// for connections leaving it: sibling next-connections are dynamic-built
// directly; last-connections recurse one level up via this record's own
// host.
func (b *CompositeBuilder) GiveNext(reg *Registry, arena *Arena, buildID, trackID int, childLabel string, env ContextualEnv) (DynamicBuildResult, error) {
	record := arena.Get(buildID)
	if record == nil {
		return DynamicBuildResult{}, fmt.Errorf("builder: no build record %d", buildID)
	}

	result := DynamicBuildResult{FeedingInputs: map[string]*transmission.OutputHandle{}}

	for _, c := range record.Buckets.Next {
		if c.From.InstanceLabel != childLabel {
			continue
		}
		siblingID, ok := record.TreatmentBuildIDs[c.To.InstanceLabel]
		if !ok {
			continue
		}
		siblingBuilder, err := reg.Lookup(b.childDescriptorID(c.To.InstanceLabel))
		if err != nil {
			return DynamicBuildResult{}, err
		}
		siblingRes, err := siblingBuilder.DynamicBuild(reg, arena, siblingID, trackID, env)
		if err != nil {
			return DynamicBuildResult{}, err
		}
		result.PreparedFutures = append(result.PreparedFutures, siblingRes.PreparedFutures...)
		if sender, ok := siblingRes.FeedingInputs[c.To.Port]; ok {
			addFeedingInput(result.FeedingInputs, c.From.Port, sender)
		}
	}

	for _, c := range record.Buckets.Last {
		if c.From.InstanceLabel != childLabel {
			continue
		}
		if record.HostBuildID == DirectHost {
			datatype, ok := b.desc.Output(c.To.Port)
			if !ok {
				continue
			}
			sender := record.rootSink(trackID, c.To.Port, datatype.Datatype)
			if sender != nil {
				addFeedingInput(result.FeedingInputs, c.From.Port, sender)
			}
			continue
		}
		host := arena.Get(record.HostBuildID)
		if host == nil {
			return DynamicBuildResult{}, fmt.Errorf("builder: no build record %d", record.HostBuildID)
		}
		hostBuilder, err := reg.Lookup(host.DescriptorID)
		if err != nil {
			return DynamicBuildResult{}, err
		}
		hostRes, err := hostBuilder.GiveNext(reg, arena, record.HostBuildID, trackID, record.Label, env)
		if err != nil {
			return DynamicBuildResult{}, err
		}
		result.PreparedFutures = append(result.PreparedFutures, hostRes.PreparedFutures...)
		if sender, ok := hostRes.FeedingInputs[c.To.Port]; ok {
			addFeedingInput(result.FeedingInputs, c.From.Port, sender)
		}
	}

	return result, nil
}

// CheckDynamicBuild mirrors DynamicBuild for the static checker: no
// channels or tasks, only cycle detection and error accumulation.
func (b *CompositeBuilder) CheckDynamicBuild(reg *Registry, arena *Arena, buildID int, path *Path) []error {
	record := arena.Get(buildID)
	if record == nil {
		return []error{fmt.Errorf("builder: no build record %d", buildID)}
	}
	if !path.Push(record.DescriptorID.Key(), buildID) {
		return []error{fmt.Errorf("already-included build step: %s (build %d)", record.DescriptorID, buildID)}
	}
	defer path.Pop()

	var errs []error
	for label, childID := range record.TreatmentBuildIDs {
		childBuilder, err := reg.Lookup(b.childDescriptorID(label))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, childBuilder.CheckDynamicBuild(reg, arena, childID, path)...)
	}
	return errs
}

// CheckGiveNext mirrors GiveNext for the static checker.
func (b *CompositeBuilder) CheckGiveNext(reg *Registry, arena *Arena, buildID int, childLabel string, path *Path) []error {
	record := arena.Get(buildID)
	if record == nil {
		return []error{fmt.Errorf("builder: no build record %d", buildID)}
	}

	var errs []error
	for _, c := range record.Buckets.Last {
		if c.From.InstanceLabel != childLabel || record.HostBuildID == DirectHost {
			continue
		}
		host := arena.Get(record.HostBuildID)
		if host == nil {
			errs = append(errs, fmt.Errorf("builder: no build record %d", record.HostBuildID))
			continue
		}
		hostBuilder, err := reg.Lookup(host.DescriptorID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, hostBuilder.CheckGiveNext(reg, arena, record.HostBuildID, record.Label, path)...)
	}
	return errs
}

var _ Builder = (*CompositeBuilder)(nil)
