// Package check implements C4: the static checker that walks the build
// tree without running it, accumulating errors so every problem is known
// before any task is started.
package check

import (
	"time"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/logger"
	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
)

// Environment holds the set of context identifiers in scope at the current
// point of the traversal.
type Environment struct {
	Contexts map[descriptor.Identifier]struct{}
}

func (e Environment) has(id descriptor.Identifier) bool {
	_, ok := e.Contexts[id]
	return ok
}

// Status is the accumulated result of a check run.
type Status struct {
	BuildID int
	Errors  []error
	Failure bool
}

// Checker walks a build tree collecting errors without instantiating
// anything.
type Checker struct {
	reg   *builder.Registry
	arena *builder.Arena
	log   *logger.Logger
}

// New returns a Checker bound to the given registry and arena, sharing the
// registry's logger so check entries correlate with build entries.
func New(reg *builder.Registry, arena *builder.Arena) *Checker {
	return &Checker{reg: reg, arena: arena, log: reg.Log()}
}

// Check runs the full traversal from rootBuildID with no contexts in
// scope.
func (c *Checker) Check(rootBuildID int) Status {
	return c.CheckWith(rootBuildID, nil)
}

// CheckWith runs the full traversal from rootBuildID, seeding the scope
// with the given context identifiers (those the embedding driver provides
// outside the build tree).
func (c *Checker) CheckWith(rootBuildID int, contexts []descriptor.Identifier) Status {
	start := time.Now()
	status := Status{BuildID: rootBuildID}
	env := Environment{Contexts: map[descriptor.Identifier]struct{}{}}
	for _, id := range contexts {
		env.Contexts[id] = struct{}{}
	}
	path := builder.NewPath()
	c.checkRecord(rootBuildID, env, path, &status)
	c.checkRootGenerics(rootBuildID, &status)
	status.Failure = len(status.Errors) > 0
	log := c.log.WithFields(map[string]any{
		"layer":       "check",
		"build_id":    rootBuildID,
		"errors":      len(status.Errors),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if status.Failure {
		log.Warn("check failed")
	} else {
		log.Debug("check passed")
	}
	return status
}

// checkRootGenerics verifies the root record's own generic bindings. Every
// internal instance gets the same verification through checkInstance; the
// root has no parent record to run that for it.
func (c *Checker) checkRootGenerics(rootBuildID int, status *Status) {
	record := c.arena.Get(rootBuildID)
	if record == nil {
		return
	}
	b, err := c.reg.Lookup(record.DescriptorID)
	if err != nil {
		return
	}
	c.checkGenerics("", b.Descriptor().Generics(), record.Genesis.Generics, status)
}

func (c *Checker) checkRecord(buildID int, env Environment, path *builder.Path, status *Status) {
	record := c.arena.Get(buildID)
	if record == nil {
		return
	}

	b, err := c.reg.Lookup(record.DescriptorID)
	if err != nil {
		status.Errors = append(status.Errors, pkgerrors.NewUndeclaredEntity("treatment", record.DescriptorID.String()))
		return
	}
	desc := b.Descriptor()

	for _, ctxID := range desc.ContextsConsumed() {
		if !env.has(ctxID) {
			status.Errors = append(status.Errors, pkgerrors.NewUnavailableContext(ctxID.String()))
		}
	}

	if !path.Push(record.DescriptorID.Key(), buildID) {
		status.Errors = append(status.Errors, pkgerrors.NewAlreadyIncludedBuildStep(record.DescriptorID.String(), buildID))
		return
	}
	defer path.Pop()

	rootLabels := map[string]struct{}{}
	for _, conn := range record.Buckets.Root {
		rootLabels[conn.To.InstanceLabel] = struct{}{}
	}
	for label := range rootLabels {
		if childID, ok := record.TreatmentBuildIDs[label]; ok {
			c.checkRecord(childID, env, path, status)
		}
	}

	if len(record.Buckets.Last) > 0 && record.HostBuildID != builder.DirectHost {
		c.checkGiveNext(record.HostBuildID, record.Label, path, status)
	}

	for label, childID := range record.TreatmentBuildIDs {
		c.checkInstance(record, label, childID, status)
	}
}

// checkGiveNext follows a Last-bucket connection up through the host
// chain. The climb needs no cycle guard of its own: hosts are allocated
// before the records they contain, so every step strictly decreases the
// build id and terminates at the root.
func (c *Checker) checkGiveNext(hostBuildID int, childLabel string, path *builder.Path, status *Status) {
	host := c.arena.Get(hostBuildID)
	if host == nil {
		return
	}
	if len(host.Buckets.Last) > 0 && host.HostBuildID != builder.DirectHost {
		c.checkGiveNext(host.HostBuildID, host.Label, path, status)
	}
}

// checkInstance verifies a single internal instance's inputs are fed and
// its generics are defined and trait-satisfied.
func (c *Checker) checkInstance(parent *builder.BuildRecord, label string, childBuildID int, status *Status) {
	child := c.arena.Get(childBuildID)
	if child == nil {
		return
	}
	b, err := c.reg.Lookup(child.DescriptorID)
	if err != nil {
		status.Errors = append(status.Errors, pkgerrors.NewUndeclaredEntity("treatment", child.DescriptorID.String()))
		return
	}
	td, ok := b.Descriptor().(*descriptor.TreatmentDescriptor)
	if !ok {
		return
	}

	fed := map[string]bool{}
	for _, conn := range parent.Buckets.Root {
		if conn.To.InstanceLabel == label {
			fed[conn.To.Port] = true
		}
	}
	for _, conn := range parent.Buckets.Next {
		if conn.To.InstanceLabel == label {
			fed[conn.To.Port] = true
		}
	}
	for _, in := range td.Inputs {
		if !fed[in.Name] {
			status.Errors = append(status.Errors, pkgerrors.NewUnsatisfiedInput(label+"."+in.Name))
		}
	}

	c.checkGenerics(label+".", td.Generics(), child.Genesis.Generics, status)
}

// checkGenerics verifies each declared generic is bound to a concrete type
// satisfying its required traits. subjectPrefix qualifies error subjects
// with the owning instance's label ("" for the root record).
func (c *Checker) checkGenerics(subjectPrefix string, decls []descriptor.GenericDecl, bound map[string]descriptor.DescribedType, status *Status) {
	for _, g := range decls {
		concrete, ok := bound[g.Name]
		if !ok || concrete.IsGeneric() {
			status.Errors = append(status.Errors, pkgerrors.NewUndefinedGenericAtBuild(subjectPrefix+g.Name))
			continue
		}
		if missing := descriptor.UnsatisfiedOf(concrete, g.Traits); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, t := range missing {
				names[i] = string(t)
			}
			status.Errors = append(status.Errors, pkgerrors.NewUnsatisfiedTraits(g.Name, names))
		}
	}
}
