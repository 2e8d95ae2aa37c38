// Package primitives supplies a handful of leaf treatments with concrete,
// non-generic i64 semantics, used only to exercise the engine core end to
// end; it is not a standard library of treatments, which is left to an
// external collaborator.
package primitives

import (
	"context"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

var i64 = descriptor.Prim(descriptor.PrimitiveI64)

func mustID(path string) descriptor.Identifier {
	id, err := descriptor.NewIdentifier(path, "1.0.0")
	if err != nil {
		panic(err)
	}
	return id
}

// RegisterAll registers copy, to_void, static_add, and fan_out3 against reg.
func RegisterAll(reg *builder.Registry) error {
	for _, b := range []*builder.PrimitiveBuilder{
		newCopy(), newToVoid(), newStaticAdd(), newFanOut3(),
	} {
		if err := reg.Register(b); err != nil {
			return err
		}
	}
	return nil
}

func closeIfPresent(out *transmission.OutputHandle) {
	if out != nil {
		_ = out.Close()
	}
}

// newCopy builds "std/demo/copy": one stream input forwarded unchanged to
// one stream output.
func newCopy() *builder.PrimitiveBuilder {
	desc := descriptor.NewTreatmentDescriptor(mustID("std/demo/copy"), nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: i64}},
		nil,
	)
	factory := func(params map[string]value.Const, models map[string]builder.ModelHandle, ins map[string]*transmission.InputHandle, outs map[string]*transmission.OutputHandle) builder.Task {
		return func(ctx context.Context) error {
			in, out := ins["in"], outs["out"]
			defer closeIfPresent(out)
			for {
				d, err := in.RecvOne()
				if err == transmission.ErrClosed || err == transmission.ErrNoData {
					return nil
				}
				if err != nil {
					return err
				}
				if out == nil {
					continue
				}
				if err := out.SendOne(d); err != nil {
					return nil
				}
			}
		}
	}
	return builder.NewPrimitiveBuilder(desc, factory)
}

// newToVoid builds "std/demo/to_void": drains a stream input and produces no
// output.
func newToVoid() *builder.PrimitiveBuilder {
	desc := descriptor.NewTreatmentDescriptor(mustID("std/demo/to_void"), nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64}},
		nil,
		nil,
	)
	factory := func(params map[string]value.Const, models map[string]builder.ModelHandle, ins map[string]*transmission.InputHandle, outs map[string]*transmission.OutputHandle) builder.Task {
		return func(ctx context.Context) error {
			in := ins["in"]
			for {
				_, err := in.RecvMany()
				if err == transmission.ErrClosed {
					return nil
				}
				if err != nil {
					return err
				}
			}
		}
	}
	return builder.NewPrimitiveBuilder(desc, factory)
}

// newStaticAdd builds "std/demo/static_add": adds a const parameter to every
// received value.
func newStaticAdd() *builder.PrimitiveBuilder {
	desc := descriptor.NewTreatmentDescriptor(mustID("std/demo/static_add"),
		[]descriptor.Parameter{{Name: "addend", Type: i64, Const: true}},
		nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: i64}},
		nil,
	)
	factory := func(params map[string]value.Const, models map[string]builder.ModelHandle, ins map[string]*transmission.InputHandle, outs map[string]*transmission.OutputHandle) builder.Task {
		addend := params["addend"].Value.Prim.(int64)
		return func(ctx context.Context) error {
			in, out := ins["in"], outs["out"]
			defer closeIfPresent(out)
			for {
				d, err := in.RecvOne()
				if err == transmission.ErrClosed || err == transmission.ErrNoData {
					return nil
				}
				if err != nil {
					return err
				}
				if out == nil {
					continue
				}
				sum := value.Data{Type: i64, Prim: d.Prim.(int64) + addend}
				if err := out.SendOne(sum); err != nil {
					return nil
				}
			}
		}
	}
	return builder.NewPrimitiveBuilder(desc, factory)
}

// newFanOut3 builds "std/demo/fan_out3": one stream input replicated to
// three stream outputs.
func newFanOut3() *builder.PrimitiveBuilder {
	desc := descriptor.NewTreatmentDescriptor(mustID("std/demo/fan_out3"), nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64}},
		[]descriptor.IODecl{
			{Name: "out1", Flow: descriptor.FlowStream, Datatype: i64},
			{Name: "out2", Flow: descriptor.FlowStream, Datatype: i64},
			{Name: "out3", Flow: descriptor.FlowStream, Datatype: i64},
		},
		nil,
	)
	factory := func(params map[string]value.Const, models map[string]builder.ModelHandle, ins map[string]*transmission.InputHandle, outs map[string]*transmission.OutputHandle) builder.Task {
		return func(ctx context.Context) error {
			in := ins["in"]
			defer closeIfPresent(outs["out1"])
			defer closeIfPresent(outs["out2"])
			defer closeIfPresent(outs["out3"])
			for {
				d, err := in.RecvOne()
				if err == transmission.ErrClosed || err == transmission.ErrNoData {
					return nil
				}
				if err != nil {
					return err
				}
				for _, name := range []string{"out1", "out2", "out3"} {
					out, ok := outs[name]
					if !ok {
						continue
					}
					if err := out.SendOne(d); err != nil && err != transmission.ErrEverythingClosed {
						return err
					}
				}
			}
		}
	}
	return builder.NewPrimitiveBuilder(desc, factory)
}
