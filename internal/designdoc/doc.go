// Package designdoc loads a committed design document from YAML and
// compiles it into the descriptor/builder types C2 and C3 consume.
//
// The real front end — parsing Mélodium source text into descriptors — is
// an explicit external-collaborator concern. This package exists
// only so the engine has a committed representation to drive the CLI and
// integration tests against.
package designdoc

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/value"
	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

var validate = validator.New()

// IODef declares one named stream input or output in document form.
type IODef struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required"`
}

// ParamDef binds a literal value to a named const parameter on a treatment
// instance.
type ParamDef struct {
	Name  string `yaml:"name" validate:"required"`
	Value any    `yaml:"value"`
}

// TreatmentDef instantiates a registered treatment under a label local to
// the document.
type TreatmentDef struct {
	Label   string     `yaml:"label" validate:"required"`
	ID      string     `yaml:"id" validate:"required"`
	Version string     `yaml:"version,omitempty"`
	Params  []ParamDef `yaml:"params,omitempty" validate:"omitempty,dive"`
}

// EndpointDef names one side of a connection: an empty Label means the
// enclosing document's own input/output.
type EndpointDef struct {
	Label string `yaml:"label,omitempty"`
	Port  string `yaml:"port" validate:"required"`
}

// ConnectionDef is one producer -> consumer edge.
type ConnectionDef struct {
	From EndpointDef `yaml:"from" validate:"required"`
	To   EndpointDef `yaml:"to" validate:"required"`
}

// Doc is the full document: one composite entry treatment, its declared
// inputs/outputs, and the internal instances wiring it together.
type Doc struct {
	Entry       string          `yaml:"entry" validate:"required"`
	Version     string          `yaml:"version,omitempty"`
	Inputs      []IODef         `yaml:"inputs,omitempty" validate:"omitempty,dive"`
	Outputs     []IODef         `yaml:"outputs,omitempty" validate:"omitempty,dive"`
	Treatments  []TreatmentDef  `yaml:"treatments" validate:"required,min=1,dive"`
	Connections []ConnectionDef `yaml:"connections" validate:"required,min=1,dive"`
}

// Load reads and validates a document from path.
func Load(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.NewParseError(path, 0, err)
	}

	var doc Doc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.NewParseError(path, extractLine(err), err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, pkgerrors.NewParseError(path, 0, err)
	}
	return &doc, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}
	m := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0
	}
	var line int
	if _, scanErr := fmt.Sscanf(m[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}

func ioDecls(defs []IODef) ([]descriptor.IODecl, error) {
	decls := make([]descriptor.IODecl, 0, len(defs))
	for _, d := range defs {
		prim := descriptor.Primitive(d.Type)
		if !descriptor.IsValidPrimitive(prim) {
			return nil, fmt.Errorf("designdoc: unknown datatype %q for %q", d.Type, d.Name)
		}
		decls = append(decls, descriptor.IODecl{Name: d.Name, Flow: descriptor.FlowStream, Datatype: descriptor.Prim(prim)})
	}
	return decls, nil
}

func endpoint(e EndpointDef) builder.ConnectionEndpoint {
	return builder.ConnectionEndpoint{InstanceLabel: e.Label, Port: e.Port}
}

func findParameter(params []descriptor.Parameter, name string) *descriptor.Parameter {
	for i := range params {
		if params[i].Name == name {
			return &params[i]
		}
	}
	return nil
}

// ID returns the identifier Compile will assign to the document's entry
// treatment, without compiling the full descriptor.
func (d *Doc) ID() (descriptor.Identifier, error) {
	version := d.Version
	if version == "" {
		version = "1.0.0"
	}
	return descriptor.NewIdentifier(d.Entry, version)
}

// Compile builds the composite entry descriptor this document names,
// resolving each instance's literal parameters against its already
// registered treatment descriptor so the produced expressions carry the
// declared parameter's exact primitive type.
func (d *Doc) Compile(reg *builder.Registry) (*descriptor.TreatmentDescriptor, error) {
	version := d.Version
	if version == "" {
		version = "1.0.0"
	}
	entryID, err := descriptor.NewIdentifier(d.Entry, version)
	if err != nil {
		return nil, err
	}

	inputs, err := ioDecls(d.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := ioDecls(d.Outputs)
	if err != nil {
		return nil, err
	}

	instances := make([]builder.TreatmentInstance, 0, len(d.Treatments))
	for _, td := range d.Treatments {
		tVersion := td.Version
		if tVersion == "" {
			tVersion = "1.0.0"
		}
		treatmentID, err := descriptor.NewIdentifier(td.ID, tVersion)
		if err != nil {
			return nil, err
		}

		b, err := reg.Lookup(treatmentID)
		if err != nil {
			return nil, fmt.Errorf("designdoc: instance %q: %w", td.Label, err)
		}
		desc, ok := b.Descriptor().(*descriptor.TreatmentDescriptor)
		if !ok {
			return nil, fmt.Errorf("designdoc: instance %q: %s is not a treatment", td.Label, treatmentID)
		}

		params := make(map[string]descriptor.Expr, len(td.Params))
		for _, p := range td.Params {
			decl := findParameter(desc.Parameters(), p.Name)
			if decl == nil {
				return nil, fmt.Errorf("designdoc: instance %q: unknown parameter %q", td.Label, p.Name)
			}
			lit, err := literalFor(decl.Type, p.Value)
			if err != nil {
				return nil, fmt.Errorf("designdoc: instance %q: parameter %q: %w", td.Label, p.Name, err)
			}
			params[p.Name] = lit
		}

		instances = append(instances, builder.TreatmentInstance{
			Label:       td.Label,
			TreatmentID: treatmentID,
			Params:      params,
		})
	}

	conns := make([]builder.Connection, 0, len(d.Connections))
	for _, c := range d.Connections {
		conns = append(conns, builder.Connection{From: endpoint(c.From), To: endpoint(c.To)})
	}

	design := builder.Design{Treatments: instances, Connections: conns}
	return descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil, inputs, outputs, design), nil
}

// literalFor coerces a YAML-decoded scalar into a value.Literal of the
// parameter's declared primitive type.
func literalFor(dt descriptor.DescribedType, raw any) (value.Literal, error) {
	if dt.Kind != descriptor.KindPrimitive {
		return value.Literal{}, fmt.Errorf("designdoc: only primitive parameters are supported in document form, got %s", dt)
	}
	prim, err := coercePrimitive(raw, dt.Primitive)
	if err != nil {
		return value.Literal{}, err
	}
	return value.Literal{Type: dt, Data: value.Data{Type: dt, Prim: prim}}, nil
}

func coercePrimitive(raw any, prim descriptor.Primitive) (any, error) {
	switch prim {
	case descriptor.PrimitiveBool:
		v, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return v, nil
	case descriptor.PrimitiveString:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return v, nil
	case descriptor.PrimitiveF32, descriptor.PrimitiveF64:
		switch v := raw.(type) {
		case float64:
			if prim == descriptor.PrimitiveF32 {
				return float32(v), nil
			}
			return v, nil
		case int:
			if prim == descriptor.PrimitiveF32 {
				return float32(v), nil
			}
			return float64(v), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
	default: // integer family
		i, ok := raw.(int)
		if !ok {
			if f, okf := raw.(float64); okf {
				i = int(f)
			} else {
				return nil, fmt.Errorf("expected integer, got %T", raw)
			}
		}
		switch prim {
		case descriptor.PrimitiveU8:
			return uint8(i), nil
		case descriptor.PrimitiveU16:
			return uint16(i), nil
		case descriptor.PrimitiveU32:
			return uint32(i), nil
		case descriptor.PrimitiveU64:
			return uint64(i), nil
		case descriptor.PrimitiveI8:
			return int8(i), nil
		case descriptor.PrimitiveI16:
			return int16(i), nil
		case descriptor.PrimitiveI32:
			return int32(i), nil
		case descriptor.PrimitiveI64:
			return int64(i), nil
		default:
			return nil, fmt.Errorf("unsupported primitive %s", prim)
		}
	}
}
