package descriptor

// Kind discriminates the five descriptor kinds.
type Kind string

const (
	KindModel     Kind = "model"
	KindTreatment Kind = "treatment"
	KindFunction  Kind = "function"
	KindContext   Kind = "context"
	KindData      Kind = "data"
)

// GenericDecl declares a named type variable and the traits its eventual
// concrete binding must satisfy.
type GenericDecl struct {
	Name   string
	Traits []Trait
}

// Parameter declares one named, typed parameter slot.
type Parameter struct {
	Name    string
	Type    DescribedType
	Default Expr // nil when there is no default
	Const   bool // const-or-var flag
}

// IODecl declares one named input or output.
type IODecl struct {
	Name     string
	Flow     Flow
	Datatype DescribedType
}

// ModelParam declares a model slot a treatment requires, naming the base
// model descriptor it must be compatible with.
type ModelParam struct {
	Name        string
	ModelTypeID Identifier
}

// Descriptor is the common interface every descriptor kind implements.
type Descriptor interface {
	ID() Identifier
	Kind() Kind
	Parameters() []Parameter
	Generics() []GenericDecl
	ContextsConsumed() []Identifier
}

type base struct {
	id         Identifier
	parameters []Parameter
	generics   []GenericDecl
	contexts   []Identifier
}

func (b *base) ID() Identifier                { return b.id }
func (b *base) Parameters() []Parameter       { return b.parameters }
func (b *base) Generics() []GenericDecl       { return b.generics }
func (b *base) ContextsConsumed() []Identifier { return b.contexts }

// ModelDescriptor describes a long-lived shared resource.
type ModelDescriptor struct {
	base
}

func NewModelDescriptor(id Identifier, params []Parameter) *ModelDescriptor {
	return &ModelDescriptor{base{id: id, parameters: params}}
}

func (*ModelDescriptor) Kind() Kind { return KindModel }

// TreatmentDescriptor describes a node in the dataflow graph: a unit of
// computation with typed inputs, outputs, parameters, generics, and models.
// Composite is nil for a primitive (leaf) treatment; primitive treatments
// are resolved through the builder registry instead.
type TreatmentDescriptor struct {
	base
	Models  []ModelParam
	Inputs  []IODecl
	Outputs []IODecl
	// Composite, when non-nil, is this treatment's design body. A nil Composite marks a primitive treatment whose
	// behaviour is supplied by a registered builder instead.
	Composite DesignRef
}

// DesignRef is satisfied by builder.Design (the value type); declared as an
// interface here to avoid an import cycle between descriptor and builder.
type DesignRef interface {
	IsDesign()
}

func NewTreatmentDescriptor(id Identifier, params []Parameter, generics []GenericDecl, contexts []Identifier, models []ModelParam, inputs, outputs []IODecl, composite DesignRef) *TreatmentDescriptor {
	return &TreatmentDescriptor{
		base:      base{id: id, parameters: params, generics: generics, contexts: contexts},
		Models:    models,
		Inputs:    inputs,
		Outputs:   outputs,
		Composite: composite,
	}
}

func (*TreatmentDescriptor) Kind() Kind { return KindTreatment }

// IsComposite reports whether this treatment is defined by a design (as
// opposed to being a primitive leaf treatment backed by a builder).
func (t *TreatmentDescriptor) IsComposite() bool { return t.Composite != nil }

// Input looks up a declared input by name.
func (t *TreatmentDescriptor) Input(name string) (IODecl, bool) {
	for _, in := range t.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return IODecl{}, false
}

// Output looks up a declared output by name.
func (t *TreatmentDescriptor) Output(name string) (IODecl, bool) {
	for _, out := range t.Outputs {
		if out.Name == name {
			return out, true
		}
	}
	return IODecl{}, false
}

// FunctionDescriptor describes a pure, registered value-producing function
// usable inside parameter expressions.
type FunctionDescriptor struct {
	base
	ReturnType DescribedType
}

func NewFunctionDescriptor(id Identifier, params []Parameter, generics []GenericDecl, returnType DescribedType) *FunctionDescriptor {
	return &FunctionDescriptor{base: base{id: id, parameters: params, generics: generics}, ReturnType: returnType}
}

func (*FunctionDescriptor) Kind() Kind { return KindFunction }

// ContextDescriptor describes a lexically-scoped, read-only dictionary of
// named, typed fields available to parameter expressions within its scope
type ContextDescriptor struct {
	base
	Fields []IODecl // Flow is ignored for context fields; only Datatype matters
}

func NewContextDescriptor(id Identifier, fields []IODecl) *ContextDescriptor {
	return &ContextDescriptor{base: base{id: id}, Fields: fields}
}

func (*ContextDescriptor) Kind() Kind { return KindContext }

// Field looks up a declared context field by name.
func (c *ContextDescriptor) Field(name string) (IODecl, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return IODecl{}, false
}

// DataDescriptor describes an opaque host-language value type (e.g. a
// compiled regex, a parsed URL) that can flow through a stream's `Other`
// batch variant.
type DataDescriptor struct {
	base
	GoTypeName string // descriptive only; the engine never reflects on it
}

func NewDataDescriptor(id Identifier, goTypeName string) *DataDescriptor {
	return &DataDescriptor{base: base{id: id}, GoTypeName: goTypeName}
}

func (*DataDescriptor) Kind() Kind { return KindData }
