package builder

import "github.com/alexisbeaulieu97/melodium/internal/descriptor"

// ModelInstance is one internal model instantiation within a Design.
type ModelInstance struct {
	Label   string
	ModelID descriptor.Identifier
	Params  map[string]descriptor.Expr
}

// TreatmentInstance is one internal treatment instantiation within a Design.
type TreatmentInstance struct {
	Label       string
	TreatmentID descriptor.Identifier
	Params      map[string]descriptor.Expr
	// Generics maps this instance's own declared generic names to the type
	// assigned to them by the design: either a concrete descriptor.DescribedType
	// or a reference to one of the hosting treatment's own generic names
	// (descriptor.Gen(hostName)), resolved against the host's genesis
	// during static build.
	Generics map[string]descriptor.DescribedType
	// Models maps this instance's declared model-parameter names to a
	// model instance label (or an enclosing model-parameter name) visible
	// in the hosting design.
	Models map[string]string
}

// Design is a fully validated treatment body: an ordered list of internal
// model instantiations, internal treatment instantiations, and connections.
// It satisfies descriptor.DesignRef so a TreatmentDescriptor can carry one
// without descriptor importing builder.
type Design struct {
	Models      []ModelInstance
	Treatments  []TreatmentInstance
	Connections []Connection
}

func (Design) IsDesign() {}

var _ descriptor.DesignRef = Design{}
