package build

import (
	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/check"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
)

// CheckOnly runs C3's static-build step and C4's check step without
// materialising any track, for drivers that want validation feedback
// without launching.
func CheckOnly(reg *builder.Registry, entryID descriptor.Identifier, params Params, generics Generics) (check.Status, error) {
	entryBuilder, err := reg.Lookup(entryID)
	if err != nil {
		return check.Status{}, pkgerrors.NewLaunchTargetNotTreatment(entryID.String())
	}
	entryDesc, ok := entryBuilder.Descriptor().(*descriptor.TreatmentDescriptor)
	if !ok {
		return check.Status{}, pkgerrors.NewLaunchTargetNotTreatment(entryID.String())
	}

	genesis, err := buildGenesis(entryDesc, params, generics, reg.Functions)
	if err != nil {
		return check.Status{}, err
	}

	arena := builder.NewArena()
	staticRes, err := entryBuilder.StaticBuild(reg, arena, builder.DirectHost, "", genesis)
	if err != nil {
		return check.Status{}, err
	}

	return check.New(reg, arena).Check(staticRes.BuildID), nil
}
