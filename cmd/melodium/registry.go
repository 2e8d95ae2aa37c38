package main

import (
	"fmt"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/convfn"
	"github.com/alexisbeaulieu97/melodium/internal/designdoc"
	"github.com/alexisbeaulieu97/melodium/internal/logger"
	"github.com/alexisbeaulieu97/melodium/internal/primitives"
)

// loadRegistry builds the registry every subcommand shares: the standard
// conversion functions, the demonstration primitives, and the document's
// own entry treatment, then validates the registration-time reference
// graph before returning the registry and the loaded document.
func loadRegistry(log *logger.Logger, designPath string) (*builder.Registry, *designdoc.Doc, error) {
	reg := builder.NewRegistry(log, convfn.NewTable())
	if err := primitives.RegisterAll(reg); err != nil {
		return nil, nil, fmt.Errorf("registering primitives: %w", err)
	}

	doc, err := designdoc.Load(designPath)
	if err != nil {
		return nil, nil, err
	}

	entryDesc, err := doc.Compile(reg)
	if err != nil {
		return nil, nil, err
	}

	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	if err != nil {
		return nil, nil, err
	}
	if err := reg.Register(entryBuilder); err != nil {
		return nil, nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, nil, err
	}

	return reg, doc, nil
}
