package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/melodium/internal/build"
	"github.com/alexisbeaulieu97/melodium/internal/logger"
)

type checkOptions struct {
	designPath string
}

func newCheckCmd(root *rootFlags) *cobra.Command {
	opts := checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Static-build a design and report accumulated errors without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.designPath, "design", "d", "", "path to a design document (YAML)")
	cmd.MarkFlagRequired("design") //nolint:errcheck

	return cmd
}

func runCheck(root *rootFlags, opts checkOptions) error {
	level := "info"
	if root.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true, Component: "check"})
	if err != nil {
		return err
	}

	reg, doc, err := loadRegistry(log, opts.designPath)
	if err != nil {
		return err
	}
	entryID, err := doc.ID()
	if err != nil {
		return err
	}

	status, err := build.CheckOnly(reg, entryID, build.Params{}, nil)
	if err != nil {
		return err
	}

	if len(status.Errors) == 0 {
		fmt.Println("ok: no errors")
		return nil
	}

	for _, e := range status.Errors {
		fmt.Println(e)
	}
	return fmt.Errorf("check failed with %d error(s)", len(status.Errors))
}
