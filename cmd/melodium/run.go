package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/melodium/internal/build"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/logger"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
)

type runOptions struct {
	designPath string
	watch      bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a design's entry treatment, feeding its inputs from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.designPath, "design", "d", "", "path to a design document (YAML)")
	cmd.MarkFlagRequired("design") //nolint:errcheck
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "show a live track dashboard while the design runs")

	return cmd
}

func runRun(root *rootFlags, opts runOptions) error {
	level := "info"
	if root.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true, Component: "run"})
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree, feeding, err := build.Launch(ctx, reg, entryID, build.Params{}, nil)
	if err != nil {
		return err
	}
	outputs := tree.Outputs(0)

	// On SIGINT/SIGTERM, close every track's entry senders so the close
	// cascades through the pipeline and the tasks drain instead of hanging
	// on their inputs.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tree.Shutdown(shutdownCtx)
	}()

	dash := newDashboard(doc.Inputs, doc.Outputs)
	var program *watchProgram
	if opts.watch {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			log.Warn("--watch requested but stdout is not a terminal; running without the live dashboard")
		} else {
			program = startDashboard(dash)
		}
	}

	var wg sync.WaitGroup
	if len(doc.Inputs) == 1 {
		in := doc.Inputs[0]
		sender := feeding[in.Name]
		dtype := descriptor.Prim(descriptor.Primitive(in.Type))
		wg.Add(1)
		go func() {
			defer wg.Done()
			feedStdin(sender, dtype, in.Name, program)
		}()
	} else {
		for _, in := range feeding {
			in.Close()
		}
	}

	for _, out := range doc.Outputs {
		recv := outputs[out.Name]
		if recv == nil {
			continue
		}
		wg.Add(1)
		name := out.Name
		go func() {
			defer wg.Done()
			drainOutput(recv, name, program)
		}()
	}

	wg.Wait()
	runErr := tree.Wait(0)
	if program != nil {
		program.stop()
	}
	return runErr
}

func feedStdin(sender *transmission.OutputHandle, dtype descriptor.DescribedType, name string, program *watchProgram) {
	defer sender.Close()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		d, err := parseScalar(dtype, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run: parsing input %q: %v\n", name, err)
			continue
		}
		if err := sender.SendOne(d); err != nil {
			return
		}
		if program != nil {
			program.fed(name)
		}
	}
}

func drainOutput(recv *transmission.InputHandle, name string, program *watchProgram) {
	for {
		d, err := recv.RecvOne()
		if err == transmission.ErrClosed || err == transmission.ErrNoData {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "run: receiving output %q: %v\n", name, err)
			return
		}
		fmt.Printf("%s: %v\n", name, d.Prim)
		if program != nil {
			program.received(name)
		}
	}
}
