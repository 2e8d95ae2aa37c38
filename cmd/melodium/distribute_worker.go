package main

import (
	"bufio"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/melodium/internal/distribution"
	"github.com/alexisbeaulieu97/melodium/internal/logger"
)

type distributeWorkerOptions struct {
	address string
}

// newDistributeWorkerCmd drives a minimal reference worker: it confirms the
// handshake, accepts any launch and instanciation request, and sends no
// reply to any other frame (data, close, probe). It exists for local testing against a real
// socket rather than a mocked Transport; actually building and running a
// shared collection is the job of a full remote worker, not this engine.
func newDistributeWorkerCmd(root *rootFlags) *cobra.Command {
	opts := distributeWorkerOptions{}

	cmd := &cobra.Command{
		Use:   "distribute-worker",
		Short: "Run a minimal reference worker that accepts one distribution connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDistributeWorker(root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.address, "address", "a", "127.0.0.1:4505", "address to listen on")

	return cmd
}

func runDistributeWorker(root *rootFlags, opts distributeWorkerOptions) error {
	level := "info"
	if root.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true, Component: "distribute-worker"})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", opts.address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	log.Info(fmt.Sprintf("listening on %s", opts.address))

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	defer conn.Close()
	log.Info(fmt.Sprintf("accepted connection from %s", conn.RemoteAddr()))

	return serveWorkerConn(conn, log)
}

func serveWorkerConn(conn net.Conn, log *logger.Logger) error {
	r := bufio.NewReader(conn)
	for {
		msg, err := distribution.ReadFrame(r)
		if err != nil {
			return err
		}
		log.Debug(fmt.Sprintf("recv %s", msg.Tag))

		reply, ok := workerReply(msg)
		if !ok {
			continue
		}
		if err := distribution.WriteFrame(conn, reply); err != nil {
			return err
		}
	}
}

// workerReply computes the reply this reference worker sends for each
// initiator-originated message it needs to acknowledge.
func workerReply(msg distribution.Message) (distribution.Message, bool) {
	switch msg.Tag {
	case distribution.TagAskDistribution:
		return distribution.Message{
			Tag: distribution.TagConfirmDistribution,
			ConfirmDistribution: &distribution.ConfirmDistribution{
				Accept:          true,
				EngineVersion:   msg.AskDistribution.EngineVersion,
				ProtocolVersion: msg.AskDistribution.ProtocolVersion,
				SelfKey:         msg.AskDistribution.RemoteKey,
			},
		}, true
	case distribution.TagLoadAndLaunch:
		return distribution.Message{
			Tag:          distribution.TagLaunchStatus,
			LaunchStatus: &distribution.LaunchStatus{Ok: true},
		}, true
	case distribution.TagInstanciate:
		return distribution.Message{
			Tag:               distribution.TagInstanciateStatus,
			InstanciateStatus: &distribution.InstanciateStatus{ID: msg.Instanciate.ID, Ok: true},
		}, true
	default:
		return distribution.Message{}, false
	}
}
