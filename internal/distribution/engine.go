package distribution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/logger"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
)

// State is one position in the per-connection state machine.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateClosing
	StateFused
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateClosing:
		return "Closing"
	case StateFused:
		return "Fused"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// probeInterval is the only timer the engine runs.
const probeInterval = 10 * time.Second

// Engine is a single long-lived object per remote worker connection: the
// control plane for handing work to a remote worker. The I/O it forwards
// is ordinary transmission.Batch data produced and consumed by the local
// build tree.
type Engine struct {
	entry *descriptor.TreatmentDescriptor

	log   *logger.Logger
	trace *frameTracer
	codec *Codec

	mu        sync.Mutex
	state     State
	transport Transport
	localKey  string

	readyOnce sync.Once
	ready     chan struct{}

	startedOnce atomic.Bool

	nextTrackID atomic.Uint64
	tracksMu    sync.Mutex
	tracks      map[uint64]*track

	loops     errgroup.Group
	stopLoops context.CancelFunc
}

// NewEngine constructs an Idle engine bound to entry, the entrypoint
// treatment descriptor whose declared inputs/outputs determine the shape
// of every track's channels.
func NewEngine(entry *descriptor.TreatmentDescriptor, log *logger.Logger) *Engine {
	return &Engine{
		entry:  entry,
		log:    log,
		trace:  newFrameTracer(nil),
		codec:  NewCodec(),
		state:  StateIdle,
		ready:  make(chan struct{}),
		tracks: map[uint64]*track{},
	}
}

// State reports the engine's current position in the state machine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ProtocolBarrier blocks until Start has completed (successfully or not),
// releasing tasks that began before the handshake finished.
func (e *Engine) ProtocolBarrier(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) releaseReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// StartParams names the remote entrypoint and the parameter values carried
// by LoadAndLaunch.
type StartParams struct {
	EngineVersion   string
	ProtocolVersion string
	EntrypointID    descriptor.Identifier
	Params          map[string]string
	// SharedCollection is an opaque, pre-serialised package/world snapshot
	// the worker needs to resolve EntrypointID; building it is an external
	// collaborator concern.
	SharedCollection []byte
}

// Start negotiates the protocol with the first reachable candidate address
// and requests the remote launch. Only the first call attempts anything;
// an engine that has left Idle rejects later calls.
func (e *Engine) Start(ctx context.Context, opts DialOptions, params StartParams) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return pkgerrors.NewDistributionFused(e.entry.ID().String())
	}
	e.state = StateStarting
	e.mu.Unlock()

	transport, err := dial(ctx, opts)
	if err != nil {
		return e.fuse(err)
	}
	return e.startOverTransport(transport, params)
}

// startOverTransport runs the handshake over an already-established
// transport, split out of Start so tests can exercise the state machine
// against a mocked Transport without a real socket.
func (e *Engine) startOverTransport(transport Transport, params StartParams) error {
	e.transport = transport

	e.localKey = uuid.NewString()
	ask := Message{Tag: TagAskDistribution, AskDistribution: &AskDistribution{
		EngineVersion:   params.EngineVersion,
		ProtocolVersion: params.ProtocolVersion,
		RemoteKey:       e.localKey,
	}}
	if err := e.send(ask); err != nil {
		return e.fuse(err)
	}

	confirm, err := e.recv()
	if err != nil {
		return e.fuse(err)
	}
	if confirm.Tag != TagConfirmDistribution || confirm.ConfirmDistribution == nil {
		return e.fuse(fmt.Errorf("distribution: expected ConfirmDistribution, got %s", confirm.Tag))
	}
	cd := confirm.ConfirmDistribution
	if !cd.Accept {
		return e.fuse(pkgerrors.NewDistributionHandshakeRejected(e.entry.ID().String()))
	}
	if cd.SelfKey != e.localKey {
		return e.fuse(pkgerrors.NewDistributionKeyMismatch(e.entry.ID().String()))
	}

	load := Message{Tag: TagLoadAndLaunch, LoadAndLaunch: &LoadAndLaunch{
		SharedCollection: params.SharedCollection,
		EntrypointID:     params.EntrypointID.Path,
		EntrypointVer:    params.EntrypointID.Version,
		Params:           params.Params,
	}}
	if err := e.send(load); err != nil {
		return e.fuse(err)
	}

	status, err := e.recv()
	if err != nil {
		return e.fuse(err)
	}
	if status.Tag != TagLaunchStatus || status.LaunchStatus == nil {
		return e.fuse(fmt.Errorf("distribution: expected LaunchStatus, got %s", status.Tag))
	}
	if !status.LaunchStatus.Ok {
		return e.fuse(pkgerrors.NewDistributionLaunchFailed(e.entry.ID().String(), status.LaunchStatus.Failure))
	}

	e.setState(StateRunning)
	e.releaseReady()
	e.runContinuousOnce(context.Background())
	e.log.WithFields(map[string]any{
		"layer":         "distribution",
		"descriptor_id": e.entry.ID().String(),
	}).Info("distribution running")
	return nil
}

// fuse transitions the engine to Fused, releasing the ready barrier and
// every track's instantiation barrier so nothing stays blocked.
func (e *Engine) fuse(cause error) error {
	e.setState(StateFused)
	e.releaseReady()
	e.log.WithFields(map[string]any{
		"layer":         "distribution",
		"descriptor_id": e.entry.ID().String(),
	}).Error(cause, "distribution engine fused")
	e.tracksMu.Lock()
	for _, trk := range e.tracks {
		trk.releaseBarrier(false, cause.Error())
	}
	e.tracksMu.Unlock()
	return cause
}

func (e *Engine) send(msg Message) error {
	if e.transport == nil {
		return fmt.Errorf("distribution: no transport")
	}
	e.trace.sent(msg)
	return e.transport.Send(msg)
}

func (e *Engine) recv() (Message, error) {
	msg, err := e.transport.Recv()
	if err == nil {
		e.trace.received(msg)
	}
	return msg, err
}

// Distribute allocates a fresh track id and per-name channel pairs for
// every declared input/output of the entrypoint, sends Instanciate, and
// returns once InstanciateStatus arrives. feedInputs are the sender halves
// the caller writes into; readOutputs are the receiver halves the caller
// reads from.
func (e *Engine) Distribute(ctx context.Context) (id uint64, feedInputs map[string]*transmission.OutputHandle, readOutputs map[string]*transmission.InputHandle, err error) {
	if e.State() == StateFused || e.State() == StateClosed {
		return 0, nil, nil, pkgerrors.NewDistributionFused(e.entry.ID().String())
	}

	id = e.nextTrackID.Add(1)
	trk := newTrack(id)
	trk.inputs = map[string]*transmission.InputHandle{}
	trk.outputs = map[string]*transmission.OutputHandle{}

	feedInputs = map[string]*transmission.OutputHandle{}
	readOutputs = map[string]*transmission.InputHandle{}

	for _, in := range e.entry.Inputs {
		out, ins := transmission.NewOutputHandle(in.Datatype, 1)
		feedInputs[in.Name] = out
		trk.inputs[in.Name] = ins[0]
	}
	for _, out := range e.entry.Outputs {
		sender, ins := transmission.NewOutputHandle(out.Datatype, 1)
		trk.outputs[out.Name] = sender
		readOutputs[out.Name] = ins[0]
	}

	e.tracksMu.Lock()
	e.tracks[id] = trk
	e.tracksMu.Unlock()

	if err := e.send(Message{Tag: TagInstanciate, Instanciate: &Instanciate{ID: id}}); err != nil {
		trk.releaseBarrier(false, err.Error())
		return id, feedInputs, readOutputs, err
	}

	ok, failMsg := trk.awaitInstanciation()
	if !ok {
		return id, feedInputs, readOutputs, fmt.Errorf("distribution: track %d instantiation failed: %s", id, failMsg)
	}
	e.log.WithFields(map[string]any{
		"layer":    "distribution",
		"track_id": id,
	}).Debug("track instanciated")
	return id, feedInputs, readOutputs, nil
}

// SendData drains the track's named input and forwards every batch as
// InputData frames until the input closes or a transport write fails. Run
// this as a goroutine per fed input; it returns nil on a clean Closed
// observation and a non-nil error if the caller should stop feeding.
func (e *Engine) SendData(trackID uint64, name string) error {
	e.tracksMu.Lock()
	trk, ok := e.tracks[trackID]
	e.tracksMu.Unlock()
	if !ok {
		return fmt.Errorf("distribution: no such track %d", trackID)
	}
	in, ok := trk.inputs[name]
	if !ok {
		return fmt.Errorf("distribution: track %d has no input %q", trackID, name)
	}

	for {
		batch, err := in.RecvMany()
		if err != nil {
			_ = e.send(Message{Tag: TagCloseInput, CloseInput: &CloseInput{ID: trackID, Name: name}})
			return nil
		}
		wire, err := e.codec.EncodeBatch(batch)
		if err != nil {
			return err
		}
		if err := e.send(Message{Tag: TagInputData, InputData: &InputData{ID: trackID, Name: name, Data: wire}}); err != nil {
			return err
		}
	}
}

// runContinuousOnce starts the read-dispatch loop and the probe loop,
// guarded so a later reconnect attempt never double-starts them.
func (e *Engine) runContinuousOnce(ctx context.Context) {
	if !e.startedOnce.CompareAndSwap(false, true) {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.stopLoops = cancel
	e.loops.Go(func() error {
		e.readLoop()
		return nil
	})
	e.loops.Go(func() error {
		e.probeLoop(loopCtx)
		return nil
	})
}

func (e *Engine) readLoop() {
	for {
		msg, err := e.recv()
		if err != nil {
			e.teardown()
			return
		}
		switch msg.Tag {
		case TagInstanciateStatus:
			e.dispatchInstanciateStatus(msg.InstanciateStatus)
		case TagInputData:
			// Ignored when this engine is the initiator.
		case TagOutputData:
			e.dispatchOutputData(msg.OutputData)
		case TagCloseInput:
			e.dispatchCloseInput(msg.CloseInput)
		case TagCloseOutput:
			e.dispatchCloseOutput(msg.CloseOutput)
		case TagEnded:
			e.teardown()
			return
		case TagProbe:
			// no-op; presence alone keeps the connection live.
		}
	}
}

func (e *Engine) dispatchInstanciateStatus(s *InstanciateStatus) {
	if s == nil {
		return
	}
	e.tracksMu.Lock()
	trk, ok := e.tracks[s.ID]
	e.tracksMu.Unlock()
	if !ok {
		return
	}
	trk.releaseBarrier(s.Ok, s.Failure)
}

func (e *Engine) dispatchOutputData(d *OutputData) {
	if d == nil {
		return
	}
	e.tracksMu.Lock()
	trk, ok := e.tracks[d.ID]
	e.tracksMu.Unlock()
	if !ok {
		return
	}
	trk.mu.Lock()
	sender, ok := trk.outputs[d.Name]
	trk.mu.Unlock()
	if !ok {
		_ = e.send(Message{Tag: TagCloseOutput, CloseOutput: &CloseOutput{ID: d.ID, Name: d.Name}})
		return
	}
	datatype := e.outputDatatype(d.Name)
	batch, err := e.codec.decodeBatch(d.Data, datatype)
	if err != nil {
		e.log.WithFields(map[string]any{
			"layer":    "distribution",
			"track_id": d.ID,
		}).Error(err, "dropping malformed OutputData frame")
		_ = e.send(Message{Tag: TagCloseOutput, CloseOutput: &CloseOutput{ID: d.ID, Name: d.Name}})
		return
	}
	err = sender.SendMany(batch)
	if err == nil {
		err = sender.Flush()
	}
	if err != nil {
		// The local consumer is gone: tell the worker to stop sending
		// this output.
		_ = e.send(Message{Tag: TagCloseOutput, CloseOutput: &CloseOutput{ID: d.ID, Name: d.Name}})
	}
}

func (e *Engine) outputDatatype(name string) descriptor.DescribedType {
	for _, out := range e.entry.Outputs {
		if out.Name == name {
			return out.Datatype
		}
	}
	return descriptor.DescribedType{}
}

func (e *Engine) dispatchCloseInput(c *CloseInput) {
	if c == nil {
		return
	}
	e.tracksMu.Lock()
	trk, ok := e.tracks[c.ID]
	e.tracksMu.Unlock()
	if !ok {
		return
	}
	trk.mu.Lock()
	in, ok := trk.inputs[c.Name]
	trk.mu.Unlock()
	if ok {
		in.Close()
	}
}

func (e *Engine) dispatchCloseOutput(c *CloseOutput) {
	if c == nil {
		return
	}
	e.tracksMu.Lock()
	trk, ok := e.tracks[c.ID]
	e.tracksMu.Unlock()
	if !ok {
		return
	}
	trk.mu.Lock()
	out, ok := trk.outputs[c.Name]
	trk.mu.Unlock()
	if ok {
		_ = out.Close()
	}
}

func (e *Engine) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.State() != StateRunning {
				return
			}
			if err := e.send(Message{Tag: TagProbe}); err != nil {
				e.teardown()
				return
			}
		}
	}
}

// teardown closes every track's endpoints and releases every barrier,
// called on a transport error or an Ended frame.
func (e *Engine) teardown() {
	// A deliberate Stop already moved the machine to Closing/Closed; the
	// read loop observing the closed transport afterwards is not a fault.
	e.mu.Lock()
	if e.state != StateClosing && e.state != StateClosed {
		e.state = StateFused
	}
	e.mu.Unlock()
	e.releaseReady()
	if e.stopLoops != nil {
		e.stopLoops()
	}
	e.tracksMu.Lock()
	for _, trk := range e.tracks {
		trk.releaseBarrier(false, "connection ended")
		trk.closeAll()
	}
	e.tracksMu.Unlock()
}

// Stop sends Ended then closes the transport, transitioning Running ->
// Closing -> Closed.
func (e *Engine) Stop() error {
	e.log.WithFields(map[string]any{
		"layer":         "distribution",
		"descriptor_id": e.entry.ID().String(),
	}).Info("stopping distribution")
	e.setState(StateClosing)
	_ = e.send(Message{Tag: TagEnded})
	var err error
	if e.transport != nil {
		err = e.transport.Close()
	}
	if e.stopLoops != nil {
		e.stopLoops()
	}
	e.setState(StateClosed)
	return err
}

// Shutdown is an emergency teardown called from the outside: it closes
// every track's endpoints and attempts a best-effort Ended send.
func (e *Engine) Shutdown() {
	e.tracksMu.Lock()
	for _, trk := range e.tracks {
		trk.releaseBarrier(false, "shutdown")
		trk.closeAll()
	}
	e.tracksMu.Unlock()
	if e.transport != nil {
		_ = e.send(Message{Tag: TagEnded})
		_ = e.transport.Close()
	}
	if e.stopLoops != nil {
		e.stopLoops()
	}
	e.setState(StateFused)
	e.releaseReady()
}
