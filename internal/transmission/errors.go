package transmission

import "errors"

// Runtime transmitter errors are local, never accumulated: each task
// observes them and reacts by closing its remaining channels.
var (
	// ErrClosed is returned by RecvMany once the producer has closed and
	// every pending batch has been drained; RecvOne reports ErrNoData instead.
	ErrClosed = errors.New("transmission: closed")

	// ErrNoData is returned by RecvOne when the current batch was empty and
	// the channel was closed cleanly.
	ErrNoData = errors.New("transmission: no data")

	// ErrNoReceiver is returned by a send when the output has zero attached
	// consumers.
	ErrNoReceiver = errors.New("transmission: no receiver")

	// ErrEverythingClosed is returned by a send when every attached consumer
	// has closed.
	ErrEverythingClosed = errors.New("transmission: everything closed")
)
