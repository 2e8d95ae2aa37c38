package distribution

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// frameTracer is a narrow, high-volume diagnostic stream for individual
// wire frames, kept separate from the human-facing internal/logger facade
// used for state-transition and handshake events. zerolog's allocation-free
// structured logging is the right fit for a per-frame hot path where the
// human-facing logger's richer formatting would be wasted.
type frameTracer struct {
	log zerolog.Logger
}

// newFrameTracer builds a tracer writing to w (os.Stderr if nil), disabled
// entirely unless MELODIUM_DISTRIBUTION_TRACE is set, mirroring how
// high-volume wire traces are normally opt-in.
func newFrameTracer(w io.Writer) *frameTracer {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.Disabled
	if os.Getenv("MELODIUM_DISTRIBUTION_TRACE") != "" {
		level = zerolog.TraceLevel
	}
	return &frameTracer{log: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

func (t *frameTracer) sent(msg Message) {
	t.log.Trace().Str("tag", msg.Tag.String()).Str("direction", "send").Msg("frame")
}

func (t *frameTracer) received(msg Message) {
	t.log.Trace().Str("tag", msg.Tag.String()).Str("direction", "recv").Msg("frame")
}
