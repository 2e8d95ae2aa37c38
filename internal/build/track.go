package build

import (
	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/melodium/internal/transmission"
)

// Track is one activation of the build tree: a distinct set of scheduled
// tasks and transmitters, keyed by a monotonically increasing id.
type Track struct {
	ID      int
	group   *errgroup.Group
	feeding map[string]*transmission.OutputHandle
}

func newTrack(id int) *Track {
	return &Track{ID: id}
}
