package runner

import (
	"time"

	"github.com/gherkit/gherkit/types"
)

// Worker is the supervisor-side handle for one worker process. All fields are
// owned by the pool's event loop; nothing here is safe for concurrent use.
type Worker struct {
	ID      int
	Process WorkerProcess

	Busy        bool
	CurrentWork *types.WorkItem
	AssignedAt  time.Time

	// ErrorCount accumulates execution errors reported by this worker.
	// Crossing the pool's error threshold triggers a proactive recycle.
	ErrorCount int

	// ItemsCompleted counts results this worker has delivered, for logs.
	ItemsCompleted int
}

func (w *Worker) assign(item *types.WorkItem, now time.Time) {
	w.Busy = true
	w.CurrentWork = item
	w.AssignedAt = now
}

func (w *Worker) release() {
	w.Busy = false
	w.CurrentWork = nil
	w.AssignedAt = time.Time{}
}

// busyFor reports how long the worker has held its current item.
func (w *Worker) busyFor(now time.Time) time.Duration {
	if !w.Busy {
		return 0
	}
	return now.Sub(w.AssignedAt)
}
