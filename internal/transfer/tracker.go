package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/italolelis/filebot/internal/logctx"
)

// Tracker keeps the index to job mapping of the most recent listing so chat
// users can address jobs by a short number. Only one listing is live at a time;
// every RefreshListing replaces it wholesale.
type Tracker struct {
	engine   Engine
	snapshot atomic.Pointer[map[int]string]
}

func NewTracker(engine Engine) *Tracker {
	return &Tracker{engine: engine}
}

// RefreshListing fetches all jobs, renumbers them 1..N in engine order and
// returns the rendered listing. On engine failure the previous listing stays.
func (t *Tracker) RefreshListing(ctx context.Context) (string, error) {
	jobs, err := t.engine.ListJobs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list jobs: %w", err)
	}

	mapping := make(map[int]string, len(jobs))

	var b strings.Builder

	for i, job := range jobs {
		idx := i + 1
		mapping[idx] = job.ID

		if i == 0 {
			b.WriteString("Downloads:\n\n")
		} else {
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "%d. %s [%s] - %s (%s)", idx, job.Name, job.Status, job.Progress(), job.Speed())
	}

	t.snapshot.Store(&mapping)

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "listing refreshed", "job_count", len(jobs))

	if len(jobs) == 0 {
		return "No downloads.", nil
	}

	return b.String(), nil
}

// ResolveIndex looks index up in the current listing.
func (t *Tracker) ResolveIndex(index int) (string, error) {
	current := t.snapshot.Load()
	if current == nil {
		return "", &IndexNotFoundError{Index: index}
	}

	id, ok := (*current)[index]
	if !ok {
		return "", &IndexNotFoundError{Index: index}
	}

	return id, nil
}

// Pause pauses the job listed at index.
func (t *Tracker) Pause(ctx context.Context, index int) (string, error) {
	id, err := t.ResolveIndex(index)
	if err != nil {
		return "", err
	}

	if err := t.engine.PauseJob(ctx, id); err != nil {
		return "", &ActionError{Action: "pause", Index: index, ID: id, Err: err}
	}

	return fmt.Sprintf("Paused #%d", index), nil
}

// Remove removes the job listed at index. A job that already stopped cannot
// be force-removed, so its result entry is dropped instead.
func (t *Tracker) Remove(ctx context.Context, index int) (string, error) {
	id, err := t.ResolveIndex(index)
	if err != nil {
		return "", err
	}

	err = t.engine.ForceRemove(ctx, id)
	if errors.Is(err, ErrNotActive) {
		logctx.LoggerFromContext(ctx).DebugContext(ctx, "job not active, removing result", "gid", id)

		err = t.engine.RemoveResult(ctx, id)
	}

	if err != nil {
		return "", &ActionError{Action: "remove", Index: index, ID: id, Err: err}
	}

	return fmt.Sprintf("Removed #%d", index), nil
}
