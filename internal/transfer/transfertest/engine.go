// Package transfertest provides a scriptable transfer.Engine for tests.
package transfertest

import (
	"context"
	"sync"

	"github.com/italolelis/filebot/internal/transfer"
)

// Call is one recorded engine invocation.
type Call struct {
	Method string
	ID     string
	Arg    string
}

// Engine is a transfer.Engine whose behavior is set per method. Methods
// without a func succeed with zero values.
type Engine struct {
	AddMagnetFunc    func(ctx context.Context, link string, opts transfer.AddOptions) (string, error)
	AddTorrentFunc   func(ctx context.Context, content []byte, opts transfer.AddOptions) (string, error)
	GetJobFunc       func(ctx context.Context, id string) (*transfer.Job, error)
	ListJobsFunc     func(ctx context.Context) ([]*transfer.Job, error)
	PauseJobFunc     func(ctx context.Context, id string) error
	ForceRemoveFunc  func(ctx context.Context, id string) error
	RemoveResultFunc func(ctx context.Context, id string) error
	VersionFunc      func(ctx context.Context) (string, error)

	mu    sync.Mutex
	calls []Call
}

var _ transfer.Engine = (*Engine)(nil)

func (e *Engine) record(c Call) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, c)
}

// Calls returns a copy of the recorded calls.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]Call(nil), e.calls...)
}

// CallsTo returns the recorded calls of one method.
func (e *Engine) CallsTo(method string) []Call {
	var out []Call

	for _, c := range e.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}

	return out
}

func (e *Engine) AddMagnet(ctx context.Context, link string, opts transfer.AddOptions) (string, error) {
	e.record(Call{Method: "AddMagnet", Arg: link})

	if e.AddMagnetFunc != nil {
		return e.AddMagnetFunc(ctx, link, opts)
	}

	return "gid-1", nil
}

func (e *Engine) AddTorrent(ctx context.Context, content []byte, opts transfer.AddOptions) (string, error) {
	e.record(Call{Method: "AddTorrent", Arg: opts.Dir})

	if e.AddTorrentFunc != nil {
		return e.AddTorrentFunc(ctx, content, opts)
	}

	return "gid-1", nil
}

func (e *Engine) GetJob(ctx context.Context, id string) (*transfer.Job, error) {
	e.record(Call{Method: "GetJob", ID: id})

	if e.GetJobFunc != nil {
		return e.GetJobFunc(ctx, id)
	}

	return &transfer.Job{ID: id, Status: transfer.StatusActive}, nil
}

func (e *Engine) ListJobs(ctx context.Context) ([]*transfer.Job, error) {
	e.record(Call{Method: "ListJobs"})

	if e.ListJobsFunc != nil {
		return e.ListJobsFunc(ctx)
	}

	return nil, nil
}

func (e *Engine) PauseJob(ctx context.Context, id string) error {
	e.record(Call{Method: "PauseJob", ID: id})

	if e.PauseJobFunc != nil {
		return e.PauseJobFunc(ctx, id)
	}

	return nil
}

func (e *Engine) ForceRemove(ctx context.Context, id string) error {
	e.record(Call{Method: "ForceRemove", ID: id})

	if e.ForceRemoveFunc != nil {
		return e.ForceRemoveFunc(ctx, id)
	}

	return nil
}

func (e *Engine) RemoveResult(ctx context.Context, id string) error {
	e.record(Call{Method: "RemoveResult", ID: id})

	if e.RemoveResultFunc != nil {
		return e.RemoveResultFunc(ctx, id)
	}

	return nil
}

func (e *Engine) Version(ctx context.Context) (string, error) {
	e.record(Call{Method: "Version"})

	if e.VersionFunc != nil {
		return e.VersionFunc(ctx)
	}

	return "1.37.0", nil
}

// Step is one scripted GetJob response.
type Step struct {
	Job   *transfer.Job
	Err   error
	Panic any
}

// Script returns a GetJobFunc that answers with steps in order and repeats
// the last one once exhausted.
func Script(steps ...Step) func(ctx context.Context, id string) (*transfer.Job, error) {
	var (
		mu  sync.Mutex
		pos int
	)

	return func(_ context.Context, _ string) (*transfer.Job, error) {
		mu.Lock()
		step := steps[pos]
		if pos < len(steps)-1 {
			pos++
		}
		mu.Unlock()

		if step.Panic != nil {
			panic(step.Panic)
		}

		if step.Err != nil {
			return nil, step.Err
		}

		job := *step.Job

		return &job, nil
	}
}
