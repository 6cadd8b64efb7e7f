package transfer

import "context"

// AddOptions are passed to the engine with every new job.
type AddOptions struct {
	Dir string
}

// Engine is the download daemon the bot delegates torrent work to.
type Engine interface {
	AddMagnet(ctx context.Context, link string, opts AddOptions) (string, error)
	AddTorrent(ctx context.Context, content []byte, opts AddOptions) (string, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context) ([]*Job, error)
	PauseJob(ctx context.Context, id string) error
	// ForceRemove removes a running job. It fails with an error matching
	// ErrNotActive when the job already stopped.
	ForceRemove(ctx context.Context, id string) error
	// RemoveResult drops a stopped job from the engine's result list.
	RemoveResult(ctx context.Context, id string) error
	Version(ctx context.Context) (string, error)
}
