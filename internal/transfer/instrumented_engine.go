package transfer

import (
	"context"

	"github.com/italolelis/filebot/internal/telemetry"
)

// InstrumentedEngine wraps Engine with telemetry.
type InstrumentedEngine struct {
	engine     Engine
	telemetry  *telemetry.Telemetry
	engineType string
}

// NewInstrumentedEngine creates a new instrumented engine.
func NewInstrumentedEngine(engine Engine, tel *telemetry.Telemetry, engineType string) *InstrumentedEngine {
	return &InstrumentedEngine{
		engine:     engine,
		telemetry:  tel,
		engineType: engineType,
	}
}

func (e *InstrumentedEngine) AddMagnet(ctx context.Context, link string, opts AddOptions) (string, error) {
	var id string

	err := e.telemetry.InstrumentEngineOperation(ctx, e.engineType, "add_magnet", func(ctx context.Context) error {
		var err error
		id, err = e.engine.AddMagnet(ctx, link, opts)

		return err
	})

	return id, err
}

func (e *InstrumentedEngine) AddTorrent(ctx context.Context, content []byte, opts AddOptions) (string, error) {
	var id string

	err := e.telemetry.InstrumentEngineOperation(ctx, e.engineType, "add_torrent", func(ctx context.Context) error {
		var err error
		id, err = e.engine.AddTorrent(ctx, content, opts)

		return err
	})

	return id, err
}

func (e *InstrumentedEngine) GetJob(ctx context.Context, id string) (*Job, error) {
	var job *Job

	err := e.telemetry.InstrumentEngineOperation(ctx, e.engineType, "get_job", func(ctx context.Context) error {
		var err error
		job, err = e.engine.GetJob(ctx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (e *InstrumentedEngine) ListJobs(ctx context.Context) ([]*Job, error) {
	var jobs []*Job

	err := e.telemetry.InstrumentEngineOperation(ctx, e.engineType, "list_jobs", func(ctx context.Context) error {
		var err error
		jobs, err = e.engine.ListJobs(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func (e *InstrumentedEngine) PauseJob(ctx context.Context, id string) error {
	return e.telemetry.InstrumentEngineOperation(ctx, e.engineType, "pause_job", func(ctx context.Context) error {
		return e.engine.PauseJob(ctx, id)
	})
}

func (e *InstrumentedEngine) ForceRemove(ctx context.Context, id string) error {
	return e.telemetry.InstrumentEngineOperation(ctx, e.engineType, "force_remove", func(ctx context.Context) error {
		return e.engine.ForceRemove(ctx, id)
	})
}

func (e *InstrumentedEngine) RemoveResult(ctx context.Context, id string) error {
	return e.telemetry.InstrumentEngineOperation(ctx, e.engineType, "remove_result", func(ctx context.Context) error {
		return e.engine.RemoveResult(ctx, id)
	})
}

func (e *InstrumentedEngine) Version(ctx context.Context) (string, error) {
	var version string

	err := e.telemetry.InstrumentEngineOperation(ctx, e.engineType, "version", func(ctx context.Context) error {
		var err error
		version, err = e.engine.Version(ctx)

		return err
	})

	return version, err
}
