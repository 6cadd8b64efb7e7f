package downloader

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/italolelis/filebot/internal/logctx"
	"github.com/italolelis/filebot/internal/notifier"
	"github.com/italolelis/filebot/internal/telemetry"
	"github.com/italolelis/filebot/internal/transfer"
)

const (
	magnetPrefix = "magnet:?"

	defaultPollInterval = 3 * time.Second
	defaultRetryBackoff = 3 * time.Second
)

// State is how a lifecycle ended.
type State string

const (
	StateComplete  State = "complete"
	StateFailed    State = "error"
	StateRemoved   State = "removed"
	StateCancelled State = "cancelled"
)

// Outcome describes the end of a lifecycle. ID is the job that reached the
// terminal status, which differs from the submitted one after a metadata
// handoff.
type Outcome struct {
	State   State
	ID      string
	Name    string
	Dir     string
	Message string
}

// MonitorConfig holds the knobs of a Monitor. Zero values fall back to
// defaults.
type MonitorConfig struct {
	DownloadDir  string
	PollInterval time.Duration
	RetryBackoff time.Duration
	Throttle     ThrottleFactory
	Clock        Clock
}

// Monitor submits downloads to the engine and follows them to a terminal
// status, rendering progress to a notifier.
type Monitor struct {
	engine    transfer.Engine
	telemetry *telemetry.Telemetry
	cfg       MonitorConfig
}

func NewMonitor(engine transfer.Engine, tel *telemetry.Telemetry, cfg MonitorConfig) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	if cfg.Throttle == nil {
		cfg.Throttle = func() Throttle { return NewChangeDetect() }
	}

	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}

	return &Monitor{engine: engine, telemetry: tel, cfg: cfg}
}

// Submit hands a magnet link to the engine and returns the job id.
func (m *Monitor) Submit(ctx context.Context, link string) (string, error) {
	if !strings.HasPrefix(link, magnetPrefix) {
		return "", &transfer.ValidationError{Input: shorten(link), Reason: "not a magnet link"}
	}

	id, err := m.engine.AddMagnet(ctx, link, transfer.AddOptions{Dir: m.cfg.DownloadDir})
	if err != nil {
		return "", &transfer.SubmissionError{Operation: "add_magnet", Err: err}
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "magnet submitted", "gid", id)

	return id, nil
}

// SubmitTorrent hands the content of a .torrent file to the engine.
func (m *Monitor) SubmitTorrent(ctx context.Context, filename string, content []byte) (string, error) {
	if err := ValidateTorrent(filename, content); err != nil {
		return "", err
	}

	id, err := m.engine.AddTorrent(ctx, content, transfer.AddOptions{Dir: m.cfg.DownloadDir})
	if err != nil {
		return "", &transfer.SubmissionError{Operation: "add_torrent", Err: err}
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "torrent submitted", "gid", id, "filename", filename)

	return id, nil
}

// Run polls the job until it reaches a terminal status or ctx is done. Engine
// failures are retried; only cancellation is returned as an error.
func (m *Monitor) Run(ctx context.Context, id string, sink notifier.Notifier) (Outcome, error) {
	ctx, logger := logctx.With(ctx, "gid", id)

	m.telemetry.LifecycleStarted()

	throttle := m.cfg.Throttle()
	current := id

	outcome, err := m.run(ctx, &current, throttle, sink)
	if err != nil {
		outcome = Outcome{State: StateCancelled, ID: current}
		logger.InfoContext(ctx, "lifecycle cancelled", "current_gid", current, "reason", err)
	} else {
		logger.InfoContext(ctx, "lifecycle finished", "current_gid", current, "state", outcome.State)
	}

	m.telemetry.LifecycleFinished(string(outcome.State))

	return outcome, err
}

func (m *Monitor) run(ctx context.Context, current *string, throttle Throttle, sink notifier.Notifier) (Outcome, error) {
	logger := logctx.LoggerFromContext(ctx)
	switches := 0

	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		job, err := m.poll(ctx, *current)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}

			logger.WarnContext(ctx, "poll failed, retrying", "err", &transfer.TransientPollError{ID: *current, Err: err}, "backoff", m.cfg.RetryBackoff)
			m.telemetry.RecordPollRetry()

			if err := m.sleep(ctx, m.cfg.RetryBackoff); err != nil {
				return Outcome{}, err
			}

			continue
		}

		if job.Status == transfer.StatusComplete && job.FollowedBy.Present() {
			if job.FollowedBy.ID != *current {
				logger.InfoContext(ctx, "metadata resolved, following payload job", "from_gid", *current, "to_gid", job.FollowedBy.ID)
				m.telemetry.RecordMetadataSwitch()

				*current = job.FollowedBy.ID
				switches++

				// A chain of successors is followed at once only for the first hop.
				if switches > 1 {
					if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
						return Outcome{}, err
					}
				}

				continue
			}

			logger.WarnContext(ctx, "job names itself as successor, treating it as complete", "gid", *current)
		}

		switches = 0

		if job.Status.IsTerminal() {
			outcome, text := finish(job)
			notifier.BestEffort(ctx, sink, text)

			return outcome, nil
		}

		text := RenderProgress(job)
		if throttle.Allow(text, m.cfg.Clock.Now()) {
			notifier.BestEffort(ctx, sink, text)
		}

		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return Outcome{}, err
		}
	}
}

// finish maps a terminal job to its outcome and final message.
func finish(job *transfer.Job) (Outcome, string) {
	outcome := Outcome{ID: job.ID, Name: job.Name, Dir: job.Dir}

	switch job.Status {
	case transfer.StatusError:
		outcome.State = StateFailed
		outcome.Message = failureMessage(job)

		return outcome, RenderFailed(job)
	case transfer.StatusRemoved:
		outcome.State = StateRemoved

		return outcome, RenderRemoved()
	default:
		outcome.State = StateComplete

		return outcome, RenderComplete(job)
	}
}

// poll fetches the job and turns a panic in the engine into an error so one
// bad response cannot kill the lifecycle.
func (m *Monitor) poll(ctx context.Context, id string) (job *transfer.Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "poll panic",
				"panic", r,
				"stack", string(debug.Stack()))

			job, err = nil, fmt.Errorf("poll panic: %v", r)
		}
	}()

	job, err = m.engine.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job == nil {
		return nil, fmt.Errorf("engine returned no job for %s", id)
	}

	return job, nil
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.cfg.Clock.After(d):
		return nil
	}
}

func RenderProgress(job *transfer.Job) string {
	return fmt.Sprintf("⬇️ %s\nProgress: %s\nSpeed: %s\nETA: %s", job.Name, job.Progress(), job.Speed(), job.ETA())
}

func RenderComplete(job *transfer.Job) string {
	return "✅ Download complete: " + job.Name
}

func RenderFailed(job *transfer.Job) string {
	return "❌ Download failed: " + failureMessage(job)
}

func RenderRemoved() string {
	return "🗑 Download removed."
}

func failureMessage(job *transfer.Job) string {
	if job.ErrorMessage == "" {
		return "unknown error"
	}

	return job.ErrorMessage
}

func shorten(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}

	return s[:limit] + "..."
}
