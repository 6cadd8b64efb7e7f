package bot

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/italolelis/filebot/internal/downloader"
	"github.com/italolelis/filebot/internal/files"
	"github.com/italolelis/filebot/internal/logctx"
	"github.com/italolelis/filebot/internal/notifier"
	"github.com/italolelis/filebot/internal/storage"
	"github.com/italolelis/filebot/internal/telemetry"
	"github.com/italolelis/filebot/internal/transfer"
)

const (
	defaultUploadProgressInterval = 10 * time.Second
	defaultHistoryLimit           = 10
)

// Config holds the bot settings.
type Config struct {
	// AdminIDs lists the users allowed to run commands. Empty allows everyone.
	AdminIDs               []int64
	UploadProgressInterval time.Duration
	HistoryLimit           int
}

// Deps are the collaborators the commands operate on. History and Mirror are
// optional.
type Deps struct {
	Store     *files.Store
	Monitor   *downloader.Monitor
	Tracker   *transfer.Tracker
	Sessions  *downloader.Sessions
	History   storage.HistoryRepository
	Mirror    notifier.Notifier
	Telemetry *telemetry.Telemetry
}

type handlerFunc func(ctx context.Context, msg *Message) error

// Bot dispatches chat commands to their handlers.
type Bot struct {
	messenger Messenger
	deps      Deps
	cfg       Config
	commands  map[string]handlerFunc
	now       func() time.Time
}

func New(messenger Messenger, deps Deps, cfg Config) *Bot {
	if cfg.UploadProgressInterval <= 0 {
		cfg.UploadProgressInterval = defaultUploadProgressInterval
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	if deps.Sessions == nil {
		deps.Sessions = downloader.NewSessions()
	}

	b := &Bot{
		messenger: messenger,
		deps:      deps,
		cfg:       cfg,
		now:       time.Now,
	}

	b.commands = map[string]handlerFunc{
		"start":   b.handleStart,
		"help":    b.handleStart,
		"ls":      b.handleList,
		"del":     b.handleDelete,
		"upload":  b.handleUpload,
		"torr":    b.handleTorrent,
		"status":  b.handleStatus,
		"pause":   b.handlePause,
		"remove":  b.handleRemove,
		"stop":    b.handleStop,
		"history": b.handleHistory,
	}

	return b
}

// Run handles every message from updates in its own goroutine until ctx is
// done or updates is closed, then waits for the handlers to return.
// Lifecycles started by commands keep running in the session registry.
func (b *Bot) Run(ctx context.Context, updates <-chan *Message) error {
	logger := logctx.LoggerFromContext(ctx).With("component", "bot")
	ctx = logctx.WithLogger(ctx, logger)

	logger.InfoContext(ctx, "bot started, waiting for messages")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "bot shutdown", "reason", "context_cancelled")

			return nil
		case msg, ok := <-updates:
			if !ok {
				logger.InfoContext(ctx, "update channel closed")

				return nil
			}

			wg.Add(1)

			go func() {
				defer wg.Done()

				b.Handle(ctx, msg)
			}()
		}
	}
}

// Handle runs the command carried by msg. Messages without a known command
// and messages from users outside the admin list are ignored.
func (b *Bot) Handle(ctx context.Context, msg *Message) {
	if msg == nil || msg.Command == "" {
		return
	}

	ctx, logger := logctx.With(ctx, "chat_id", msg.ChatID, "user_id", msg.UserID, "command", msg.Command)

	if !b.isAdmin(msg.UserID) {
		logger.WarnContext(ctx, "ignoring command from unauthorized user")

		return
	}

	handler, ok := b.commands[msg.Command]
	if !ok {
		logger.DebugContext(ctx, "unknown command")

		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "command panic", "panic", r, "stack", string(debug.Stack()))
			b.deps.Telemetry.RecordSystemError("bot", "panic")
		}
	}()

	err := b.deps.Telemetry.InstrumentCommand(ctx, msg.Command, func(ctx context.Context) error {
		return handler(ctx, msg)
	})
	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) {
		logger.DebugContext(ctx, "command cancelled")

		return
	}

	logger.WarnContext(ctx, "command failed", "err", err)

	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}

	if _, sendErr := b.reply(ctx, msg, formatError(err), false); sendErr != nil {
		logger.ErrorContext(ctx, "failed to send error reply", "err", sendErr)
	}
}

// Sessions returns the registry of running lifecycles.
func (b *Bot) Sessions() *downloader.Sessions {
	return b.deps.Sessions
}

func (b *Bot) isAdmin(userID int64) bool {
	return len(b.cfg.AdminIDs) == 0 || slices.Contains(b.cfg.AdminIDs, userID)
}

func (b *Bot) reply(ctx context.Context, msg *Message, text string, markdown bool) (int, error) {
	return b.messenger.Send(ctx, Outgoing{
		ChatID:   msg.ChatID,
		ReplyTo:  msg.MessageID,
		Text:     text,
		Markdown: markdown,
	})
}

func (b *Bot) replyText(ctx context.Context, msg *Message, text string) error {
	_, err := b.reply(ctx, msg, text, false)

	return err
}

func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string, markdown bool) error {
	return b.messenger.Edit(ctx, Outgoing{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		Markdown:  markdown,
	})
}
