package bot

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/italolelis/filebot/internal/downloader"
	"github.com/italolelis/filebot/internal/logctx"
	"github.com/italolelis/filebot/internal/notifier"
	"github.com/italolelis/filebot/internal/storage"
	"github.com/italolelis/filebot/internal/transfer"
)

func (b *Bot) handleTorrent(ctx context.Context, msg *Message) error {
	var (
		gid   string
		label string
		err   error
	)

	link := strings.TrimSpace(msg.Args)

	switch {
	case link != "":
		gid, err = b.deps.Monitor.Submit(ctx, link)
		label = downloader.InspectMagnet(link).Label()
	case msg.ReplyTo != nil && msg.ReplyTo.Attachment != nil && msg.ReplyTo.Attachment.Kind == KindDocument:
		att := msg.ReplyTo.Attachment

		var content []byte

		content, err = b.fetchTorrent(ctx, att)
		if err != nil {
			return err
		}

		gid, err = b.deps.Monitor.SubmitTorrent(ctx, att.FileName, content)
		label = att.FileName
	default:
		return b.replyText(ctx, msg, "Usage: /torr <magnet link>, or reply /torr to a .torrent file")
	}

	if err != nil {
		return err
	}

	statusID, err := b.reply(ctx, msg, fmt.Sprintf("Added %s\nGID: %s", label, gid), false)
	if err != nil {
		return err
	}

	b.startLifecycle(ctx, msg.ChatID, statusID, gid)

	return nil
}

func (b *Bot) fetchTorrent(ctx context.Context, att *Attachment) ([]byte, error) {
	if att.Size > downloader.MaxTorrentSize {
		return nil, &transfer.ValidationError{
			Input:  att.FileName,
			Reason: fmt.Sprintf("file exceeds %d bytes", downloader.MaxTorrentSize),
		}
	}

	body, err := b.messenger.Fetch(ctx, att.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", att.FileName, err)
	}
	defer body.Close()

	content, err := io.ReadAll(io.LimitReader(body, downloader.MaxTorrentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", att.FileName, err)
	}

	return content, nil
}

// startLifecycle follows gid in the background, editing the status message
// with every render. The lifecycle outlives the command that started it.
func (b *Bot) startLifecycle(ctx context.Context, chatID int64, statusID int, gid string) {
	sink := notifier.Func(func(ctx context.Context, text string) error {
		return b.edit(ctx, chatID, statusID, text, false)
	})

	b.deps.Sessions.Go(ctx, gid, func(sessionCtx context.Context) {
		outcome, err := b.deps.Monitor.Run(sessionCtx, gid, sink)
		if err != nil {
			// Stopped with /stop while the bot keeps running.
			if ctx.Err() == nil {
				notifier.BestEffort(ctx, sink, "⏹ Stopped watching this download.")
			}

			return
		}

		b.finishLifecycle(ctx, chatID, outcome)
	})
}

func (b *Bot) finishLifecycle(ctx context.Context, chatID int64, outcome downloader.Outcome) {
	logger := logctx.LoggerFromContext(ctx)

	if b.deps.History != nil {
		record := storage.DownloadRecord{
			GID:        outcome.ID,
			Name:       outcome.Name,
			Status:     string(outcome.State),
			Message:    outcome.Message,
			Dir:        outcome.Dir,
			ChatID:     chatID,
			FinishedAt: b.now(),
		}

		if err := b.deps.History.RecordOutcome(ctx, record); err != nil {
			logger.ErrorContext(ctx, "failed to record download outcome", "gid", outcome.ID, "err", err)
		}
	}

	notifier.BestEffort(ctx, b.deps.Mirror, outcomeSummary(outcome))
}

func outcomeSummary(o downloader.Outcome) string {
	switch o.State {
	case downloader.StateComplete:
		return "✅ Download complete: " + o.Name
	case downloader.StateFailed:
		return fmt.Sprintf("❌ Download failed: %s: %s", o.Name, o.Message)
	case downloader.StateRemoved:
		return "🗑 Download removed: " + o.Name
	default:
		return fmt.Sprintf("Download %s: %s", o.State, o.Name)
	}
}

func (b *Bot) handleStatus(ctx context.Context, msg *Message) error {
	text, err := b.deps.Tracker.RefreshListing(ctx)
	if err != nil {
		return err
	}

	return b.replyText(ctx, msg, text)
}

func (b *Bot) handlePause(ctx context.Context, msg *Message) error {
	return b.indexAction(ctx, msg, "pause", b.deps.Tracker.Pause)
}

func (b *Bot) handleRemove(ctx context.Context, msg *Message) error {
	return b.indexAction(ctx, msg, "remove", b.deps.Tracker.Remove)
}

// indexAction runs action on the listed job and replies with the result
// followed by a fresh listing, since indices may have shifted.
func (b *Bot) indexAction(ctx context.Context, msg *Message, name string, action func(context.Context, int) (string, error)) error {
	index, err := strconv.Atoi(strings.TrimSpace(msg.Args))
	if err != nil || index < 1 {
		return b.replyText(ctx, msg, fmt.Sprintf("Usage: /%s <n>", name))
	}

	result, err := action(ctx, index)
	if err != nil {
		return err
	}

	listing, err := b.deps.Tracker.RefreshListing(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to refresh listing after action", "err", err)

		return b.replyText(ctx, msg, result)
	}

	return b.replyText(ctx, msg, result+"\n\n"+listing)
}

func (b *Bot) handleStop(ctx context.Context, msg *Message) error {
	gid := strings.TrimSpace(msg.Args)
	if gid == "" {
		return b.replyText(ctx, msg, "Usage: /stop <gid>")
	}

	if b.deps.Sessions.StopByGID(gid) == 0 {
		return b.replyText(ctx, msg, "No running watcher for "+gid)
	}

	return b.replyText(ctx, msg, fmt.Sprintf("Stopped watching %s. The download keeps running.", gid))
}

func (b *Bot) handleHistory(ctx context.Context, msg *Message) error {
	if b.deps.History == nil {
		return b.replyText(ctx, msg, "History is disabled.")
	}

	records, err := b.deps.History.ListRecent(ctx, b.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if len(records) == 0 {
		return b.replyText(ctx, msg, "No finished downloads yet.")
	}

	var sb strings.Builder

	sb.WriteString("Recent downloads:\n")

	for i, rec := range records {
		fmt.Fprintf(&sb, "\n%d. %s [%s] %s", i+1, rec.Name, rec.Status, rec.FinishedAt.Local().Format(time.DateTime))

		if rec.Message != "" {
			sb.WriteString(" - " + rec.Message)
		}
	}

	return b.replyText(ctx, msg, sb.String())
}
