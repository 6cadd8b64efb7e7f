package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/filebot/internal/downloader"
	"github.com/italolelis/filebot/internal/downloader/progress"
	"github.com/italolelis/filebot/internal/files"
	"github.com/italolelis/filebot/internal/logctx"
)

const (
	listLimit = 4000

	// progressChunk is how many bytes are read between progress checks.
	progressChunk = 256 << 10
)

const helpText = "Welcome to *Telegram File Manager Bot!*\n" +
	"_Send me any file and reply /upload to upload it to the VPS._\n\n" +
	"Commands:\n" +
	"/start - Start the bot\n" +
	"/upload - Upload file\n" +
	"/ls - List files\n" +
	"/del <filename> - Delete file\n" +
	"/torr <magnet> - Download a magnet link or a replied .torrent file\n" +
	"/status - List downloads\n" +
	"/pause <n> - Pause download n of the last listing\n" +
	"/remove <n> - Remove download n of the last listing\n" +
	"/stop <gid> - Stop watching a download\n" +
	"/history - Recently finished downloads\n"

func (b *Bot) handleStart(ctx context.Context, msg *Message) error {
	_, err := b.reply(ctx, msg, helpText, true)

	return err
}

func (b *Bot) handleList(ctx context.Context, msg *Message) error {
	if err := b.deps.Store.Ensure(); err != nil {
		return err
	}

	entries, err := b.deps.Store.List()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return b.replyText(ctx, msg, "No files found.")
	}

	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. `%s`", i+1, e.Name))
	}

	text := fmt.Sprintf("Files in `%s`:\n\n%s", b.deps.Store.Root(), truncateLines(lines, listLimit))

	_, err = b.reply(ctx, msg, text, true)

	return err
}

// truncateLines joins lines with newlines. When the result exceeds limit
// bytes it keeps the whole lines that fit and appends a marker, so markup
// inside a line is never cut in half.
func truncateLines(lines []string, limit int) string {
	joined := strings.Join(lines, "\n")
	if len(joined) <= limit {
		return joined
	}

	var b strings.Builder

	for _, line := range lines {
		extra := len(line)
		if b.Len() > 0 {
			extra++
		}

		if b.Len()+extra > limit {
			break
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}

		b.WriteString(line)
	}

	if b.Len() == 0 {
		cut := limit
		for cut > 0 && !utf8.RuneStart(joined[cut]) {
			cut--
		}

		b.WriteString(joined[:cut])
	}

	b.WriteString("\n... (truncated)")

	return b.String()
}

func (b *Bot) handleDelete(ctx context.Context, msg *Message) error {
	name := strings.TrimSpace(msg.Args)
	if name == "" {
		return b.replyText(ctx, msg, "Usage: /del <filename>")
	}

	err := b.deps.Store.Delete(name)

	switch {
	case errors.Is(err, files.ErrInvalidName):
		return b.replyText(ctx, msg, "Invalid filename.")
	case errors.Is(err, files.ErrNotFound):
		_, err = b.reply(ctx, msg, fmt.Sprintf("File not found: `%s`", name), true)

		return err
	case err != nil:
		return err
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "file deleted", "name", name)

	_, err = b.reply(ctx, msg, fmt.Sprintf("Deleted `%s`", name), true)

	return err
}

func (b *Bot) handleUpload(ctx context.Context, msg *Message) error {
	if msg.ReplyTo == nil {
		return b.replyText(ctx, msg, "Please reply to a file with /upload to upload it.")
	}

	att := msg.ReplyTo.Attachment
	if att == nil {
		return b.replyText(ctx, msg, "The replied message does not contain a supported file.")
	}

	if err := b.deps.Store.Ensure(); err != nil {
		return err
	}

	statusID, err := b.reply(ctx, msg, "Downloading... 0%", false)
	if err != nil {
		return err
	}

	logger := logctx.LoggerFromContext(ctx).With("file_name", att.FileName, "size", att.Size)
	logger.InfoContext(ctx, "upload started")

	start := b.now()

	path, written, err := b.saveAttachment(ctx, msg.ChatID, statusID, att)
	if err != nil {
		if editErr := b.edit(ctx, msg.ChatID, statusID, "Upload failed: "+err.Error(), false); editErr != nil {
			logger.WarnContext(ctx, "failed to report upload failure", "err", editErr)
		}

		return &reportedError{err: fmt.Errorf("failed to save %s: %w", att.FileName, err)}
	}

	elapsed := b.now().Sub(start)

	b.deps.Telemetry.RecordUploadedBytes(written)
	logger.InfoContext(ctx, "upload saved",
		"path", path,
		"written", humanize.Bytes(uint64(written)),
		"duration", elapsed)

	text := fmt.Sprintf("*Saved to:* `%s` \n*Time taken:* _%.2f seconds_", path, elapsed.Seconds())

	return b.edit(ctx, msg.ChatID, statusID, text, true)
}

// saveAttachment streams the attachment into the store, editing the status
// message with the progress at most once per UploadProgressInterval.
func (b *Bot) saveAttachment(ctx context.Context, chatID int64, statusID int, att *Attachment) (string, int64, error) {
	body, err := b.messenger.Fetch(ctx, att.FileID)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	throttle := downloader.NewInterval(b.cfg.UploadProgressInterval)

	reader := progress.NewReader(body, att.Size, progressChunk, func(read, total int64) {
		if total <= 0 {
			return
		}

		text := fmt.Sprintf("Downloading... %.1f%%", float64(read)*100/float64(total))
		if !throttle.Allow(text, b.now()) {
			return
		}

		if err := b.edit(ctx, chatID, statusID, text, false); err != nil {
			logctx.LoggerFromContext(ctx).DebugContext(ctx, "failed to update upload progress", "err", err)
		}
	})

	return b.deps.Store.Save(ctx, att.FileName, reader)
}
