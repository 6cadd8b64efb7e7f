package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/italolelis/filebot/internal/logctx"
)

const updateTimeout = 60

// TelegramMessenger implements Messenger on the Telegram Bot API.
type TelegramMessenger struct {
	api  *tgbotapi.BotAPI
	http *resty.Client
}

var _ Messenger = (*TelegramMessenger)(nil)

func NewTelegramMessenger(token string) (*TelegramMessenger, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	return &TelegramMessenger{api: api, http: resty.New()}, nil
}

// UserName is the name of the bot account.
func (t *TelegramMessenger) UserName() string {
	return t.api.Self.UserName
}

// Updates converts incoming Telegram messages until ctx is done.
func (t *TelegramMessenger) Updates(ctx context.Context) <-chan *Message {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout

	updates := t.api.GetUpdatesChan(u)
	out := make(chan *Message)

	go func() {
		defer close(out)
		defer t.api.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}

				msg := convertMessage(update.Message)
				if msg == nil {
					continue
				}

				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (t *TelegramMessenger) Send(ctx context.Context, msg Outgoing) (int, error) {
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ReplyToMessageID = msg.ReplyTo

	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}

	sent, err := t.api.Send(cfg)
	if err != nil && msg.Markdown && isParseError(err) {
		logctx.LoggerFromContext(ctx).DebugContext(ctx, "markdown rejected, sending plain text", "err", err)

		cfg.ParseMode = ""
		sent, err = t.api.Send(cfg)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}

	return sent.MessageID, nil
}

func (t *TelegramMessenger) Edit(ctx context.Context, msg Outgoing) error {
	cfg := tgbotapi.NewEditMessageText(msg.ChatID, msg.MessageID, msg.Text)

	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}

	_, err := t.api.Request(cfg)
	if err != nil && msg.Markdown && isParseError(err) {
		logctx.LoggerFromContext(ctx).DebugContext(ctx, "markdown rejected, editing with plain text", "err", err)

		cfg.ParseMode = ""
		_, err = t.api.Request(cfg)
	}

	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to edit message %d: %w", msg.MessageID, err)
	}

	return nil
}

// Fetch downloads a file through the Bot API file endpoint.
func (t *TelegramMessenger) Fetch(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := t.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	resp, err := t.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(file.Link(t.api.Token))
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		resp.RawBody().Close()

		return nil, fmt.Errorf("file download failed with status %d", resp.StatusCode())
	}

	return resp.RawBody(), nil
}

func isParseError(err error) bool {
	return strings.Contains(err.Error(), "can't parse entities")
}

func convertMessage(m *tgbotapi.Message) *Message {
	if m == nil || m.Chat == nil {
		return nil
	}

	msg := &Message{
		ChatID:     m.Chat.ID,
		MessageID:  m.MessageID,
		Attachment: convertAttachment(m),
	}

	if m.From != nil {
		msg.UserID = m.From.ID
	}

	if m.IsCommand() {
		msg.Command = strings.ToLower(m.Command())
		msg.Args = m.CommandArguments()
	}

	if m.ReplyToMessage != nil {
		msg.ReplyTo = convertMessage(m.ReplyToMessage)
	}

	return msg
}

func convertAttachment(m *tgbotapi.Message) *Attachment {
	switch {
	case m.Document != nil:
		return &Attachment{Kind: KindDocument, FileID: m.Document.FileID, FileName: m.Document.FileName, Size: int64(m.Document.FileSize)}
	case m.Video != nil:
		return &Attachment{Kind: KindVideo, FileID: m.Video.FileID, FileName: orDefault(m.Video.FileName, "video.mp4"), Size: int64(m.Video.FileSize)}
	case m.Audio != nil:
		return &Attachment{Kind: KindAudio, FileID: m.Audio.FileID, FileName: orDefault(m.Audio.FileName, "audio.mp3"), Size: int64(m.Audio.FileSize)}
	case len(m.Photo) > 0:
		largest := m.Photo[len(m.Photo)-1]

		return &Attachment{Kind: KindPhoto, FileID: largest.FileID, FileName: "photo.jpg", Size: int64(largest.FileSize)}
	default:
		return nil
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}
