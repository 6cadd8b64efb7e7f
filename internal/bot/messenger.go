package bot

import (
	"context"
	"io"
)

// AttachmentKind is the type of media carried by a chat message.
type AttachmentKind string

const (
	KindDocument AttachmentKind = "document"
	KindVideo    AttachmentKind = "video"
	KindAudio    AttachmentKind = "audio"
	KindPhoto    AttachmentKind = "photo"
)

// Attachment is a file attached to a chat message. FileName is already
// defaulted for media types that may come without one.
type Attachment struct {
	Kind     AttachmentKind
	FileID   string
	FileName string
	Size     int64
}

// Message is an incoming chat message reduced to what the commands need.
type Message struct {
	ChatID     int64
	UserID     int64
	MessageID  int
	Command    string
	Args       string
	ReplyTo    *Message
	Attachment *Attachment
}

// Outgoing is a text sent to a chat. MessageID selects the message to edit;
// ReplyTo the message to answer.
type Outgoing struct {
	ChatID    int64
	MessageID int
	ReplyTo   int
	Text      string
	Markdown  bool
}

// Messenger is the chat transport.
type Messenger interface {
	// Send posts a new message and returns its id.
	Send(ctx context.Context, msg Outgoing) (int, error)
	Edit(ctx context.Context, msg Outgoing) error
	// Fetch opens the content of an attachment.
	Fetch(ctx context.Context, fileID string) (io.ReadCloser, error)
}
