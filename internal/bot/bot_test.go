package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/filebot/internal/downloader"
	"github.com/italolelis/filebot/internal/files"
	"github.com/italolelis/filebot/internal/notifier"
	"github.com/italolelis/filebot/internal/storage"
	"github.com/italolelis/filebot/internal/transfer"
	"github.com/italolelis/filebot/internal/transfer/transfertest"
)

type fakeMessenger struct {
	mu       sync.Mutex
	nextID   int
	sent     []Outgoing
	edits    []Outgoing
	files    map[string]string
	fetchErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, files: map[string]string{}}
}

func (m *fakeMessenger) Send(_ context.Context, msg Outgoing) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.sent = append(m.sent, msg)

	return m.nextID, nil
}

func (m *fakeMessenger) Edit(_ context.Context, msg Outgoing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.edits = append(m.edits, msg)

	return nil
}

func (m *fakeMessenger) Fetch(_ context.Context, fileID string) (io.ReadCloser, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	content, ok := m.files[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file %s", fileID)
	}

	return io.NopCloser(strings.NewReader(content)), nil
}

func (m *fakeMessenger) Sent() []Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Outgoing(nil), m.sent...)
}

func (m *fakeMessenger) Edits() []Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Outgoing(nil), m.edits...)
}

func (m *fakeMessenger) LastText(t *testing.T) string {
	t.Helper()

	sent := m.Sent()
	require.NotEmpty(t, sent)

	return sent[len(sent)-1].Text
}

type memoryHistory struct {
	mu      sync.Mutex
	records []storage.DownloadRecord
}

func (h *memoryHistory) RecordOutcome(_ context.Context, rec storage.DownloadRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.ID = int64(len(h.records) + 1)
	h.records = append(h.records, rec)

	return nil
}

func (h *memoryHistory) ListRecent(_ context.Context, limit int) ([]storage.DownloadRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]storage.DownloadRecord, 0, len(h.records))
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}

	return out, nil
}

func (h *memoryHistory) ListExpired(context.Context, time.Time) ([]storage.DownloadRecord, error) {
	return nil, nil
}

func (h *memoryHistory) MarkCleaned(context.Context, int64, time.Time) error {
	return nil
}

func (h *memoryHistory) Records() []storage.DownloadRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]storage.DownloadRecord(nil), h.records...)
}

type harness struct {
	bot       *Bot
	messenger *fakeMessenger
	engine    *transfertest.Engine
	history   *memoryHistory
	mirror    *[]string
	root      string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	root := t.TempDir()
	engine := &transfertest.Engine{}
	messenger := newFakeMessenger()
	history := &memoryHistory{}

	var (
		mirrorMu sync.Mutex
		mirrored []string
	)

	mirror := notifier.Func(func(_ context.Context, content string) error {
		mirrorMu.Lock()
		defer mirrorMu.Unlock()

		mirrored = append(mirrored, content)

		return nil
	})

	monitor := downloader.NewMonitor(engine, nil, downloader.MonitorConfig{
		DownloadDir:  root,
		PollInterval: 5 * time.Millisecond,
		RetryBackoff: 5 * time.Millisecond,
	})

	b := New(messenger, Deps{
		Store:    files.NewStore(root),
		Monitor:  monitor,
		Tracker:  transfer.NewTracker(engine),
		Sessions: downloader.NewSessions(),
		History:  history,
		Mirror:   mirror,
	}, cfg)

	return &harness{bot: b, messenger: messenger, engine: engine, history: history, mirror: &mirrored, root: root}
}

func command(name, args string) *Message {
	return &Message{ChatID: 42, UserID: 7, MessageID: 1, Command: name, Args: args}
}

func TestBot_AdminFilter(t *testing.T) {
	tests := []struct {
		name     string
		admins   []int64
		userID   int64
		wantSent int
	}{
		{name: "no admins configured allows everyone", admins: nil, userID: 99, wantSent: 1},
		{name: "listed admin", admins: []int64{7, 8}, userID: 8, wantSent: 1},
		{name: "unlisted user is ignored", admins: []int64{7}, userID: 99, wantSent: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{AdminIDs: tt.admins})

			msg := command("start", "")
			msg.UserID = tt.userID
			h.bot.Handle(context.Background(), msg)

			assert.Len(t, h.messenger.Sent(), tt.wantSent)
		})
	}
}

func TestBot_Start(t *testing.T) {
	h := newHarness(t, Config{})

	h.bot.Handle(context.Background(), command("help", ""))

	sent := h.messenger.Sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Markdown)
	assert.Equal(t, 1, sent[0].ReplyTo)
	assert.Contains(t, sent[0].Text, "/del <filename> - Delete file")
	assert.Contains(t, sent[0].Text, "/torr <magnet>")
}

func TestBot_IgnoresUnknownCommands(t *testing.T) {
	h := newHarness(t, Config{})

	h.bot.Handle(context.Background(), command("nope", ""))
	h.bot.Handle(context.Background(), &Message{ChatID: 42, UserID: 7})

	assert.Empty(t, h.messenger.Sent())
}

func TestBot_List(t *testing.T) {
	h := newHarness(t, Config{})

	h.bot.Handle(context.Background(), command("ls", ""))
	assert.Equal(t, "No files found.", h.messenger.LastText(t))

	require.NoError(t, os.WriteFile(filepath.Join(h.root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(h.root, "show"), 0o755))

	h.bot.Handle(context.Background(), command("ls", ""))

	want := fmt.Sprintf("Files in `%s`:\n\n1. `a.txt`\n2. `b.txt`\n3. `show`", h.root)
	assert.Equal(t, want, h.messenger.LastText(t))
}

func TestTruncateLines(t *testing.T) {
	lines := []string{"1. `aaaa`", "2. `bbbb`", "3. `cccc`"}

	assert.Equal(t, "1. `aaaa`\n2. `bbbb`\n3. `cccc`", truncateLines(lines, 100))
	assert.Equal(t, "1. `aaaa`\n2. `bbbb`\n... (truncated)", truncateLines(lines, 25))
	assert.Equal(t, "1. `a\n... (truncated)", truncateLines(lines, 5))
}

func TestBot_Delete(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		want     string
		wantGone bool
	}{
		{name: "missing argument", args: "", want: "Usage: /del <filename>"},
		{name: "path traversal", args: "../outside.txt", want: "Invalid filename."},
		{name: "root itself", args: ".", want: "Invalid filename."},
		{name: "unknown file", args: "nope.txt", want: "File not found: `nope.txt`"},
		{name: "existing file", args: "movie.mkv", want: "Deleted `movie.mkv`", wantGone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			target := filepath.Join(h.root, "movie.mkv")
			require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

			h.bot.Handle(context.Background(), command("del", tt.args))

			assert.Equal(t, tt.want, h.messenger.LastText(t))

			if tt.wantGone {
				assert.NoFileExists(t, target)
			} else {
				assert.FileExists(t, target)
			}
		})
	}
}

func TestBot_Upload(t *testing.T) {
	t.Run("requires a reply", func(t *testing.T) {
		h := newHarness(t, Config{})

		h.bot.Handle(context.Background(), command("upload", ""))

		assert.Equal(t, "Please reply to a file with /upload to upload it.", h.messenger.LastText(t))
	})

	t.Run("reply without media", func(t *testing.T) {
		h := newHarness(t, Config{})

		msg := command("upload", "")
		msg.ReplyTo = &Message{ChatID: 42, MessageID: 0}
		h.bot.Handle(context.Background(), msg)

		assert.Equal(t, "The replied message does not contain a supported file.", h.messenger.LastText(t))
	})

	t.Run("saves with a unique name", func(t *testing.T) {
		h := newHarness(t, Config{})
		require.NoError(t, os.WriteFile(filepath.Join(h.root, "report.pdf"), []byte("old"), 0o644))

		h.messenger.files["f1"] = "new content"

		msg := command("upload", "")
		msg.ReplyTo = &Message{
			ChatID:     42,
			MessageID:  0,
			Attachment: &Attachment{Kind: KindDocument, FileID: "f1", FileName: "../report.pdf", Size: 11},
		}
		h.bot.Handle(context.Background(), msg)

		sent := h.messenger.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "Downloading... 0%", sent[0].Text)

		saved := filepath.Join(h.root, "report_1.pdf")
		content, err := os.ReadFile(saved)
		require.NoError(t, err)
		assert.Equal(t, "new content", string(content))

		edits := h.messenger.Edits()
		require.Len(t, edits, 2)
		assert.Equal(t, "Downloading... 100.0%", edits[0].Text)
		assert.Equal(t, 101, edits[0].MessageID)
		assert.True(t, edits[1].Markdown)
		assert.True(t, strings.HasPrefix(edits[1].Text, "*Saved to:* `"+saved+"` \n*Time taken:* _"), edits[1].Text)
		assert.True(t, strings.HasSuffix(edits[1].Text, " seconds_"))
	})

	t.Run("fetch failure is reported once", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.messenger.fetchErr = errors.New("file is too big")

		msg := command("upload", "")
		msg.ReplyTo = &Message{ChatID: 42, Attachment: &Attachment{Kind: KindPhoto, FileID: "p", FileName: "photo.jpg"}}
		h.bot.Handle(context.Background(), msg)

		assert.Len(t, h.messenger.Sent(), 1)

		edits := h.messenger.Edits()
		require.Len(t, edits, 1)
		assert.Equal(t, "Upload failed: file is too big", edits[0].Text)
	})
}

func TestBot_TorrentMagnetLifecycle(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.AddMagnetFunc = func(context.Context, string, transfer.AddOptions) (string, error) {
		return "g1", nil
	}
	h.engine.GetJobFunc = transfertest.Script(
		transfertest.Step{Job: &transfer.Job{ID: "g1", Name: "ubuntu.iso", Status: transfer.StatusActive, TotalLength: 100, CompletedLength: 40}},
		transfertest.Step{Job: &transfer.Job{ID: "g1", Name: "ubuntu.iso", Status: transfer.StatusComplete, Dir: h.root}},
	)

	link := "magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a&dn=ubuntu.iso"
	h.bot.Handle(context.Background(), command("torr", link))
	h.bot.Sessions().Wait()

	sent := h.messenger.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Added ubuntu.iso\nGID: g1", sent[0].Text)

	edits := h.messenger.Edits()
	require.Len(t, edits, 2)
	assert.Contains(t, edits[0].Text, "Progress: 40.0%")
	assert.Equal(t, "✅ Download complete: ubuntu.iso", edits[1].Text)

	for _, e := range edits {
		assert.Equal(t, 101, e.MessageID)
	}

	records := h.history.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "g1", records[0].GID)
	assert.Equal(t, "complete", records[0].Status)
	assert.Equal(t, int64(42), records[0].ChatID)

	assert.Equal(t, []string{"✅ Download complete: ubuntu.iso"}, *h.mirror)

	adds := h.engine.CallsTo("AddMagnet")
	require.Len(t, adds, 1)
	assert.Equal(t, link, adds[0].Arg)
}

func TestBot_TorrentErrors(t *testing.T) {
	t.Run("not a magnet link", func(t *testing.T) {
		h := newHarness(t, Config{})

		h.bot.Handle(context.Background(), command("torr", "http://example.com/file.torrent"))

		assert.Equal(t, "❌ Invalid input: not a magnet link", h.messenger.LastText(t))
		assert.Empty(t, h.engine.CallsTo("AddMagnet"))
		assert.Zero(t, h.bot.Sessions().Len())
	})

	t.Run("engine rejects the link", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.engine.AddMagnetFunc = func(context.Context, string, transfer.AddOptions) (string, error) {
			return "", errors.New("connection refused")
		}

		h.bot.Handle(context.Background(), command("torr", "magnet:?xt=urn:btih:abc"))

		assert.Equal(t, "❌ Failed to add download: connection refused", h.messenger.LastText(t))
		assert.Zero(t, h.bot.Sessions().Len())
	})

	t.Run("usage", func(t *testing.T) {
		h := newHarness(t, Config{})

		h.bot.Handle(context.Background(), command("torr", ""))

		assert.Equal(t, "Usage: /torr <magnet link>, or reply /torr to a .torrent file", h.messenger.LastText(t))
	})
}

func TestBot_TorrentFromDocument(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.GetJobFunc = transfertest.Script(
		transfertest.Step{Job: &transfer.Job{ID: "gid-1", Name: "foo", Status: transfer.StatusError, ErrorMessage: "disk full"}},
	)
	h.messenger.files["doc"] = "d4:infod4:name3:fooee"

	msg := command("torr", "")
	msg.ReplyTo = &Message{ChatID: 42, Attachment: &Attachment{Kind: KindDocument, FileID: "doc", FileName: "foo.torrent", Size: 21}}
	h.bot.Handle(context.Background(), msg)
	h.bot.Sessions().Wait()

	adds := h.engine.CallsTo("AddTorrent")
	require.Len(t, adds, 1)
	assert.Equal(t, h.root, adds[0].Arg)

	assert.Equal(t, "Added foo.torrent\nGID: gid-1", h.messenger.Sent()[0].Text)

	edits := h.messenger.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, "❌ Download failed: disk full", edits[0].Text)

	records := h.history.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "error", records[0].Status)
	assert.Equal(t, "disk full", records[0].Message)
}

func TestBot_TorrentDocumentRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.messenger.files["doc"] = "not bencode"

	msg := command("torr", "")
	msg.ReplyTo = &Message{ChatID: 42, Attachment: &Attachment{Kind: KindDocument, FileID: "doc", FileName: "notes.txt"}}
	h.bot.Handle(context.Background(), msg)

	assert.Equal(t, "❌ Invalid input: missing .torrent extension", h.messenger.LastText(t))
	assert.Empty(t, h.engine.CallsTo("AddTorrent"))
}

func TestBot_StatusAndActions(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.ListJobsFunc = func(context.Context) ([]*transfer.Job, error) {
		return []*transfer.Job{
			{ID: "a", Name: "first", Status: transfer.StatusActive, TotalLength: 100, CompletedLength: 50},
			{ID: "b", Name: "second", Status: transfer.StatusPaused},
		}, nil
	}

	h.bot.Handle(context.Background(), command("status", ""))
	listing := h.messenger.LastText(t)
	assert.True(t, strings.HasPrefix(listing, "Downloads:\n\n1. first [active] - 50.0%"), listing)
	assert.Contains(t, listing, "\n2. second [paused] - 0.0%")

	h.bot.Handle(context.Background(), command("pause", "1"))
	assert.Equal(t, "Paused #1\n\n"+listing, h.messenger.LastText(t))

	h.bot.Handle(context.Background(), command("remove", "2"))
	assert.Equal(t, "Removed #2\n\n"+listing, h.messenger.LastText(t))

	assert.Equal(t, "a", h.engine.CallsTo("PauseJob")[0].ID)
	assert.Equal(t, "b", h.engine.CallsTo("ForceRemove")[0].ID)

	h.bot.Handle(context.Background(), command("pause", "9"))
	assert.Equal(t, "❌ No download #9 in the last listing. Send /status to refresh it.", h.messenger.LastText(t))

	h.bot.Handle(context.Background(), command("remove", "x"))
	assert.Equal(t, "Usage: /remove <n>", h.messenger.LastText(t))

	h.engine.PauseJobFunc = func(context.Context, string) error { return errors.New("GID a is not found") }
	h.bot.Handle(context.Background(), command("pause", "1"))
	assert.Equal(t, "❌ Failed to pause #1: GID a is not found", h.messenger.LastText(t))
}

func TestBot_StatusEngineFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.ListJobsFunc = func(context.Context) ([]*transfer.Job, error) {
		return nil, errors.New("connection refused")
	}

	h.bot.Handle(context.Background(), command("status", ""))

	assert.Equal(t, "❌ Error: failed to list jobs: connection refused", h.messenger.LastText(t))
}

func TestBot_Stop(t *testing.T) {
	h := newHarness(t, Config{})

	h.bot.Handle(context.Background(), command("stop", "gid-1"))
	assert.Equal(t, "No running watcher for gid-1", h.messenger.LastText(t))

	h.bot.Handle(context.Background(), command("torr", "magnet:?xt=urn:btih:abc"))
	require.Equal(t, 1, h.bot.Sessions().Len())

	h.bot.Handle(context.Background(), command("stop", "gid-1"))
	assert.Equal(t, "Stopped watching gid-1. The download keeps running.", h.messenger.LastText(t))

	h.bot.Sessions().Wait()

	edits := h.messenger.Edits()
	require.NotEmpty(t, edits)
	assert.Equal(t, "⏹ Stopped watching this download.", edits[len(edits)-1].Text)
	assert.Empty(t, h.history.Records())
	assert.Empty(t, h.engine.CallsTo("ForceRemove"))
}

func TestBot_History(t *testing.T) {
	h := newHarness(t, Config{HistoryLimit: 2})

	h.bot.Handle(context.Background(), command("history", ""))
	assert.Equal(t, "No finished downloads yet.", h.messenger.LastText(t))

	finished := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	ctx := context.Background()
	require.NoError(t, h.history.RecordOutcome(ctx, storage.DownloadRecord{GID: "g1", Name: "old", Status: "complete", FinishedAt: finished}))
	require.NoError(t, h.history.RecordOutcome(ctx, storage.DownloadRecord{GID: "g2", Name: "broken", Status: "error", Message: "disk full", FinishedAt: finished}))
	require.NoError(t, h.history.RecordOutcome(ctx, storage.DownloadRecord{GID: "g3", Name: "new", Status: "complete", FinishedAt: finished}))

	h.bot.Handle(ctx, command("history", ""))

	want := "Recent downloads:\n" +
		"\n1. new [complete] 2025-03-01 12:00:00" +
		"\n2. broken [error] 2025-03-01 12:00:00 - disk full"
	assert.Equal(t, want, h.messenger.LastText(t))
}

func TestBot_RunDispatchesUpdates(t *testing.T) {
	h := newHarness(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan *Message)
	done := make(chan error, 1)

	go func() { done <- h.bot.Run(ctx, updates) }()

	updates <- command("start", "")
	updates <- command("ls", "")
	close(updates)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}

	assert.Len(t, h.messenger.Sent(), 2)
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "validation", err: &transfer.ValidationError{Input: "x", Reason: "not a magnet link"}, want: "❌ Invalid input: not a magnet link"},
		{name: "submission", err: &transfer.SubmissionError{Operation: "add_magnet", Err: errors.New("boom")}, want: "❌ Failed to add download: boom"},
		{name: "index", err: &transfer.IndexNotFoundError{Index: 3}, want: "❌ No download #3 in the last listing. Send /status to refresh it."},
		{name: "action", err: &transfer.ActionError{Action: "remove", Index: 2, ID: "g", Err: errors.New("nope")}, want: "❌ Failed to remove #2: nope"},
		{name: "invalid name", err: fmt.Errorf("save: %w", files.ErrInvalidName), want: "Invalid filename."},
		{name: "other", err: errors.New("disk on fire"), want: "❌ Error: disk on fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatError(tt.err))
		})
	}
}
