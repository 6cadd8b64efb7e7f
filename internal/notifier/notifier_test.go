package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/filebot/internal/logctx"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL)

	require.NoError(t, n.Notify(context.Background(), "✅ Download complete: ubuntu.iso"))
	assert.Equal(t, map[string]string{"content": "✅ Download complete: ubuntu.iso"}, got)
}

func TestDiscordNotifier_Truncates(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordNotifier(srv.URL).Notify(context.Background(), strings.Repeat("a", 2500)))
	assert.Len(t, got["content"], discordMaxContent)

	emoji := strings.Repeat("🎉", 2500)
	require.NoError(t, NewDiscordNotifier(srv.URL).Notify(context.Background(), emoji))
	assert.True(t, utf8.ValidString(got["content"]))
	assert.Equal(t, discordMaxContent, utf8.RuneCountInString(got["content"]))
	assert.Equal(t, strings.Repeat("🎉", discordMaxContent), got["content"])

	mixed := strings.Repeat("a", discordMaxContent-1) + "✅✅"
	require.NoError(t, NewDiscordNotifier(srv.URL).Notify(context.Background(), mixed))
	assert.Equal(t, strings.Repeat("a", discordMaxContent-1)+"✅", got["content"])
}

func TestNewDiscordNotifiers(t *testing.T) {
	assert.Nil(t, NewDiscordNotifiers(nil))
	assert.Nil(t, NewDiscordNotifiers([]string{"", "  "}))

	single := NewDiscordNotifiers([]string{" http://a.example/hook "})
	require.IsType(t, &DiscordNotifier{}, single)
	assert.Equal(t, "http://a.example/hook", single.(*DiscordNotifier).WebhookURL)

	var hits []string

	handler := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			hits = append(hits, name)
			w.WriteHeader(http.StatusNoContent)
		}
	}
	first := httptest.NewServer(handler("first"))
	defer first.Close()
	second := httptest.NewServer(handler("second"))
	defer second.Close()

	fanout := NewDiscordNotifiers([]string{first.URL, second.URL})
	require.IsType(t, Multi{}, fanout)
	require.NoError(t, fanout.Notify(context.Background(), "done"))
	assert.Equal(t, []string{"first", "second"}, hits)
}

func TestDiscordNotifier_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordNotifier(srv.URL).Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	err = (&DiscordNotifier{}).Notify(context.Background(), "hi")
	require.EqualError(t, err, "webhook URL is not set")
}

func TestMulti(t *testing.T) {
	var calls []string

	failing := Func(func(_ context.Context, content string) error {
		calls = append(calls, "failing:"+content)

		return errors.New("boom")
	})
	ok := Func(func(_ context.Context, content string) error {
		calls = append(calls, "ok:"+content)

		return nil
	})

	err := Multi{failing, nil, ok}.Notify(context.Background(), "x")
	require.EqualError(t, err, "boom")
	assert.Equal(t, []string{"failing:x", "ok:x"}, calls)
}

func TestBestEffort_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	BestEffort(ctx, Func(func(context.Context, string) error { return errors.New("chat unreachable") }), "x")
	assert.Contains(t, buf.String(), "chat unreachable")

	assert.NotPanics(t, func() { BestEffort(ctx, nil, "x") })
}
