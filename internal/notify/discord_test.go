package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanbriolat/shiodome"
)

type webhook struct {
	mu       sync.Mutex
	status   int
	payloads []map[string]any
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var payload map[string]any
	body, _ := io.ReadAll(r.Body)
	if r.Header.Get("Content-Type") == "application/json" && json.Unmarshal(body, &payload) == nil {
		w.payloads = append(w.payloads, payload)
	}
	if w.status != 0 {
		rw.WriteHeader(w.status)
		_, _ = rw.Write([]byte(`{"message": "Invalid Webhook Token"}`))
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (w *webhook) received() []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]map[string]any(nil), w.payloads...)
}

func newTestDiscord(t *testing.T, hook *webhook, enabled bool) *Discord {
	server := httptest.NewServer(hook)
	t.Cleanup(server.Close)
	return NewDiscord(func() DiscordSettings {
		return DiscordSettings{Enabled: enabled, Webhook: server.URL}
	}, server.Client())
}

func TestDiscord_Payload(t *testing.T) {
	assert := assert_.New(t)
	hook := &webhook{}
	d := newTestDiscord(t, hook, true)

	err := d.Notify(context.Background(), Notification{
		Subject:        "alice",
		Title:          "LIVE now",
		URL:            "https://twitch.tv/alice",
		ThumbnailURL:   "https://example.com/preview.jpg",
		AuthorImageURL: "https://example.com/alice.png",
		Status:         StatusStarted,
	})
	require.NoError(t, err)

	payloads := hook.received()
	require.Len(t, payloads, 1)
	p := payloads[0]
	assert.Nil(p["content"])
	assert.Equal("Shiodome", p["username"])
	assert.Equal([]any{}, p["attachments"])
	embeds := p["embeds"].([]any)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]any)
	assert.Equal("Recording", embed["title"])
	assert.Equal("LIVE now", embed["description"])
	assert.Equal(float64(65280), embed["color"])
	assert.Equal(map[string]any{
		"name":     "alice is live!",
		"url":      "https://twitch.tv/alice",
		"icon_url": "https://example.com/alice.png",
	}, embed["author"])
	assert.Equal(map[string]any{"text": "Shiodome " + shiodome.Version}, embed["footer"])
	assert.Equal(map[string]any{"url": "https://example.com/preview.jpg"}, embed["thumbnail"])
}

func TestDiscord_StatusColors(t *testing.T) {
	assert := assert_.New(t)
	hook := &webhook{}
	d := newTestDiscord(t, hook, true)

	for _, s := range []Status{StatusStarted, StatusSucceeded, StatusFailed} {
		require.NoError(t, d.Notify(context.Background(), Notification{Subject: "bob", Status: s}))
	}
	payloads := hook.received()
	require.Len(t, payloads, 3)
	expected := []struct {
		title string
		color float64
	}{{"Recording", 65280}, {"Done", 9934835}, {"Error", 16711680}}
	for i, e := range expected {
		embed := payloads[i]["embeds"].([]any)[0].(map[string]any)
		assert.Equal(e.title, embed["title"])
		assert.Equal(e.color, embed["color"])
		// No author image is sent as null
		author := embed["author"].(map[string]any)
		assert.Contains(author, "icon_url")
		assert.Nil(author["icon_url"])
	}
}

func TestDiscord_Rejected(t *testing.T) {
	hook := &webhook{status: http.StatusUnauthorized}
	d := newTestDiscord(t, hook, true)
	err := d.Notify(context.Background(), Notification{Subject: "alice", Status: StatusFailed})
	assert_.ErrorIs(t, err, ErrWebhookRejected)
	assert_.Contains(t, err.Error(), "Invalid Webhook Token")
	assert_.Len(t, hook.received(), 1)
}

func TestDiscord_Disabled(t *testing.T) {
	hook := &webhook{}
	d := newTestDiscord(t, hook, false)
	assert_.Nil(t, d.Notify(context.Background(), Notification{Subject: "alice", Status: StatusStarted}))
	assert_.Empty(t, hook.received())
}

func TestDiscord_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	d := NewDiscord(func() DiscordSettings { return DiscordSettings{Enabled: true, Webhook: url} }, nil)
	assert_.Error(t, d.Notify(context.Background(), Notification{Subject: "alice", Status: StatusStarted}))
}
