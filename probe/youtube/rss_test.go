package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanbriolat/shiodome"
)

func feed(entries ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <title>Alice Ch.</title>
 <author><name>Alice Ch.</name></author>` + strings.Join(entries, "") + `
</feed>`
}

func entry(id, title string, published time.Time) string {
	return fmt.Sprintf(`
 <entry>
  <id>yt:video:%[1]s</id>
  <yt:videoId>%[1]s</yt:videoId>
  <title>%[2]s</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=%[1]s"/>
  <published>%[3]s</published>
  <media:group><media:thumbnail url="https://i4.ytimg.com/vi/%[1]s/hqdefault.jpg" width="480" height="360"/></media:group>
 </entry>`, id, title, published.Format(time.RFC3339))
}

func TestRSSProbe_RecencyWindow(t *testing.T) {
	assert := assert_.New(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	queries := make(chan string, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		_, _ = w.Write([]byte(feed(
			entry("recent00001", "unarchived karaoke", now.Add(-time.Hour)),
			entry("old00000001", "old stream", now.Add(-30*time.Hour)),
		)))
	}))
	defer server.Close()

	p := NewRSSProbe(server.Client(), func() time.Duration { return 24 * time.Hour })
	p.BaseURL = server.URL
	p.Now = func() time.Time { return now }
	assert.Equal(shiodome.PlatformYouTubeRSS, p.Platform())

	candidates, err := p.Probe(context.Background(), shiodome.ChannelSource{ID: "UC123"})
	require.NoError(t, err)
	assert.Equal("channel_id=UC123", <-queries)
	require.Len(t, candidates, 1)
	assert.Equal(shiodome.LiveCandidate{
		Identity:     "recent00001",
		Title:        "unarchived karaoke",
		URL:          "https://www.youtube.com/watch?v=recent00001",
		ThumbnailURL: "https://i4.ytimg.com/vi/recent00001/hqdefault.jpg",
		PublishedAt:  now.Add(-time.Hour),
	}, candidates[0])

	// A wider window includes the older entry
	p.Window = func() time.Duration { return 48 * time.Hour }
	candidates, err = p.Probe(context.Background(), shiodome.ChannelSource{ID: "UC123"})
	require.NoError(t, err)
	assert.Len(candidates, 2)
}

func TestParseFeed_BadEntries(t *testing.T) {
	assert := assert_.New(t)
	body := `<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
 <entry><yt:videoId>nodate00001</yt:videoId><title>x</title><published>yesterday</published></entry>
 <entry><yt:videoId>good0000001</yt:videoId><title>y</title><published>2024-03-01T11:00:00+00:00</published></entry>
</feed>`
	candidates, err := parseFeed(context.Background(), []byte(body), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	if assert.Len(candidates, 1) {
		assert.Equal("good0000001", candidates[0].Identity)
		// No media:thumbnail, so the default thumbnail is used
		assert.Equal(ThumbnailURL("good0000001"), candidates[0].ThumbnailURL)
	}

	_, err = parseFeed(context.Background(), []byte("<html>not a feed"), time.Time{})
	assert.Error(err)
}
