package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/alanbriolat/shiodome"
)

// DefaultRecencyWindow is how old a feed entry can be and still be archived.
const DefaultRecencyWindow = 24 * time.Hour

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Author  atomAuthor  `xml:"http://www.w3.org/2005/Atom author"`
	Entries []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

type atomEntry struct {
	VideoID   string        `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title     string        `xml:"http://www.w3.org/2005/Atom title"`
	Published string        `xml:"http://www.w3.org/2005/Atom published"`
	Link      atomLink      `xml:"http://www.w3.org/2005/Atom link"`
	Group     atomMediaInfo `xml:"http://search.yahoo.com/mrss/ group"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

type atomMediaInfo struct {
	Thumbnail struct {
		URL string `xml:"url,attr"`
	} `xml:"http://search.yahoo.com/mrss/ thumbnail"`
}

// RSSProbe reads a channel's video feed and returns every entry published within the recency window. Entries are
// identified by video ID, so re-reading the feed while an entry is being archived is harmless.
type RSSProbe struct {
	Client  *http.Client
	BaseURL string
	// Window returns the current recency window, so it can follow config reloads.
	Window func() time.Duration
	Now    func() time.Time
}

func NewRSSProbe(client *http.Client, window func() time.Duration) *RSSProbe {
	return &RSSProbe{Client: client, BaseURL: DefaultBaseURL, Window: window, Now: time.Now}
}

func (p *RSSProbe) Platform() shiodome.Platform {
	return shiodome.PlatformYouTubeRSS
}

func (p *RSSProbe) Probe(ctx context.Context, source shiodome.ChannelSource) ([]shiodome.LiveCandidate, error) {
	body, err := get(ctx, p.Client, fmt.Sprintf("%s/feeds/videos.xml?channel_id=%s", p.BaseURL, source.ID))
	if err != nil {
		return nil, err
	}
	window := DefaultRecencyWindow
	if p.Window != nil {
		window = p.Window()
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return parseFeed(ctx, body, now().Add(-window))
}

func parseFeed(ctx context.Context, body []byte, since time.Time) ([]shiodome.LiveCandidate, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	log := shiodome.Logger(ctx)
	var candidates []shiodome.LiveCandidate
	for _, entry := range feed.Entries {
		published, err := time.Parse(time.RFC3339, entry.Published)
		if err != nil {
			log.Warnw("skipping feed entry with bad publish time", "video_id", entry.VideoID, "published", entry.Published)
			continue
		}
		if entry.VideoID == "" || published.Before(since) {
			continue
		}
		thumbnail := entry.Group.Thumbnail.URL
		if thumbnail == "" {
			thumbnail = ThumbnailURL(entry.VideoID)
		}
		candidates = append(candidates, shiodome.LiveCandidate{
			Identity:     entry.VideoID,
			Title:        entry.Title,
			URL:          WatchURL(entry.VideoID),
			ThumbnailURL: thumbnail,
			PublishedAt:  published,
		})
	}
	return candidates, nil
}
