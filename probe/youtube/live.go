// Package youtube finds live streams and new videos on YouTube channels.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/alanbriolat/shiodome"
)

const DefaultBaseURL = "https://www.youtube.com"

var (
	reLiveBadge   = regexp.MustCompile(`"text+":"LIVE"`)
	reVideoID     = regexp.MustCompile(`"videoId":"([^"]+)`)
	reTitle       = regexp.MustCompile(`title":{"runs":\[{"text":"((?:[^"\\]|\\.)*)"`)
	reChannelIcon = regexp.MustCompile(`<meta name="twitter:image" content="(.*?)"`)
)

// LiveProbe scrapes a channel's streams page for videos with a LIVE badge. A channel can have several live streams
// at once, and each one is a separate candidate identified by its video ID.
type LiveProbe struct {
	Client  *http.Client
	BaseURL string
}

func NewLiveProbe(client *http.Client) *LiveProbe {
	return &LiveProbe{Client: client, BaseURL: DefaultBaseURL}
}

func (p *LiveProbe) Platform() shiodome.Platform {
	return shiodome.PlatformYouTube
}

func (p *LiveProbe) Probe(ctx context.Context, source shiodome.ChannelSource) ([]shiodome.LiveCandidate, error) {
	body, err := get(ctx, p.Client, fmt.Sprintf("%s/channel/%s/streams", p.BaseURL, source.ID))
	if err != nil {
		return nil, err
	}
	return parseStreamsPage(string(body)), nil
}

func parseStreamsPage(page string) []shiodome.LiveCandidate {
	var icon string
	if m := reChannelIcon.FindStringSubmatch(page); m != nil {
		icon = html.UnescapeString(m[1])
	}
	seen := make(map[string]bool)
	var candidates []shiodome.LiveCandidate
	// Everything after each "videoRenderer" up to the next one describes a single video.
	for _, fragment := range strings.Split(page, "videoRenderer")[1:] {
		if !reLiveBadge.MatchString(fragment) {
			continue
		}
		id := reVideoID.FindStringSubmatch(fragment)
		if id == nil || seen[id[1]] {
			continue
		}
		seen[id[1]] = true
		var title string
		if m := reTitle.FindStringSubmatch(fragment); m != nil {
			title = unescapeJSON(m[1])
		}
		candidates = append(candidates, shiodome.LiveCandidate{
			Identity:       id[1],
			Title:          title,
			URL:            WatchURL(id[1]),
			ThumbnailURL:   ThumbnailURL(id[1]),
			AuthorImageURL: icon,
		})
	}
	return candidates
}

// unescapeJSON decodes the escapes that appear inside JSON string literals embedded in the page.
func unescapeJSON(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// Without this YouTube serves a consent page to some regions
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
