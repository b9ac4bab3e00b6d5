package shiodome

import (
	"context"
	"fmt"
	"time"
)

// Version is reported in notification footers and the status API.
const Version = "0.2.0"

// Platform identifies which Probe implementation handles a ChannelSource. Each platform is also a "source
// family" with its own polling schedule.
type Platform string

const (
	PlatformTwitch     Platform = "twitch"
	PlatformYouTube    Platform = "youtube"
	PlatformYouTubeRSS Platform = "youtube_rss"
)

// Platforms lists every known platform in the order the scheduler starts them.
var Platforms = []Platform{PlatformTwitch, PlatformYouTube, PlatformYouTubeRSS}

// IsCurrentlyLive returns true for platforms that can only have one live session per channel at a time, and whose
// candidate identity is therefore the channel name rather than a video ID.
func (p Platform) IsCurrentlyLive() bool {
	return p == PlatformTwitch
}

func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}

// A ChannelSource is one tracked channel. Values are created when configuration is loaded and are never mutated
// afterwards; a reload produces new values.
type ChannelSource struct {
	Platform Platform
	// ID is the stable platform identifier (YouTube channel ID, Twitch login).
	ID   string
	Name string
	// Filters are regular expressions matched against candidate titles, in order.
	Filters []string
	// OutPath overrides the capture working directory for this channel, if set.
	OutPath string
}

func (s ChannelSource) String() string {
	return fmt.Sprintf("%s/%s", s.Platform, s.Name)
}

// WatchURL is the page a human would open to watch the channel.
func (s ChannelSource) WatchURL() string {
	switch s.Platform {
	case PlatformTwitch:
		return "https://twitch.tv/" + s.ID
	default:
		return "https://www.youtube.com/channel/" + s.ID
	}
}

// A LiveCandidate is something a probe found that might be worth archiving.
type LiveCandidate struct {
	// Identity is the uniqueness key for the archive job: channel name for currently-live platforms, video ID for
	// per-video platforms.
	Identity string
	Title    string
	// URL is what gets passed to the capture tool.
	URL            string
	ThumbnailURL   string
	AuthorImageURL string
	// PublishedAt is zero when the platform doesn't report it.
	PublishedAt time.Time
}

// A Probe checks one channel for live streams or recent videos.
type Probe interface {
	Platform() Platform
	// Probe returns the candidates currently visible for the channel, which may be none. Implementations must honour
	// ctx cancellation and apply their own request timeout.
	Probe(ctx context.Context, source ChannelSource) ([]LiveCandidate, error)
}

// ProbeFunc adapts a plain function into a Probe.
type ProbeFunc struct {
	P Platform
	F func(ctx context.Context, source ChannelSource) ([]LiveCandidate, error)
}

func (f ProbeFunc) Platform() Platform {
	return f.P
}

func (f ProbeFunc) Probe(ctx context.Context, source ChannelSource) ([]LiveCandidate, error) {
	return f.F(ctx, source)
}
