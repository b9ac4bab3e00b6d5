// Package probe wires the platform probes together, and resolves URLs given by users into archivable candidates.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/probe/twitch"
	"github.com/alanbriolat/shiodome/probe/youtube"
)

var (
	ErrUnsupportedURL = errors.New("unsupported URL")
)

type Options struct {
	// Timeout is the HTTP client timeout for every probe request.
	Timeout time.Duration
	// Cookies is an optional Netscape cookies.txt for YouTube requests.
	Cookies string
	// RecencyWindow returns how far back the RSS probe looks.
	RecencyWindow func() time.Duration
}

// NewRegistry builds a ProbeRegistry with a probe for every platform.
func NewRegistry(opts Options) (*shiodome.ProbeRegistry, error) {
	jar, err := youtube.NewCookieJar(opts.Cookies)
	if err != nil {
		return nil, err
	}
	plain := &http.Client{Timeout: opts.Timeout}
	withCookies := &http.Client{Timeout: opts.Timeout, Jar: jar}

	registry := &shiodome.ProbeRegistry{}
	registry.MustAdd(twitch.New(plain))
	registry.MustAdd(youtube.NewLiveProbe(withCookies))
	registry.MustAdd(youtube.NewRSSProbe(withCookies, opts.RecencyWindow))
	return registry, nil
}

// Resolve turns a YouTube video URL or Twitch channel URL into a source and candidate that can be submitted for
// archiving. YouTube metadata is looked up if possible; a failed lookup still gives a usable candidate.
func Resolve(ctx context.Context, client *http.Client, rawURL string, outPath string) (shiodome.ChannelSource, shiodome.LiveCandidate, error) {
	if videoID, err := youtube.ParseVideoURL(rawURL); err == nil {
		source := shiodome.ChannelSource{Platform: shiodome.PlatformYouTube, Name: videoID, OutPath: outPath}
		video, err := youtube.Lookup(ctx, client, videoID)
		if err != nil {
			shiodome.Logger(ctx).Warnw("video lookup failed, archiving without metadata", "video_id", videoID, "error", err)
			return source, youtube.Candidate(videoID), nil
		}
		if video.Author != "" {
			source.Name = video.Author
		}
		return source, video.Candidate, nil
	} else if !errors.Is(err, youtube.ErrNotYouTube) {
		return shiodome.ChannelSource{}, shiodome.LiveCandidate{}, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}

	login, err := twitch.ParseChannelURL(rawURL)
	if err != nil {
		return shiodome.ChannelSource{}, shiodome.LiveCandidate{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
	source := shiodome.ChannelSource{Platform: shiodome.PlatformTwitch, ID: login, Name: login, OutPath: outPath}
	return source, shiodome.LiveCandidate{Identity: login, URL: twitch.ChannelURL(login)}, nil
}
