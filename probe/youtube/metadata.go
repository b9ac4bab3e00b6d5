package youtube

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kkdai/youtube/v2"

	"github.com/alanbriolat/shiodome"
)

// Video is what a manual archive request needs to know about a single video.
type Video struct {
	Candidate shiodome.LiveCandidate
	// Author is the channel's display name.
	Author string
}

// Lookup fetches a video's details, for archiving a URL that didn't come from a probe.
func Lookup(ctx context.Context, client *http.Client, videoID string) (*Video, error) {
	yt := youtube.Client{HTTPClient: client}
	details, err := yt.GetVideoContext(ctx, WatchURL(videoID))
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}
	return &Video{
		Candidate: shiodome.LiveCandidate{
			Identity:     details.ID,
			Title:        details.Title,
			URL:          WatchURL(details.ID),
			ThumbnailURL: ThumbnailURL(details.ID),
		},
		Author: details.Author,
	}, nil
}

// Candidate builds a candidate for a video without looking anything up, for when Lookup fails or isn't wanted.
func Candidate(videoID string) shiodome.LiveCandidate {
	return shiodome.LiveCandidate{
		Identity:     videoID,
		URL:          WatchURL(videoID),
		ThumbnailURL: ThumbnailURL(videoID),
	}
}
