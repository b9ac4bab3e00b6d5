package youtube

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrNotYouTube = errors.New("not a YouTube URL")
	ErrNoVideoID  = errors.New("could not extract video ID")
)

// WatchURL is the canonical watch page for a video, which is what the capture tool is given.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func ThumbnailURL(videoID string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/0.jpg", videoID)
}

// ExtractVideoID extracts the video ID from a YouTube URL.
//
// Allowed URL formats:
//
//	http(s?)://(www|m).youtube.com/(watch|details)?v={VIDEO_ID}
//	http(s?)://(www|m).youtube.com/(v|live|shorts)/{VIDEO_ID}
//	http(s?)://youtu.be/{VIDEO_ID}
func ExtractVideoID(u *url.URL) (string, error) {
	var id string
	switch u.Hostname() {
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		if u.Path == "/watch" || u.Path == "/details" {
			if !u.Query().Has("v") {
				return "", fmt.Errorf("%w: missing ?v= query parameter", ErrNoVideoID)
			}
			id = u.Query().Get("v")
		} else {
			for _, prefix := range []string{"/v/", "/live/", "/shorts/"} {
				if strings.HasPrefix(u.Path, prefix) {
					id = strings.SplitN(strings.TrimPrefix(u.Path, prefix), "/", 2)[0]
					break
				}
			}
		}
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	default:
		return "", ErrNotYouTube
	}
	if id == "" || strings.ContainsAny(id, "/?&") {
		return "", ErrNoVideoID
	}
	return id, nil
}

// ParseVideoURL is ExtractVideoID for a string.
func ParseVideoURL(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	return ExtractVideoID(u)
}
