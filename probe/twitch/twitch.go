// Package twitch checks whether Twitch channels are live, using the same public GraphQL endpoint as the Twitch
// website.
package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/alanbriolat/shiodome"
)

const (
	DefaultEndpoint = "https://gql.twitch.tv/gql"
	// DefaultClientID is the client ID of the Twitch web player.
	DefaultClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotTwitch       = errors.New("not a Twitch channel URL")
)

var reLogin = regexp.MustCompile(`^[A-Za-z0-9_]{1,25}$`)

const streamQuery = `query($login: String!) {
  user(login: $login) {
    profileImageURL(width: 50)
    stream {
      id
      title
      previewImageURL(height: 720, width: 1280)
    }
  }
}`

// Probe is a currently-live probe: a channel is either live or not, so there is at most one candidate, identified by
// the lowercased channel login.
type Probe struct {
	Client   *http.Client
	Endpoint string
	ClientID string
}

func New(client *http.Client) *Probe {
	return &Probe{Client: client, Endpoint: DefaultEndpoint, ClientID: DefaultClientID}
}

func (p *Probe) Platform() shiodome.Platform {
	return shiodome.PlatformTwitch
}

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type gqlResponse struct {
	Data struct {
		User *struct {
			ProfileImageURL string `json:"profileImageURL"`
			Stream          *struct {
				ID              string `json:"id"`
				Title           string `json:"title"`
				PreviewImageURL string `json:"previewImageURL"`
			} `json:"stream"`
		} `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *Probe) Probe(ctx context.Context, source shiodome.ChannelSource) ([]shiodome.LiveCandidate, error) {
	login := strings.ToLower(source.ID)
	body, err := json.Marshal(gqlRequest{Query: streamQuery, Variables: map[string]interface{}{"login": login}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", p.ClientID)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitch gql: %s", resp.Status)
	}

	var result gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode twitch gql response: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("twitch gql: %s", result.Errors[0].Message)
	}
	user := result.Data.User
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, login)
	}
	if user.Stream == nil {
		return nil, nil
	}
	return []shiodome.LiveCandidate{{
		Identity:       login,
		Title:          user.Stream.Title,
		URL:            ChannelURL(login),
		ThumbnailURL:   user.Stream.PreviewImageURL,
		AuthorImageURL: user.ProfileImageURL,
	}}, nil
}

func ChannelURL(login string) string {
	return "https://twitch.tv/" + login
}

// ParseChannelURL extracts the channel login from a twitch.tv channel URL.
func ParseChannelURL(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	switch u.Hostname() {
	case "twitch.tv", "www.twitch.tv", "m.twitch.tv":
	default:
		return "", ErrNotTwitch
	}
	login := strings.Trim(u.Path, "/")
	if !reLogin.MatchString(login) {
		return "", fmt.Errorf("%w: %q", ErrNotTwitch, u.Path)
	}
	return strings.ToLower(login), nil
}
