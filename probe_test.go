package shiodome

import (
	"context"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func probeFor(platform Platform) Probe {
	return ProbeFunc{
		P: platform,
		F: func(ctx context.Context, source ChannelSource) ([]LiveCandidate, error) {
			return nil, nil
		},
	}
}

func TestProbeRegistry(t *testing.T) {
	assert := assert_.New(t)
	r := &ProbeRegistry{}

	assert.NoError(r.Add(probeFor(PlatformYouTube)))
	assert.NoError(r.Add(probeFor(PlatformTwitch)))
	assert.ErrorIs(r.Add(probeFor(PlatformTwitch)), ErrDuplicateProbe)
	assert.ErrorIs(r.Add(probeFor("myspace")), ErrInvalidProbe)
	assert.ErrorIs(r.Add(nil), ErrInvalidProbe)

	assert.Equal([]Platform{PlatformTwitch, PlatformYouTube}, r.List())

	p, err := r.Get(PlatformTwitch)
	assert.NoError(err)
	assert.Equal(PlatformTwitch, p.Platform())
	_, err = r.Get(PlatformYouTubeRSS)
}

func TestProbeRegistry_MustAdd(t *testing.T) {
	r := &ProbeRegistry{}
	r.MustAdd(probeFor(PlatformTwitch))
	assert_.Panics(t, func() { r.MustAdd(probeFor(PlatformTwitch)) })
}

func TestProbeRegistry_Check(t *testing.T) {
	assert := assert_.New(t)
	r := &ProbeRegistry{}
	r.MustAdd(probeFor(PlatformTwitch))

	assert.NoError(r.Check([]ChannelSource{{Platform: PlatformTwitch, Name: "alice"}}))
	err := r.Check([]ChannelSource{
		{Platform: PlatformTwitch, Name: "alice"},
		{Platform: PlatformYouTube, Name: "bob"},
		{Platform: PlatformYouTubeRSS, Name: "carol"},
	})
	if assert.Error(err) {
		assert.Contains(err.Error(), "[bob]")
		assert.Contains(err.Error(), "[carol]")
		assert.NotContains(err.Error(), "[alice]")
	}
}

func TestChannelSource_WatchURL(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("https://twitch.tv/alice", ChannelSource{Platform: PlatformTwitch, ID: "alice"}.WatchURL())
	assert.Equal("https://www.youtube.com/channel/UC1", ChannelSource{Platform: PlatformYouTubeRSS, ID: "UC1"}.WatchURL())
}
