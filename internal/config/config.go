// Package config loads, validates and reloads the daemon configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/generic"
	"github.com/alanbriolat/shiodome/internal/capture"
	"github.com/alanbriolat/shiodome/internal/filter"
	"github.com/alanbriolat/shiodome/internal/notify"
	"github.com/alanbriolat/shiodome/internal/orchestrator"
)

var (
	ErrUnknownFormat = errors.New("unknown config file format")
)

const (
	SourceLive = "live"
	SourceRSS  = "rss"
)

type ArchiveConfig struct {
	Twitch     bool `toml:"twitch" yaml:"twitch"`
	YouTube    bool `toml:"youtube" yaml:"youtube"`
	YouTubeRSS bool `toml:"youtube_rss" yaml:"youtube_rss"`
	// Checker is the default poll interval, in minutes.
	Checker int `toml:"checker" yaml:"checker"`
	// Per-family interval overrides, as Go durations ("90s"). Empty means Checker.
	TwitchInterval     string `toml:"twitch_interval" yaml:"twitch_interval"`
	YouTubeInterval    string `toml:"youtube_interval" yaml:"youtube_interval"`
	YouTubeRSSInterval string `toml:"youtube_rss_interval" yaml:"youtube_rss_interval"`
	// Cookies is an optional Netscape cookie file for YouTube requests.
	Cookies        string `toml:"cookies" yaml:"cookies"`
	ProbeTimeout   string `toml:"probe_timeout" yaml:"probe_timeout"`
	ChannelSpacing string `toml:"channel_spacing" yaml:"channel_spacing"`
	RecencyWindow  string `toml:"recency_window" yaml:"recency_window"`
	// TwitchUsingStreamlink captures Twitch with the [streamlink] section unless [capture.twitch] is set.
	TwitchUsingStreamlink bool `toml:"twitch_using_streamlink" yaml:"twitch_using_streamlink"`
}

// ProfileConfig overrides the capture tool for one platform. An empty executable_path or working_directory is taken
// from [capture]; args are not.
type ProfileConfig struct {
	ExecutablePath   string   `toml:"executable_path" yaml:"executable_path"`
	Args             []string `toml:"args" yaml:"args"`
	TrailingArgs     []string `toml:"trailing_args" yaml:"trailing_args"`
	WorkingDirectory string   `toml:"working_directory" yaml:"working_directory"`
}

type CaptureConfig struct {
	ExecutablePath   string   `toml:"executable_path" yaml:"executable_path"`
	Args             []string `toml:"args" yaml:"args"`
	WorkingDirectory string   `toml:"working_directory" yaml:"working_directory"`
	LogDir           string   `toml:"log_dir" yaml:"log_dir"`
	// YouTube applies to both the live and rss sources.
	Twitch  *ProfileConfig `toml:"twitch" yaml:"twitch"`
	YouTube *ProfileConfig `toml:"youtube" yaml:"youtube"`
}

// YTArchiveConfig is the older [ytarchive] section.
type YTArchiveConfig struct {
	ExecutablePath string   `toml:"executable_path" yaml:"executable_path"`
	Args           []string `toml:"args" yaml:"args"`
	// TemporaryDir is passed as --temporary-dir.
	TemporaryDir string `toml:"working_directory" yaml:"working_directory"`
	Quality      string `toml:"quality" yaml:"quality"`
	DelayStart   string `toml:"delay_start" yaml:"delay_start"`
	OutPath      string `toml:"out_path" yaml:"out_path"`
}

func (y *YTArchiveConfig) profile() *ProfileConfig {
	p := &ProfileConfig{
		ExecutablePath:   y.ExecutablePath,
		Args:             append([]string(nil), y.Args...),
		TrailingArgs:     []string{y.Quality},
		WorkingDirectory: y.OutPath,
	}
	if p.ExecutablePath == "" {
		p.ExecutablePath = "ytarchive"
	}
	if y.TemporaryDir != "" {
		p.Args = append(p.Args, "--temporary-dir", y.TemporaryDir)
	}
	if y.DelayStart != "" {
		p.Args = append(p.Args, "--start-delay", y.DelayStart)
	}
	if y.Quality == "" {
		p.TrailingArgs = []string{"best"}
	}
	return p
}

// StreamlinkConfig is the older [streamlink] section. Its args follow the stream URL.
type StreamlinkConfig struct {
	ExecutablePath   string   `toml:"executable_path" yaml:"executable_path"`
	Args             []string `toml:"args" yaml:"args"`
	WorkingDirectory string   `toml:"working_directory" yaml:"working_directory"`
}

func (s *StreamlinkConfig) profile() *ProfileConfig {
	p := &ProfileConfig{
		ExecutablePath:   "streamlink",
		TrailingArgs:     []string{"best"},
		WorkingDirectory: s.WorkingDirectory,
	}
	if s.ExecutablePath != "" {
		p.ExecutablePath = s.ExecutablePath
	}
	if len(s.Args) > 0 {
		p.TrailingArgs = append([]string(nil), s.Args...)
	}
	return p
}

type DiscordConfig struct {
	Notify  bool   `toml:"notify" yaml:"notify"`
	Webhook string `toml:"webhook" yaml:"webhook"`
}

type TwitchChannel struct {
	Name    string   `toml:"name" yaml:"name"`
	Filters []string `toml:"filters" yaml:"filters"`
	OutPath string   `toml:"out_path" yaml:"out_path"`
}

type YouTubeChannel struct {
	ID      string   `toml:"id" yaml:"id"`
	Name    string   `toml:"name" yaml:"name"`
	Filters []string `toml:"filters" yaml:"filters"`
	OutPath string   `toml:"out_path" yaml:"out_path"`
	// Source is "live" (the channel's streams page) or "rss" (the channel's video feed).
	Source string `toml:"source" yaml:"source"`
}

type WebserverConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Host    string `toml:"host" yaml:"host"`
	Port    int    `toml:"port" yaml:"port"`
}

type HistoryConfig struct {
	// Path of the history database. Empty disables history.
	Path string `toml:"path" yaml:"path"`
}

type ShutdownConfig struct {
	Policy string `toml:"policy" yaml:"policy"`
	Grace  string `toml:"grace" yaml:"grace"`
}

// Config is treated as immutable once loaded: a reload produces a new Config.
type Config struct {
	Archive         ArchiveConfig     `toml:"archive" yaml:"archive"`
	Capture         CaptureConfig     `toml:"capture" yaml:"capture"`
	LegacyYTDLP     *CaptureConfig    `toml:"yt-dlp" yaml:"yt-dlp" diff:"-"`
	YTArchive       *YTArchiveConfig  `toml:"ytarchive" yaml:"ytarchive" diff:"-"`
	Streamlink      *StreamlinkConfig `toml:"streamlink" yaml:"streamlink" diff:"-"`
	Discord         DiscordConfig     `toml:"discord" yaml:"discord"`
	TwitchChannels  []TwitchChannel   `toml:"twitch_channel" yaml:"twitch_channel"`
	YouTubeChannels []YouTubeChannel  `toml:"youtube_channel" yaml:"youtube_channel"`
	Webserver       WebserverConfig   `toml:"webserver" yaml:"webserver"`
	History         HistoryConfig     `toml:"history" yaml:"history"`
	Shutdown        ShutdownConfig    `toml:"shutdown" yaml:"shutdown"`
}

// Default returns a Config with every default applied and no channels.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	// The capture section used to be called "yt-dlp"
	if c.LegacyYTDLP != nil && c.Capture.ExecutablePath == "" {
		c.Capture = *c.LegacyYTDLP
	}
	c.LegacyYTDLP = nil
	if c.YTArchive != nil && c.Capture.YouTube == nil {
		c.Capture.YouTube = c.YTArchive.profile()
	}
	c.YTArchive = nil
	if c.Archive.TwitchUsingStreamlink && c.Capture.Twitch == nil {
		s := c.Streamlink
		if s == nil {
			s = &StreamlinkConfig{}
		}
		c.Capture.Twitch = s.profile()
	}
	c.Streamlink = nil

	if c.Archive.Checker == 0 {
		c.Archive.Checker = 1
	}
	if c.Archive.ProbeTimeout == "" {
		c.Archive.ProbeTimeout = "20s"
	}
	if c.Archive.ChannelSpacing == "" {
		c.Archive.ChannelSpacing = "1s"
	}
	if c.Archive.RecencyWindow == "" {
		c.Archive.RecencyWindow = "24h"
	}
	if c.Capture.ExecutablePath == "" {
		c.Capture.ExecutablePath = "yt-dlp"
	}
	if c.Capture.WorkingDirectory == "" {
		c.Capture.WorkingDirectory = "."
	}
	if c.Capture.LogDir == "" {
		c.Capture.LogDir = "logs"
	}
	for _, p := range []*ProfileConfig{c.Capture.Twitch, c.Capture.YouTube} {
		if p == nil {
			continue
		}
		if p.ExecutablePath == "" {
			p.ExecutablePath = c.Capture.ExecutablePath
		}
		if p.WorkingDirectory == "" {
			p.WorkingDirectory = c.Capture.WorkingDirectory
		}
	}
	for i := range c.YouTubeChannels {
		if c.YouTubeChannels[i].Source == "" {
			c.YouTubeChannels[i].Source = SourceLive
		}
		if c.YouTubeChannels[i].Name == "" {
			c.YouTubeChannels[i].Name = c.YouTubeChannels[i].ID
		}
	}
	if c.Webserver.Host == "" {
		c.Webserver.Host = "127.0.0.1"
	}
	if c.Webserver.Port == 0 {
		c.Webserver.Port = 8080
	}
	if c.Shutdown.Policy == "" {
		c.Shutdown.Policy = string(capture.ShutdownDetach)
	}
	if c.Shutdown.Grace == "" {
		c.Shutdown.Grace = "10s"
	}
}

// Load reads the config file at path, choosing TOML or YAML by extension, then applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes data in the format named by ext (".toml", ".yaml" or ".yml"), then applies defaults and validates it.
func Parse(data []byte, ext string) (*Config, error) {
	c := &Config{}
	switch strings.ToLower(ext) {
	case ".toml", "":
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Validate reports every problem with the config at once.
func (c *Config) Validate() error {
	var result error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}
	positive := func(name, value string) {
		if d, err := time.ParseDuration(value); err != nil {
			add("%s: %w", name, err)
		} else if d <= 0 {
			add("%s: must be positive, got %s", name, value)
		}
	}

	if c.Archive.Checker < 1 {
		add("archive.checker: must be at least 1 minute, got %d", c.Archive.Checker)
	}
	for name, value := range map[string]string{
		"archive.twitch_interval":      c.Archive.TwitchInterval,
		"archive.youtube_interval":     c.Archive.YouTubeInterval,
		"archive.youtube_rss_interval": c.Archive.YouTubeRSSInterval,
	} {
		if value != "" {
			positive(name, value)
		}
	}
	positive("archive.probe_timeout", c.Archive.ProbeTimeout)
	positive("archive.recency_window", c.Archive.RecencyWindow)
	if d, err := time.ParseDuration(c.Archive.ChannelSpacing); err != nil {
		add("archive.channel_spacing: %w", err)
	} else if d < 0 {
		add("archive.channel_spacing: must not be negative")
	}
	if c.Archive.Cookies != "" {
		if _, err := os.Stat(c.Archive.Cookies); err != nil {
			add("archive.cookies: %w", err)
		}
	}

	if c.Capture.ExecutablePath == "" {
		add("capture.executable_path: required")
	}

	if c.Discord.Notify {
		if c.Discord.Webhook == "" {
			add("discord.webhook: required when discord.notify is enabled")
		} else if u, err := url.Parse(c.Discord.Webhook); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("discord.webhook: not a valid http(s) URL")
		}
	}

	seen := generic.NewSet[string]()
	for i, ch := range c.TwitchChannels {
		prefix := fmt.Sprintf("twitch_channel[%d]", i)
		if ch.Name == "" {
			add("%s.name: required", prefix)
		} else if !seen.Add("twitch/" + strings.ToLower(ch.Name)) {
			add("%s: duplicate channel %q", prefix, ch.Name)
		}
		if err := filter.Validate(ch.Filters); err != nil {
			add("%s.filters: %w", prefix, err)
		}
	}
	for i, ch := range c.YouTubeChannels {
		prefix := fmt.Sprintf("youtube_channel[%d]", i)
		if ch.ID == "" {
			add("%s.id: required", prefix)
		}
		if ch.Source != SourceLive && ch.Source != SourceRSS {
			add("%s.source: must be %q or %q, got %q", prefix, SourceLive, SourceRSS, ch.Source)
		}
		if ch.ID != "" && !seen.Add("youtube/"+ch.Source+"/"+ch.ID) {
			add("%s: duplicate channel %q", prefix, ch.ID)
		}
		if err := filter.Validate(ch.Filters); err != nil {
			add("%s.filters: %w", prefix, err)
		}
	}

	if c.Webserver.Enabled && (c.Webserver.Port < 1 || c.Webserver.Port > 65535) {
		add("webserver.port: out of range: %d", c.Webserver.Port)
	}
	if !capture.ShutdownPolicy(c.Shutdown.Policy).Valid() {
		add("shutdown.policy: must be %q or %q, got %q", capture.ShutdownDetach, capture.ShutdownTerminate, c.Shutdown.Policy)
	}
	positive("shutdown.grace", c.Shutdown.Grace)

	return result
}

// Enabled returns true if the family is switched on.
func (c *Config) Enabled(family shiodome.Platform) bool {
	switch family {
	case shiodome.PlatformTwitch:
		return c.Archive.Twitch
	case shiodome.PlatformYouTube:
		return c.Archive.YouTube
	case shiodome.PlatformYouTubeRSS:
		return c.Archive.YouTubeRSS
	default:
		return false
	}
}

// Interval is the poll interval for a family.
func (c *Config) Interval(family shiodome.Platform) time.Duration {
	var override string
	switch family {
	case shiodome.PlatformTwitch:
		override = c.Archive.TwitchInterval
	case shiodome.PlatformYouTube:
		override = c.Archive.YouTubeInterval
	case shiodome.PlatformYouTubeRSS:
		override = c.Archive.YouTubeRSSInterval
	}
	if override != "" {
		return mustDuration(override)
	}
	return time.Duration(c.Archive.Checker) * time.Minute
}

// Intervals returns the poll interval of every enabled family.
func (c *Config) Intervals() map[shiodome.Platform]time.Duration {
	intervals := make(map[shiodome.Platform]time.Duration)
	for _, family := range shiodome.Platforms {
		if c.Enabled(family) {
			intervals[family] = c.Interval(family)
		}
	}
	return intervals
}

// Sources returns the configured channels of a family, in config file order.
func (c *Config) Sources(family shiodome.Platform) []shiodome.ChannelSource {
	var sources []shiodome.ChannelSource
	switch family {
	case shiodome.PlatformTwitch:
		for _, ch := range c.TwitchChannels {
			sources = append(sources, shiodome.ChannelSource{
				Platform: family,
				ID:       strings.ToLower(ch.Name),
				Name:     ch.Name,
				Filters:  append([]string(nil), ch.Filters...),
				OutPath:  ch.OutPath,
			})
		}
	case shiodome.PlatformYouTube, shiodome.PlatformYouTubeRSS:
		want := SourceLive
		if family == shiodome.PlatformYouTubeRSS {
			want = SourceRSS
		}
		for _, ch := range c.YouTubeChannels {
			if ch.Source != want {
				continue
			}
			sources = append(sources, shiodome.ChannelSource{
				Platform: family,
				ID:       ch.ID,
				Name:     ch.Name,
				Filters:  append([]string(nil), ch.Filters...),
				OutPath:  ch.OutPath,
			})
		}
	}
	return sources
}

// AllSources returns the channels of every enabled family.
func (c *Config) AllSources() []shiodome.ChannelSource {
	var sources []shiodome.ChannelSource
	for _, family := range shiodome.Platforms {
		if c.Enabled(family) {
			sources = append(sources, c.Sources(family)...)
		}
	}
	return sources
}

func (p *ProfileConfig) capture() capture.Profile {
	return capture.Profile{
		ExecutablePath:   p.ExecutablePath,
		Args:             append([]string(nil), p.Args...),
		TrailingArgs:     append([]string(nil), p.TrailingArgs...),
		WorkingDirectory: p.WorkingDirectory,
	}
}

func (c *Config) CaptureSettings() capture.Settings {
	s := capture.Settings{
		Profile: capture.Profile{
			ExecutablePath:   c.Capture.ExecutablePath,
			Args:             append([]string(nil), c.Capture.Args...),
			WorkingDirectory: c.Capture.WorkingDirectory,
		},
		Platforms: make(map[shiodome.Platform]capture.Profile),
		LogDir:    c.Capture.LogDir,
	}
	if c.Capture.Twitch != nil {
		s.Platforms[shiodome.PlatformTwitch] = c.Capture.Twitch.capture()
	}
	if c.Capture.YouTube != nil {
		s.Platforms[shiodome.PlatformYouTube] = c.Capture.YouTube.capture()
		s.Platforms[shiodome.PlatformYouTubeRSS] = c.Capture.YouTube.capture()
	}
	return s
}

func (c *Config) OrchestratorSettings() orchestrator.Settings {
	return orchestrator.Settings{
		ProbeTimeout:   mustDuration(c.Archive.ProbeTimeout),
		ChannelSpacing: mustDuration(c.Archive.ChannelSpacing),
	}
}

func (c *Config) DiscordSettings() notify.DiscordSettings {
	return notify.DiscordSettings{Enabled: c.Discord.Notify, Webhook: c.Discord.Webhook}
}

func (c *Config) ProbeTimeout() time.Duration {
	return mustDuration(c.Archive.ProbeTimeout)
}

func (c *Config) RecencyWindow() time.Duration {
	return mustDuration(c.Archive.RecencyWindow)
}

func (c *Config) ShutdownPolicy() capture.ShutdownPolicy {
	return capture.ShutdownPolicy(c.Shutdown.Policy)
}

func (c *Config) ShutdownGrace() time.Duration {
	return mustDuration(c.Shutdown.Grace)
}

// Sanitized returns a copy that is safe to show to users, with secrets masked.
func (c *Config) Sanitized() *Config {
	s := *c
	if s.Discord.Webhook != "" {
		if u, err := url.Parse(s.Discord.Webhook); err == nil && u.Host != "" {
			s.Discord.Webhook = u.Scheme + "://" + u.Host + "/***"
		} else {
			s.Discord.Webhook = "***"
		}
	}
	return &s
}
