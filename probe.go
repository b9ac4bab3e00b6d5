package shiodome

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrDuplicateProbe  = errors.New("duplicate probe platform")
	ErrInvalidProbe    = errors.New("invalid probe")
	ErrUnknownPlatform = errors.New("unknown platform")
)

// A ProbeRegistry maps each Platform to the Probe that handles it.
type ProbeRegistry struct {
	probes map[Platform]Probe
}

// Add registers a Probe. Its Platform must be valid and not already registered.
func (r *ProbeRegistry) Add(p Probe) error {
	if r.probes == nil {
		r.probes = make(map[Platform]Probe)
	}
	if p == nil || !p.Platform().Valid() {
		return ErrInvalidProbe
	}
	if _, ok := r.probes[p.Platform()]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateProbe, p.Platform())
	}
	r.probes[p.Platform()] = p
	return nil
}

// MustAdd wraps Add but panics if there is an error.
func (r *ProbeRegistry) MustAdd(p Probe) {
	if err := r.Add(p); err != nil {
		panic(err)
	}
}

// Get returns the Probe for a platform, or ErrUnknownPlatform.
func (r *ProbeRegistry) Get(platform Platform) (Probe, error) {
	if p, ok := r.probes[platform]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
}

// List returns the registered platforms in a stable order.
func (r *ProbeRegistry) List() []Platform {
	platforms := make([]Platform, 0, len(r.probes))
	for p := range r.probes {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool {
		return platforms[i] < platforms[j]
	})
	return platforms
}

// Check verifies that every source has a registered probe, reporting all the sources that don't.
func (r *ProbeRegistry) Check(sources []ChannelSource) error {
	var result error
	for _, s := range sources {
		if _, err := r.Get(s.Platform); err != nil {
			result = multierror.Append(result, multierror.Prefix(err, fmt.Sprintf("[%v]", s.Name)))
		}
	}
	return result
}
