// Package profile maps a configured quality tier to the container, codec and
// rates used for a capture. The mapping is fixed and has no fallback logic of
// its own; callers decide when to force the Low tier.
package profile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTier indicates a quality string that matches no tier.
var ErrUnknownTier = errors.New("unknown quality tier")

// Tier is a recording quality level.
type Tier int

const (
	// Low favors reliability: narrowband AMR in a 3GPP container.
	Low Tier = iota
	// Medium is AAC in an MPEG-4 container. It is the default tier.
	Medium
	// High is ADTS-framed AAC at CD sample rate.
	High
)

// DefaultTier is used when no quality is configured.
const DefaultTier = Medium

// String returns the configuration spelling of the tier.
func (t Tier) String() string {
	switch t {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// ParseTier parses "low", "medium" or "high" (case-insensitive).
// An empty string yields DefaultTier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultTier, nil
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	default:
		return 0, fmt.Errorf("%q (use low, medium or high): %w", s, ErrUnknownTier)
	}
}

// Format identifies an output container.
type Format string

// Supported containers.
const (
	FormatADTS Format = "adts"
	FormatMP4  Format = "mp4"
	Format3GP  Format = "3gp"
)

// Codec identifies an audio codec.
type Codec string

// Supported codecs.
const (
	CodecAAC   Codec = "aac"
	CodecAMRNB Codec = "amr_nb"
)

// Profile is the encoding applied to one capture.
// A zero SampleRateHz or BitRateBps means the codec default.
type Profile struct {
	Tier         Tier
	Format       Format
	Codec        Codec
	SampleRateHz int
	BitRateBps   int
	Extension    string
}

// Lookup returns the profile for a tier. Unknown tiers map to DefaultTier.
func Lookup(t Tier) Profile {
	switch t {
	case High:
		return Profile{
			Tier:         High,
			Format:       FormatADTS,
			Codec:        CodecAAC,
			SampleRateHz: 44100,
			BitRateBps:   192000,
			Extension:    ".aac",
		}
	case Low:
		return Profile{
			Tier:      Low,
			Format:    Format3GP,
			Codec:     CodecAMRNB,
			Extension: ".3gp",
		}
	default:
		return Profile{
			Tier:         Medium,
			Format:       FormatMP4,
			Codec:        CodecAAC,
			SampleRateHz: 22050,
			BitRateBps:   96000,
			Extension:    ".mp4",
		}
	}
}

// Fallback returns the profile forced on fallback captures, regardless of
// the configured tier.
func Fallback() Profile {
	return Lookup(Low)
}

// All returns every profile, lowest tier first.
func All() []Profile {
	return []Profile{Lookup(Low), Lookup(Medium), Lookup(High)}
}
