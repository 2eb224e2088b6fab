package track

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Quality is the quality tier controlling which resources are fetched.
type Quality string

const (
	QualityHigh    Quality = "high"
	QualityLow     Quality = "low"
	QualityVeryLow Quality = "verylow" // Lowest tier: artwork and lyrics are replaced by placeholders
)

// ParseQuality parses a quality tier name.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityHigh, QualityLow, QualityVeryLow:
		return q, nil
	default:
		return "", errors.Newf("invalid quality: %q", s)
	}
}

// IsLowest reports whether q is the lowest tier.
func (q Quality) IsLowest() bool {
	return q == QualityVeryLow
}

// ArtworkQuality returns the album cover quality requested for this tier.
func (q Quality) ArtworkQuality() string {
	switch q {
	case QualityHigh:
		return "high"
	case QualityLow:
		return "low"
	default:
		return "tiny"
	}
}

// TagMode selects how a TagFilter treats its tags.
type TagMode string

const (
	TagModeOff   TagMode = ""
	TagModeAllow TagMode = "allow" // Track must carry at least one of the tags
	TagModeDeny  TagMode = "deny"  // Track must carry none of the tags
)

// TagFilter restricts random track selection by tags.
type TagFilter struct {
	Mode TagMode  `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=allow deny"`
	Tags []string `yaml:"tags" mapstructure:"tags"`
}

// Matches reports whether a track with the given tags passes the filter.
func (f TagFilter) Matches(tags []string) bool {
	switch f.Mode {
	case TagModeAllow:
		for _, want := range f.Tags {
			for _, have := range tags {
				if want == have {
					return true
				}
			}
		}
		return false
	case TagModeDeny:
		for _, deny := range f.Tags {
			for _, have := range tags {
				if deny == have {
					return false
				}
			}
		}
		return true
	default:
		return true
	}
}
