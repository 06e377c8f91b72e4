// Package features validates and clamps raw content descriptions into the
// canonical feature shape consumed by scoring. Out-of-range values are
// clamped, never rejected: a malformed request still produces a scoreable
// feature set.
package features

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/postpulse/engage/internal/domain"
)

// Platform limits for the normalized feature shape.
const (
	MaxTextRunes   = 280
	MaxHashtags    = 10
	MaxHashtagLen  = 50
	MaxLabelRunes  = 80
	DefaultFormat  = "text"
)

// KnownFormats is the closed set of categorical format tags the scorer
// understands. Unknown tags normalize to DefaultFormat.
var KnownFormats = map[string]bool{
	"text":     true,
	"headline": true,
	"thread":   true,
	"question": true,
	"story":    true,
	"link":     true,
	"image":    true,
	"video":    true,
}

// Normalizer clamps feature records into platform limits.
type Normalizer struct{}

// NewNormalizer creates a feature normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize returns a copy of f with every field inside platform limits.
// Clamped fields are logged at debug level; normalization never fails.
func (n *Normalizer) Normalize(f domain.EngagementFeatures) domain.EngagementFeatures {
	out := f

	out.Text = strings.TrimSpace(out.Text)
	if runes := []rune(out.Text); len(runes) > MaxTextRunes {
		out.Text = string(runes[:MaxTextRunes])
		log.Debug().Int("limit", MaxTextRunes).Msg("feature text truncated to platform limit")
	}

	out.Hashtags = normalizeHashtags(out.Hashtags)

	if out.Hour < 0 {
		out.Hour = 0
	} else if out.Hour > 23 {
		out.Hour = 23
	}
	if out.DayOfWeek < 0 {
		out.DayOfWeek = 0
	} else if out.DayOfWeek > 6 {
		out.DayOfWeek = 6
	}

	out.Format = strings.ToLower(strings.TrimSpace(out.Format))
	if !KnownFormats[out.Format] {
		if out.Format != "" {
			log.Debug().Str("format", out.Format).Msg("unknown format tag, using default")
		}
		out.Format = DefaultFormat
	}

	out.Purpose = clampLabel(out.Purpose)
	out.Trend = clampLabel(out.Trend)

	return out
}

func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		if tag == "" || seen[tag] {
			continue
		}
		if runes := []rune(tag); len(runes) > MaxHashtagLen {
			tag = string(runes[:MaxHashtagLen])
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == MaxHashtags {
			break
		}
	}
	return out
}

func clampLabel(s string) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > MaxLabelRunes {
		return string(runes[:MaxLabelRunes])
	}
	return s
}
