// Package rules implements the deterministic rule-based engagement scorer.
// Identical features always yield identical factors and aggregate, and
// every score is bounded to [0,100]. Both properties are load-bearing:
// the hybrid predictor uses the rule aggregate as its floor and falls back
// to it whenever the AI estimate is unavailable.
package rules

import (
	"math"
	"strings"
	"unicode"

	"github.com/postpulse/engage/internal/domain"
)

// Fixed weights for the linear combination of factors. They sum to 1.0 so
// the aggregate stays inside [0,100] whenever the factors do.
const (
	weightText    = 0.35
	weightTiming  = 0.25
	weightHashtag = 0.20
	weightFormat  = 0.20
)

// hourScores reflects typical audience presence per posting hour.
var hourScores = [24]int{
	30, 28, 25, 25, 28, 32, // 00-05 overnight trough
	55, 65, 80, 85, 82, 78, // 06-11 morning ramp and peak
	80, 78, 70, 68, 72, 86, // 12-17 lunch plateau into commute
	88, 84, 76, 72, 60, 42, // 18-23 evening peak and decay
}

// dayScores reflects weekday engagement skew, Sunday = 0.
var dayScores = [7]int{58, 70, 80, 82, 78, 72, 60}

var formatScores = map[string]int{
	"video":    85,
	"headline": 82,
	"question": 80,
	"image":    78,
	"thread":   75,
	"story":    72,
	"text":     65,
	"link":     60,
}

// Scorer computes the four engagement factors and their fixed-weight
// aggregate. It holds no state; methods are pure functions.
type Scorer struct{}

// NewScorer creates a rule-based scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes all four factors from disjoint subsets of the input.
func (s *Scorer) Score(f domain.EngagementFeatures) domain.Factors {
	return domain.Factors{
		TextQuality:  s.textQuality(f.Text),
		TimingScore:  s.timingScore(f.Hour, f.DayOfWeek),
		HashtagScore: s.hashtagScore(f.Hashtags, f.Text, f.Trend),
		FormatScore:  s.formatScore(f.Format),
	}
}

// Aggregate combines the four factors with fixed weights, bounded to [0,100].
func (s *Scorer) Aggregate(fc domain.Factors) int {
	v := weightText*float64(fc.TextQuality) +
		weightTiming*float64(fc.TimingScore) +
		weightHashtag*float64(fc.HashtagScore) +
		weightFormat*float64(fc.FormatScore)
	return domain.ClampScore(int(math.Round(v)))
}

// textQuality scores the content text on length, variety, and hooks.
func (s *Scorer) textQuality(text string) int {
	runes := []rune(text)
	if len(runes) == 0 {
		return 5
	}

	score := 40

	// Length band: mid-length posts carry the most signal.
	switch n := len(runes); {
	case n >= 70 && n <= 200:
		score += 30
	case n >= 30:
		score += 15
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) > 0 {
		unique := make(map[string]bool, len(words))
		for _, w := range words {
			unique[w] = true
		}
		if float64(len(unique))/float64(len(words)) >= 0.7 {
			score += 10
		}
	}

	if strings.ContainsRune(text, '?') {
		score += 8
	}
	if strings.ContainsAny(text, "0123456789") {
		score += 5
	}
	if shoutingRatio(runes) > 0.5 {
		score -= 15
	}

	return domain.ClampScore(score)
}

// timingScore weights hour presence over day skew 60/40.
func (s *Scorer) timingScore(hour, day int) int {
	if hour < 0 || hour > 23 {
		hour = 0
	}
	if day < 0 || day > 6 {
		day = 0
	}
	v := 0.6*float64(hourScores[hour]) + 0.4*float64(dayScores[day])
	return domain.ClampScore(int(math.Round(v)))
}

// hashtagScore scores count sweet spot plus a relevance bonus for tags
// echoed in the text or matching the trend label.
func (s *Scorer) hashtagScore(tags []string, text, trend string) int {
	var score int
	switch n := len(tags); {
	case n == 0:
		score = 40
	case n == 1:
		score = 70
	case n == 2:
		score = 90
	case n == 3:
		score = 85
	case n == 4:
		score = 70
	default:
		score = 60 - 5*(n-5)
		if score < 20 {
			score = 20
		}
	}

	lower := strings.ToLower(text)
	trendLower := strings.ToLower(trend)
	bonus := 0
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimPrefix(tag, "#"))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) || (trendLower != "" && strings.Contains(trendLower, t)) {
			bonus += 5
		}
	}
	if bonus > 15 {
		bonus = 15
	}

	return domain.ClampScore(score + bonus)
}

func (s *Scorer) formatScore(format string) int {
	if v, ok := formatScores[strings.ToLower(format)]; ok {
		return v
	}
	return formatScores["text"]
}

// shoutingRatio is the share of letters that are upper case.
func shoutingRatio(runes []rune) float64 {
	var letters, upper int
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
