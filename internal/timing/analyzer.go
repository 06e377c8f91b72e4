// Package timing ranks candidate publishing slots from a user's measured
// posting history, corroborated by external signals when available.
package timing

import (
	"math"
	"sort"
	"time"

	"github.com/postpulse/engage/internal/domain"
)

// MaxHistoryPosts caps the history window the analyzer consumes.
const MaxHistoryPosts = 100

// Bucket aggregates measured engagement for one (hour, day-of-week) slot.
type Bucket struct {
	Hour           int
	DayOfWeek      int
	MeanEngagement float64
	Samples        int
}

// Analyzer groups historical posts into hour/day buckets and ranks them
// by empirical engagement.
type Analyzer struct{}

// NewAnalyzer creates a timing analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Rank buckets posts by (hour, dayOfWeek) and orders buckets by mean
// engagement descending, tie-broken by sample count descending (more
// evidence wins), then by earliest next occurrence after now. Posts
// without a measured engagement are skipped; an empty history yields an
// empty ranking, never an error.
func (a *Analyzer) Rank(posts []domain.HistoricalPost, now time.Time) []Bucket {
	if len(posts) > MaxHistoryPosts {
		posts = posts[:MaxHistoryPosts]
	}

	type acc struct {
		sum   int
		count int
	}
	byBucket := make(map[[2]int]*acc)
	for _, p := range posts {
		if p.Engagement == nil {
			continue
		}
		key := [2]int{p.PostedAt.Hour(), int(p.PostedAt.Weekday())}
		if byBucket[key] == nil {
			byBucket[key] = &acc{}
		}
		byBucket[key].sum += *p.Engagement
		byBucket[key].count++
	}

	buckets := make([]Bucket, 0, len(byBucket))
	for key, v := range byBucket {
		buckets = append(buckets, Bucket{
			Hour:           key[0],
			DayOfWeek:      key[1],
			MeanEngagement: float64(v.sum) / float64(v.count),
			Samples:        v.count,
		})
	}

	sort.Slice(buckets, func(i, j int) bool {
		bi, bj := buckets[i], buckets[j]
		if !floatEq(bi.MeanEngagement, bj.MeanEngagement) {
			return bi.MeanEngagement > bj.MeanEngagement
		}
		if bi.Samples != bj.Samples {
			return bi.Samples > bj.Samples
		}
		return domain.NextOccurrence(now, bi.Hour, bi.DayOfWeek).
			Before(domain.NextOccurrence(now, bj.Hour, bj.DayOfWeek))
	})

	return buckets
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
