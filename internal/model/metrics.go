package model

import (
	"fmt"

	"github.com/rivo/uniseg"
)

// MaxContentLength is the platform character limit per post.
const MaxContentLength = 280

// ContentLength counts grapheme clusters, which is what the platform counts
// for emoji and combining sequences.
func ContentLength(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// ValidateContent enforces the 1..280 limit. Violations are rejected, never truncated.
func ValidateContent(s string) error {
	n := ContentLength(s)
	if n == 0 {
		return fmt.Errorf("content is empty")
	}
	if n > MaxContentLength {
		return fmt.Errorf("content too long: %d characters (max %d)", n, MaxContentLength)
	}
	return nil
}

// EngagementRate returns (likes+retweets+replies)/views as a percentage.
// Zero views yields zero, not a division error.
func EngagementRate(views, likes, retweets, replies int) float64 {
	if views <= 0 {
		return 0
	}
	return float64(likes+retweets+replies) / float64(views) * 100
}

// PerformanceScore maps an engagement rate onto a 0-10 scale.
func PerformanceScore(engagementRate float64) float64 {
	score := engagementRate * 2
	if score > 10 {
		score = 10
	}
	return score
}
