package model

import "fmt"

// PatternType classifies the attention-grabbing opening of a post.
type PatternType string

const (
	PatternShock         PatternType = "shock"
	PatternValueGiveaway PatternType = "value_giveaway"
	PatternAuthority     PatternType = "authority"
	PatternContrarian    PatternType = "contrarian"
	PatternInsider       PatternType = "insider"
	PatternResults       PatternType = "results"
	PatternTimeSensitive PatternType = "time_sensitive"
	PatternList          PatternType = "list"
	PatternQuestion      PatternType = "question"
	PatternStory         PatternType = "story"
	PatternCustom        PatternType = "custom"
)

// AllPatternTypes returns the closed set of pattern types.
func AllPatternTypes() []PatternType {
	return []PatternType{
		PatternShock, PatternValueGiveaway, PatternAuthority, PatternContrarian,
		PatternInsider, PatternResults, PatternTimeSensitive, PatternList,
		PatternQuestion, PatternStory, PatternCustom,
	}
}

// ParsePatternType validates s against the closed enumeration.
func ParsePatternType(s string) (PatternType, error) {
	for _, pt := range AllPatternTypes() {
		if string(pt) == s {
			return pt, nil
		}
	}
	return "", fmt.Errorf("unknown pattern type %q", s)
}
