package models

import (
	"math"
	"time"
)

// ImagePost represents a tracked image post and its accessibility attribution.
type ImagePost struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Community      string     `json:"community"`
	CreatedAt      time.Time  `json:"created_at"`
	HasAltText     bool       `json:"has_alt_text"`
	AltTextBy      string     `json:"alt_text_by,omitempty"` // "bot" or a human username
	AltTextAddedAt *time.Time `json:"alt_text_added_at,omitempty"`
}

// UsageStats holds totals for a single query window.
type UsageStats struct {
	UserCount                 int `json:"user_count"`
	CommunityCount            int `json:"community_count"`
	ImagePostsWithAltByHumans int `json:"image_posts_with_alt_by_humans"`
	ImagePostsWithAltByBot    int `json:"image_posts_with_alt_by_bot"`
	TotalImagePosts           int `json:"total_image_posts"`
}

// PostsWithAlt returns the number of posts with alt text from any source.
func (s UsageStats) PostsWithAlt() int {
	return s.ImagePostsWithAltByHumans + s.ImagePostsWithAltByBot
}

// AltTextPercentage returns the share of posts with alt text, rounded to the
// nearest whole percent. An empty window yields 0, not a division error.
func (s UsageStats) AltTextPercentage() int {
	if s.TotalImagePosts == 0 {
		return 0
	}
	return int(math.Round(float64(s.PostsWithAlt()) / float64(s.TotalImagePosts) * 100))
}

// UserLeaderboardEntry is one row of the top-users leaderboard.
type UserLeaderboardEntry struct {
	Username   string  `json:"username"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
	Total      int     `json:"total"`
}

// CommunityLeaderboardEntry is one row of the top-communities leaderboard.
type CommunityLeaderboardEntry struct {
	Community  string  `json:"community"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
	Total      int     `json:"total"`
}

// UserMomentumEntry is one row of the most-improved-users view. Previous is 0
// when the user had no qualifying activity in the prior window.
type UserMomentumEntry struct {
	Username string  `json:"username"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

// CommunityMomentumEntry is one row of the most-improved-communities view.
type CommunityMomentumEntry struct {
	Community string  `json:"community"`
	Previous  float64 `json:"previous"`
	Current   float64 `json:"current"`
}

// ReportStats is the structured payload persisted alongside a generated
// roundup and handed to delivery channels.
type ReportStats struct {
	GeneratedAt    time.Time                   `json:"generated_at"`
	Period         string                      `json:"period"` // "daily" or "weekly"
	WindowStart    time.Time                   `json:"window_start"`
	WindowEnd      time.Time                   `json:"window_end"`
	Totals         UsageStats                  `json:"totals"`
	TopUsers       []UserLeaderboardEntry      `json:"top_users"`
	TopCommunities []CommunityLeaderboardEntry `json:"top_communities"`
}

// AggregateStats is the all-time dashboard view.
type AggregateStats struct {
	Totals         UsageStats                  `json:"totals"`
	TopUsers       []UserLeaderboardEntry      `json:"top_users"`
	TopCommunities []CommunityLeaderboardEntry `json:"top_communities"`
}
