package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/discuit-community/alt-text-bot/internal/models"
)

// allTimeEnd is far enough in the future to cover any stored timestamp; used
// by the all-time aggregate queries.
var allTimeEnd = time.Unix(1<<40, 0)

// GetTotals returns usage totals for posts created in [start, end). An empty
// window yields zero values, never an error.
func (s *Store) GetTotals(ctx context.Context, start, end time.Time) (models.UsageStats, error) {
	var stats models.UsageStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT username),
			COUNT(DISTINCT community),
			COALESCE(SUM(CASE WHEN has_alt_text = 1 AND alt_text_by != ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN has_alt_text = 1 AND alt_text_by = ? THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM image_posts
		WHERE created_at >= ? AND created_at < ?`,
		BotAttribution, BotAttribution, start.UTC().Unix(), end.UTC().Unix(),
	).Scan(
		&stats.UserCount,
		&stats.CommunityCount,
		&stats.ImagePostsWithAltByHumans,
		&stats.ImagePostsWithAltByBot,
		&stats.TotalImagePosts,
	)
	if err != nil {
		return models.UsageStats{}, fmt.Errorf("query totals: %w", err)
	}
	return stats, nil
}

// GetTopUsersByAltTextPercentage ranks users by the share of their posts in
// [start, end) that have alt text. Users with fewer than minSampleSize posts
// in the window are excluded entirely rather than scored at 0%, so a single
// described post cannot dominate the board. Ties on percentage go to the
// higher-volume user. Passing minSampleSize <= 0 applies the default floor.
func (s *Store) GetTopUsersByAltTextPercentage(ctx context.Context, limit int, start, end time.Time, minSampleSize int) ([]models.UserLeaderboardEntry, error) {
	if minSampleSize <= 0 {
		minSampleSize = DefaultUserSampleFloor
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH user_stats AS (
			SELECT
				username,
				COUNT(*) AS total_posts,
				SUM(CASE WHEN has_alt_text = 1 THEN 1 ELSE 0 END) AS alt_text_posts
			FROM image_posts
			WHERE created_at >= ? AND created_at < ?
			GROUP BY username
			HAVING total_posts >= ?
		)
		SELECT
			username,
			CAST(alt_text_posts AS FLOAT) / total_posts * 100 AS percentage,
			alt_text_posts,
			total_posts
		FROM user_stats
		ORDER BY percentage DESC, total_posts DESC
		LIMIT ?`,
		start.UTC().Unix(), end.UTC().Unix(), minSampleSize, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top users: %w", err)
	}
	defer rows.Close()

	var entries []models.UserLeaderboardEntry
	for rows.Next() {
		var e models.UserLeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Percentage, &e.Count, &e.Total); err != nil {
			return nil, fmt.Errorf("scan top user row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top users: %w", err)
	}
	return entries, nil
}

// GetTopCommunitiesByAltTextPercentage is the community-keyed counterpart of
// GetTopUsersByAltTextPercentage, with a higher default sample floor.
func (s *Store) GetTopCommunitiesByAltTextPercentage(ctx context.Context, limit int, start, end time.Time, minSampleSize int) ([]models.CommunityLeaderboardEntry, error) {
	if minSampleSize <= 0 {
		minSampleSize = DefaultCommunitySampleFloor
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH community_stats AS (
			SELECT
				community,
				COUNT(*) AS total_posts,
				SUM(CASE WHEN has_alt_text = 1 THEN 1 ELSE 0 END) AS alt_text_posts
			FROM image_posts
			WHERE created_at >= ? AND created_at < ?
			GROUP BY community
			HAVING total_posts >= ?
		)
		SELECT
			community,
			CAST(alt_text_posts AS FLOAT) / total_posts * 100 AS percentage,
			alt_text_posts,
			total_posts
		FROM community_stats
		ORDER BY percentage DESC, total_posts DESC
		LIMIT ?`,
		start.UTC().Unix(), end.UTC().Unix(), minSampleSize, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top communities: %w", err)
	}
	defer rows.Close()

	var entries []models.CommunityLeaderboardEntry
	for rows.Next() {
		var e models.CommunityLeaderboardEntry
		if err := rows.Scan(&e.Community, &e.Percentage, &e.Count, &e.Total); err != nil {
			return nil, fmt.Errorf("scan top community row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top communities: %w", err)
	}
	return entries, nil
}

// GetMostImprovedUsers compares each user's alt-text percentage in the week
// before now against the week before that. A user must meet the sample floor
// in the current week to be considered; a user absent from the previous week
// improves from a 0% baseline rather than being excluded. Only users whose
// percentage actually rose are returned, largest delta first.
//
// Note this inherently favors newly active users over steadily high
// performers; it matches the published roundup behavior.
func (s *Store) GetMostImprovedUsers(ctx context.Context, limit int, now time.Time) ([]models.UserMomentumEntry, error) {
	oneWeekAgo := now.UTC().Add(-7 * 24 * time.Hour).Unix()
	twoWeeksAgo := now.UTC().Add(-14 * 24 * time.Hour).Unix()

	rows, err := s.db.QueryContext(ctx, `
		WITH previous_week AS (
			SELECT
				username,
				CAST(SUM(CASE WHEN has_alt_text = 1 THEN 1 ELSE 0 END) AS FLOAT) / COUNT(*) * 100 AS percentage
			FROM image_posts
			WHERE created_at >= ? AND created_at < ?
			GROUP BY username
			HAVING COUNT(*) >= ?
		),
		current_week AS (
			SELECT
				username,
				CAST(SUM(CASE WHEN has_alt_text = 1 THEN 1 ELSE 0 END) AS FLOAT) / COUNT(*) * 100 AS percentage
			FROM image_posts
			WHERE created_at >= ? AND created_at < ?
			GROUP BY username
			HAVING COUNT(*) >= ?
		)
		SELECT
			c.username,
			COALESCE(p.percentage, 0) AS previous,
			c.percentage AS current
		FROM current_week c
		LEFT JOIN previous_week p ON c.username = p.username
		WHERE c.percentage > COALESCE(p.percentage, 0)
		ORDER BY (c.percentage - COALESCE(p.percentage, 0)) DESC
		LIMIT ?`,
		twoWeeksAgo, oneWeekAgo, DefaultUserSampleFloor,
		oneWeekAgo, now.UTC().Unix(), DefaultUserSampleFloor,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query most improved users: %w", err)
	}
	defer rows.Close()

	var entries []models.UserMomentumEntry
	for rows.Next() {
		var e models.UserMomentumEntry
		if err := rows.Scan(&e.Username, &e.Previous, &e.Current); err != nil {
			return nil, fmt.Errorf("scan momentum row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate most improved users: %w", err)
	}
	return entries, nil
}

// GetMostImprovedCommunities is the community-keyed counterpart of
// GetMostImprovedUsers.
func (s *Store) GetMostImprovedCommunities(ctx context.Context, limit int, now time.Time) ([]models.CommunityMomentumEntry, error) {
	oneWeekAgo := now.UTC().Add(-7 * 24 * time.Hour).Unix()
	twoWeeksAgo := now.UTC().Add(-14 * 24 * time.Hour).Unix()

	rows, err := s.db.QueryContext(ctx, `
		WITH previous_week AS (
			SELECT
				community,
				CAST(SUM(CASE WHEN has_alt_text = 1 THEN 1 ELSE 0 END) AS FLOAT) / COUNT(*) * 100 AS percentage
			FROM image_posts
			WHERE created_at >= ? AND created_at < ?
			GROUP BY community
			HAVING COUNT(*) >= ?
		),
		current_week AS (
			SELECT
				community,
				CAST(SUM(CASE WHEN has_alt_text = 1 THEN 1 ELSE 0 END) AS FLOAT) / COUNT(*) * 100 AS percentage
			FROM image_posts
			WHERE created_at >= ? AND created_at < ?
			GROUP BY community
			HAVING COUNT(*) >= ?
		)
		SELECT
			c.community,
			COALESCE(p.percentage, 0) AS previous,
			c.percentage AS current
		FROM current_week c
		LEFT JOIN previous_week p ON c.community = p.community
		WHERE c.percentage > COALESCE(p.percentage, 0)
		ORDER BY (c.percentage - COALESCE(p.percentage, 0)) DESC
		LIMIT ?`,
		twoWeeksAgo, oneWeekAgo, DefaultCommunitySampleFloor,
		oneWeekAgo, now.UTC().Unix(), DefaultCommunitySampleFloor,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query most improved communities: %w", err)
	}
	defer rows.Close()

	var entries []models.CommunityMomentumEntry
	for rows.Next() {
		var e models.CommunityMomentumEntry
		if err := rows.Scan(&e.Community, &e.Previous, &e.Current); err != nil {
			return nil, fmt.Errorf("scan momentum row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate most improved communities: %w", err)
	}
	return entries, nil
}

// GetAllPosts retrieves tracked posts ordered by creation time descending,
// paginated by limit and offset.
func (s *Store) GetAllPosts(ctx context.Context, limit, offset int) ([]models.ImagePost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, community, created_at, has_alt_text, alt_text_by, alt_text_added_at
		FROM image_posts
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostsByUser retrieves a user's tracked posts, newest first.
func (s *Store) GetPostsByUser(ctx context.Context, username string, limit int) ([]models.ImagePost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, community, created_at, has_alt_text, alt_text_by, alt_text_added_at
		FROM image_posts
		WHERE username = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		username, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts for user %s: %w", username, err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostsByCommunity retrieves a community's tracked posts, newest first.
func (s *Store) GetPostsByCommunity(ctx context.Context, community string, limit int) ([]models.ImagePost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, community, created_at, has_alt_text, alt_text_by, alt_text_added_at
		FROM image_posts
		WHERE community = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		community, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts for community %s: %w", community, err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetAggregateStats returns all-time totals plus top-10 leaderboards for
// dashboard consumption.
func (s *Store) GetAggregateStats(ctx context.Context) (models.AggregateStats, error) {
	start := time.Unix(0, 0)

	totals, err := s.GetTotals(ctx, start, allTimeEnd)
	if err != nil {
		return models.AggregateStats{}, err
	}

	topUsers, err := s.GetTopUsersByAltTextPercentage(ctx, 10, start, allTimeEnd, DefaultUserSampleFloor)
	if err != nil {
		return models.AggregateStats{}, err
	}

	topCommunities, err := s.GetTopCommunitiesByAltTextPercentage(ctx, 10, start, allTimeEnd, DefaultCommunitySampleFloor)
	if err != nil {
		return models.AggregateStats{}, err
	}

	return models.AggregateStats{
		Totals:         totals,
		TopUsers:       topUsers,
		TopCommunities: topCommunities,
	}, nil
}

func scanPosts(rows *sql.Rows) ([]models.ImagePost, error) {
	var posts []models.ImagePost
	for rows.Next() {
		var (
			p         models.ImagePost
			createdAt int64
			hasAlt    int
			altBy     sql.NullString
			altAt     sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Username, &p.Community, &createdAt, &hasAlt, &altBy, &altAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		p.HasAltText = hasAlt == 1
		if altBy.Valid {
			p.AltTextBy = altBy.String
		}
		if altAt.Valid {
			t := time.Unix(altAt.Int64, 0).UTC()
			p.AltTextAddedAt = &t
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
