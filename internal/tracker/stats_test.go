package tracker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statsNow = time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)

// seedPosts inserts n posts for username in community, created at base, and
// attributes the first withAlt of them to attributedTo.
func seedPosts(t *testing.T, store *Store, prefix, username, community string, base time.Time, n, withAlt int, attributedTo string, isBot bool) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", prefix, i)
		require.NoError(t, store.RecordImagePost(ctx, post(id, username, community, base.Add(time.Duration(i)*time.Minute))))
		if i < withAlt {
			require.NoError(t, store.RecordAltTextAttribution(ctx, id, attributedTo, base.Add(time.Duration(i)*time.Minute), isBot))
		}
	}
}

func TestGetTotals_window(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := statsNow.Add(-7 * 24 * time.Hour)

	// P1..P5 in community "c" by "u": three human-described, one
	// bot-described, one bare.
	for i := 1; i <= 5; i++ {
		require.NoError(t, store.RecordImagePost(ctx, post(fmt.Sprintf("P%d", i), "u", "c", start.Add(time.Duration(i)*time.Hour))))
	}
	for i := 1; i <= 3; i++ {
		require.NoError(t, store.RecordAltTextAttribution(ctx, fmt.Sprintf("P%d", i), "u", statsNow, false))
	}
	require.NoError(t, store.RecordAltTextAttribution(ctx, "P4", "", statsNow, true))

	// A post outside the window must not count.
	require.NoError(t, store.RecordImagePost(ctx, post("old", "u", "c", start.Add(-time.Hour))))

	totals, err := store.GetTotals(ctx, start, statsNow)
	require.NoError(t, err)
	assert.Equal(t, 5, totals.TotalImagePosts)
	assert.Equal(t, 3, totals.ImagePostsWithAltByHumans)
	assert.Equal(t, 1, totals.ImagePostsWithAltByBot)
	assert.Equal(t, 1, totals.UserCount)
	assert.Equal(t, 1, totals.CommunityCount)
	assert.Equal(t, 80, totals.AltTextPercentage())
}

func TestGetTotals_emptyWindow(t *testing.T) {
	store := newTestStore(t)

	totals, err := store.GetTotals(context.Background(), statsNow.Add(-time.Hour), statsNow)
	require.NoError(t, err)
	assert.Zero(t, totals.TotalImagePosts)
	assert.Zero(t, totals.UserCount)
	assert.Equal(t, 0, totals.AltTextPercentage())
}

func TestGetTopUsersByAltTextPercentage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := statsNow.Add(-7 * 24 * time.Hour)

	// a: 4 posts, 3 described. b: 2 posts, 2 described (below the floor of 3).
	seedPosts(t, store, "a", "a", "pics", start, 4, 3, "a", false)
	seedPosts(t, store, "b", "b", "pics", start, 2, 2, "b", false)

	entries, err := store.GetTopUsersByAltTextPercentage(ctx, 10, start, statsNow, 3)
	require.NoError(t, err)
	require.Len(t, entries, 1, "users below the sample floor are excluded, not scored at 0%%")
	assert.Equal(t, "a", entries[0].Username)
	assert.InDelta(t, 75.0, entries[0].Percentage, 0.001)
	assert.Equal(t, 3, entries[0].Count)
	assert.Equal(t, 4, entries[0].Total)
}

func TestGetTopUsersByAltTextPercentage_tieBreakByVolume(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := statsNow.Add(-7 * 24 * time.Hour)

	// Both at 100%, but "big" has more posts and must rank first.
	seedPosts(t, store, "big", "big", "pics", start, 6, 6, "big", false)
	seedPosts(t, store, "small", "small", "pics", start, 3, 3, "small", false)

	entries, err := store.GetTopUsersByAltTextPercentage(ctx, 10, start, statsNow, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "big", entries[0].Username)
	assert.Equal(t, "small", entries[1].Username)
}

func TestGetTopCommunitiesByAltTextPercentage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := statsNow.Add(-7 * 24 * time.Hour)

	seedPosts(t, store, "c1", "u1", "art", start, 6, 3, "u1", false)
	// "tiny" has fewer than the default floor of 5 posts.
	seedPosts(t, store, "c2", "u2", "tiny", start, 4, 4, "u2", false)

	entries, err := store.GetTopCommunitiesByAltTextPercentage(ctx, 10, start, statsNow, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "art", entries[0].Community)
	assert.InDelta(t, 50.0, entries[0].Percentage, 0.001)
	assert.Equal(t, 3, entries[0].Count)
	assert.Equal(t, 6, entries[0].Total)
}

func TestGetMostImprovedUsers_defaultsPreviousToZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	currentWeek := statsNow.Add(-6 * 24 * time.Hour)

	// No activity in the previous week; 80% in the current week.
	seedPosts(t, store, "new", "newcomer", "pics", currentWeek, 5, 4, "newcomer", false)

	entries, err := store.GetMostImprovedUsers(ctx, 5, statsNow)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "newcomer", entries[0].Username)
	assert.Equal(t, 0.0, entries[0].Previous)
	assert.InDelta(t, 80.0, entries[0].Current, 0.001)
}

func TestGetMostImprovedUsers_requiresImprovement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	previousWeek := statsNow.Add(-13 * 24 * time.Hour)
	currentWeek := statsNow.Add(-6 * 24 * time.Hour)

	// steady: 100% both weeks. improver: 25% then 75%. decliner: 100% then 0%.
	seedPosts(t, store, "s-prev", "steady", "pics", previousWeek, 4, 4, "steady", false)
	seedPosts(t, store, "s-cur", "steady", "pics", currentWeek, 4, 4, "steady", false)
	seedPosts(t, store, "i-prev", "improver", "pics", previousWeek, 4, 1, "improver", false)
	seedPosts(t, store, "i-cur", "improver", "pics", currentWeek, 4, 3, "improver", false)
	seedPosts(t, store, "d-prev", "decliner", "pics", previousWeek, 4, 4, "decliner", false)
	seedPosts(t, store, "d-cur", "decliner", "pics", currentWeek, 4, 0, "decliner", false)

	entries, err := store.GetMostImprovedUsers(ctx, 5, statsNow)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "improver", entries[0].Username)
	assert.InDelta(t, 25.0, entries[0].Previous, 0.001)
	assert.InDelta(t, 75.0, entries[0].Current, 0.001)
}

func TestGetMostImprovedCommunities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	previousWeek := statsNow.Add(-13 * 24 * time.Hour)
	currentWeek := statsNow.Add(-6 * 24 * time.Hour)

	seedPosts(t, store, "p", "u1", "art", previousWeek, 5, 1, "u1", false)
	seedPosts(t, store, "c", "u1", "art", currentWeek, 5, 4, "u1", false)

	entries, err := store.GetMostImprovedCommunities(ctx, 5, statsNow)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "art", entries[0].Community)
	assert.InDelta(t, 20.0, entries[0].Previous, 0.001)
	assert.InDelta(t, 80.0, entries[0].Current, 0.001)
}

func TestReadOnlyQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := statsNow.Add(-24 * time.Hour)

	seedPosts(t, store, "a", "alice", "art", base, 3, 1, "alice", false)
	seedPosts(t, store, "b", "bob", "pics", base.Add(time.Hour), 2, 0, "", false)

	all, err := store.GetAllPosts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "posts ordered newest first")
	}

	page, err := store.GetAllPosts(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	byUser, err := store.GetPostsByUser(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, byUser, 3)

	byCommunity, err := store.GetPostsByCommunity(ctx, "pics", 10)
	require.NoError(t, err)
	assert.Len(t, byCommunity, 2)
}

func TestGetAggregateStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Spread activity over a year; aggregate stats are unwindowed.
	seedPosts(t, store, "old", "alice", "art", statsNow.Add(-300*24*time.Hour), 4, 4, "alice", false)
	seedPosts(t, store, "new", "bob", "pics", statsNow.Add(-time.Hour), 6, 3, "", true)

	stats, err := store.GetAggregateStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Totals.TotalImagePosts)
	assert.Equal(t, 4, stats.Totals.ImagePostsWithAltByHumans)
	assert.Equal(t, 3, stats.Totals.ImagePostsWithAltByBot)
	assert.Equal(t, 2, stats.Totals.UserCount)

	require.Len(t, stats.TopUsers, 2)
	assert.Equal(t, "alice", stats.TopUsers[0].Username)

	require.Len(t, stats.TopCommunities, 1, "art is below the community floor of 5")
	assert.Equal(t, "pics", stats.TopCommunities[0].Community)
}
