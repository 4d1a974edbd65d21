package roundup

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discuit-community/alt-text-bot/internal/models"
	"github.com/discuit-community/alt-text-bot/internal/tracker"
)

var reportNow = time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T) (*Generator, *tracker.Store) {
	t.Helper()

	store, err := tracker.Open(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewGenerator(store), store
}

func seed(t *testing.T, store *tracker.Store, prefix, username, community string, base time.Time, n, withAlt int, isBot bool) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", prefix, i)
		require.NoError(t, store.RecordImagePost(ctx, models.ImagePost{
			ID:        id,
			Username:  username,
			Community: community,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
		if i < withAlt {
			require.NoError(t, store.RecordAltTextAttribution(ctx, id, username, base, isBot))
		}
	}
}

func TestWeekly(t *testing.T) {
	gen, store := newTestGenerator(t)
	ctx := context.Background()
	weekAgo := reportNow.Add(-6 * 24 * time.Hour)

	seed(t, store, "a", "alice", "pics", weekAgo, 4, 3, false)
	seed(t, store, "b", "bob", "pics", weekAgo, 2, 1, true)

	report, stats, err := gen.Weekly(ctx, reportNow)
	require.NoError(t, err)

	assert.Contains(t, report, "Alt Text Roundup")
	assert.Contains(t, report, "**6 image posts** from **2 users** across **1 communities**")
	assert.Contains(t, report, "**4 posts (67%)** had alt text (3 added by humans, 1 by altbot)")
	assert.Contains(t, report, "## Top Users")
	assert.Contains(t, report, "| alice | 75% | 3 | 4 |")
	assert.Contains(t, report, "## Top Communities")
	assert.Contains(t, report, "| pics | 67% | 4 | 6 |")
	assert.Contains(t, report, "[what is alt text?]")

	assert.Equal(t, "weekly", stats.Period)
	assert.Equal(t, 6, stats.Totals.TotalImagePosts)

	// The run is snapshotted under the window start; a rerun replaces it.
	snapshot, ok, err := store.GetReportSnapshot(ctx, stats.WindowStart)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stats.Totals, snapshot.Totals)

	_, _, err = gen.Weekly(ctx, reportNow)
	require.NoError(t, err)
}

func TestWeekly_emptyWindow(t *testing.T) {
	gen, _ := newTestGenerator(t)

	report, stats, err := gen.Weekly(context.Background(), reportNow)
	require.NoError(t, err)
	assert.Contains(t, report, "**0 image posts**")
	assert.Contains(t, report, "(0%)")
	assert.Zero(t, stats.Totals.TotalImagePosts)
}

func TestDaily(t *testing.T) {
	gen, store := newTestGenerator(t)
	seed(t, store, "d", "alice", "pics", reportNow.Add(-2*time.Hour), 3, 2, false)

	report, stats, err := gen.Daily(context.Background(), reportNow)
	require.NoError(t, err)

	assert.Contains(t, report, "Daily Roundup")
	assert.Contains(t, report, "**Image posts:** 3")
	assert.Contains(t, report, "**With alt text:** 2 (67%)")
	assert.Contains(t, report, "**Without alt text:** 1")
	assert.Equal(t, "daily", stats.Period)
}

func TestMarkdownTable(t *testing.T) {
	table := markdownTable(
		[]string{"User", "%"},
		[][]string{{"alice", "75%"}, {"bob", "50%"}},
	)
	assert.Equal(t, "| User | % |\n| --- | --- |\n| alice | 75% |\n| bob | 50% |", table)
}
