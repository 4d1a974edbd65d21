// Package roundup renders the periodic accessibility reports from tracker
// queries.
package roundup

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/discuit-community/alt-text-bot/internal/models"
	"github.com/discuit-community/alt-text-bot/internal/tracker"
)

const (
	altTextResourceURL = "https://www.perkins.org/resource/how-write-alt-text-and-image-descriptions-visually-impaired/"
	consentURL         = "https://github.com/discuit-community/alt-text-bot/blob/main/CONSENT.md"
	roundupListURL     = "https://discuit.org/@alttextbot/lists/roundup"

	leaderboardSize = 7
	momentumSize    = 5
)

// Generator builds roundup reports from the tracker.
type Generator struct {
	store *tracker.Store
}

// NewGenerator creates a report generator backed by store.
func NewGenerator(store *tracker.Store) *Generator {
	return &Generator{store: store}
}

// Weekly generates the weekly roundup for the seven days ending at now. The
// rendered markdown is returned along with the structured stats, which are
// also persisted as the snapshot for this window (replacing any earlier run
// for the same window).
func (g *Generator) Weekly(ctx context.Context, now time.Time) (string, models.ReportStats, error) {
	end := now.UTC()
	start := end.Add(-7 * 24 * time.Hour)

	totals, err := g.store.GetTotals(ctx, start, end)
	if err != nil {
		return "", models.ReportStats{}, err
	}
	topUsers, err := g.store.GetTopUsersByAltTextPercentage(ctx, leaderboardSize, start, end, tracker.DefaultUserSampleFloor)
	if err != nil {
		return "", models.ReportStats{}, err
	}
	topCommunities, err := g.store.GetTopCommunitiesByAltTextPercentage(ctx, leaderboardSize, start, end, tracker.DefaultCommunitySampleFloor)
	if err != nil {
		return "", models.ReportStats{}, err
	}
	improvedUsers, err := g.store.GetMostImprovedUsers(ctx, momentumSize, end)
	if err != nil {
		return "", models.ReportStats{}, err
	}
	improvedCommunities, err := g.store.GetMostImprovedCommunities(ctx, momentumSize, end)
	if err != nil {
		return "", models.ReportStats{}, err
	}

	stats := models.ReportStats{
		GeneratedAt:    end,
		Period:         "weekly",
		WindowStart:    start,
		WindowEnd:      end,
		Totals:         totals,
		TopUsers:       topUsers,
		TopCommunities: topCommunities,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Alt Text Roundup — %s\n\n---\n\n", dateRange(start, end))

	b.WriteString("**This week's snapshot:**\n\n")
	fmt.Fprintf(&b, "📸 **%d image posts** from **%d users** across **%d communities**\n\n",
		totals.TotalImagePosts, totals.UserCount, totals.CommunityCount)
	fmt.Fprintf(&b, "✨ **%d posts (%d%%)** had alt text (%d added by humans, %d by altbot)\n\n",
		totals.PostsWithAlt(), totals.AltTextPercentage(),
		totals.ImagePostsWithAltByHumans, totals.ImagePostsWithAltByBot)

	b.WriteString("## Top Users\n")
	b.WriteString(userTable(topUsers))
	b.WriteString("\n\n## Top Communities\n")
	b.WriteString(communityTable(topCommunities))
	b.WriteString("\n")

	if len(improvedUsers) > 0 || len(improvedCommunities) > 0 {
		b.WriteString("\n## Most Improved\n")
		for _, e := range improvedUsers {
			fmt.Fprintf(&b, "- @%s: %d%% → %d%%\n", e.Username, roundPct(e.Previous), roundPct(e.Current))
		}
		for _, e := range improvedCommunities {
			fmt.Fprintf(&b, "- +%s: %d%% → %d%%\n", e.Community, roundPct(e.Previous), roundPct(e.Current))
		}
	}

	b.WriteString("\n" + linksSection())

	if err := g.store.SaveReportSnapshot(ctx, start, stats); err != nil {
		return "", models.ReportStats{}, err
	}

	logrus.Infof("Generated weekly roundup for %s (%d posts)", dateRange(start, end), totals.TotalImagePosts)
	return b.String(), stats, nil
}

// Daily generates the lighter daily report for the day ending at now. Daily
// reports are not snapshotted.
func (g *Generator) Daily(ctx context.Context, now time.Time) (string, models.ReportStats, error) {
	end := now.UTC()
	start := end.Add(-24 * time.Hour)

	totals, err := g.store.GetTotals(ctx, start, end)
	if err != nil {
		return "", models.ReportStats{}, err
	}

	stats := models.ReportStats{
		GeneratedAt: end,
		Period:      "daily",
		WindowStart: start,
		WindowEnd:   end,
		Totals:      totals,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Daily Roundup — %s\n\n", dateRange(start, end))
	fmt.Fprintf(&b, "**Image posts:** %d\n\n", totals.TotalImagePosts)
	fmt.Fprintf(&b, "**With alt text:** %d (%d%%)\n\n", totals.PostsWithAlt(), totals.AltTextPercentage())
	fmt.Fprintf(&b, "- By humans: %d\n", totals.ImagePostsWithAltByHumans)
	fmt.Fprintf(&b, "- By alttextbot: %d\n\n", totals.ImagePostsWithAltByBot)
	fmt.Fprintf(&b, "**Without alt text:** %d\n\n", totals.TotalImagePosts-totals.PostsWithAlt())
	b.WriteString(linksSection())

	return b.String(), stats, nil
}

func userTable(entries []models.UserLeaderboardEntry) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			e.Username,
			fmt.Sprintf("%d%%", roundPct(e.Percentage)),
			fmt.Sprintf("%d", e.Count),
			fmt.Sprintf("%d", e.Total),
		}
	}
	return markdownTable([]string{"User", "% Described", "# Described", "Total Posts"}, rows)
}

func communityTable(entries []models.CommunityLeaderboardEntry) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			e.Community,
			fmt.Sprintf("%d%%", roundPct(e.Percentage)),
			fmt.Sprintf("%d", e.Count),
			fmt.Sprintf("%d", e.Total),
		}
	}
	return markdownTable([]string{"Community", "% Described", "# Described", "Total Posts"}, rows)
}

func markdownTable(headers []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")

	separators := make([]string, len(headers))
	for i := range separators {
		separators[i] = "---"
	}
	b.WriteString("| " + strings.Join(separators, " | ") + " |\n")

	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func linksSection() string {
	links := []struct{ name, url string }{
		{"what is alt text?", altTextResourceURL},
		{"opt-in to alttextbot", consentURL},
		{"all weekly roundups", roundupListURL},
	}

	names := make([]string, len(links))
	refs := make([]string, len(links))
	for i, link := range links {
		names[i] = fmt.Sprintf("[%s]", link.name)
		refs[i] = fmt.Sprintf("[%s]: %s", link.name, link.url)
	}
	return strings.Join(names, " | ") + "\n\n" + strings.Join(refs, "\n") + "\n"
}

func dateRange(start, end time.Time) string {
	return fmt.Sprintf("%s – %s", start.Format("Jan 2"), end.Format("Jan 2"))
}

func roundPct(v float64) int {
	return int(math.Round(v))
}
