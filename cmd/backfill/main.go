// Command backfill walks the Discuit feed backwards and loads historical
// image posts into the tracker, crediting alt text already present in the
// comments. Useful when the bot starts tracking an established community.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/discuit-community/alt-text-bot/internal/config"
	"github.com/discuit-community/alt-text-bot/internal/discuit"
	"github.com/discuit-community/alt-text-bot/internal/models"
	"github.com/discuit-community/alt-text-bot/internal/roundup"
	"github.com/discuit-community/alt-text-bot/internal/tracker"
	"github.com/discuit-community/alt-text-bot/internal/watcher"
)

const pageSize = 50

func main() {
	var (
		since    = flag.String("since", "", "oldest post date to ingest (YYYY-MM-DD, default 7 days ago)")
		maxPosts = flag.Int("max", 1000, "maximum number of posts to scan")
		dbPath   = flag.String("db", "", "tracker database path (default from DATABASE_PATH)")
		output   = flag.String("report", "", "write a weekly roundup to this file after ingesting")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logrus.SetFormatter(&logrus.TextFormatter{})

	start := time.Now().UTC().Add(-7 * 24 * time.Hour)
	if *since != "" {
		start, err = time.Parse("2006-01-02", *since)
		if err != nil {
			log.Fatalf("Invalid -since date: %v", err)
		}
	}
	if *dbPath == "" {
		*dbPath = cfg.DatabasePath
	}

	store, err := tracker.Open(*dbPath)
	if err != nil {
		logrus.Fatalf("Failed to open tracker store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	client := discuit.NewClient(cfg.DiscuitBaseURL)

	ingested, err := backfill(ctx, client, store, cfg.DiscuitUsername, start, *maxPosts)
	if err != nil {
		logrus.Fatalf("Backfill failed: %v", err)
	}
	logrus.Infof("Backfill complete: %d image posts ingested since %s", ingested, start.Format("2006-01-02"))

	if *output != "" {
		report, _, err := roundup.NewGenerator(store).Weekly(ctx, time.Now().UTC())
		if err != nil {
			logrus.Fatalf("Failed to generate roundup: %v", err)
		}
		if err := os.WriteFile(*output, []byte(report), 0o644); err != nil {
			logrus.Fatalf("Failed to write roundup: %v", err)
		}
		logrus.Infof("Wrote roundup to %s", *output)
	}
}

// backfill pages through the feed until it reaches posts older than start,
// runs out of pages, or hits maxPosts.
func backfill(ctx context.Context, client discuit.API, store *tracker.Store, botUser string, start time.Time, maxPosts int) (int, error) {
	ingested := 0
	cursor := ""
	scanned := 0

	for scanned < maxPosts {
		list, err := client.GetLatestPosts(ctx, pageSize, cursor)
		if err != nil {
			return ingested, err
		}
		if len(list.Posts) == 0 {
			break
		}

		for _, post := range list.Posts {
			scanned++
			if post.CreatedAt.Before(start) {
				return ingested, nil
			}
			if !post.IsImagePost() {
				continue
			}

			if err := store.RecordImagePost(ctx, models.ImagePost{
				ID:        post.PublicID,
				Username:  post.Username,
				Community: post.CommunityName,
				CreatedAt: post.CreatedAt,
			}); err != nil {
				return ingested, err
			}
			ingested++

			comments, err := client.GetComments(ctx, post.PublicID)
			if err != nil {
				logrus.Warnf("Skipping comments for %s: %v", post.PublicID, err)
				continue
			}
			if alt := watcher.FindAltComment(comments); alt != nil {
				isBot := alt.Username == botUser
				if err := store.RecordAltTextAttribution(ctx, post.PublicID, alt.Username, alt.CreatedAt, isBot); err != nil {
					return ingested, err
				}
			}
		}

		if list.Next == "" {
			break
		}
		cursor = list.Next
	}

	return ingested, nil
}
