// Command report renders a roundup from an existing tracker database without
// posting or emailing anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/discuit-community/alt-text-bot/internal/config"
	"github.com/discuit-community/alt-text-bot/internal/roundup"
	"github.com/discuit-community/alt-text-bot/internal/tracker"
)

func main() {
	var (
		period = flag.String("period", "weekly", "report period: daily or weekly")
		dbPath = flag.String("db", "", "tracker database path (default from DATABASE_PATH)")
		asOf   = flag.String("as-of", "", "generate as of this date (YYYY-MM-DD, default now)")
		output = flag.String("out", "", "write the report to this file instead of stdout")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.DatabasePath
	}

	now := time.Now().UTC()
	if *asOf != "" {
		now, err = time.Parse("2006-01-02", *asOf)
		if err != nil {
			log.Fatalf("Invalid -as-of date: %v", err)
		}
	}

	store, err := tracker.Open(*dbPath)
	if err != nil {
		logrus.Fatalf("Failed to open tracker store: %v", err)
	}
	defer store.Close()

	gen := roundup.NewGenerator(store)
	ctx := context.Background()

	var report string
	switch *period {
	case "daily":
		report, _, err = gen.Daily(ctx, now)
	case "weekly":
		report, _, err = gen.Weekly(ctx, now)
	default:
		log.Fatalf("Unknown period %q (want daily or weekly)", *period)
	}
	if err != nil {
		logrus.Fatalf("Failed to generate report: %v", err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(report), 0o644); err != nil {
			logrus.Fatalf("Failed to write report: %v", err)
		}
		logrus.Infof("Wrote %s report to %s", *period, *output)
		return
	}
	fmt.Println(report)
}
