package notifications

import "github.com/discuit-community/alt-text-bot/internal/models"

// Notifier delivers a rendered roundup to the maintainer channels.
type Notifier interface {
	SendReport(report string, stats models.ReportStats) error
}
