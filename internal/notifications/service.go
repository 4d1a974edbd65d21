// Package notifications emails generated roundups to the configured
// maintainer address.
package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/discuit-community/alt-text-bot/internal/config"
	"github.com/discuit-community/alt-text-bot/internal/models"
)

// Service sends reports over SMTP. When no notification email is configured
// every send is a logged no-op, so callers never need to special-case it.
type Service struct {
	config *config.Config
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{config: cfg}
}

// SendReport emails the rendered roundup, with the markdown as the plain
// body and a small HTML summary as the alternative part.
func (s *Service) SendReport(report string, stats models.ReportStats) error {
	if s.config.NotificationEmail == "" {
		logrus.Debug("No notification email configured, skipping report delivery")
		return nil
	}

	subject := fmt.Sprintf("Alt Text Roundup - %s (%d posts, %d%% described)",
		strings.Title(stats.Period), stats.Totals.TotalImagePosts, stats.Totals.AltTextPercentage())

	htmlBody, err := buildHTML(stats)
	if err != nil {
		return fmt.Errorf("build report email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", report)
	m.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send report email: %w", err)
	}

	logrus.Infof("Sent %s roundup to %s", stats.Period, s.config.NotificationEmail)
	return nil
}

var htmlTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Alt Text Roundup</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #4a7c59; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        table { border-collapse: collapse; }
        th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Alt Text Roundup</h1>
        <p>{{.Period}} report generated on {{.GeneratedAt.Format "January 2, 2006"}}</p>
    </div>

    <div class="summary">
        <p><strong>Image posts:</strong> {{.Totals.TotalImagePosts}}</p>
        <p><strong>With alt text:</strong> {{.Totals.PostsWithAlt}} ({{.Totals.AltTextPercentage}}%)</p>
        <p><strong>By humans:</strong> {{.Totals.ImagePostsWithAltByHumans}} |
           <strong>By altbot:</strong> {{.Totals.ImagePostsWithAltByBot}}</p>
    </div>

    {{if .TopUsers}}
    <h2>Top Users</h2>
    <table>
        <tr><th>User</th><th>% Described</th><th># Described</th><th>Total</th></tr>
        {{range .TopUsers}}
        <tr><td>{{.Username}}</td><td>{{printf "%.0f" .Percentage}}%</td><td>{{.Count}}</td><td>{{.Total}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{if .TopCommunities}}
    <h2>Top Communities</h2>
    <table>
        <tr><th>Community</th><th>% Described</th><th># Described</th><th>Total</th></tr>
        {{range .TopCommunities}}
        <tr><td>{{.Community}}</td><td>{{printf "%.0f" .Percentage}}%</td><td>{{.Count}}</td><td>{{.Total}}</td></tr>
        {{end}}
    </table>
    {{end}}

    <hr>
    <p><small>This report was generated automatically by alt-text-bot.</small></p>
</body>
</html>
`))

func buildHTML(stats models.ReportStats) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, stats); err != nil {
		return "", err
	}
	return buf.String(), nil
}
