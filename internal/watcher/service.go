// Package watcher runs the discovery loop: it polls Discuit for new image
// posts, records them in the tracker, gives humans a grace period to supply
// alt text, and generates descriptions for opted-in authors.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/discuit-community/alt-text-bot/internal/config"
	"github.com/discuit-community/alt-text-bot/internal/discuit"
	"github.com/discuit-community/alt-text-bot/internal/llm"
	"github.com/discuit-community/alt-text-bot/internal/models"
	"github.com/discuit-community/alt-text-bot/internal/tracker"
)

// altTextPattern matches comments that already supply a description, whether
// from a human or the bot itself.
var altTextPattern = regexp.MustCompile(`(?i)alt.?text|description|image description`)

const (
	pollPageSize = 50
	seenCapacity = 8192

	fallbackDescription = "unable to generate image description."
	altTextResourceURL  = "https://www.perkins.org/resource/how-write-alt-text-and-image-descriptions-visually-impaired/"
	consentURL          = "https://github.com/discuit-community/alt-text-bot/blob/main/CONSENT.md"
)

// Service polls for new posts and feeds observations into the tracker.
type Service struct {
	cfg       *config.Config
	store     *tracker.Store
	client    discuit.API
	captioner llm.Captioner
	botUser   string

	mu      sync.RWMutex
	metrics Metrics
	seen    map[string]bool
}

// Metrics holds watch-loop counters, exposed on the metrics endpoint.
type Metrics struct {
	PostsObserved    int            `json:"posts_observed"`
	PostsDescribed   int            `json:"posts_described"`
	HumanDescribed   int            `json:"human_described"`
	SkippedNoConsent int            `json:"skipped_no_consent"`
	ErrorCount       int            `json:"error_count"`
	LastPoll         time.Time      `json:"last_poll"`
	CommunityCounts  map[string]int `json:"community_counts"`
}

// NewService creates a watcher. botUser is the bot's own account name, used
// to recognize its replies and mentions.
func NewService(cfg *config.Config, store *tracker.Store, client discuit.API, captioner llm.Captioner, botUser string) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		client:    client,
		captioner: captioner,
		botUser:   botUser,
		metrics:   Metrics{CommunityCounts: make(map[string]int)},
		seen:      make(map[string]bool),
	}
}

// Run polls until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	logrus.Infof("Watcher started (poll interval %s, alt text delay %s)", s.cfg.PollInterval, s.cfg.AltTextDelay)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				logrus.Errorf("Poll failed: %v", err)
				s.recordError()
			}
		}
	}
}

// Poll fetches the latest posts and processes unseen image posts, one
// goroutine per post.
func (s *Service) Poll(ctx context.Context) error {
	list, err := s.client.GetLatestPosts(ctx, pollPageSize, "")
	if err != nil {
		return fmt.Errorf("fetch latest posts: %w", err)
	}

	s.mu.Lock()
	s.metrics.LastPoll = time.Now().UTC()
	var fresh []discuit.Post
	for _, post := range list.Posts {
		if !post.IsImagePost() || s.seen[post.PublicID] {
			continue
		}
		s.seen[post.PublicID] = true
		fresh = append(fresh, post)
	}
	if len(s.seen) > seenCapacity {
		s.seen = make(map[string]bool, len(list.Posts))
		for _, post := range list.Posts {
			s.seen[post.PublicID] = true
		}
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	logrus.Infof("Processing %d new image posts", len(fresh))

	var wg sync.WaitGroup
	for _, post := range fresh {
		wg.Add(1)
		go func(p discuit.Post) {
			defer wg.Done()
			if err := s.ProcessImagePost(ctx, p); err != nil && ctx.Err() == nil {
				logrus.Errorf("Failed to process post %s: %v", p.PublicID, err)
				s.recordError()
			}
		}(post)
	}
	wg.Wait()

	return nil
}

// ProcessImagePost records the post, waits out the grace period, then either
// credits an existing human description or generates one for opted-in
// authors.
func (s *Service) ProcessImagePost(ctx context.Context, post discuit.Post) error {
	logrus.WithFields(logrus.Fields{
		"post":      post.PublicID,
		"username":  post.Username,
		"community": post.CommunityName,
	}).Info("New image post")

	if err := s.store.RecordImagePost(ctx, models.ImagePost{
		ID:        post.PublicID,
		Username:  post.Username,
		Community: post.CommunityName,
		CreatedAt: post.CreatedAt,
	}); err != nil {
		return err
	}
	s.countObserved(post.CommunityName)

	// Give humans a head start before generating anything.
	if s.cfg.AltTextDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.AltTextDelay):
		}
	}

	comments, err := s.client.GetComments(ctx, post.PublicID)
	if err != nil {
		return fmt.Errorf("fetch comments: %w", err)
	}

	if alt := FindAltComment(comments); alt != nil {
		isBot := alt.Username == s.botUser
		if err := s.store.RecordAltTextAttribution(ctx, post.PublicID, alt.Username, alt.CreatedAt, isBot); err != nil {
			return err
		}
		if !isBot {
			logrus.Infof("Post %s already described by @%s", post.PublicID, alt.Username)
			s.countHumanDescribed()
		}
		return nil
	}

	mention := findMention(comments, s.botUser)
	return s.describePost(ctx, post, mention)
}

func (s *Service) describePost(ctx context.Context, post discuit.Post, mention *discuit.Comment) error {
	userAbout := ""
	if post.Author != nil {
		userAbout = post.Author.AboutMe
	}

	community, err := s.client.GetCommunity(ctx, post.CommunityName)
	if err != nil {
		return fmt.Errorf("fetch community: %w", err)
	}

	consent := CheckConsent(userAbout, community.About)
	logrus.WithFields(logrus.Fields{
		"post":              post.PublicID,
		"user_consent":      consent.User,
		"community_consent": consent.Community,
	}).Debug("Consent check")

	// A mention overrides the community gate but never the author's own.
	if mention != nil && !consent.User {
		body := fmt.Sprintf("@%s has not opted into alt text generation.", post.Username)
		if _, err := s.client.PostComment(ctx, post.PublicID, body, mention.ID); err != nil {
			return fmt.Errorf("reply to mention: %w", err)
		}
		s.countSkipped()
		return nil
	}
	if mention == nil && (!consent.User || !consent.Community) {
		s.countSkipped()
		return nil
	}

	descriptions := s.describeImages(ctx, post, community)

	parentID := ""
	if mention != nil {
		parentID = mention.ID
	}
	body := buildReply(post, descriptions)
	if _, err := s.client.PostComment(ctx, post.PublicID, body, parentID); err != nil {
		return fmt.Errorf("post description comment: %w", err)
	}

	if err := s.store.RecordAltTextAttribution(ctx, post.PublicID, s.botUser, time.Now().UTC(), true); err != nil {
		return err
	}

	s.countDescribed()
	logrus.Infof("Described post %s (%d images)", post.PublicID, len(descriptions))
	return nil
}

// describeImages captions every image concurrently. A failed caption falls
// back to a placeholder rather than dropping the whole reply.
func (s *Service) describeImages(ctx context.Context, post discuit.Post, community *discuit.Community) []string {
	pctx := llm.PostContext{
		Title:                post.Title,
		Community:            post.CommunityName,
		CommunityDescription: community.About,
	}

	descriptions := make([]string, len(post.Images))
	var wg sync.WaitGroup
	for i, image := range post.Images {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			text, err := s.captioner.DescribeImage(ctx, url, pctx)
			if err != nil {
				logrus.Errorf("Caption failed for image %d of post %s: %v", i+1, post.PublicID, err)
				s.recordError()
				text = fallbackDescription
			}
			descriptions[i] = text
		}(i, image.URL)
	}
	wg.Wait()

	return descriptions
}

// FindAltComment returns the first comment that reads like an image
// description, or nil. Shared with the backfill tool.
func FindAltComment(comments []discuit.Comment) *discuit.Comment {
	for i := range comments {
		if altTextPattern.MatchString(comments[i].Body) {
			return &comments[i]
		}
	}
	return nil
}

func findMention(comments []discuit.Comment, botUser string) *discuit.Comment {
	for i := range comments {
		if strings.Contains(comments[i].Body, "@"+botUser) {
			return &comments[i]
		}
	}
	return nil
}

func buildReply(post discuit.Post, descriptions []string) string {
	plural := ""
	demonstrative := "this"
	if len(descriptions) > 1 {
		plural = "s"
		demonstrative = "these"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**alt text for %s image%s:**\n\n", demonstrative, plural)
	for i, text := range descriptions {
		fmt.Fprintf(&b, "- **image %d description:** %s\n", i+1, text)
	}
	b.WriteString("\n------\n\n")
	b.WriteString("i am a bot, and this action was performed automatically. ")
	b.WriteString("image descriptions were generated by a large language model. ")
	fmt.Fprintf(&b, "want to opt out? see [here](%s).\n\n------\n\n", consentURL)
	fmt.Fprintf(&b, "@%s, consider adding alt text to your future posts to make them more accessible! [what is alt text?](%s)",
		post.Username, altTextResourceURL)

	return b.String()
}

// GetMetrics returns current watch-loop metrics as JSON.
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

func (s *Service) countObserved(community string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.PostsObserved++
	s.metrics.CommunityCounts[community]++
}

func (s *Service) countDescribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.PostsDescribed++
}

func (s *Service) countHumanDescribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.HumanDescribed++
}

func (s *Service) countSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.SkippedNoConsent++
}

func (s *Service) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ErrorCount++
}
