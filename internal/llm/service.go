// Package llm generates image descriptions through an OpenAI-compatible
// chat-completions endpoint.
package llm

import (
	"context"
	"encoding/base64"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

//go:embed prompts/system.txt
var systemTemplate string

//go:embed prompts/user.txt
var userPrompt string

// Captioner produces alt text for a single image. Implemented by Service;
// substituted in watcher tests.
type Captioner interface {
	DescribeImage(ctx context.Context, imageURL string, pctx PostContext) (string, error)
}

// PostContext carries the surrounding post details used to steer the
// description toward the community's subject matter.
type PostContext struct {
	Title                string
	Community            string
	CommunityDescription string
}

// Service calls the configured vision model.
type Service struct {
	http    *resty.Client
	apiKey  string
	model   string
	siteURL string // prefix for relative image paths
}

var _ Captioner = (*Service)(nil)

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewService creates a captioning service against baseURL (an
// OpenAI-compatible API root, e.g. "https://api.openai.com/v1"). siteURL is
// prefixed to relative image paths returned by the forum.
func NewService(baseURL, apiKey, model, siteURL string) *Service {
	masked := "unset"
	if len(apiKey) > 10 {
		masked = apiKey[:5] + "…" + apiKey[len(apiKey)-5:]
	}
	logrus.Debugf("LLM service initialized (base=%s model=%s key=%s)", baseURL, model, masked)

	return &Service{
		http:    resty.New().SetBaseURL(baseURL).SetTimeout(120 * time.Second),
		apiKey:  apiKey,
		model:   model,
		siteURL: strings.TrimRight(siteURL, "/"),
	}
}

// DescribeImage downloads the image, sends it to the vision model and
// returns the generated alt text.
func (s *Service) DescribeImage(ctx context.Context, rawURL string, pctx PostContext) (string, error) {
	dataURI, err := s.fetchImageDataURI(ctx, rawURL)
	if err != nil {
		return "", err
	}

	systemPrompt := fillPrompt(systemTemplate, map[string]string{
		"community":            pctx.Community,
		"communityDescription": orDefault(pctx.CommunityDescription, "no description available"),
		"title":                pctx.Title,
	})

	req := chatRequest{
		Model:  s.model,
		Stream: false,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			}},
		},
	}

	var out chatResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetAuthToken(s.apiKey).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode(), resp.Body())
	}
	if out.Error != nil {
		return "", fmt.Errorf("chat completion failed: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("chat completion returned no content")
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (s *Service) fetchImageDataURI(ctx context.Context, rawURL string) (string, error) {
	url := rawURL
	if !strings.HasPrefix(url, "http") {
		url = s.siteURL + url
	}

	resp, err := resty.New().SetTimeout(30 * time.Second).R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch image %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch image %s: status %d", url, resp.StatusCode())
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	encoded := base64.StdEncoding.EncodeToString(resp.Body())
	return fmt.Sprintf("data:%s;base64,%s", contentType, encoded), nil
}

func fillPrompt(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
