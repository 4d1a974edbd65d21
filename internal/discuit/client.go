// Package discuit is a minimal client for the Discuit forum API, covering
// the endpoints the bot needs: session login, post discovery, comments and
// publishing.
package discuit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const userAgent = "alt-text-bot/1.0"

// API is the surface of the Discuit client consumed by the watcher and
// scheduler. Kept small so tests can substitute a fake.
type API interface {
	Login(ctx context.Context, username, password string) (*User, error)
	GetLatestPosts(ctx context.Context, limit int, next string) (*PostList, error)
	GetPost(ctx context.Context, publicID string) (*Post, error)
	GetCommunity(ctx context.Context, name string) (*Community, error)
	GetComments(ctx context.Context, publicID string) ([]Comment, error)
	PostComment(ctx context.Context, publicID, body string, parentID string) (*Comment, error)
	CreatePost(ctx context.Context, community, title, body string) (*Post, error)
}

// Client talks to a Discuit instance over its JSON API.
type Client struct {
	http      *resty.Client
	csrfToken string
}

var _ API = (*Client)(nil)

// APIError is the error envelope Discuit returns for failed requests.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discuit API error (status %d, code %s): %s", e.Status, e.Code, e.Message)
}

// User is a Discuit user account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	AboutMe  string `json:"aboutMe"`
}

// Image is one image attached to a post.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Post is a Discuit post. Image posts carry one or more images.
type Post struct {
	PublicID      string    `json:"publicId"`
	Type          string    `json:"type"` // "text", "image" or "link"
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Username      string    `json:"username"`
	CommunityName string    `json:"communityName"`
	CreatedAt     time.Time `json:"createdAt"`
	Images        []Image   `json:"images"`
	Author        *User     `json:"author"`
}

// IsImagePost reports whether the post carries images to describe.
func (p *Post) IsImagePost() bool {
	return p.Type == "image" && len(p.Images) > 0
}

// PostList is one page of posts plus the cursor for the next page.
type PostList struct {
	Posts []Post `json:"posts"`
	Next  string `json:"next"`
}

// Comment is a comment on a post.
type Comment struct {
	ID           string    `json:"id"`
	PostPublicID string    `json:"postPublicId"`
	Username     string    `json:"username"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"createdAt"`
}

type commentList struct {
	Comments []Comment `json:"comments"`
}

// Community is a Discuit community.
type Community struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	About string `json:"about"`
}

// NewClient creates a Discuit client for the given base URL, for example
// "https://discuit.org". Session and CSRF cookies are handled internally.
func NewClient(baseURL string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", userAgent)

	logrus.Debugf("Discuit client initialized for %s", baseURL)
	return &Client{http: http}
}

// initialize fetches the initial payload so the server issues the CSRF
// cookie required by mutating endpoints.
func (c *Client) initialize(ctx context.Context) error {
	if c.csrfToken != "" {
		return nil
	}

	resp, err := c.http.R().SetContext(ctx).Get("/api/_initial")
	if err != nil {
		return fmt.Errorf("fetch initial payload: %w", err)
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "csrftoken" {
			c.csrfToken = cookie.Value
		}
	}
	if c.csrfToken == "" {
		return fmt.Errorf("no csrf token in initial response")
	}
	return nil
}

// Login authenticates the bot account and returns the logged-in user.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	if err := c.initialize(ctx); err != nil {
		return nil, err
	}

	var user User
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Csrf-Token", c.csrfToken).
		SetBody(map[string]string{"username": username, "password": password}).
		Post("/api/_login")
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	if err := decode(resp, &user); err != nil {
		return nil, fmt.Errorf("login as %s: %w", username, err)
	}

	logrus.Infof("Logged in to Discuit as @%s", user.Username)
	return &user, nil
}

// GetLatestPosts fetches one page of the sitewide latest feed. Pass the
// cursor from a previous page in next to continue, or "" for the first page.
func (c *Client) GetLatestPosts(ctx context.Context, limit int, next string) (*PostList, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("feed", "all").
		SetQueryParam("sort", "latest").
		SetQueryParam("limit", fmt.Sprintf("%d", limit))
	if next != "" {
		req.SetQueryParam("next", next)
	}

	resp, err := req.Get("/api/posts")
	if err != nil {
		return nil, fmt.Errorf("fetch latest posts: %w", err)
	}

	var list PostList
	if err := decode(resp, &list); err != nil {
		return nil, fmt.Errorf("fetch latest posts: %w", err)
	}
	return &list, nil
}

// GetPost fetches a single post by its public id.
func (c *Client) GetPost(ctx context.Context, publicID string) (*Post, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/posts/" + publicID)
	if err != nil {
		return nil, fmt.Errorf("fetch post %s: %w", publicID, err)
	}

	var post Post
	if err := decode(resp, &post); err != nil {
		return nil, fmt.Errorf("fetch post %s: %w", publicID, err)
	}
	return &post, nil
}

// GetCommunity fetches a community by name.
func (c *Client) GetCommunity(ctx context.Context, name string) (*Community, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("byName", "true").
		Get("/api/communities/" + name)
	if err != nil {
		return nil, fmt.Errorf("fetch community %s: %w", name, err)
	}

	var community Community
	if err := decode(resp, &community); err != nil {
		return nil, fmt.Errorf("fetch community %s: %w", name, err)
	}
	return &community, nil
}

// GetComments fetches the comments of a post.
func (c *Client) GetComments(ctx context.Context, publicID string) ([]Comment, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/posts/" + publicID + "/comments")
	if err != nil {
		return nil, fmt.Errorf("fetch comments of %s: %w", publicID, err)
	}

	var list commentList
	if err := decode(resp, &list); err != nil {
		return nil, fmt.Errorf("fetch comments of %s: %w", publicID, err)
	}
	return list.Comments, nil
}

// PostComment adds a comment to a post, optionally as a reply to parentID.
func (c *Client) PostComment(ctx context.Context, publicID, body, parentID string) (*Comment, error) {
	if err := c.initialize(ctx); err != nil {
		return nil, err
	}

	payload := map[string]string{"body": body}
	if parentID != "" {
		payload["parentCommentId"] = parentID
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Csrf-Token", c.csrfToken).
		SetBody(payload).
		Post("/api/posts/" + publicID + "/comments")
	if err != nil {
		return nil, fmt.Errorf("post comment on %s: %w", publicID, err)
	}

	var comment Comment
	if err := decode(resp, &comment); err != nil {
		return nil, fmt.Errorf("post comment on %s: %w", publicID, err)
	}
	return &comment, nil
}

// CreatePost publishes a text post (used for the weekly roundups).
func (c *Client) CreatePost(ctx context.Context, community, title, body string) (*Post, error) {
	if err := c.initialize(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Csrf-Token", c.csrfToken).
		SetBody(map[string]string{
			"type":      "text",
			"community": community,
			"title":     title,
			"body":      body,
		}).
		Post("/api/posts")
	if err != nil {
		return nil, fmt.Errorf("create post in %s: %w", community, err)
	}

	var post Post
	if err := decode(resp, &post); err != nil {
		return nil, fmt.Errorf("create post in %s: %w", community, err)
	}
	return &post, nil
}

// decode unmarshals a successful response into v, or surfaces the API error
// envelope for failed ones.
func decode(resp *resty.Response, v any) error {
	if resp.IsError() {
		var apiErr APIError
		if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Status != 0 {
			return &apiErr
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return json.Unmarshal(resp.Body(), v)
}
