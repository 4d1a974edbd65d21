package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discuit-community/alt-text-bot/internal/config"
	"github.com/discuit-community/alt-text-bot/internal/models"
	"github.com/discuit-community/alt-text-bot/internal/tracker"
)

type stubMetrics struct{}

func (stubMetrics) GetMetrics() string { return `{"posts_observed":2}` }

type stubRunner struct {
	triggered chan struct{}
}

func (r *stubRunner) RunRoundup(context.Context) error {
	r.triggered <- struct{}{}
	return nil
}

func newTestServer(t *testing.T) (*Server, *tracker.Store, *stubRunner) {
	t.Helper()

	store, err := tracker.Open(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runner := &stubRunner{triggered: make(chan struct{}, 1)}
	server := NewServer(&config.Config{Port: "0"}, store, stubMetrics{}, runner)
	return server, store, runner
}

func TestHandleHealth(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestHandleMetrics(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"posts_observed":2}`, rec.Body.String())
}

func TestHandleTrigger(t *testing.T) {
	server, _, runner := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/trigger", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-runner.triggered:
	case <-time.After(time.Second):
		t.Fatal("trigger did not start a roundup run")
	}
}

func TestHandlePosts(t *testing.T) {
	server, store, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.RecordImagePost(ctx, models.ImagePost{
		ID: "p1", Username: "alice", Community: "pics", CreatedAt: time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/posts?limit=10", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"p1"`)
}

func TestHandlePosts_badLimit(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/posts?limit=9999", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePostsByUser(t *testing.T) {
	server, store, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.RecordImagePost(ctx, models.ImagePost{
		ID: "p1", Username: "alice", Community: "pics", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.RecordImagePost(ctx, models.ImagePost{
		ID: "p2", Username: "bob", Community: "pics", CreatedAt: time.Now().UTC(),
	}))

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/posts/user/alice", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"p1"`)
	assert.NotContains(t, rec.Body.String(), `"id":"p2"`)
}

func TestHandleStats(t *testing.T) {
	server, store, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.RecordImagePost(ctx, models.ImagePost{
		ID: "p1", Username: "alice", Community: "pics", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.RecordAltTextAttribution(ctx, "p1", "bob", time.Now().UTC(), false))

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_image_posts":1`)
}
