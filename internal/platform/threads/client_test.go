package threads_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/plumekit/plume/internal/platform"
	"github.com/plumekit/plume/internal/platform/threads"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupClient(t *testing.T, handler http.Handler) *threads.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default().Threads
	cfg.BaseURL = server.URL
	cfg.AccessToken = "test-token"
	cfg.UserID = "42"
	cfg.RequestTimeout = 5000

	client := threads.NewClient(&cfg, zap.NewNop())
	client.PublishDelay = 0

	return client
}

func TestVerifyCredentials(t *testing.T) {
	t.Parallel()

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/42", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("access_token"))
		w.Write([]byte(`{"id":"42","username":"plumebot"}`))
	}))

	require.NoError(t, client.VerifyCredentials(context.Background()))
}

func TestAuthErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))

	err := client.VerifyCredentials(context.Background())
	require.ErrorIs(t, err, platform.ErrAuth)
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestOAuthCodeMapsToAuthError(t *testing.T) {
	t.Parallel()

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Some token failures come back as 400 with OAuth code 190.
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Error validating access token","code":190}}`))
	}))

	err := client.VerifyCredentials(context.Background())
	require.ErrorIs(t, err, platform.ErrAuth)
}

func TestRateLimitMapsToRateLimited(t *testing.T) {
	t.Parallel()

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Application request limit reached","code":4}}`))
	}))

	_, err := client.PublishText(context.Background(), "hello")
	require.ErrorIs(t, err, platform.ErrRateLimited)
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Write([]byte(`{"id":"42","username":"plumebot"}`))
	}))

	require.NoError(t, client.VerifyCredentials(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestPublishTextTwoStep(t *testing.T) {
	t.Parallel()

	var publishCalled atomic.Bool

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		switch r.URL.Path {
		case "/42/threads":
			assert.Equal(t, "TEXT", r.PostFormValue("media_type"))
			assert.Equal(t, "hello world", r.PostFormValue("text"))
			w.Write([]byte(`{"id":"container-1"}`))
		case "/42/threads_publish":
			publishCalled.Store(true)
			assert.Equal(t, "container-1", r.PostFormValue("creation_id"))
			w.Write([]byte(`{"id":"post-1"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	postID, err := client.PublishText(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "post-1", postID)
	assert.True(t, publishCalled.Load())
}

func TestPublishImageSendsImageURL(t *testing.T) {
	t.Parallel()

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		switch r.URL.Path {
		case "/42/threads":
			assert.Equal(t, "IMAGE", r.PostFormValue("media_type"))
			assert.Equal(t, "https://img.example/a.jpg", r.PostFormValue("image_url"))
			w.Write([]byte(`{"id":"container-2"}`))
		case "/42/threads_publish":
			w.Write([]byte(`{"id":"post-2"}`))
		}
	}))

	postID, err := client.PublishImage(context.Background(), "caption", "https://img.example/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "post-2", postID)
}

func TestPublishReplySingleStep(t *testing.T) {
	t.Parallel()

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "/42/threads", r.URL.Path)
		assert.Equal(t, "comment-7", r.PostFormValue("reply_to_id"))
		assert.Equal(t, "true", r.PostFormValue("auto_publish_text"))
		w.Write([]byte(`{"id":"reply-1"}`))
	}))

	replyID, err := client.PublishReply(context.Background(), "comment-7", "thanks!")
	require.NoError(t, err)
	assert.Equal(t, "reply-1", replyID)
}

func TestRecentThreadsAndComments(t *testing.T) {
	t.Parallel()

	client := setupClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/42/threads":
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			w.Write([]byte(`{"data":[{"id":"t1"},{"id":"t2"}]}`))
		case "/t1/replies":
			w.Write([]byte(`{"data":[{"id":"c1","text":"nice one","from":{"id":"u1","username":"ann"}}]}`))
		case "/t1":
			w.Write([]byte(`{"text":"original post text"}`))
		}
	}))

	ids, err := client.RecentThreads(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)

	comments, err := client.Comments(context.Background(), "t1", 25)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].ID)
	assert.Equal(t, "t1", comments[0].ThreadID)
	assert.Equal(t, "u1", comments[0].AuthorID)
	assert.Equal(t, "ann", comments[0].Username)

	text, err := client.ThreadText(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "original post text", text)
}
