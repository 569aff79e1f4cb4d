// Package threads implements the platform collaborators against the Threads
// Graph API: publishing posts and replies, and reading back the bot's own
// threads and their comments.
package threads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/plumekit/plume/internal/engage"
	"github.com/plumekit/plume/internal/platform"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/plumekit/plume/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// oauthErrorCode 190 is the Graph API's invalid/expired token error.
const oauthErrorCode = 190

// Client talks to the Threads Graph API. All calls have bounded timeouts,
// retry transient failures once with backoff, and flow through a circuit
// breaker. Authorization failures are never retried.
type Client struct {
	cfg     *config.Threads
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger

	// PublishDelay is the wait between creating a media container and
	// publishing it; the API needs time to process the container.
	PublishDelay time.Duration

	// Retry controls backoff for transient failures.
	Retry utils.RetryOptions
}

// NewClient creates a Threads API client.
func NewClient(cfg *config.Threads, logger *zap.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "threads",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("Threads circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond,
		},
		breaker:      gobreaker.NewCircuitBreaker(settings),
		logger:       logger.Named("threads"),
		PublishDelay: 30 * time.Second,
		Retry:        utils.GetPlatformRetryOptions(),
	}
}

// apiError is the Graph API error envelope.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// VerifyCredentials checks that the configured token and user ID are usable.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	params := url.Values{"fields": {"id,username"}}

	var result struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}

	if err := c.get(ctx, c.cfg.UserID, params, &result); err != nil {
		return err
	}

	c.logger.Info("Credentials verified", zap.String("username", result.Username))

	return nil
}

// PublishText publishes a text-only post and returns its ID.
func (c *Client) PublishText(ctx context.Context, text string) (string, error) {
	params := url.Values{
		"text":       {text},
		"media_type": {"TEXT"},
	}

	containerID, err := c.createContainer(ctx, params)
	if err != nil {
		return "", err
	}

	return c.publishContainer(ctx, containerID)
}

// PublishImage publishes a post with an attached image URL and returns its ID.
func (c *Client) PublishImage(ctx context.Context, text, imageURL string) (string, error) {
	params := url.Values{
		"text":       {text},
		"media_type": {"IMAGE"},
		"image_url":  {imageURL},
	}

	containerID, err := c.createContainer(ctx, params)
	if err != nil {
		return "", err
	}

	return c.publishContainer(ctx, containerID)
}

// PublishReply posts a text reply underneath the given comment or thread.
// Replies auto-publish, so no separate publish step is needed.
func (c *Client) PublishReply(ctx context.Context, commentID, text string) (string, error) {
	params := url.Values{
		"text":              {text},
		"media_type":        {"TEXT"},
		"reply_to_id":       {commentID},
		"auto_publish_text": {"true"},
	}

	var result struct {
		ID string `json:"id"`
	}

	path := fmt.Sprintf("%s/threads", c.cfg.UserID)
	if err := c.post(ctx, path, params, &result); err != nil {
		return "", err
	}

	return result.ID, nil
}

// RecentThreads returns the IDs of the bot's most recent own threads,
// newest first.
func (c *Client) RecentThreads(ctx context.Context, limit int) ([]string, error) {
	params := url.Values{
		"fields": {"id"},
		"limit":  {strconv.Itoa(limit)},
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}

	path := fmt.Sprintf("%s/threads", c.cfg.UserID)
	if err := c.get(ctx, path, params, &result); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(result.Data))
	for _, item := range result.Data {
		ids = append(ids, item.ID)
	}

	return ids, nil
}

// Comments returns the most recent comments on a thread, newest first.
func (c *Client) Comments(ctx context.Context, threadID string, limit int) ([]engage.Comment, error) {
	params := url.Values{
		"fields": {"id,text,from"},
		"limit":  {strconv.Itoa(limit)},
	}

	var result struct {
		Data []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
			From struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"from"`
		} `json:"data"`
	}

	path := fmt.Sprintf("%s/replies", threadID)
	if err := c.get(ctx, path, params, &result); err != nil {
		return nil, err
	}

	comments := make([]engage.Comment, 0, len(result.Data))
	for _, item := range result.Data {
		comments = append(comments, engage.Comment{
			ID:       item.ID,
			ThreadID: threadID,
			AuthorID: item.From.ID,
			Username: item.From.Username,
			Text:     item.Text,
		})
	}

	return comments, nil
}

// ThreadText fetches the text content of a thread.
func (c *Client) ThreadText(ctx context.Context, threadID string) (string, error) {
	params := url.Values{"fields": {"text"}}

	var result struct {
		Text string `json:"text"`
	}

	if err := c.get(ctx, threadID, params, &result); err != nil {
		return "", err
	}

	return result.Text, nil
}

// createContainer creates a media container and returns its ID.
func (c *Client) createContainer(ctx context.Context, params url.Values) (string, error) {
	var result struct {
		ID string `json:"id"`
	}

	path := fmt.Sprintf("%s/threads", c.cfg.UserID)
	if err := c.post(ctx, path, params, &result); err != nil {
		return "", err
	}

	c.logger.Debug("Container created", zap.String("containerID", result.ID))

	return result.ID, nil
}

// publishContainer publishes a previously created container after giving the
// API time to process it.
func (c *Client) publishContainer(ctx context.Context, containerID string) (string, error) {
	select {
	case <-time.After(c.PublishDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	params := url.Values{"creation_id": {containerID}}

	var result struct {
		ID string `json:"id"`
	}

	path := fmt.Sprintf("%s/threads_publish", c.cfg.UserID)
	if err := c.post(ctx, path, params, &result); err != nil {
		return "", err
	}

	return result.ID, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.call(ctx, http.MethodGet, path, params, out)
}

func (c *Client) post(ctx context.Context, path string, params url.Values, out any) error {
	return c.call(ctx, http.MethodPost, path, params, out)
}

// call executes one API request with retry and circuit breaking, decoding the
// JSON response into out. Auth and rate limit failures are permanent; only
// transient failures are retried.
func (c *Client) call(ctx context.Context, method, path string, params url.Values, out any) error {
	body, err := utils.WithRetry(ctx, func() ([]byte, error) {
		result, err := c.breaker.Execute(func() (any, error) {
			return c.send(ctx, method, path, params)
		})
		if err != nil {
			return nil, err
		}

		return result.([]byte), nil
	}, c.Retry)
	if err != nil {
		return err
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed response: %w", platform.ErrTransient, err)
	}

	return nil
}

// send performs a single HTTP round trip and classifies failures into the
// platform error taxonomy.
func (c *Client) send(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.cfg.BaseURL, "/"), path)

	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}

	query.Set("access_token", c.cfg.AccessToken)

	var req *http.Request

	var err error

	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+query.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(query.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}

	if err != nil {
		return nil, utils.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrTransient, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	return nil, c.classify(resp.StatusCode, body)
}

// classify maps an API failure response to the error taxonomy.
func (c *Client) classify(status int, body []byte) error {
	var envelope apiError

	message := strings.TrimSpace(string(body))
	if err := sonic.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		envelope.Error.Code == oauthErrorCode:
		return utils.Permanent(fmt.Errorf("%w: %s", platform.ErrAuth, message))
	case status == http.StatusTooManyRequests:
		return utils.Permanent(fmt.Errorf("%w: %s", platform.ErrRateLimited, message))
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", platform.ErrTransient, status, message)
	default:
		return utils.Permanent(fmt.Errorf("threads API error: status %d: %s", status, message))
	}
}
