package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/plumekit/plume/internal/platform"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/plumekit/plume/pkg/utils"
	"go.uber.org/zap"
)

var ErrUploaderNotConfigured = errors.New("image upload endpoint not configured")

// Uploader pushes a local image to an imgbb-style host and returns the public
// URL the platform can fetch it from.
type Uploader struct {
	uploadURL string
	apiKey    string
	http      *http.Client
	logger    *zap.Logger
}

// NewUploader creates an uploader from configuration.
func NewUploader(cfg *config.Images, logger *zap.Logger) *Uploader {
	return &Uploader{
		uploadURL: cfg.UploadURL,
		apiKey:    cfg.UploadKey,
		http:      &http.Client{Timeout: 60 * time.Second},
		logger:    logger.Named("image_uploader"),
	}
}

// Upload sends the image and returns its public URL. Transient failures get a
// single retry with backoff.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	if u.uploadURL == "" {
		return "", ErrUploaderNotConfigured
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	return utils.WithRetry(ctx, func() (string, error) {
		return u.send(ctx, filepath.Base(path), data)
	}, utils.GetUploadRetryOptions())
}

// send performs one multipart upload round trip.
func (u *Uploader) send(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	if u.apiKey != "" {
		if err := writer.WriteField("key", u.apiKey); err != nil {
			return "", utils.Permanent(err)
		}
	}

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", utils.Permanent(err)
	}

	if _, err := part.Write(data); err != nil {
		return "", utils.Permanent(err)
	}

	if err := writer.Close(); err != nil {
		return "", utils.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, &body)
	if err != nil {
		return "", utils.Permanent(err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", platform.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", platform.ErrTransient, err)
	}

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: image host status %d", platform.ErrTransient, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return "", utils.Permanent(fmt.Errorf("image host rejected upload: status %d", resp.StatusCode))
	}

	var result struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}

	if err := sonic.Unmarshal(respBody, &result); err != nil {
		return "", utils.Permanent(fmt.Errorf("malformed image host response: %w", err))
	}

	if result.Data.URL == "" {
		return "", utils.Permanent(errors.New("image host response missing URL"))
	}

	u.logger.Debug("Image uploaded", zap.String("url", result.Data.URL))

	return result.Data.URL, nil
}
