// Package poster drives one publishing cycle: generate content for a
// scheduled slot, publish it, and record the result durably.
package poster

import (
	"context"
	"errors"
	"time"

	"github.com/plumekit/plume/internal/platform"
	"github.com/plumekit/plume/internal/schedule"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/plumekit/plume/internal/state"
	"go.uber.org/zap"
)

// ErrQuotaReached means the daily quota for the requested kind is exhausted.
// It is a normal skip condition, not a failure.
var ErrQuotaReached = errors.New("daily post quota reached")

// PostPublisher publishes finished posts to the platform.
type PostPublisher interface {
	PublishText(ctx context.Context, text string) (string, error)
	PublishImage(ctx context.Context, text, imageURL string) (string, error)
}

// ContentGenerator produces the text for a post of a given kind.
type ContentGenerator interface {
	GeneratePost(ctx context.Context, kind schedule.Kind) (string, error)
}

// ImageSource picks a local image for an image post.
type ImageSource interface {
	Pick(used func(string) bool) (string, error)
}

// ImageUploader makes a local image publicly reachable.
type ImageUploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Poster runs post cycles. The caller serializes cycles against any other
// state-mutating work.
type Poster struct {
	cfg       *config.Schedule
	publisher PostPublisher
	generator ContentGenerator
	source    ImageSource
	uploader  ImageUploader
	store     *state.Store
	logger    *zap.Logger
	now       func() time.Time
}

// New wires the poster to its collaborators.
func New(
	cfg *config.Schedule, publisher PostPublisher, generator ContentGenerator,
	source ImageSource, uploader ImageUploader, store *state.Store, logger *zap.Logger,
) *Poster {
	return &Poster{
		cfg:       cfg,
		publisher: publisher,
		generator: generator,
		source:    source,
		uploader:  uploader,
		store:     store,
		logger:    logger.Named("poster"),
		now:       time.Now,
	}
}

// RunCycle publishes one post of the given kind. The daily counter for the
// kind is checked first so a replayed slot cannot exceed the quota, and
// bumped only after a successful publish.
func (p *Poster) RunCycle(ctx context.Context, st *state.State, kind schedule.Kind) error {
	now := p.now()
	st.Rollover(now)

	switch kind {
	case schedule.KindText:
		if st.Day.TextPosts >= p.cfg.TextPostsPerDay {
			p.logger.Info("Text post quota reached for today")
			return ErrQuotaReached
		}

		return p.postText(ctx, st)
	case schedule.KindImage:
		if st.Day.ImagePosts >= p.cfg.ImagePostsPerDay {
			p.logger.Info("Image post quota reached for today")
			return ErrQuotaReached
		}

		return p.postImage(ctx, st)
	default:
		return errors.New("unknown post kind: " + string(kind))
	}
}

// postText generates and publishes a text-only post.
func (p *Poster) postText(ctx context.Context, st *state.State) error {
	text, err := p.generator.GeneratePost(ctx, schedule.KindText)
	if err != nil {
		return err
	}

	postID, err := p.publisher.PublishText(ctx, text)
	if err != nil {
		p.logPublishFailure(err)
		return err
	}

	st.RecordTextPost(p.now())

	if err := p.store.Save(st); err != nil {
		return err
	}

	p.logger.Info("Text post published", zap.String("postID", postID))

	return nil
}

// postImage publishes a post with an image. If no image can be sourced or
// uploaded, it falls back to a plain text post rather than skipping the slot.
func (p *Poster) postImage(ctx context.Context, st *state.State) error {
	path, err := p.source.Pick(st.ImageUsed)
	if err != nil {
		p.logger.Warn("No image available, falling back to text post", zap.Error(err))
		return p.postText(ctx, st)
	}

	imageURL, err := p.uploader.Upload(ctx, path)
	if err != nil {
		p.logger.Warn("Image upload failed, falling back to text post",
			zap.String("path", path),
			zap.Error(err))

		return p.postText(ctx, st)
	}

	caption, err := p.generator.GeneratePost(ctx, schedule.KindImage)
	if err != nil {
		return err
	}

	postID, err := p.publisher.PublishImage(ctx, caption, imageURL)
	if err != nil {
		p.logPublishFailure(err)
		return err
	}

	st.RecordImagePost(p.now())
	st.MarkImageUsed(path)

	if err := p.store.Save(st); err != nil {
		return err
	}

	p.logger.Info("Image post published",
		zap.String("postID", postID),
		zap.String("image", path))

	return nil
}

func (p *Poster) logPublishFailure(err error) {
	switch {
	case errors.Is(err, platform.ErrAuth):
		p.logger.Error("Publish failed - credentials rejected, fix the access token", zap.Error(err))
	case errors.Is(err, platform.ErrRateLimited):
		p.logger.Warn("Publish failed - platform rate limit", zap.Error(err))
	default:
		p.logger.Warn("Publish failed", zap.Error(err))
	}
}
