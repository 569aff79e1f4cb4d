package engage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plumekit/plume/internal/platform"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/plumekit/plume/internal/state"
	"go.uber.org/zap"
)

// PlatformReader fetches the bot's own threads and their comments.
type PlatformReader interface {
	RecentThreads(ctx context.Context, limit int) ([]string, error)
	Comments(ctx context.Context, threadID string, limit int) ([]Comment, error)
	ThreadText(ctx context.Context, threadID string) (string, error)
}

// ReplyPublisher posts a reply underneath a comment.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, commentID, text string) (string, error)
}

// ReplyGenerator produces reply text for an accepted comment.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, commentText, postContext string) (string, error)
}

// Outcome summarizes one orchestrator cycle.
type Outcome string

const (
	OutcomeReplied      Outcome = "replied"
	OutcomeNoneEligible Outcome = "none_eligible"
	OutcomeLimitReached Outcome = "limit_reached"
	OutcomeCoolingDown  Outcome = "cooling_down"
)

// Orchestrator runs the auto-reply cycle: fetch candidate comments, pick the
// first eligible one, generate and post a reply, and durably record the
// result. Exactly one reply is produced per cycle. The caller serializes
// cycles; the orchestrator never runs concurrently with itself or with a post
// cycle.
type Orchestrator struct {
	cfg       *config.Reply
	reader    PlatformReader
	publisher ReplyPublisher
	generator ReplyGenerator
	filter    *Filter
	limiter   *Limiter
	store     *state.Store
	logger    *zap.Logger

	cooldownUntil time.Time
	now           func() time.Time
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(
	cfg *config.Reply, botUserID string, reader PlatformReader, publisher ReplyPublisher,
	generator ReplyGenerator, limiter *Limiter, store *state.Store, logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		reader:    reader,
		publisher: publisher,
		generator: generator,
		filter:    NewFilter(cfg, botUserID),
		limiter:   limiter,
		store:     store,
		logger:    logger.Named("orchestrator"),
		now:       time.Now,
	}
}

// RunCycle executes one reply cycle against the given state. The returned
// error is non-nil only for collaborator failures; running out of eligible
// comments or hitting a cap is a normal outcome, not an error.
func (o *Orchestrator) RunCycle(ctx context.Context, st *state.State) (Outcome, error) {
	now := o.now()

	if now.Before(o.cooldownUntil) {
		o.logger.Debug("Still cooling down after previous reply",
			zap.Time("until", o.cooldownUntil))

		return OutcomeCoolingDown, nil
	}

	st.Rollover(now)

	if !o.limiter.CanReplyNow(st.Day, st.LastReplyAt, now) {
		o.logger.Info("Reply limit reached for now, skipping cycle",
			zap.Int("replies_today", st.Day.Replies))

		return OutcomeLimitReached, nil
	}

	// Fetching
	candidate, found, err := o.findEligible(ctx, st)
	if err != nil {
		return "", err
	}

	if !found {
		o.logger.Info("No eligible comments found")
		return OutcomeNoneEligible, nil
	}

	o.logger.Info("Selected comment for reply",
		zap.String("commentID", candidate.ID),
		zap.String("threadID", candidate.ThreadID),
		zap.String("author", candidate.Username))

	// Generating
	postContext, err := o.reader.ThreadText(ctx, candidate.ThreadID)
	if err != nil {
		o.logger.Warn("Failed to fetch thread context, replying without it",
			zap.String("threadID", candidate.ThreadID),
			zap.Error(err))

		postContext = ""
	}

	replyText, err := o.generator.GenerateReply(ctx, candidate.Text, postContext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", platform.ErrGeneration, err)
	}

	// Posting
	replyID, err := o.publisher.PublishReply(ctx, candidate.ID, replyText)
	if err != nil {
		o.logFailure("Failed to publish reply", candidate.ID, err)
		return "", err
	}

	// Recording is the single durable commit point. RecordReply re-checks
	// membership so a crash-and-retry cannot double count.
	if st.RecordReply(candidate.ID, candidate.ThreadID, candidate.AuthorID, o.now()) {
		if err := o.store.Save(st); err != nil {
			return "", fmt.Errorf("reply %s posted but state save failed: %w", replyID, err)
		}
	}

	o.cooldownUntil = o.now().Add(o.limiter.NextDelay())

	o.logger.Info("Reply posted",
		zap.String("replyID", replyID),
		zap.String("commentID", candidate.ID),
		zap.Time("cooldownUntil", o.cooldownUntil))

	return OutcomeReplied, nil
}

// findEligible walks recent own threads most recent first and returns the
// first comment that passes the filter. Threads already at their cap are
// skipped without fetching their comments.
func (o *Orchestrator) findEligible(ctx context.Context, st *state.State) (Comment, bool, error) {
	threadIDs, err := o.reader.RecentThreads(ctx, o.cfg.ThreadLimit)
	if err != nil {
		o.logFailure("Failed to fetch recent threads", "", err)
		return Comment{}, false, err
	}

	for _, threadID := range threadIDs {
		rec := st.Thread(threadID)
		if rec != nil && rec.TotalReplies >= o.cfg.PerThreadCap {
			continue
		}

		comments, err := o.reader.Comments(ctx, threadID, o.cfg.CommentLimit)
		if err != nil {
			o.logFailure("Failed to fetch comments", threadID, err)
			return Comment{}, false, err
		}

		for _, comment := range comments {
			decision := o.filter.Evaluate(comment, rec, st.HasReplied)
			if decision.Accepted {
				return comment, true, nil
			}

			o.logger.Debug("Comment rejected",
				zap.String("commentID", comment.ID),
				zap.String("reason", string(decision.Reason)))
		}
	}

	return Comment{}, false, nil
}

// logFailure logs a collaborator failure with taxonomy-aware severity.
func (o *Orchestrator) logFailure(msg, id string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if id != "" {
		fields = append(fields, zap.String("id", id))
	}

	switch {
	case errors.Is(err, platform.ErrAuth):
		o.logger.Error(msg+" - credentials rejected, fix the access token", fields...)
	case errors.Is(err, platform.ErrRateLimited):
		o.logger.Warn(msg+" - platform rate limit, backing off until next cycle", fields...)
	default:
		o.logger.Warn(msg, fields...)
	}
}
