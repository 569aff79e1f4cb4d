package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/plumekit/plume/internal/poster"
	"github.com/plumekit/plume/internal/runner"
	"github.com/plumekit/plume/internal/schedule"
	"github.com/plumekit/plume/internal/setup"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "plume",
		Usage: "Automated posting and reply bot for Threads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level",
			},
			&cli.BoolFlag{
				Name:  "test",
				Usage: "Verify credentials and publish one post of each kind, then exit",
			},
			&cli.BoolFlag{
				Name:  "test-text",
				Usage: "Publish a single text post, then exit",
			},
			&cli.BoolFlag{
				Name:  "test-image",
				Usage: "Publish a single image post, then exit",
			},
			&cli.BoolFlag{
				Name:  "test-replies",
				Usage: "Run a single reply cycle, then exit",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			app, err := setup.InitializeApp(ctx, c.String("log-level"))
			if err != nil {
				return err
			}
			defer app.Cleanup()

			if err := app.Threads.VerifyCredentials(ctx); err != nil {
				return err
			}

			switch {
			case c.Bool("test"):
				return runTest(ctx, app)
			case c.Bool("test-text"):
				return runTestPost(ctx, app, schedule.KindText)
			case c.Bool("test-image"):
				return runTestPost(ctx, app, schedule.KindImage)
			case c.Bool("test-replies"):
				return runTestReplies(ctx, app)
			default:
				return runBot(ctx, app)
			}
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runBot drives the runner until a signal arrives.
func runBot(ctx context.Context, app *setup.App) error {
	r, err := runner.New(app.Config, app.Poster, app.Replies, app.Store, app.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Logger.Info("Bot started")
	r.Run(ctx)

	return nil
}

// runTest reports the active configuration, then exercises one post cycle of
// each kind so a broken generation or publish path fails the run instead of
// passing on credentials alone.
func runTest(ctx context.Context, app *setup.App) error {
	app.Logger.Info("Configuration active",
		zap.String("userID", app.Config.Threads.UserID),
		zap.Int("textPostsPerDay", app.Config.Schedule.TextPostsPerDay),
		zap.Int("imagePostsPerDay", app.Config.Schedule.ImagePostsPerDay),
		zap.Bool("repliesEnabled", app.Config.Reply.Enabled))

	return runPostTests(ctx, func(ctx context.Context, kind schedule.Kind) error {
		return runTestPost(ctx, app, kind)
	})
}

// runPostTests runs a text post cycle followed by an image post cycle,
// stopping at the first failure.
func runPostTests(ctx context.Context, post func(context.Context, schedule.Kind) error) error {
	if err := post(ctx, schedule.KindText); err != nil {
		return err
	}

	return post(ctx, schedule.KindImage)
}

// runTestPost publishes one post of the given kind immediately.
func runTestPost(ctx context.Context, app *setup.App, kind schedule.Kind) error {
	st := app.Store.Load()

	err := app.Poster.RunCycle(ctx, st, kind)
	if errors.Is(err, poster.ErrQuotaReached) {
		app.Logger.Warn("Quota already reached, nothing posted", zap.String("kind", string(kind)))
		return nil
	}

	return err
}

// runTestReplies runs one reply cycle immediately.
func runTestReplies(ctx context.Context, app *setup.App) error {
	st := app.Store.Load()

	outcome, err := app.Replies.RunCycle(ctx, st)
	if err != nil {
		return err
	}

	app.Logger.Info("Reply cycle finished", zap.String("outcome", string(outcome)))

	return nil
}
