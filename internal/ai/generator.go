// Package ai generates post and reply text through the Gemini API. Prompt
// content is supplied by the operator through prompt files; nothing is
// hardcoded here.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/plumekit/plume/internal/platform"
	"github.com/plumekit/plume/internal/schedule"
	"github.com/plumekit/plume/internal/setup/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrMissingPromptFile = errors.New("prompt file not configured")

// Generator produces post and reply text. Concurrent generation requests are
// bounded by a semaphore so a burst of cycles cannot pile onto the API.
type Generator struct {
	postModel  *genai.GenerativeModel
	replyModel *genai.GenerativeModel
	sem        *semaphore.Weighted
	logger     *zap.Logger
}

// NewGenerator builds the two generative models from configuration. The
// system instruction for each model is read from the configured prompt file.
func NewGenerator(client *genai.Client, cfg *config.Gemini, logger *zap.Logger) (*Generator, error) {
	postPrompt, err := readPrompt(cfg.PostPromptFile)
	if err != nil {
		return nil, fmt.Errorf("post prompt: %w", err)
	}

	replyPrompt, err := readPrompt(cfg.ReplyPromptFile)
	if err != nil {
		return nil, fmt.Errorf("reply prompt: %w", err)
	}

	postModel := client.GenerativeModel(cfg.Model)
	postModel.SystemInstruction = genai.NewUserContent(genai.Text(postPrompt))
	postModel.SetTemperature(cfg.Temperature)

	replyModel := client.GenerativeModel(cfg.Model)
	replyModel.SystemInstruction = genai.NewUserContent(genai.Text(replyPrompt))
	replyModel.SetTemperature(cfg.Temperature)

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Generator{
		postModel:  postModel,
		replyModel: replyModel,
		sem:        semaphore.NewWeighted(maxConcurrent),
		logger:     logger.Named("generator"),
	}, nil
}

// GeneratePost produces the text for a scheduled post of the given kind.
func (g *Generator) GeneratePost(ctx context.Context, kind schedule.Kind) (string, error) {
	prompt := "Write the next text post."
	if kind == schedule.KindImage {
		prompt = "Write a short caption for the image being posted."
	}

	return g.generate(ctx, g.postModel, prompt)
}

// GenerateReply produces reply text for a comment, given the text of the
// thread it was left on.
func (g *Generator) GenerateReply(ctx context.Context, commentText, postContext string) (string, error) {
	var sb strings.Builder

	if postContext != "" {
		sb.WriteString("Original post:\n")
		sb.WriteString(postContext)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Comment to reply to:\n")
	sb.WriteString(commentText)

	return g.generate(ctx, g.replyModel, sb.String())
}

// generate runs one model call and extracts the text of the first candidate.
func (g *Generator) generate(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %w", platform.ErrGeneration, err)
	}
	defer g.sem.Release(1)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %w", platform.ErrGeneration, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response from model", platform.ErrGeneration)
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("%w: unexpected response part type", platform.ErrGeneration)
	}

	result := strings.TrimSpace(string(text))
	if result == "" {
		return "", fmt.Errorf("%w: model returned blank text", platform.ErrGeneration)
	}

	g.logger.Debug("Generated content", zap.Int("length", len(result)))

	return result, nil
}

// readPrompt loads a system instruction from a file.
func readPrompt(path string) (string, error) {
	if path == "" {
		return "", ErrMissingPromptFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}

	return prompt, nil
}
