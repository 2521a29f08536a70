// Package ai wraps the Gemini API behind the generation boundary used
// by the conversation engine and the scheduler.
package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"log/slog"

	"github.com/m3rciful/aromabot/core/logger"
	"github.com/m3rciful/aromabot/internal/domain"
)

const systemPrompt = `Ты персональный консультант по парфюмерии. Отвечай на русском языке,
коротко и дружелюбно. Подбирай ароматы по профилю пользователя, учитывай
сезонность и сочетаемость нот. Не выдумывай несуществующие бренды.`

// Client talks to the Gemini API with a small concurrency cap and a
// minimum delay between requests.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	sem    chan struct{}
	mu     sync.Mutex
	last   time.Time
	delay  time.Duration
}

// NewClient constructs a Gemini-backed generator.
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ai: create client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(512)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	return &Client{
		client: client,
		model:  model,
		sem:    make(chan struct{}, 3),
		delay:  350 * time.Millisecond,
	}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Recommend generates a personalized recommendation from the profile.
// An optional free-text query refines the request (the chat fallback path).
func (c *Client) Recommend(ctx context.Context, profile domain.Profile, query string) (string, error) {
	release := c.acquire()
	defer release()

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, genai.Text(buildPrompt(profile, query)))
	if err != nil {
		logger.Error(ctx, "ai", "generate",
			slog.String("status", "fail"),
			slog.Int64("user_id", profile.UserID),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("ai: generate: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		logger.Warn(ctx, "ai", "generate",
			slog.String("status", "fail"),
			slog.Int64("user_id", profile.UserID),
			slog.String("cause", "empty response"),
		)
		return "", fmt.Errorf("ai: empty response")
	}

	logger.Debug(ctx, "ai", "generate",
		slog.String("status", "ok"),
		slog.Int64("user_id", profile.UserID),
		slog.Duration("duration", logger.Took(start)),
	)
	return text, nil
}

func buildPrompt(profile domain.Profile, query string) string {
	var b strings.Builder
	b.WriteString("Пользователь:\n")
	fmt.Fprintf(&b, "Возраст: %s\n", orUnknown(profile.Age))
	fmt.Fprintf(&b, "Пол: %s\n", orUnknown(profile.Gender))
	fmt.Fprintf(&b, "Предпочитаемые ароматы: %s\n", orUnknown(strings.Join(profile.Categories, ", ")))
	fmt.Fprintf(&b, "Местоположение: %s\n", orUnknown(profile.Location))
	if query != "" {
		fmt.Fprintf(&b, "\nЗапрос пользователя: %s\n", query)
	}
	b.WriteString("\nНа основе этой информации предоставь персонализированную рекомендацию по парфюмерии. Учти сезонность, текущие акции и специальные предложения.")
	return b.String()
}

func orUnknown(v string) string {
	if v == "" {
		return "нет данных"
	}
	return v
}

func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func (c *Client) acquire() func() {
	c.sem <- struct{}{}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.last.IsZero() {
		if sleep := c.delay - now.Sub(c.last); sleep > 0 {
			time.Sleep(sleep)
		}
	}
	c.last = time.Now()
	return func() { <-c.sem }
}
