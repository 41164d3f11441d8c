// Package extract turns scraped page markdown into structured food-truck
// records using the Anthropic API. Model output is treated as untrusted:
// every field is validated and coerced before use.
package extract

import (
	"context"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streeteats/ingest-cli/internal/model"
)

// Client defines the extraction operation used by the pipeline.
type Client interface {
	Extract(ctx context.Context, markdown, sourceURL string) (*model.FoodTruck, error)
}

// Config holds extraction model settings.
type Config struct {
	Model     string
	MaxTokens int64
}

const systemPrompt = `You extract structured food-truck data from web page markdown.
Respond with a single JSON object and nothing else. Schema:
{
  "name": string,
  "description": string or null,
  "cuisine_type": [string],
  "price_range": "$" | "$$" | "$$$" | "$$$$" | null,
  "specialties": [string],
  "current_location": {"lat": number, "lng": number, "address": string or null} or null,
  "operating_hours": {"monday".."sunday": {"closed": true} or {"open": "HH:MM", "close": "HH:MM"} or null},
  "menu": [{"name": string, "items": [{"name": string, "price": number or null, "description": string or null, "dietary_tags": [string]}]}],
  "contact_info": {"phone": string or null, "email": string or null, "website": string or null},
  "social_media": {"instagram": string or null, "facebook": string or null, "twitter": string or null, "tiktok": string or null, "yelp": string or null},
  "review_count": number or null
}
Omit fields you cannot find. Never invent data.`

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
	cfg    Config
}

// NewClient creates an extraction client backed by the Anthropic SDK.
func NewClient(apiKey string, cfg Config) Client {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &sdkClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
	}
}

func (c *sdkClient) Extract(ctx context.Context, markdown, sourceURL string) (*model.FoodTruck, error) {
	userPrompt := "Source URL: " + sourceURL + "\n\nPage content:\n\n" + markdown

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, eris.New("extract: empty model response")
	}

	zap.L().Debug("extract: model response received",
		zap.String("source_url", sourceURL),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	truck, err := ParseTruck(text.String(), sourceURL, time.Now().UTC())
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse response for %s", sourceURL)
	}
	return truck, nil
}
