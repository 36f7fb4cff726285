package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/VishalVarwani/waterproject/internal/metrics"
)

// AnthropicConfig configures an Anthropic Messages client.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// Anthropic is a Completer over the Anthropic Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
	log    *zap.Logger
}

func NewAnthropic(cfg AnthropicConfig, log *zap.Logger) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Anthropic{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		log:    log.Named("oracle.anthropic"),
	}, nil
}

// Complete ignores Prompt.JSON; the prompts already demand strict JSON and
// the reply goes through ExtractJSON.
func (c *Anthropic) Complete(ctx context.Context, p Prompt) (string, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	user := p.User

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		System:    p.System,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &user},
			}},
		},
	})
	metrics.RecordOracle(ProviderAnthropic, err, time.Since(start))
	if err != nil {
		c.log.Warn("messages call failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	c.log.Debug("messages call done", zap.String("model", c.model), zap.Duration("elapsed", time.Since(start)))

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyReply
	}
	return out, nil
}
