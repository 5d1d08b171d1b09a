package oracle

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// claudeOracle implements Oracle on the Anthropic Messages API.
type claudeOracle struct {
	client *anthropic.Client
	model  string
}

func newClaude(model string) (*claudeOracle, error) {
	apiKey := os.Getenv("GLANE_ANTHROPIC_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("oracle: GLANE_ANTHROPIC_KEY or ANTHROPIC_API_KEY required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	return &claudeOracle{client: &client, model: model}, nil
}

func (o *claudeOracle) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(o.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: empty response", ErrUnavailable)
}

func (o *claudeOracle) JudgeContainers(ctx context.Context, candidates []Candidate, instruction string) ([]Verdict, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	user, err := buildJudgePrompt(candidates, instruction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	text, err := o.complete(ctx, judgeSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	verdicts, err := parseVerdicts(text, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return verdicts, nil
}

func (o *claudeOracle) MatchItems(ctx context.Context, items []Item, tags []string) ([]bool, error) {
	if len(items) == 0 {
		return nil, nil
	}
	user, err := buildMatchPrompt(items, tags)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	text, err := o.complete(ctx, matchSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	out, err := parseBools(text, len(items))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}
