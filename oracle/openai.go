package oracle

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// openaiOracle implements Oracle on the OpenAI chat completion API.
type openaiOracle struct {
	client *openai.Client
	model  string
}

func newOpenAI(model string) (*openaiOracle, error) {
	apiKey := os.Getenv("GLANE_OPENAI_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("oracle: GLANE_OPENAI_KEY or OPENAI_API_KEY required")
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &openaiOracle{client: openai.NewClient(apiKey), model: model}, nil
}

func (o *openaiOracle) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *openaiOracle) JudgeContainers(ctx context.Context, candidates []Candidate, instruction string) ([]Verdict, error) {
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

func (o *openaiOracle) MatchItems(ctx context.Context, items []Item, tags []string) ([]bool, error) {
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
