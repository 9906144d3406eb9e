package ai

import (
	"context"
	"fmt"
	"strings"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const defaultModel = "gpt-4o-mini"

const systemPrompt = `You are an expert at web automation and CSS selectors.
When a locator fails, suggest one better, more robust alternative. Prefer, in order:
1. data-testid, data-qa or aria-label attributes
2. ids
3. specific CSS selectors built from stable classes and structure

Return ONLY the improved selector string, nothing else.`

// OpenAIAdvisor suggests replacement selectors through the chat completions API
type OpenAIAdvisor struct {
	client *openai.Client
	model  string
	logger *logrus.Logger
}

// NewOpenAIAdvisor - creates an advisor; baseURL is optional and targets
// OpenAI compatible endpoints
func NewOpenAIAdvisor(apiKey, model, baseURL string, logger *logrus.Logger) (*OpenAIAdvisor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("advisor api key is not set")
	}
	if model == "" {
		model = defaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIAdvisor{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}, nil
}

// SuggestLocator - asks the model for a replacement of failedSelector
func (a *OpenAIAdvisor) SuggestLocator(ctx context.Context, action entities.Action, failedSelector string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(action, failedSelector)},
		},
		Temperature: 0.3,
		MaxTokens:   128,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	suggestion := cleanSuggestion(resp.Choices[0].Message.Content)
	a.logger.WithFields(logrus.Fields{
		"failed":     failedSelector,
		"suggestion": suggestion,
	}).Debug("Advisor suggested a locator")
	return suggestion, nil
}

func buildUserPrompt(action entities.Action, failedSelector string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Failed locator: %s\n", failedSelector)
	fmt.Fprintf(&sb, "Locator name: %s\n", action.Name)
	fmt.Fprintf(&sb, "Action: %s\n", action.Type)
	if action.Type == entities.ActionFill {
		sb.WriteString("The element is an input that receives typed text.\n")
	}
	sb.WriteString("Error: element not found within the action timeout\n\nSuggest a better locator:")
	return sb.String()
}

// cleanSuggestion strips code fences and quotes around the selector
func cleanSuggestion(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		var body []string
		for _, line := range lines[1:] {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				break
			}
			body = append(body, line)
		}
		text = strings.TrimSpace(strings.Join(body, "\n"))
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.Trim(strings.TrimSpace(text), "`")
	return strings.Trim(text, `"'`)
}

var _ interfaces.LocatorAdvisor = (*OpenAIAdvisor)(nil)
