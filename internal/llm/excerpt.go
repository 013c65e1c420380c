package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
	"github.com/openai/openai-go/v2/shared/constant"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// ExcerptDrafter proposes a short teaser for an article.
type ExcerptDrafter interface {
	DraftExcerpt(ctx context.Context, title, body string) (string, error)
}

// ExcerptOptions configures the chat-backed drafter.
type ExcerptOptions struct {
	Client       *Client
	Model        string
	Temperature  float64
	SystemPrompt string
	MaxRunes     int
}

type chatExcerptDrafter struct {
	client         *Client
	logger         *logrus.Logger
	model          string
	temperature    float64
	systemPrompt   string
	maxRunes       int
	responseFormat openai.ChatCompletionNewParamsResponseFormatUnion
}

const (
	defaultExcerptSystemPrompt = "You are the sub-editor of a Japanese food magazine published in London. Write a two-sentence teaser for the article you are given, in the article's own language, without markup."
	defaultExcerptTemperature  = 0.4
	defaultExcerptMaxRunes     = 320
	// Longer bodies are truncated before they are sent to the model.
	maxPromptBodyRunes = 6000
)

// NewExcerptDrafter constructs an ExcerptDrafter backed by a chat completion model.
func NewExcerptDrafter(opts ExcerptOptions) (ExcerptDrafter, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("excerpt model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultExcerptTemperature
	}

	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultExcerptSystemPrompt
	}

	maxRunes := opts.MaxRunes
	if maxRunes <= 0 {
		maxRunes = defaultExcerptMaxRunes
	}

	return &chatExcerptDrafter{
		client:         opts.Client,
		logger:         opts.Client.logger,
		model:          model,
		temperature:    temperature,
		systemPrompt:   systemPrompt,
		maxRunes:       maxRunes,
		responseFormat: buildExcerptResponseFormat(),
	}, nil
}

func (d *chatExcerptDrafter) DraftExcerpt(ctx context.Context, title, body string) (string, error) {
	title = strings.TrimSpace(title)
	body = truncateRunes(strings.TrimSpace(body), maxPromptBodyRunes)
	if title == "" && body == "" {
		return "", eris.New("title or body is required")
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(d.systemPrompt),
			openai.UserMessage(fmt.Sprintf("Title: %s\n\n%s\n\nReturn JSON that matches the provided schema.", title, body)),
		},
		ResponseFormat: d.responseFormat,
		Temperature:    openai.Float(d.temperature),
	}

	completion, err := d.client.chat.New(ctx, params)
	if err != nil {
		d.logError(logrus.Fields{"title": title}, err, "requesting chat completion")
		return "", eris.Wrap(err, "requesting chat completion")
	}

	if len(completion.Choices) == 0 {
		err := eris.New("llm completion returned no choices")
		d.logError(logrus.Fields{"title": title}, err, "processing chat completion")
		return "", err
	}

	choice := completion.Choices[0]
	if reason := strings.TrimSpace(choice.FinishReason); strings.EqualFold(reason, "content_filter") {
		err := eris.New("llm blocked the request via content filter")
		d.logError(logrus.Fields{"title": title}, err, "excerpt blocked")
		return "", err
	}

	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		err := eris.Errorf("llm refused to draft an excerpt: %s", refusal)
		d.logError(logrus.Fields{"title": title}, err, "excerpt refused")
		return "", err
	}

	excerpt, err := parseExcerpt(choice.Message.Content)
	if err != nil {
		d.logError(logrus.Fields{"title": title}, err, "parsing llm response")
		return "", err
	}

	return truncateRunes(excerpt, d.maxRunes), nil
}

type excerptPayload struct {
	Excerpt string `json:"excerpt"`
}

// parseExcerpt accepts the structured payload or, from models that ignore
// the schema, plain text. Markup is stripped either way.
func parseExcerpt(raw string) (string, error) {
	trimmed := stripCodeFence(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", eris.New("llm response content is empty")
	}

	text := trimmed
	var payload excerptPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		text = payload.Excerpt
	}

	cleaned, err := stripMarkup(text)
	if err != nil {
		return "", err
	}
	if cleaned == "" {
		return "", eris.New("llm response missing excerpt text")
	}

	return cleaned, nil
}

// stripMarkup returns the text content of an HTML fragment with whitespace collapsed.
func stripMarkup(fragment string) (string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", eris.Wrap(err, "parsing excerpt markup")
	}

	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
			return
		}
		if node.Type == html.TextNode {
			builder.WriteString(node.Data)
			builder.WriteByte(' ')
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(builder.String()), " "), nil
}

func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}

	body := content[3:]
	newline := strings.IndexByte(body, '\n')
	if newline == -1 {
		return content
	}
	body = body[newline+1:]

	trimmedBody := strings.TrimRight(body, " \t\r\n")
	if !strings.HasSuffix(trimmedBody, "```") {
		return content
	}

	trimmedBody = strings.TrimRight(trimmedBody[:len(trimmedBody)-3], " \t\r\n")
	return strings.TrimSpace(trimmedBody)
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}

	runes := []rune(value)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func (d *chatExcerptDrafter) logError(fields logrus.Fields, err error, message string) {
	if d.logger == nil || err == nil {
		return
	}

	entry := d.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}

func buildExcerptResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	schema := map[string]any{
		"type":                 "object",
		"required":             []string{"excerpt"},
		"additionalProperties": false,
		"properties": map[string]any{
			"excerpt": map[string]any{
				"type":        "string",
				"description": "Two-sentence plain-text teaser for the article.",
			},
		},
	}

	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        "article_excerpt",
				Description: openai.String("Article teaser payload"),
				Strict:      openai.Bool(true),
				Schema:      schema,
			},
			Type: constant.ValueOf[constant.JSONSchema](),
		},
	}
}
