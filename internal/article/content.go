package article

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// EncodeContent serialises a rich-text document for storage. Strings are
// stored verbatim so clients that pre-serialise the document are not double
// encoded.
func EncodeContent(content any) (string, error) {
	switch value := content.(type) {
	case nil:
		return "", eris.Wrap(ErrInvalidInput, "content is required")
	case string:
		return value, nil
	case []byte:
		return string(value), nil
	case json.RawMessage:
		return string(value), nil
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return "", eris.Wrap(ErrInvalidInput, "content is not serialisable: "+err.Error())
	}

	return string(encoded), nil
}

// DecodeContent turns stored content back into a JSON value. Values that are
// not valid JSON are returned as the raw string.
func DecodeContent(stored string) any {
	trimmed := strings.TrimSpace(stored)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return stored
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return stored
	}

	return value
}

// PlainText concatenates the text nodes of a rich-text document, separating
// block nodes with newlines.
func PlainText(content any) string {
	var builder strings.Builder
	collectText(&builder, content)
	return strings.TrimSpace(builder.String())
}

func collectText(builder *strings.Builder, node any) {
	switch value := node.(type) {
	case string:
		builder.WriteString(value)
	case []any:
		for _, child := range value {
			collectText(builder, child)
		}
	case map[string]any:
		if text, ok := value["text"].(string); ok {
			builder.WriteString(text)
		}
		if children, ok := value["content"]; ok {
			collectText(builder, children)
		}
		if nodeType, _ := value["type"].(string); isBlockNode(nodeType) {
			builder.WriteString("\n")
		}
	}
}

func isBlockNode(nodeType string) bool {
	switch nodeType {
	case "paragraph", "heading", "blockquote", "listItem", "codeBlock":
		return true
	default:
		return false
	}
}
