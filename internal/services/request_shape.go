package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/venturely/venturely-backend/internal/platform/apierr"
)

// HelpMarker is the fixed phrase clients put in a system message to flag a
// guidance turn explicitly.
const HelpMarker = "[HELP_REQUEST]"

var helpKeywords = []string{
	"help",
	"example",
	"not sure",
	"unsure",
	"guidance",
	"i don't know",
	"i dont know",
	"what should i",
	"can you suggest",
}

// IsHelpRequestText applies the keyword heuristic to a user message.
func IsHelpRequestText(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range helpKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NormalizedMessage is the single shape the orchestration layer consumes,
// whatever body shape the client sent.
type NormalizedMessage struct {
	Text          string
	SectionID     string
	IsHelpRequest bool
	DirectUpdate  bool
}

type turnRequestBody struct {
	Message       string        `json:"message"`
	Messages      []ChatMessage `json:"messages"`
	SectionID     string        `json:"sectionId"`
	IsHelpRequest *bool         `json:"isHelpRequest"`
}

// NormalizeTurnRequest accepts any of the three request bodies — a single
// message, a chat-message array, or a direct field update keyed
// "<topic>.<sectionId>" — and normalizes it. Returns a 400-status error when
// no usable message text can be found.
func NormalizeTurnRequest(topic TopicConfig, raw []byte) (NormalizedMessage, error) {
	if len(raw) == 0 {
		return NormalizedMessage{}, apierr.Validation("empty_body", fmt.Errorf("request body required"))
	}

	var body turnRequestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return NormalizedMessage{}, apierr.Validation("invalid_json", fmt.Errorf("request body is not valid JSON: %w", err))
	}

	norm := NormalizedMessage{SectionID: strings.TrimSpace(body.SectionID)}
	if body.IsHelpRequest != nil {
		norm.IsHelpRequest = *body.IsHelpRequest
	}

	if text := strings.TrimSpace(body.Message); text != "" {
		norm.Text = text
	} else if len(body.Messages) > 0 {
		for _, m := range body.Messages {
			if m.Role == "system" && strings.Contains(m.Content, HelpMarker) {
				norm.IsHelpRequest = true
			}
		}
		for i := len(body.Messages) - 1; i >= 0; i-- {
			if body.Messages[i].Role == "user" {
				norm.Text = strings.TrimSpace(body.Messages[i].Content)
				break
			}
		}
	}

	if norm.Text == "" {
		if update, ok := directFieldUpdate(topic, raw); ok {
			return update, nil
		}
		return NormalizedMessage{}, apierr.Validation("missing_message", fmt.Errorf("no usable message text in request body"))
	}

	if !norm.IsHelpRequest && IsHelpRequestText(norm.Text) {
		norm.IsHelpRequest = true
	}
	return norm, nil
}

// directFieldUpdate recognizes bodies like {"markets.targetMarket": "..."}
// that write one section value without a conversational turn.
func directFieldUpdate(topic TopicConfig, raw []byte) (NormalizedMessage, bool) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return NormalizedMessage{}, false
	}
	for key, value := range generic {
		parts := strings.SplitN(key, ".", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] != topic.Key && parts[0] != topic.Slug {
			continue
		}
		section := strings.TrimSpace(parts[1])
		if section == "" {
			continue
		}
		text, ok := value.(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		return NormalizedMessage{
			Text:         strings.TrimSpace(text),
			SectionID:    section,
			DirectUpdate: true,
		}, true
	}
	return NormalizedMessage{}, false
}
