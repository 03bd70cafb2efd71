package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/venturely/venturely-backend/internal/clients/assistant"
	"github.com/venturely/venturely-backend/internal/clients/redis"
	"github.com/venturely/venturely-backend/internal/logger"
)

// ExtractionService turns a conversation into a structured topic object.
// Extraction never fails the caller: any error yields the topic's fallback
// object and the conversational reply still goes out.
type ExtractionService interface {
	Extract(ctx context.Context, topic TopicConfig, threadID string, meta CallMeta) map[string]any
}

type extractionService struct {
	log     *logger.Logger
	gateway assistant.Gateway
	pacer   redis.Pacer
	convo   ConversationService
}

func NewExtractionService(log *logger.Logger, gateway assistant.Gateway, pacer redis.Pacer, convo ConversationService) (ExtractionService, error) {
	if log == nil || gateway == nil || pacer == nil || convo == nil {
		return nil, fmt.Errorf("logger, gateway, pacer and conversation service required")
	}
	return &extractionService{
		log:     log.With("service", "ExtractionService"),
		gateway: gateway,
		pacer:   pacer,
		convo:   convo,
	}, nil
}

func (s *extractionService) Extract(ctx context.Context, topic TopicConfig, threadID string, meta CallMeta) map[string]any {
	meta.CallType = "extraction"

	var (
		text string
		err  error
	)
	if topic.ExtractInThread {
		text, err = s.extractInThread(ctx, topic, threadID, meta)
	} else {
		text, err = s.extractInSideThread(ctx, topic, threadID, meta)
	}
	if err != nil {
		s.log.Warn("Extraction failed, using fallback object", "topic", topic.Key, "thread_id", threadID, "error", err)
		return topic.FallbackObject()
	}

	obj, ok := ParseJSONObject(text)
	if !ok {
		s.log.Warn("Extraction reply was not a JSON object, using fallback object", "topic", topic.Key, "thread_id", threadID)
		return topic.FallbackObject()
	}
	return obj
}

// extractInSideThread runs the extraction on a throwaway thread seeded with
// the transcript, keeping the conversational thread free of prompts.
func (s *extractionService) extractInSideThread(ctx context.Context, topic TopicConfig, threadID string, meta CallMeta) (string, error) {
	transcript, err := s.convo.Transcript(ctx, threadID)
	if err != nil {
		return "", err
	}
	sideThread, err := s.gateway.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	prompt := topic.ExtractionPrompt + "\n\nConversation transcript:\n" + transcript
	if err := s.pacer.Wait(ctx, topic.AssistantID); err != nil {
		return "", err
	}
	if _, err := s.gateway.AddMessage(ctx, sideThread, "user", prompt); err != nil {
		return "", err
	}
	if _, err := s.convo.StartAndAwaitRun(ctx, sideThread, topic.AssistantID, topic.ExtractionPrompt, meta); err != nil {
		return "", err
	}
	msg, err := s.convo.LatestAssistantMessage(ctx, sideThread)
	if err != nil {
		return "", err
	}
	return msg.Text, nil
}

// extractInThread runs the extraction on the conversational thread itself,
// then deletes the prompt and the reply so the conversation stays clean.
func (s *extractionService) extractInThread(ctx context.Context, topic TopicConfig, threadID string, meta CallMeta) (string, error) {
	if err := s.pacer.Wait(ctx, topic.AssistantID); err != nil {
		return "", err
	}
	requestID, err := s.gateway.AddMessage(ctx, threadID, "user", topic.ExtractionPrompt)
	if err != nil {
		return "", err
	}
	if _, err := s.convo.StartAndAwaitRun(ctx, threadID, topic.AssistantID, topic.ExtractionPrompt, meta); err != nil {
		return "", err
	}
	msg, err := s.convo.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		return "", err
	}

	// Cleanup is best-effort; a leftover message is cosmetic.
	if delErr := s.gateway.DeleteMessage(ctx, threadID, requestID); delErr != nil {
		s.log.Debug("Failed to delete extraction prompt", "thread_id", threadID, "message_id", requestID, "error", delErr)
	}
	if msg.ID != "" {
		if delErr := s.gateway.DeleteMessage(ctx, threadID, msg.ID); delErr != nil {
			s.log.Debug("Failed to delete extraction reply", "thread_id", threadID, "message_id", msg.ID, "error", delErr)
		}
	}
	return msg.Text, nil
}

// ParseJSONObject pulls the first-to-last-brace span out of text and decodes
// it, tolerating prose or fences around the object.
func ParseJSONObject(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
