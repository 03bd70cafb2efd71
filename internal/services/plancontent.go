package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/platform/apierr"
	"github.com/venturely/venturely-backend/internal/repos"
	"github.com/venturely/venturely-backend/internal/types"
)

const threadsContentKey = "threads"

// PlanContentService owns every read and write of the plan content document.
// All writes run in a transaction with the row locked, so concurrent turns on
// different topics of the same plan never clobber each other.
type PlanContentService interface {
	GetPlanForUser(ctx context.Context, planID, userID uuid.UUID) (*types.BusinessPlan, error)
	ThreadRef(plan *types.BusinessPlan, topicKey string) string
	SaveThreadRef(ctx context.Context, planID uuid.UUID, topicKey, threadID string) (string, error)
	TopicData(plan *types.BusinessPlan, topic TopicConfig) (map[string]any, string)
	MergeTopicData(ctx context.Context, planID uuid.UUID, topic TopicConfig, newFields map[string]any) (map[string]any, error)
	CleanTopicData(ctx context.Context, plan *types.BusinessPlan, topic TopicConfig) (map[string]any, error)
	ReplaceContentKeys(ctx context.Context, planID uuid.UUID, values map[string]any) error
}

type planContentService struct {
	db       *gorm.DB
	log      *logger.Logger
	planRepo repos.BusinessPlanRepo
}

func NewPlanContentService(db *gorm.DB, log *logger.Logger, planRepo repos.BusinessPlanRepo) (PlanContentService, error) {
	if db == nil || log == nil || planRepo == nil {
		return nil, fmt.Errorf("db, logger and plan repo required")
	}
	return &planContentService{
		db:       db,
		log:      log.With("service", "PlanContentService"),
		planRepo: planRepo,
	}, nil
}

func (s *planContentService) GetPlanForUser(ctx context.Context, planID, userID uuid.UUID) (*types.BusinessPlan, error) {
	plan, err := s.planRepo.GetByID(ctx, nil, planID)
	if err != nil {
		if err == repos.ErrPlanNotFound {
			return nil, apierr.NotFound("plan_not_found", err)
		}
		return nil, err
	}
	// Ownership failures look identical to missing plans so plan ids cannot
	// be probed.
	if plan.UserID != userID {
		return nil, apierr.NotFound("plan_not_found", repos.ErrPlanNotFound)
	}
	return plan, nil
}

func (s *planContentService) ThreadRef(plan *types.BusinessPlan, topicKey string) string {
	content := decodeContent(plan.Content)
	threads, ok := content[threadsContentKey].(map[string]any)
	if !ok {
		return ""
	}
	ref, _ := threads[topicKey].(string)
	return ref
}

// SaveThreadRef records the thread id for a topic. If another request already
// recorded one, the existing ref wins and is returned as the canonical value.
func (s *planContentService) SaveThreadRef(ctx context.Context, planID uuid.UUID, topicKey, threadID string) (string, error) {
	canonical := threadID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.planRepo.GetByIDForUpdate(ctx, tx, planID)
		if err != nil {
			return err
		}
		content := decodeContent(plan.Content)
		threads, ok := content[threadsContentKey].(map[string]any)
		if !ok {
			threads = map[string]any{}
		}
		if existing, _ := threads[topicKey].(string); existing != "" {
			canonical = existing
			return nil
		}
		threads[topicKey] = threadID
		content[threadsContentKey] = threads
		raw, err := json.Marshal(content)
		if err != nil {
			return err
		}
		return s.planRepo.UpdateContent(ctx, tx, planID, raw)
	})
	if err != nil {
		return "", err
	}
	return canonical, nil
}

// TopicData returns the stored structured object and rendered markdown for a
// topic. Either may be empty.
func (s *planContentService) TopicData(plan *types.BusinessPlan, topic TopicConfig) (map[string]any, string) {
	content := decodeContent(plan.Content)
	data, _ := content[topic.DataKey()].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	markdown, _ := content[topic.Key].(string)
	return data, markdown
}

// MergeTopicData shallow-merges newFields into the topic's structured object
// and re-renders the topic markdown, all under a row lock. Keys belonging to
// other topics are untouched.
func (s *planContentService) MergeTopicData(ctx context.Context, planID uuid.UUID, topic TopicConfig, newFields map[string]any) (map[string]any, error) {
	var merged map[string]any
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.planRepo.GetByIDForUpdate(ctx, tx, planID)
		if err != nil {
			return err
		}
		content := decodeContent(plan.Content)
		existing, _ := content[topic.DataKey()].(map[string]any)
		if existing == nil {
			existing = map[string]any{}
		}
		for k, v := range newFields {
			existing[k] = v
		}
		merged = existing
		content[topic.DataKey()] = existing
		content[topic.Key] = RenderTopicMarkdown(topic, existing)
		raw, err := json.Marshal(content)
		if err != nil {
			return err
		}
		return s.planRepo.UpdateContent(ctx, tx, planID, raw)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// CleanTopicData drops malformed field values (nils, wrong shapes, empty
// strings) from a topic's stored object and writes the cleaned object back
// when anything changed.
func (s *planContentService) CleanTopicData(ctx context.Context, plan *types.BusinessPlan, topic TopicConfig) (map[string]any, error) {
	data, _ := s.TopicData(plan, topic)
	cleaned := make(map[string]any, len(data))
	changed := false
	for k, v := range data {
		if v == nil {
			changed = true
			continue
		}
		field, known := topic.Field(k)
		if !known {
			cleaned[k] = v
			continue
		}
		switch field.Kind {
		case FieldList, FieldTable:
			if _, ok := v.([]any); !ok {
				changed = true
				continue
			}
		default:
			text, ok := v.(string)
			if !ok || strings.TrimSpace(text) == "" {
				changed = true
				continue
			}
		}
		cleaned[k] = v
	}

	if changed {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.planRepo.GetByIDForUpdate(ctx, tx, plan.ID)
			if err != nil {
				return err
			}
			content := decodeContent(locked.Content)
			content[topic.DataKey()] = cleaned
			content[topic.Key] = RenderTopicMarkdown(topic, cleaned)
			raw, err := json.Marshal(content)
			if err != nil {
				return err
			}
			return s.planRepo.UpdateContent(ctx, tx, plan.ID, raw)
		})
		if err != nil {
			// GET-path cleanup is opportunistic: serve the cleaned view anyway.
			s.log.Warn("Failed to persist cleaned topic data", "plan_id", plan.ID, "topic", topic.Key, "error", err)
		}
	}
	return cleaned, nil
}

// ReplaceContentKeys overwrites the given top-level content keys, leaving all
// other keys alone.
func (s *planContentService) ReplaceContentKeys(ctx context.Context, planID uuid.UUID, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.planRepo.GetByIDForUpdate(ctx, tx, planID)
		if err != nil {
			return err
		}
		content := decodeContent(plan.Content)
		for k, v := range values {
			content[k] = v
		}
		raw, err := json.Marshal(content)
		if err != nil {
			return err
		}
		return s.planRepo.UpdateContent(ctx, tx, planID, raw)
	})
}

// decodeContent never fails: a nil or corrupt document decodes to an empty
// map so the caller can rebuild from there.
func decodeContent(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil || content == nil {
		return map[string]any{}
	}
	return content
}
