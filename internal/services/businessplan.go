package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/platform/apierr"
	"github.com/venturely/venturely-backend/internal/repos"
	"github.com/venturely/venturely-backend/internal/types"
)

type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnResponse is what one conversational turn returns to the client: the
// assistant's reply plus the topic's current structured data.
type TurnResponse struct {
	Message AssistantMessage
	Data    map[string]any
}

type BusinessPlanService interface {
	CreatePlan(ctx context.Context, userID uuid.UUID, title string) (*types.BusinessPlan, error)
	GetUserPlans(ctx context.Context, userID uuid.UUID) ([]*types.BusinessPlan, error)
	GetPlanForUser(ctx context.Context, userID, planID uuid.UUID) (*types.BusinessPlan, error)
	GetTopicContent(ctx context.Context, userID, planID uuid.UUID, topic TopicConfig) (map[string]any, string, error)
	HandleTurn(ctx context.Context, userID, planID uuid.UUID, topic TopicConfig, req NormalizedMessage) (TurnResponse, error)
	Summary(ctx context.Context, userID, planID uuid.UUID) (string, error)
	RefreshSummaries(ctx context.Context, userID, planID uuid.UUID) error
}

type businessPlanService struct {
	db          *gorm.DB
	log         *logger.Logger
	planRepo    repos.BusinessPlanRepo
	planContent PlanContentService
	convo       ConversationService
	extraction  ExtractionService
	registry    *TopicRegistry
}

func NewBusinessPlanService(
	db *gorm.DB,
	log *logger.Logger,
	planRepo repos.BusinessPlanRepo,
	planContent PlanContentService,
	convo ConversationService,
	extraction ExtractionService,
	registry *TopicRegistry,
) (BusinessPlanService, error) {
	if db == nil || log == nil || planRepo == nil || planContent == nil || convo == nil || extraction == nil || registry == nil {
		return nil, fmt.Errorf("all dependencies required")
	}
	return &businessPlanService{
		db:          db,
		log:         log.With("service", "BusinessPlanService"),
		planRepo:    planRepo,
		planContent: planContent,
		convo:       convo,
		extraction:  extraction,
		registry:    registry,
	}, nil
}

func (s *businessPlanService) CreatePlan(ctx context.Context, userID uuid.UUID, title string) (*types.BusinessPlan, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apierr.Validation("missing_title", fmt.Errorf("plan title required"))
	}
	content, err := json.Marshal(map[string]any{threadsContentKey: map[string]any{}})
	if err != nil {
		return nil, err
	}
	plan := &types.BusinessPlan{
		ID:      uuid.New(),
		UserID:  userID,
		Title:   title,
		Content: datatypes.JSON(content),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.planRepo.Create(ctx, tx, []*types.BusinessPlan{plan})
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *businessPlanService) GetUserPlans(ctx context.Context, userID uuid.UUID) ([]*types.BusinessPlan, error) {
	return s.planRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
}

func (s *businessPlanService) GetPlanForUser(ctx context.Context, userID, planID uuid.UUID) (*types.BusinessPlan, error) {
	return s.planContent.GetPlanForUser(ctx, planID, userID)
}

// GetTopicContent returns the structured object and the rendered markdown for
// one topic, cleaning malformed stored values on the way out.
func (s *businessPlanService) GetTopicContent(ctx context.Context, userID, planID uuid.UUID, topic TopicConfig) (map[string]any, string, error) {
	plan, err := s.planContent.GetPlanForUser(ctx, planID, userID)
	if err != nil {
		return nil, "", err
	}
	data, err := s.planContent.CleanTopicData(ctx, plan, topic)
	if err != nil {
		return nil, "", err
	}
	// Render from the cleaned object, not the pre-clean snapshot, so the
	// markdown never shows a value the cleanup just dropped.
	markdown := RenderTopicMarkdown(topic, data)
	return data, markdown, nil
}

func (s *businessPlanService) HandleTurn(ctx context.Context, userID, planID uuid.UUID, topic TopicConfig, req NormalizedMessage) (TurnResponse, error) {
	plan, err := s.planContent.GetPlanForUser(ctx, planID, userID)
	if err != nil {
		return TurnResponse{}, err
	}

	if req.DirectUpdate {
		merged, err := s.planContent.MergeTopicData(ctx, plan.ID, topic, map[string]any{req.SectionID: req.Text})
		if err != nil {
			return TurnResponse{}, err
		}
		return TurnResponse{
			Message: AssistantMessage{
				Role:    "assistant",
				Content: fmt.Sprintf("Got it — I've updated %s in your %s section.", req.SectionID, strings.ToLower(topic.Title)),
			},
			Data: merged,
		}, nil
	}

	meta := CallMeta{PlanID: plan.ID, UserID: userID, Topic: topic.Key, CallType: "turn"}
	result, err := s.convo.RunTurn(ctx, plan, topic, meta, req.Text, req.IsHelpRequest)
	if err != nil {
		return TurnResponse{}, err
	}

	// Help turns establish no durable facts, so extraction is skipped.
	if req.IsHelpRequest {
		data, _ := s.planContent.TopicData(plan, topic)
		return TurnResponse{
			Message: AssistantMessage{Role: "assistant", Content: result.Reply},
			Data:    data,
		}, nil
	}

	extracted := s.extraction.Extract(ctx, topic, result.ThreadID, meta)
	merged, err := s.planContent.MergeTopicData(ctx, plan.ID, topic, extracted)
	if err != nil {
		// The reply is still worth returning; the merge can be retried on
		// the next turn.
		s.log.Warn("Failed to persist extracted topic data", "plan_id", plan.ID, "topic", topic.Key, "error", err)
		merged = extracted
	}

	return TurnResponse{
		Message: AssistantMessage{Role: "assistant", Content: result.Reply},
		Data:    merged,
	}, nil
}

// Summary assembles the whole-plan markdown document from the per-topic
// rendered sections, in registry order.
func (s *businessPlanService) Summary(ctx context.Context, userID, planID uuid.UUID) (string, error) {
	plan, err := s.planContent.GetPlanForUser(ctx, planID, userID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", plan.Title)
	for _, topic := range s.registry.Topics() {
		_, markdown := s.planContent.TopicData(plan, topic)
		markdown = strings.TrimSpace(markdown)
		if markdown == "" {
			continue
		}
		b.WriteString(markdown)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

// RefreshSummaries re-renders every topic's markdown from its stored data,
// repairing summaries after renderer changes.
func (s *businessPlanService) RefreshSummaries(ctx context.Context, userID, planID uuid.UUID) error {
	plan, err := s.planContent.GetPlanForUser(ctx, planID, userID)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	rendered := make(map[string]any)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, topic := range s.registry.Topics() {
		topic := topic
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			data, _ := s.planContent.TopicData(plan, topic)
			if len(data) == 0 {
				return nil
			}
			markdown := RenderTopicMarkdown(topic, data)
			mu.Lock()
			rendered[topic.Key] = markdown
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.planContent.ReplaceContentKeys(ctx, plan.ID, rendered)
}
