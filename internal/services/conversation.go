package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/venturely/venturely-backend/internal/clients/assistant"
	"github.com/venturely/venturely-backend/internal/clients/redis"
	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/pkg/httpx"
	"github.com/venturely/venturely-backend/internal/platform/apierr"
	"github.com/venturely/venturely-backend/internal/repos"
	"github.com/venturely/venturely-backend/internal/types"
	"github.com/venturely/venturely-backend/internal/utils"
)

// CallMeta identifies who triggered an assistant call and why, for the audit
// log.
type CallMeta struct {
	PlanID   uuid.UUID
	UserID   uuid.UUID
	Topic    string
	CallType string
}

type TurnResult struct {
	Reply    string
	RawReply string
	ThreadID string
	RunID    string
}

// ConversationService drives one conversational turn end to end: thread
// resolution, pacing, run creation and bounded polling.
type ConversationService interface {
	RunTurn(ctx context.Context, plan *types.BusinessPlan, topic TopicConfig, meta CallMeta, messageText string, helpRequest bool) (TurnResult, error)
	StartAndAwaitRun(ctx context.Context, threadID, assistantID, instructions string, meta CallMeta) (assistant.Run, error)
	LatestAssistantMessage(ctx context.Context, threadID string) (assistant.Message, error)
	Transcript(ctx context.Context, threadID string) (string, error)
}

type conversationService struct {
	log          *logger.Logger
	gateway      assistant.Gateway
	pacer        redis.Pacer
	planContent  PlanContentService
	callLogRepo  repos.AssistantCallLogRepo
	pollInterval time.Duration
	runBudget    time.Duration
	maxAttempts  int
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
}

func NewConversationService(
	log *logger.Logger,
	gateway assistant.Gateway,
	pacer redis.Pacer,
	planContent PlanContentService,
	callLogRepo repos.AssistantCallLogRepo,
) (ConversationService, error) {
	if log == nil || gateway == nil || pacer == nil || planContent == nil {
		return nil, fmt.Errorf("logger, gateway, pacer and plan content service required")
	}
	return &conversationService{
		log:          log.With("service", "ConversationService"),
		gateway:      gateway,
		pacer:        pacer,
		planContent:  planContent,
		callLogRepo:  callLogRepo,
		pollInterval: utils.GetEnvAsDuration("ASSISTANT_POLL_INTERVAL", time.Second, log),
		runBudget:    utils.GetEnvAsDuration("ASSISTANT_RUN_BUDGET", 120*time.Second, log),
		maxAttempts:  utils.GetEnvAsInt("ASSISTANT_POLL_MAX_ATTEMPTS", 150, log),
		sleep:        sleepCtx,
		now:          time.Now,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *conversationService) RunTurn(ctx context.Context, plan *types.BusinessPlan, topic TopicConfig, meta CallMeta, messageText string, helpRequest bool) (TurnResult, error) {
	if strings.TrimSpace(topic.AssistantID) == "" {
		return TurnResult{}, apierr.Unavailable("assistant_not_configured", fmt.Errorf("no assistant configured for topic %s", topic.Key))
	}

	threadID, err := s.ensureThread(ctx, plan, topic)
	if err != nil {
		return TurnResult{}, err
	}

	s.awaitPriorRuns(ctx, threadID)

	if err := s.pacer.Wait(ctx, topic.AssistantID); err != nil {
		return TurnResult{}, err
	}

	if _, err := s.gateway.AddMessage(ctx, threadID, "user", messageText); err != nil {
		return TurnResult{}, mapGatewayErr("add message", err)
	}

	instructions := topic.Instructions
	if helpRequest {
		instructions = topic.HelpInstructions
	}

	if meta.CallType == "" {
		meta.CallType = "turn"
	}
	run, err := s.StartAndAwaitRun(ctx, threadID, topic.AssistantID, instructions, meta)
	if err != nil {
		return TurnResult{}, err
	}

	msg, err := s.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		return TurnResult{}, err
	}

	return TurnResult{
		Reply:    SanitizeAssistantReply(msg.Text),
		RawReply: msg.Text,
		ThreadID: threadID,
		RunID:    run.ID,
	}, nil
}

// ensureThread returns the plan's thread for the topic, creating and
// recording one when absent. A concurrently recorded ref wins.
func (s *conversationService) ensureThread(ctx context.Context, plan *types.BusinessPlan, topic TopicConfig) (string, error) {
	if ref := s.planContent.ThreadRef(plan, topic.Key); ref != "" {
		return ref, nil
	}
	created, err := s.gateway.CreateThread(ctx)
	if err != nil {
		return "", mapGatewayErr("create thread", err)
	}
	canonical, err := s.planContent.SaveThreadRef(ctx, plan.ID, topic.Key, created)
	if err != nil {
		return "", err
	}
	if canonical != created {
		s.log.Debug("Discarding freshly created thread, another turn won the race",
			"plan_id", plan.ID, "topic", topic.Key, "created", created, "canonical", canonical)
	}
	return canonical, nil
}

// awaitPriorRuns waits for any still-active runs on the thread; the service
// rejects new messages while a run is in flight. The prior run failing is not
// this turn's failure.
func (s *conversationService) awaitPriorRuns(ctx context.Context, threadID string) {
	runs, err := s.gateway.ListRuns(ctx, threadID, 5)
	if err != nil {
		s.log.Warn("Failed to list prior runs", "thread_id", threadID, "error", err)
		return
	}
	for _, run := range runs {
		if assistant.IsTerminalRunStatus(run.Status) {
			continue
		}
		if _, err := s.pollRun(ctx, threadID, run.ID); err != nil {
			s.log.Warn("Prior run did not finish cleanly", "thread_id", threadID, "run_id", run.ID, "error", err)
		}
	}
}

func (s *conversationService) StartAndAwaitRun(ctx context.Context, threadID, assistantID, instructions string, meta CallMeta) (assistant.Run, error) {
	// Every run creation is paced, so extraction runs honor the same minimum
	// spacing as conversational turns.
	if err := s.pacer.Wait(ctx, assistantID); err != nil {
		return assistant.Run{}, err
	}
	run, err := s.gateway.CreateRun(ctx, threadID, assistantID, instructions)
	if err != nil {
		return assistant.Run{}, mapGatewayErr("create run", err)
	}
	final, pollErr := s.pollRun(ctx, threadID, run.ID)
	s.recordCall(meta, threadID, run.ID, final, pollErr)
	if pollErr != nil {
		return final, pollErr
	}
	return final, nil
}

// pollRun checks the run at a fixed interval until it reaches a terminal
// state, the attempt cap is hit, or the time budget runs out.
func (s *conversationService) pollRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	deadline := s.now().Add(s.runBudget)
	var run assistant.Run

	for attempt := 0; ; attempt++ {
		var err error
		run, err = s.gateway.GetRun(ctx, threadID, runID)
		if err != nil {
			return run, mapGatewayErr("get run", err)
		}
		if assistant.IsTerminalRunStatus(run.Status) {
			break
		}
		if attempt+1 >= s.maxAttempts || !s.now().Add(s.pollInterval).Before(deadline) {
			return run, apierr.Unavailable("run_timed_out",
				fmt.Errorf("run %s still %s after %d checks", runID, run.Status, attempt+1))
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return run, err
		}
	}

	if run.Status != assistant.RunStatusCompleted {
		detail := run.LastError
		if detail == "" {
			detail = run.Status
		}
		return run, apierr.Unavailable("run_failed", fmt.Errorf("run %s ended %s: %s", runID, run.Status, detail))
	}
	return run, nil
}

func (s *conversationService) LatestAssistantMessage(ctx context.Context, threadID string) (assistant.Message, error) {
	messages, err := s.gateway.ListMessages(ctx, threadID, "desc")
	if err != nil {
		return assistant.Message{}, mapGatewayErr("list messages", err)
	}
	for _, msg := range messages {
		if msg.Role == "assistant" && strings.TrimSpace(msg.Text) != "" {
			return msg, nil
		}
	}
	return assistant.Message{}, apierr.Unavailable("no_assistant_response",
		fmt.Errorf("no assistant message found on thread %s", threadID))
}

func (s *conversationService) Transcript(ctx context.Context, threadID string) (string, error) {
	messages, err := s.gateway.ListMessages(ctx, threadID, "asc")
	if err != nil {
		return "", mapGatewayErr("list messages", err)
	}
	var b strings.Builder
	for _, msg := range messages {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Text)
	}
	return b.String(), nil
}

func mapGatewayErr(op string, err error) error {
	if httpx.StatusCodeOf(err) == 429 {
		return apierr.RateLimited(fmt.Errorf("%s: %w", op, err))
	}
	return apierr.Unavailable("assistant_gateway", fmt.Errorf("%s: %w", op, err))
}

// recordCall writes one audit row per run. Logging failures never fail the
// turn.
func (s *conversationService) recordCall(meta CallMeta, threadID, runID string, run assistant.Run, runErr error) {
	if s.callLogRepo == nil {
		return
	}
	entry := &types.AssistantCallLog{
		Topic:    meta.Topic,
		CallType: meta.CallType,
		ThreadID: threadID,
		RunID:    runID,
		Status:   run.Status,
		Success:  runErr == nil,
	}
	if len(run.Usage) > 0 {
		entry.Usage = datatypes.JSON(run.Usage)
	}
	if meta.PlanID != uuid.Nil {
		planID := meta.PlanID
		entry.PlanID = &planID
	}
	if meta.UserID != uuid.Nil {
		userID := meta.UserID
		entry.UserID = &userID
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.callLogRepo.Create(ctx, nil, []*types.AssistantCallLog{entry}); err != nil {
		s.log.Warn("Failed to record assistant call", "thread_id", threadID, "run_id", runID, "error", err)
	}
}
