package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/venturely/venturely-backend/internal/clients/assistant"
	"github.com/venturely/venturely-backend/internal/clients/redis"
	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/platform/apierr"
	"github.com/venturely/venturely-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fakeGateway struct {
	mu            sync.Mutex
	runStatuses   []string
	getRunCalls   int
	threadsMade   int
	messagesAdded []string
	replies       []assistant.Message
	priorRuns     []assistant.Run
	lastError     string
}

func (f *fakeGateway) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadsMade++
	return "thread_new", nil
}

func (f *fakeGateway) AddMessage(ctx context.Context, threadID, role, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messagesAdded = append(f.messagesAdded, text)
	return "msg_1", nil
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	return nil
}

func (f *fakeGateway) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (assistant.Run, error) {
	return assistant.Run{ID: "run_1", ThreadID: threadID, Status: assistant.RunStatusQueued}, nil
}

func (f *fakeGateway) GetRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.getRunCalls
	f.getRunCalls++
	if idx >= len(f.runStatuses) {
		idx = len(f.runStatuses) - 1
	}
	return assistant.Run{ID: runID, ThreadID: threadID, Status: f.runStatuses[idx], LastError: f.lastError}, nil
}

func (f *fakeGateway) ListRuns(ctx context.Context, threadID string, limit int) ([]assistant.Run, error) {
	return f.priorRuns, nil
}

func (f *fakeGateway) ListMessages(ctx context.Context, threadID, order string) ([]assistant.Message, error) {
	return f.replies, nil
}

type fakePacer struct {
	mu    sync.Mutex
	waits []string
}

func (f *fakePacer) Wait(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, key)
	return nil
}

func (f *fakePacer) Close() error { return nil }

type fakePlanContent struct {
	refs     map[string]string
	saved    map[string]string
	stored   map[string]any
	merges   int
	mergeErr error
}

func newFakePlanContent() *fakePlanContent {
	return &fakePlanContent{refs: map[string]string{}, saved: map[string]string{}, stored: map[string]any{}}
}

func (f *fakePlanContent) GetPlanForUser(ctx context.Context, planID, userID uuid.UUID) (*types.BusinessPlan, error) {
	return &types.BusinessPlan{ID: planID, UserID: userID}, nil
}

func (f *fakePlanContent) ThreadRef(plan *types.BusinessPlan, topicKey string) string {
	return f.refs[topicKey]
}

func (f *fakePlanContent) SaveThreadRef(ctx context.Context, planID uuid.UUID, topicKey, threadID string) (string, error) {
	if existing := f.refs[topicKey]; existing != "" {
		return existing, nil
	}
	f.refs[topicKey] = threadID
	f.saved[topicKey] = threadID
	return threadID, nil
}

func (f *fakePlanContent) TopicData(plan *types.BusinessPlan, topic TopicConfig) (map[string]any, string) {
	return f.stored, ""
}

func (f *fakePlanContent) MergeTopicData(ctx context.Context, planID uuid.UUID, topic TopicConfig, newFields map[string]any) (map[string]any, error) {
	f.merges++
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	for k, v := range newFields {
		f.stored[k] = v
	}
	return f.stored, nil
}

func (f *fakePlanContent) CleanTopicData(ctx context.Context, plan *types.BusinessPlan, topic TopicConfig) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakePlanContent) ReplaceContentKeys(ctx context.Context, planID uuid.UUID, values map[string]any) error {
	return nil
}

func newTestConversation(t *testing.T, gateway *fakeGateway, content *fakePlanContent) *conversationService {
	t.Helper()
	return &conversationService{
		log:          testLogger(t),
		gateway:      gateway,
		pacer:        redis.NewLocalPacer(0),
		planContent:  content,
		pollInterval: time.Millisecond,
		runBudget:    time.Minute,
		maxAttempts:  150,
		sleep:        func(ctx context.Context, d time.Duration) error { return nil },
		now:          time.Now,
	}
}

func turnTopic() TopicConfig {
	topic := testTopic()
	topic.AssistantID = "asst_test"
	return topic
}

func TestRunTurnPollsUntilComplete(t *testing.T) {
	gateway := &fakeGateway{
		runStatuses: []string{assistant.RunStatusQueued, assistant.RunStatusInProgress, assistant.RunStatusCompleted},
		replies: []assistant.Message{
			{ID: "msg_a", Role: "assistant", Text: "Great, who are your main competitors in that space?"},
		},
	}
	content := newFakePlanContent()
	svc := newTestConversation(t, gateway, content)

	plan := &types.BusinessPlan{ID: uuid.New()}
	result, err := svc.RunTurn(context.Background(), plan, turnTopic(), CallMeta{}, "We sell to small restaurants.", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.getRunCalls != 3 {
		t.Fatalf("GetRun calls = %d, want 3", gateway.getRunCalls)
	}
	if result.Reply != "Great, who are your main competitors in that space?" {
		t.Fatalf("reply = %q", result.Reply)
	}
	if result.ThreadID != "thread_new" || result.RunID != "run_1" {
		t.Fatalf("result = %+v", result)
	}
	if content.saved["markets"] != "thread_new" {
		t.Fatalf("thread ref not saved: %v", content.saved)
	}
}

func TestRunTurnReusesExistingThread(t *testing.T) {
	gateway := &fakeGateway{
		runStatuses: []string{assistant.RunStatusCompleted},
		replies: []assistant.Message{
			{ID: "msg_a", Role: "assistant", Text: "Understood, let's keep building on what you have."},
		},
	}
	content := newFakePlanContent()
	content.refs["markets"] = "thread_existing"
	svc := newTestConversation(t, gateway, content)

	plan := &types.BusinessPlan{ID: uuid.New()}
	result, err := svc.RunTurn(context.Background(), plan, turnTopic(), CallMeta{}, "Another answer.", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.threadsMade != 0 {
		t.Fatalf("CreateThread calls = %d, want 0", gateway.threadsMade)
	}
	if result.ThreadID != "thread_existing" {
		t.Fatalf("thread id = %q", result.ThreadID)
	}
}

func TestRunTurnTimesOut(t *testing.T) {
	gateway := &fakeGateway{
		runStatuses: []string{assistant.RunStatusInProgress},
	}
	content := newFakePlanContent()
	svc := newTestConversation(t, gateway, content)
	svc.maxAttempts = 3

	plan := &types.BusinessPlan{ID: uuid.New()}
	_, err := svc.RunTurn(context.Background(), plan, turnTopic(), CallMeta{}, "Hello.", false)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if apierr.StatusOf(err) != 503 {
		t.Fatalf("status = %d, want 503", apierr.StatusOf(err))
	}
	if apierr.CodeOf(err) != "run_timed_out" {
		t.Fatalf("code = %q", apierr.CodeOf(err))
	}
	if gateway.getRunCalls != 3 {
		t.Fatalf("GetRun calls = %d, want 3", gateway.getRunCalls)
	}
}

func TestRunTurnFailedRun(t *testing.T) {
	gateway := &fakeGateway{
		runStatuses: []string{assistant.RunStatusFailed},
		lastError:   "rate limit exceeded on model",
	}
	content := newFakePlanContent()
	svc := newTestConversation(t, gateway, content)

	plan := &types.BusinessPlan{ID: uuid.New()}
	_, err := svc.RunTurn(context.Background(), plan, turnTopic(), CallMeta{}, "Hello.", false)
	if err == nil {
		t.Fatalf("expected run failure")
	}
	if apierr.CodeOf(err) != "run_failed" {
		t.Fatalf("code = %q", apierr.CodeOf(err))
	}
}

func TestRunTurnRequiresAssistantID(t *testing.T) {
	svc := newTestConversation(t, &fakeGateway{}, newFakePlanContent())
	topic := testTopic() // no assistant id
	_, err := svc.RunTurn(context.Background(), &types.BusinessPlan{ID: uuid.New()}, topic, CallMeta{}, "Hello.", false)
	if err == nil {
		t.Fatalf("expected error")
	}
	if apierr.CodeOf(err) != "assistant_not_configured" {
		t.Fatalf("code = %q", apierr.CodeOf(err))
	}
}

func TestStartAndAwaitRunPacesRunCreation(t *testing.T) {
	gateway := &fakeGateway{runStatuses: []string{assistant.RunStatusCompleted}}
	pacer := &fakePacer{}
	svc := newTestConversation(t, gateway, newFakePlanContent())
	svc.pacer = pacer

	if _, err := svc.StartAndAwaitRun(context.Background(), "thread_1", "asst_test", "", CallMeta{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pacer.waits) != 1 || pacer.waits[0] != "asst_test" {
		t.Fatalf("pacer waits = %v, want one wait keyed by assistant id", pacer.waits)
	}
}

func TestLatestAssistantMessageSkipsUserMessages(t *testing.T) {
	gateway := &fakeGateway{
		replies: []assistant.Message{
			{ID: "msg_u", Role: "user", Text: "my answer"},
			{ID: "msg_a", Role: "assistant", Text: "the reply"},
		},
	}
	svc := newTestConversation(t, gateway, newFakePlanContent())
	msg, err := svc.LatestAssistantMessage(context.Background(), "thread_x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "msg_a" {
		t.Fatalf("picked %q", msg.ID)
	}
}

func TestLatestAssistantMessageNone(t *testing.T) {
	gateway := &fakeGateway{
		replies: []assistant.Message{{ID: "msg_u", Role: "user", Text: "my answer"}},
	}
	svc := newTestConversation(t, gateway, newFakePlanContent())
	_, err := svc.LatestAssistantMessage(context.Background(), "thread_x")
	if apierr.CodeOf(err) != "no_assistant_response" {
		t.Fatalf("code = %q", apierr.CodeOf(err))
	}
}
