package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/venturely/venturely-backend/internal/logger"
)

func testClient(t *testing.T, handler http.Handler) Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_MAX_RETRIES", "2")

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	gw, err := NewClient(log)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return gw
}

func TestCreateThreadSendsAuthAndBetaHeaders(t *testing.T) {
	var gotAuth, gotBeta string
	gw := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBeta = r.Header.Get("OpenAI-Beta")
		if r.URL.Path != "/v1/threads" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "thread_123"})
	}))

	id, err := gw.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if id != "thread_123" {
		t.Fatalf("id = %q", id)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBeta != "assistants=v2" {
		t.Fatalf("beta header = %q", gotBeta)
	}
}

func TestGetRunDecodesLastErrorAndUsage(t *testing.T) {
	gw := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "run_1",
			"thread_id":  "thread_1",
			"status":     "failed",
			"last_error": map[string]string{"code": "server_error", "message": "model overloaded"},
			"usage":      map[string]int{"total_tokens": 42},
		})
	}))

	run, err := gw.GetRun(context.Background(), "thread_1", "run_1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Fatalf("status = %q", run.Status)
	}
	if run.LastError != "model overloaded" {
		t.Fatalf("last error = %q", run.LastError)
	}
	if len(run.Usage) == 0 {
		t.Fatalf("usage should be carried through")
	}
}

func TestDoRetriesRetryableStatus(t *testing.T) {
	var calls int32
	gw := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "thread_retry"})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := gw.CreateThread(ctx)
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if id != "thread_retry" {
		t.Fatalf("id = %q", id)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestDoDoesNotRetryClientError(t *testing.T) {
	var calls int32
	gw := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad request"}}`))
	}))

	_, err := gw.CreateThread(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", httpErr.StatusCode)
	}
}

func TestListMessagesExtractsFirstTextBlock(t *testing.T) {
	gw := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("order"); got != "desc" {
			t.Errorf("order = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"id":         "msg_1",
					"role":       "assistant",
					"created_at": 1700000000,
					"content": []map[string]any{
						{"type": "image_file"},
						{"type": "text", "text": map[string]string{"value": "Here is my reply."}},
					},
				},
			},
		})
	}))

	messages, err := gw.ListMessages(context.Background(), "thread_1", "desc")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages", len(messages))
	}
	if messages[0].Text != "Here is my reply." {
		t.Fatalf("text = %q", messages[0].Text)
	}
}
